package structures

import (
	"time"
)

// Source identifies where a song originally came from.
type Source string

const (
	SourceYouTube Source = "youtube"
	SourceSpotify Source = "spotify"
	SourceMusi    Source = "musi"
	SourceMusix   Source = "musix"
	SourceOther   Source = "other"
)

// ParseSource maps a raw source string onto a known Source, defaulting to
// SourceOther for anything unrecognized.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceYouTube, SourceSpotify, SourceMusi, SourceMusix:
		return Source(s)
	default:
		return SourceOther
	}
}

// SongID identifies a song and the exact stream variant it resolved to.
// VideoID is always present; SourceID is only set for catalog-backed sources
// (e.g. a Spotify track id resolved to a YouTube video).
type SongID struct {
	VideoID  string `json:"video_id"`
	SourceID string `json:"source_id,omitempty"`
	Source   Source `json:"source"`
}

// DownloadOptions carries per-download parameters handed to the resolver.
type DownloadOptions struct {
	Quality string `json:"quality,omitempty"`
	Format  string `json:"format,omitempty"`
}

// Song is the persisted record for a single track. Audio and Artwork are
// only populated once the song has been downloaded.
type Song struct {
	ID           SongID           `json:"id"`
	Name         string           `json:"name"`
	OriginalName string           `json:"original_name,omitempty"`
	Artists      []string         `json:"artists,omitempty"`
	Downloaded   bool             `json:"downloaded"`
	Audio        []byte           `json:"audio,omitempty"`
	Artwork      []byte           `json:"artwork,omitempty"`
	Options      *DownloadOptions `json:"download_options,omitempty"`
	StreamURL    string           `json:"stream_url,omitempty"`
	ArtworkURL   string           `json:"artwork_url,omitempty"`
	Colors       []string         `json:"colors,omitempty"`
	Duration     int              `json:"duration"` // milliseconds
	Lyrics       string           `json:"lyrics,omitempty"`
	Liked        bool             `json:"liked"`
}

// Playlist is the heavyweight playlist record. Songs is keyed by full key.
type Playlist struct {
	Songs   map[string]SongID `json:"songs"`
	Name    string            `json:"name"`
	Default bool              `json:"default"`
}

// PlaylistID is the directory-listing projection of a Playlist, persisted
// separately so listing playlists never loads the song maps.
type PlaylistID struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	TrackCount int      `json:"track_count"`
	Duration   int      `json:"duration"` // milliseconds
	Images     []string `json:"images,omitempty"`
	Default    bool     `json:"default"`
	Colors     []string `json:"colors,omitempty"`
}

// Fixed ids of the four always-present default playlists.
const (
	FavoritesPlaylistID      = "#favorites"
	DownloadsPlaylistID      = "#downloads"
	RecentlyPlayedPlaylistID = "#recently_played"
	RecentlyAddedPlaylistID  = "#recently_added"
)

// DefaultPlaylistIDs lists the fixed default playlist ids.
var DefaultPlaylistIDs = []string{
	FavoritesPlaylistID,
	DownloadsPlaylistID,
	RecentlyPlayedPlaylistID,
	RecentlyAddedPlaylistID,
}

// IsDefaultPlaylistID reports whether id names one of the default playlists.
// Defaults are keyed strictly by id, never by name.
func IsDefaultPlaylistID(id string) bool {
	switch id {
	case FavoritesPlaylistID, DownloadsPlaylistID, RecentlyPlayedPlaylistID, RecentlyAddedPlaylistID:
		return true
	}
	return false
}

// TrackRef is the tagged union handed in at the boundary where external
// search results enter the system: either a raw search result that still
// needs resolving, or an already-resolved song record.
type TrackRef struct {
	Raw      *RawSearchResult
	Resolved *Song
}

// RawSearchResult is the minimal shape of an unresolved search hit.
type RawSearchResult struct {
	ID         SongID
	Title      string
	Artists    []string
	ArtworkURL string
	Duration   int // milliseconds
}

// SongID returns the song identifier regardless of which variant is populated.
func (r TrackRef) SongID() SongID {
	if r.Resolved != nil {
		return r.Resolved.ID
	}
	if r.Raw != nil {
		return r.Raw.ID
	}
	return SongID{}
}

// Progress is a single download progress sample from the resolver stream.
type Progress struct {
	Downloaded int64 `json:"downloaded"`
	Total      int64 `json:"total"`
}

// DownloadRequest is one entry in the download queue.
type DownloadRequest struct {
	Key     string
	ID      SongID
	Options *DownloadOptions
}

// Player actions, sent to the player system's action channel.
type SoundAction interface{}

type PlayPauseAction struct{}
type PlayAction struct{}
type PauseAction struct{}
type NextAction struct{}
type PreviousAction struct{}
type SeekAction struct{ Position time.Duration }
type VolumeAction struct{ Volume float64 }
type VolumeUpAction struct{}
type VolumeDownAction struct{}
type RepeatAction struct{ Count int }
type PlayNextAction struct{ ID SongID }
type EnqueueAction struct{ ID SongID }
type SongDownloadedAction struct{ Song *Song }

// Config is the application configuration.
type Config struct {
	// Download configuration
	DownloadDir            string `toml:"download_dir"`
	MaxConcurrentDownloads int    `toml:"max_concurrent_downloads"`
	MaxCacheSize           int64  `toml:"max_cache_size"` // in MB

	// Resolver configuration
	ResolverBaseURL string `toml:"resolver_base_url"`

	// Player configuration
	DefaultVolume float64 `toml:"default_volume"`
	SeekSeconds   int     `toml:"seek_seconds"`
}
