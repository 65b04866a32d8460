package library

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/theviolentghost/StudySync-sub000/internal/artwork"
	"github.com/theviolentghost/StudySync-sub000/internal/constants"
	"github.com/theviolentghost/StudySync-sub000/internal/identity"
	"github.com/theviolentghost/StudySync-sub000/internal/logger"
	"github.com/theviolentghost/StudySync-sub000/internal/store"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// Repository is the CRUD facade over playlists and their identifiers. Every
// mutation keeps the membership cache and the persisted identifier counters
// in step with the playlist bodies.
type Repository struct {
	mu          sync.Mutex
	store       store.Store
	cache       *Membership
	identifiers []structures.PlaylistID
}

// NewRepository creates a repository over the given store. EnsureDefaults
// must be called before the repository is used.
func NewRepository(s store.Store) *Repository {
	return &Repository{
		store: s,
		cache: NewMembership(),
	}
}

// Cache exposes the membership cache for read queries.
func (r *Repository) Cache() *Membership {
	return r.cache
}

var defaultPlaylists = []structures.PlaylistID{
	{ID: structures.FavoritesPlaylistID, Name: "Favorites", Default: true, Colors: []string{"#e0529c"}},
	{ID: structures.DownloadsPlaylistID, Name: "Downloads", Default: true, Colors: []string{"#52e07a"}},
	{ID: structures.RecentlyPlayedPlaylistID, Name: "Recently Played", Default: true, Colors: []string{"#527ae0"}},
	{ID: structures.RecentlyAddedPlaylistID, Name: "Recently Added", Default: true, Colors: []string{"#e0b052"}},
}

// EnsureDefaults loads the playlist directory, synthesizes any missing
// default playlists, persists them, and builds the membership cache.
func (r *Repository) EnsureDefaults() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, _ := store.GetPlaylistIndex(r.store)

	dirty := false
	for _, def := range defaultPlaylists {
		if _, found := lo.Find(ids, func(p structures.PlaylistID) bool { return p.ID == def.ID }); found {
			continue
		}
		ids = append(ids, def)
		if err := store.SetPlaylist(r.store, def.ID, &structures.Playlist{
			Songs:   make(map[string]structures.SongID),
			Name:    def.Name,
			Default: true,
		}); err != nil {
			return fmt.Errorf("failed to persist default playlist %s: %w", def.ID, err)
		}
		dirty = true
	}

	if dirty {
		if err := store.SetPlaylistIndex(r.store, ids); err != nil {
			return fmt.Errorf("failed to persist playlist index: %w", err)
		}
		logger.Info("Synthesized missing default playlists")
	}

	r.identifiers = ids
	r.cache.Initialize(ids, func(id string) (*structures.Playlist, bool) {
		return store.GetPlaylist(r.store, id)
	})
	return nil
}

// RebuildCache discards the membership cache and builds a fresh one from
// the store. This is the explicit force-refresh path.
func (r *Repository) RebuildCache() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cache := NewMembership()
	cache.Initialize(r.identifiers, func(id string) (*structures.Playlist, bool) {
		return store.GetPlaylist(r.store, id)
	})
	r.cache = cache
}

// Playlists returns all playlist identifiers, defaults included.
func (r *Repository) Playlists() []structures.PlaylistID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]structures.PlaylistID, len(r.identifiers))
	copy(out, r.identifiers)
	return out
}

// CustomPlaylists returns the user-created playlist identifiers.
func (r *Repository) CustomPlaylists() []structures.PlaylistID {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.Filter(r.identifiers, func(p structures.PlaylistID, _ int) bool {
		return !structures.IsDefaultPlaylistID(p.ID)
	})
}

// identifierIndex returns the position of a playlist id in the directory,
// or -1. Callers must hold r.mu.
func (r *Repository) identifierIndex(id string) int {
	return lo.IndexOf(lo.Map(r.identifiers, func(p structures.PlaylistID, _ int) string { return p.ID }), id)
}

// Identifier returns the identifier for a playlist id.
func (r *Repository) Identifier(id string) (structures.PlaylistID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.Find(r.identifiers, func(p structures.PlaylistID) bool { return p.ID == id })
}

// Playlist loads a playlist body from the store.
func (r *Repository) Playlist(id string) (*structures.Playlist, bool) {
	return store.GetPlaylist(r.store, id)
}

// Song loads a song record by full key.
func (r *Repository) Song(fullKey string) (*structures.Song, bool) {
	return store.GetSong(r.store, fullKey)
}

// SaveSong persists a song record under its full key.
func (r *Repository) SaveSong(song *structures.Song) error {
	return store.SetSong(r.store, identity.FullKey(song.ID), song)
}

// CreatePlaylist creates and persists an empty user playlist.
func (r *Repository) CreatePlaylist(name string) (structures.PlaylistID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pid := structures.PlaylistID{
		ID:   uuid.NewString(),
		Name: name,
	}

	if err := store.SetPlaylist(r.store, pid.ID, &structures.Playlist{
		Songs: make(map[string]structures.SongID),
		Name:  name,
	}); err != nil {
		return structures.PlaylistID{}, fmt.Errorf("failed to persist playlist: %w", err)
	}

	r.identifiers = append(r.identifiers, pid)
	if err := store.SetPlaylistIndex(r.store, r.identifiers); err != nil {
		return structures.PlaylistID{}, fmt.Errorf("failed to persist playlist index: %w", err)
	}

	logger.Info("Created playlist %q (%s)", name, pid.ID)
	return pid, nil
}

// DeletePlaylist removes a user playlist, its memberships and its body.
// Default playlists cannot be deleted; empty playlists otherwise stay alive
// until this is called explicitly.
func (r *Repository) DeletePlaylist(id string) error {
	if structures.IsDefaultPlaylistID(id) {
		return fmt.Errorf("cannot delete default playlist %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pl, ok := store.GetPlaylist(r.store, id)
	if ok {
		for _, songID := range pl.Songs {
			r.cache.Remove(identity.BareKey(songID), id)
		}
	}

	if err := r.store.Delete(store.PlaylistKey(id)); err != nil {
		return fmt.Errorf("failed to delete playlist body: %w", err)
	}

	r.identifiers = lo.Reject(r.identifiers, func(p structures.PlaylistID, _ int) bool {
		return p.ID == id
	})
	return store.SetPlaylistIndex(r.store, r.identifiers)
}

// AddSong adds a song to a playlist: registers membership, updates the
// identifier counters and thumbnail images, and persists the song record
// before the playlist (the playlist is the source of truth for membership,
// the song record is a cache).
func (r *Repository) AddSong(playlistID string, song *structures.Song) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, ok := store.GetPlaylist(r.store, playlistID)
	if !ok {
		return fmt.Errorf("playlist %s not found", playlistID)
	}

	fullKey := identity.FullKey(song.ID)
	if _, exists := pl.Songs[fullKey]; exists {
		logger.Warn("Song %s already in playlist %s", fullKey, playlistID)
		return nil
	}

	r.cache.Add(identity.BareKey(song.ID), playlistID)
	pl.Songs[fullKey] = song.ID

	idx := r.identifierIndex(playlistID)
	if idx >= 0 {
		pid := &r.identifiers[idx]
		pid.TrackCount++
		pid.Duration += song.Duration
		if song.ArtworkURL != "" && len(pid.Images) < constants.PlaylistImageLimit && !lo.Contains(pid.Images, song.ArtworkURL) {
			pid.Images = append(pid.Images, song.ArtworkURL)
		}
		if len(song.Colors) > 0 {
			pid.Colors = artwork.MergePalette(pid.Colors, song.Colors, constants.PlaylistImageLimit)
		}
	}

	if err := store.SetSong(r.store, fullKey, song); err != nil {
		return fmt.Errorf("failed to persist song %s: %w", fullKey, err)
	}
	if err := store.SetPlaylist(r.store, playlistID, pl); err != nil {
		return fmt.Errorf("failed to persist playlist %s: %w", playlistID, err)
	}
	return store.SetPlaylistIndex(r.store, r.identifiers)
}

// AddTrack adds a track reference to a playlist. Resolved references are
// added as-is; raw search hits are converted to a song record, reusing any
// previously stored record for the same identity.
func (r *Repository) AddTrack(playlistID string, ref structures.TrackRef) error {
	if ref.Resolved != nil {
		return r.AddSong(playlistID, ref.Resolved)
	}
	if ref.Raw == nil {
		return errors.New("empty track reference")
	}

	raw := ref.Raw
	song, ok := r.Song(identity.FullKey(raw.ID))
	if !ok {
		song = &structures.Song{
			ID:         raw.ID,
			Name:       raw.Title,
			Artists:    raw.Artists,
			ArtworkURL: raw.ArtworkURL,
			Duration:   raw.Duration,
		}
	}
	return r.AddSong(playlistID, song)
}

// RemoveSong removes a song (by full key) from a playlist, decrements the
// identifier counters (clamped at zero) and prunes the removed song's
// thumbnail image once the playlist is small enough to notice.
func (r *Repository) RemoveSong(playlistID, fullKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, ok := store.GetPlaylist(r.store, playlistID)
	if !ok {
		return fmt.Errorf("playlist %s not found", playlistID)
	}

	songID, exists := pl.Songs[fullKey]
	if !exists {
		logger.Warn("Song %s not in playlist %s", fullKey, playlistID)
		return nil
	}

	delete(pl.Songs, fullKey)
	r.cache.Remove(identity.BareKey(songID), playlistID)

	song, _ := store.GetSong(r.store, fullKey)

	idx := r.identifierIndex(playlistID)
	if idx >= 0 {
		pid := &r.identifiers[idx]
		if pid.TrackCount > 0 {
			pid.TrackCount--
		}
		if song != nil {
			pid.Duration -= song.Duration
			if pid.Duration < 0 {
				pid.Duration = 0
			}
			if pid.TrackCount < constants.PlaylistImageLimit && song.ArtworkURL != "" {
				pid.Images = lo.Without(pid.Images, song.ArtworkURL)
			}
		}
	}

	if err := store.SetPlaylist(r.store, playlistID, pl); err != nil {
		return fmt.Errorf("failed to persist playlist %s: %w", playlistID, err)
	}
	return store.SetPlaylistIndex(r.store, r.identifiers)
}

// SetLiked flips a song's liked flag and mirrors it into Favorites.
func (r *Repository) SetLiked(song *structures.Song, liked bool) error {
	song.Liked = liked
	if liked {
		return r.AddSong(structures.FavoritesPlaylistID, song)
	}
	if err := r.RemoveSong(structures.FavoritesPlaylistID, identity.FullKey(song.ID)); err != nil {
		return err
	}
	return r.SaveSong(song)
}

// RecordRecentlyPlayed registers a play in the recently-played default
// playlist, trimming it down when it grows past the cap.
func (r *Repository) RecordRecentlyPlayed(song *structures.Song) error {
	return r.recordRecent(structures.RecentlyPlayedPlaylistID, song)
}

// RecordRecentlyAdded registers a new arrival in the recently-added default
// playlist, trimming it down when it grows past the cap.
func (r *Repository) RecordRecentlyAdded(song *structures.Song) error {
	return r.recordRecent(structures.RecentlyAddedPlaylistID, song)
}

func (r *Repository) recordRecent(playlistID string, song *structures.Song) error {
	fullKey := identity.FullKey(song.ID)

	pl, ok := r.Playlist(playlistID)
	if ok && len(pl.Songs) >= constants.RecentPlaylistCap {
		if _, exists := pl.Songs[fullKey]; !exists {
			// Map iteration order is not insertion order, so the trim is
			// approximate; the cap only exists to keep the auto playlists
			// from growing without bound.
			for key := range pl.Songs {
				if err := r.RemoveSong(playlistID, key); err != nil {
					return err
				}
				break
			}
		}
	}
	return r.AddSong(playlistID, song)
}
