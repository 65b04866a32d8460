// Package store provides the durable key-value store backing songs,
// playlists and the playlist directory. Values are JSON; the key
// conventions are the song full key, "#playlist_<id>" for playlist bodies
// and "#playlists" for the playlist-identifier directory.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/theviolentghost/StudySync-sub000/internal/logger"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// Store is the interface both the SQLite and in-memory stores implement.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// PlaylistKey returns the persistence key for a playlist body.
func PlaylistKey(id string) string {
	return "#playlist_" + id
}

// PlaylistIndexKey is the persistence key for the playlist directory.
const PlaylistIndexKey = "#playlists"

// GetSong loads a song record by full key.
func GetSong(s Store, fullKey string) (*structures.Song, bool) {
	data, ok := s.Get(fullKey)
	if !ok {
		return nil, false
	}

	var song structures.Song
	if err := json.Unmarshal(data, &song); err != nil {
		logger.Warn("Corrupt song record for %s: %v", fullKey, err)
		return nil, false
	}
	return &song, true
}

// SetSong persists a song record under its full key.
func SetSong(s Store, fullKey string, song *structures.Song) error {
	data, err := json.Marshal(song)
	if err != nil {
		return fmt.Errorf("failed to marshal song %s: %w", fullKey, err)
	}
	return s.Set(fullKey, data)
}

// GetPlaylist loads a playlist body by playlist id.
func GetPlaylist(s Store, id string) (*structures.Playlist, bool) {
	data, ok := s.Get(PlaylistKey(id))
	if !ok {
		return nil, false
	}

	var pl structures.Playlist
	if err := json.Unmarshal(data, &pl); err != nil {
		logger.Warn("Corrupt playlist record for %s: %v", id, err)
		return nil, false
	}
	if pl.Songs == nil {
		pl.Songs = make(map[string]structures.SongID)
	}
	return &pl, true
}

// SetPlaylist persists a playlist body.
func SetPlaylist(s Store, id string, pl *structures.Playlist) error {
	data, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("failed to marshal playlist %s: %w", id, err)
	}
	return s.Set(PlaylistKey(id), data)
}

// GetPlaylistIndex loads the playlist-identifier directory.
func GetPlaylistIndex(s Store) ([]structures.PlaylistID, bool) {
	data, ok := s.Get(PlaylistIndexKey)
	if !ok {
		return nil, false
	}

	var ids []structures.PlaylistID
	if err := json.Unmarshal(data, &ids); err != nil {
		logger.Warn("Corrupt playlist index: %v", err)
		return nil, false
	}
	return ids, true
}

// SetPlaylistIndex persists the playlist-identifier directory.
func SetPlaylistIndex(s Store, ids []structures.PlaylistID) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal playlist index: %w", err)
	}
	return s.Set(PlaylistIndexKey, data)
}
