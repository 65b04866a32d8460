package library

import (
	"sync"

	"github.com/samber/lo"

	"github.com/theviolentghost/StudySync-sub000/internal/identity"
	"github.com/theviolentghost/StudySync-sub000/internal/logger"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// Membership is the in-memory index answering "is this song saved anywhere"
// and "which playlists contain it" in O(1), independent of the heavyweight
// playlist song maps in the store. Keys are bare keys, so two stream
// variants of the same logical song count as one entry.
type Membership struct {
	mu            sync.RWMutex
	playlistSongs map[string]map[string]struct{}
	allSongs      map[string]struct{}
	initialized   bool
}

// NewMembership creates an empty, uninitialized cache. A force-refresh is a
// new cache initialized again; see Repository.RebuildCache.
func NewMembership() *Membership {
	return &Membership{
		playlistSongs: make(map[string]map[string]struct{}),
		allSongs:      make(map[string]struct{}),
	}
}

// Initialize builds the index from the playlist directory, loading each
// playlist body through load. Runs once; later calls are no-ops.
func (m *Membership) Initialize(ids []structures.PlaylistID, load func(id string) (*structures.Playlist, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		logger.Debug("Membership cache already initialized, ignoring")
		return
	}

	for _, pid := range ids {
		pl, ok := load(pid.ID)
		if !ok {
			logger.Warn("Playlist %s missing while building membership cache", pid.ID)
			continue
		}
		for _, songID := range pl.Songs {
			bare := identity.BareKey(songID)
			m.addLocked(bare, pid.ID)
		}
	}

	m.initialized = true
	logger.Info("Membership cache built: %d songs across %d playlists", len(m.allSongs), len(ids))
}

// Initialized reports whether the cache has been built.
func (m *Membership) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// IsKnown reports whether the song is in the user's collection. With
// excludeDefaults set, membership in only the two auto-maintained playlists
// (recently played / recently added) does not count.
func (m *Membership) IsKnown(bareKey string, excludeDefaults bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		logger.Warn("Membership cache queried before initialization; reporting %s as unknown", bareKey)
		return false
	}

	playlists, ok := m.playlistSongs[bareKey]
	if !ok || len(playlists) == 0 {
		return false
	}
	if !excludeDefaults {
		return true
	}

	for pid := range playlists {
		if pid != structures.RecentlyPlayedPlaylistID && pid != structures.RecentlyAddedPlaylistID {
			return true
		}
	}
	return false
}

// PlaylistsContaining returns the ids of all playlists containing the song.
func (m *Membership) PlaylistsContaining(bareKey string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	playlists, ok := m.playlistSongs[bareKey]
	if !ok {
		logger.Warn("No membership entry for %s", bareKey)
		return nil
	}
	return lo.Keys(playlists)
}

// InPlaylist reports whether the song belongs to a specific playlist.
func (m *Membership) InPlaylist(bareKey, playlistID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	playlists, ok := m.playlistSongs[bareKey]
	if !ok {
		logger.Warn("No membership entry for %s", bareKey)
		return false
	}
	_, in := playlists[playlistID]
	return in
}

// Add registers a song's membership in a playlist. Set semantics: adding an
// existing membership changes nothing.
func (m *Membership) Add(bareKey, playlistID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(bareKey, playlistID)
}

func (m *Membership) addLocked(bareKey, playlistID string) {
	playlists, ok := m.playlistSongs[bareKey]
	if !ok {
		playlists = make(map[string]struct{})
		m.playlistSongs[bareKey] = playlists
	}
	playlists[playlistID] = struct{}{}
	m.allSongs[bareKey] = struct{}{}
}

// Remove drops a song's membership in a playlist. Removing the last
// membership removes the song from the index entirely.
func (m *Membership) Remove(bareKey, playlistID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	playlists, ok := m.playlistSongs[bareKey]
	if !ok {
		return
	}
	delete(playlists, playlistID)
	if len(playlists) == 0 {
		delete(m.playlistSongs, bareKey)
		delete(m.allSongs, bareKey)
	}
}

// Size returns the number of distinct songs in the index.
func (m *Membership) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.allSongs)
}
