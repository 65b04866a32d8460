package library

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

func initializedCache() *Membership {
	m := NewMembership()
	m.Initialize(nil, func(string) (*structures.Playlist, bool) { return nil, false })
	return m
}

func TestMembershipIdempotence(t *testing.T) {
	m := initializedCache()

	m.Add("youtube:vid1", "pl1")
	m.Add("youtube:vid1", "pl1")

	assert.Equal(t, 1, m.Size())
	assert.Equal(t, []string{"pl1"}, m.PlaylistsContaining("youtube:vid1"))

	// Remove after add restores the baseline exactly.
	m.Remove("youtube:vid1", "pl1")
	assert.Equal(t, 0, m.Size())
	assert.False(t, m.IsKnown("youtube:vid1", false))
}

func TestLastMembershipRemovalDropsSong(t *testing.T) {
	m := initializedCache()

	m.Add("youtube:vid1", "pl1")
	m.Add("youtube:vid1", "pl2")

	m.Remove("youtube:vid1", "pl1")
	assert.True(t, m.IsKnown("youtube:vid1", false))
	assert.Equal(t, 1, m.Size())

	m.Remove("youtube:vid1", "pl2")
	assert.False(t, m.IsKnown("youtube:vid1", false))
	assert.Equal(t, 0, m.Size())
}

func TestDefaultExclusion(t *testing.T) {
	m := initializedCache()

	m.Add("youtube:vid1", structures.RecentlyPlayedPlaylistID)
	m.Add("youtube:vid1", structures.RecentlyAddedPlaylistID)

	assert.True(t, m.IsKnown("youtube:vid1", false))
	assert.False(t, m.IsKnown("youtube:vid1", true))

	// Favorites is a default but still counts as the user's collection.
	m.Add("youtube:vid1", structures.FavoritesPlaylistID)
	assert.True(t, m.IsKnown("youtube:vid1", true))

	m.Remove("youtube:vid1", structures.FavoritesPlaylistID)
	assert.False(t, m.IsKnown("youtube:vid1", true))
}

func TestUninitializedCacheReportsUnknown(t *testing.T) {
	m := NewMembership()
	m.Add("youtube:vid1", "pl1")

	assert.False(t, m.IsKnown("youtube:vid1", false))
	assert.False(t, m.Initialized())
}

func TestInitializeBuildsFromPlaylists(t *testing.T) {
	m := NewMembership()

	bodies := map[string]*structures.Playlist{
		"pl1": {Songs: map[string]structures.SongID{
			// Two stream variants of the same logical song collapse into
			// one bare-key entry.
			"spotify:src1:vidA": {Source: structures.SourceSpotify, SourceID: "src1", VideoID: "vidA"},
			"spotify:src1:vidB": {Source: structures.SourceSpotify, SourceID: "src1", VideoID: "vidB"},
		}},
		"pl2": {Songs: map[string]structures.SongID{
			"youtube:vid2": {Source: structures.SourceYouTube, VideoID: "vid2"},
		}},
	}

	ids := []structures.PlaylistID{{ID: "pl1"}, {ID: "pl2"}}
	m.Initialize(ids, func(id string) (*structures.Playlist, bool) {
		pl, ok := bodies[id]
		return pl, ok
	})

	assert.Equal(t, 2, m.Size())
	assert.True(t, m.InPlaylist("spotify:src1", "pl1"))
	assert.True(t, m.InPlaylist("youtube:vid2", "pl2"))
	assert.False(t, m.InPlaylist("youtube:vid2", "pl1"))

	// Re-entrant initialization is a no-op.
	m.Initialize(nil, func(string) (*structures.Playlist, bool) { return nil, false })
	assert.Equal(t, 2, m.Size())
}
