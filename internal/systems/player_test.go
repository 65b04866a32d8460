package systems

import (
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theviolentghost/StudySync-sub000/internal/config"
	"github.com/theviolentghost/StudySync-sub000/internal/identity"
	"github.com/theviolentghost/StudySync-sub000/internal/player"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// fakeOutput records what the player system asks the audio backend to do.
type fakeOutput struct {
	mu       sync.Mutex
	position time.Duration
	duration time.Duration
	playing  bool
	files    []string
	streams  int
	analysis bool
	volume   float64
	seeks    []time.Duration
}

func (f *fakeOutput) LoadFile(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, path)
	f.position = 0
	f.duration = 3 * time.Minute
	return nil
}

func (f *fakeOutput) LoadStream(rc io.ReadCloser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc.Close()
	f.streams++
	f.position = 0
	f.duration = 0
	return nil
}

func (f *fakeOutput) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	return nil
}

func (f *fakeOutput) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *fakeOutput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	f.position = 0
	return nil
}

func (f *fakeOutput) Seek(pos time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
	f.seeks = append(f.seeks, pos)
	return nil
}

func (f *fakeOutput) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeOutput) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *fakeOutput) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeOutput) SetVolume(volume float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = volume
	return nil
}

func (f *fakeOutput) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeOutput) EnableAnalysis(enable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analysis = enable
}

func (f *fakeOutput) Analyser() *player.Analyser { return nil }

func (f *fakeOutput) Close() error { return nil }

func (f *fakeOutput) setPosition(pos time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
}

func (f *fakeOutput) fileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

func (f *fakeOutput) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

func newTestPlayer(t *testing.T) (*PlayerSystem, *fakeResolver, *fakeOutput) {
	t.Helper()
	repo := newTestRepo(t)
	resolver := newFakeResolver()
	output := &fakeOutput{}
	ps := NewPlayerSystem(config.Default(), repo, resolver, output, t.TempDir())
	return ps, resolver, output
}

func fullKey(videoID string) string {
	return identity.FullKey(songID(videoID))
}

func TestSkipToNextWithoutPlaylist(t *testing.T) {
	ps, _, _ := newTestPlayer(t)

	err := ps.SkipToNext()
	assert.ErrorIs(t, err, ErrNoPlaylist)
}

func TestHistoryBounded(t *testing.T) {
	ps, _, _ := newTestPlayer(t)

	require.NoError(t, ps.LoadTrack(fullKey("vid0"), nil))

	ps.mu.Lock()
	for i := 1; i <= 105; i++ {
		ps.queue = append(ps.queue, songID(fmt.Sprintf("vid%03d", i)))
	}
	ps.mu.Unlock()

	for i := 0; i < 105; i++ {
		require.NoError(t, ps.SkipToNext())
	}

	history := ps.History()
	require.Len(t, history, 100)
	// 105 tracks went through; the 5 oldest entries were evicted.
	assert.Equal(t, "vid005", history[0].VideoID)
	assert.Equal(t, "vid104", history[99].VideoID)
}

func TestSkipToPreviousRestartsPastThreshold(t *testing.T) {
	ps, _, output := newTestPlayer(t)

	require.NoError(t, ps.LoadTrack(fullKey("current"), nil))
	ps.mu.Lock()
	ps.history = []structures.SongID{songID("older")}
	ps.mu.Unlock()

	output.setPosition(6 * time.Second)
	require.NoError(t, ps.SkipToPrevious())

	assert.Equal(t, "current", ps.Current().ID.VideoID)
	assert.Len(t, ps.History(), 1)
	assert.Equal(t, time.Duration(0), output.Position())
	assert.True(t, output.IsPlaying())
}

func TestSkipToPreviousPopsHistory(t *testing.T) {
	ps, _, output := newTestPlayer(t)

	require.NoError(t, ps.LoadTrack(fullKey("current"), nil))
	ps.mu.Lock()
	ps.history = []structures.SongID{songID("older")}
	ps.mu.Unlock()

	output.setPosition(3 * time.Second)
	require.NoError(t, ps.SkipToPrevious())

	assert.Equal(t, "older", ps.Current().ID.VideoID)
	assert.Empty(t, ps.History())

	queue := ps.Queue()
	require.NotEmpty(t, queue)
	assert.Equal(t, "current", queue[0].VideoID)
}

func TestLoadTrackSameKeyRestarts(t *testing.T) {
	ps, resolver, output := newTestPlayer(t)

	key := fullKey("same")
	require.NoError(t, ps.LoadTrack(key, nil))
	output.setPosition(90 * time.Second)
	streamsBefore := output.streamCount()

	require.NoError(t, ps.LoadTrack(key, nil))

	assert.Equal(t, streamsBefore, output.streamCount())
	assert.Equal(t, 1, resolver.manifestCount())
	assert.Equal(t, time.Duration(0), output.Position())
	assert.True(t, output.IsPlaying())
}

func TestSupersededLoadIsSilent(t *testing.T) {
	ps, resolver, output := newTestPlayer(t)

	keyA := fullKey("slowA")
	keyB := fullKey("fastB")
	gate := make(chan struct{})
	resolver.blockManifest[keyA] = gate

	errA := make(chan error, 1)
	go func() { errA <- ps.LoadTrack(keyA, nil) }()

	// Wait until the first load is parked inside manifest resolution so
	// the second load is guaranteed to be the newer generation.
	require.Eventually(t, func() bool {
		return resolver.blockedCount() == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, ps.LoadTrack(keyB, nil))
	close(gate)

	require.NoError(t, <-errA)
	assert.Equal(t, "fastB", ps.Current().ID.VideoID)
	assert.Equal(t, 1, output.streamCount())
	assert.False(t, ps.Loading())
}

func TestDownloadedSongPlaysFromFile(t *testing.T) {
	ps, _, output := newTestPlayer(t)

	id := songID("local1")
	audio := []byte("downloaded-mp3")
	song := &structures.Song{ID: id, Name: "Local", Downloaded: true, Audio: audio}
	require.NoError(t, ps.repo.SaveSong(song))

	require.NoError(t, ps.LoadTrack(identity.FullKey(id), nil))

	require.Equal(t, 1, output.fileCount())
	assert.Zero(t, output.streamCount())
	assert.True(t, output.analysis)

	staged, err := os.ReadFile(output.files[0])
	require.NoError(t, err)
	assert.Equal(t, audio, staged)

	recent, ok := ps.repo.Playlist(structures.RecentlyPlayedPlaylistID)
	require.True(t, ok)
	assert.Contains(t, recent.Songs, identity.FullKey(id))
}

func TestLoadPlaylistReplacesQueue(t *testing.T) {
	ps, _, output := newTestPlayer(t)

	pl := &structures.Playlist{Name: "Mix", Songs: map[string]structures.SongID{}}
	for _, v := range []string{"m1", "m2", "m3"} {
		id := songID(v)
		pl.Songs[identity.FullKey(id)] = id
	}

	ps.mu.Lock()
	ps.history = []structures.SongID{songID("stale")}
	ps.mu.Unlock()

	require.NoError(t, ps.LoadPlaylist(pl, nil, LoadOptions{PlayImmediately: true}))

	require.NotNil(t, ps.Current())
	assert.Len(t, ps.Queue(), 2)
	assert.Empty(t, ps.History())
	assert.True(t, output.IsPlaying())
}

func TestLoadPlaylistReloadsWhenQueueExhausted(t *testing.T) {
	ps, _, _ := newTestPlayer(t)

	pl := &structures.Playlist{Name: "Loop", Songs: map[string]structures.SongID{}}
	for _, v := range []string{"l1", "l2"} {
		id := songID(v)
		pl.Songs[identity.FullKey(id)] = id
	}

	require.NoError(t, ps.LoadPlaylist(pl, nil, LoadOptions{PlayImmediately: true}))
	require.NoError(t, ps.SkipToNext())
	require.Equal(t, "l2", ps.Current().ID.VideoID)
	assert.Empty(t, ps.Queue())

	// Queue is exhausted but a playlist is loaded, so skipping wraps
	// around instead of failing.
	require.NoError(t, ps.SkipToNext())
	assert.Equal(t, "l1", ps.Current().ID.VideoID)
	assert.Contains(t, ps.History(), songID("l2"))
}

func TestOnDownloadedSwapsCurrentTrack(t *testing.T) {
	ps, _, output := newTestPlayer(t)

	id := songID("swap1")
	require.NoError(t, ps.LoadTrack(identity.FullKey(id), nil))
	require.Equal(t, 1, output.streamCount())

	output.setPosition(30 * time.Second)

	cached := &structures.Song{ID: id, Name: "Swapped", Downloaded: true, Audio: []byte("bytes")}
	ps.OnDownloaded(cached)

	assert.Equal(t, 1, output.fileCount())
	assert.Equal(t, 30*time.Second, output.Position())
	assert.Equal(t, "Swapped", ps.Current().Name)
}

func TestOnDownloadedIgnoresOtherSongs(t *testing.T) {
	ps, _, output := newTestPlayer(t)

	require.NoError(t, ps.LoadTrack(fullKey("playing"), nil))

	other := &structures.Song{ID: songID("other"), Downloaded: true, Audio: []byte("bytes")}
	ps.OnDownloaded(other)

	// The same video id resolved through a different catalog entry is a
	// different stream variant, not the loaded track.
	variant := &structures.Song{
		ID:         structures.SongID{VideoID: "playing", SourceID: "src2", Source: structures.SourceYouTube},
		Downloaded: true,
		Audio:      []byte("bytes"),
	}
	ps.OnDownloaded(variant)

	assert.Zero(t, output.fileCount())
	assert.Equal(t, "playing", ps.Current().ID.VideoID)
	assert.Equal(t, "src", ps.Current().ID.SourceID)
}

func TestLoadTrackMalformedKey(t *testing.T) {
	ps, resolver, output := newTestPlayer(t)

	// Two-segment keys are only valid for sources without a catalog id.
	err := ps.LoadTrack("spotify:trk1", nil)
	require.Error(t, err)

	assert.Nil(t, ps.Current())
	assert.Zero(t, resolver.manifestCount())
	assert.Zero(t, output.streamCount())
}

func TestVolumeStepClamps(t *testing.T) {
	ps, _, output := newTestPlayer(t)

	require.NoError(t, output.SetVolume(0.98))
	ps.handleAction(structures.VolumeUpAction{})
	assert.Equal(t, 1.0, output.Volume())

	require.NoError(t, output.SetVolume(0.02))
	ps.handleAction(structures.VolumeDownAction{})
	assert.Equal(t, 0.0, output.Volume())

	require.NoError(t, output.SetVolume(0.5))
	ps.handleAction(structures.VolumeUpAction{})
	assert.InDelta(t, 0.55, output.Volume(), 0.001)
}

func TestDefaultVolumeDeferredToFirstLoad(t *testing.T) {
	ps, _, output := newTestPlayer(t)

	// Nothing is loaded yet, so the configured volume has not been
	// pushed to the output.
	assert.Zero(t, output.Volume())

	require.NoError(t, ps.LoadTrack(fullKey("first"), nil))
	assert.InDelta(t, 0.7, output.Volume(), 0.001)

	// Later loads do not override a manual volume change.
	require.NoError(t, output.SetVolume(0.3))
	require.NoError(t, ps.LoadTrack(fullKey("second"), nil))
	assert.InDelta(t, 0.3, output.Volume(), 0.001)
}
