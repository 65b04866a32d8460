package systems

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theviolentghost/StudySync-sub000/internal/identity"
	"github.com/theviolentghost/StudySync-sub000/internal/library"
	"github.com/theviolentghost/StudySync-sub000/internal/media"
	"github.com/theviolentghost/StudySync-sub000/internal/store"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// fakeResolver stands in for the streaming backend. Download blocks on
// gate when one is set, so tests can hold workers mid-transfer.
type fakeResolver struct {
	mu            sync.Mutex
	gate          chan struct{}
	blockManifest map[string]chan struct{}
	downloadErr   error
	payload       []byte
	contentType   string
	downloads     []structures.SongID
	manifests     int
	blocked       int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		payload:       []byte("mp3-bytes"),
		contentType:   "audio/mpeg",
		blockManifest: map[string]chan struct{}{},
	}
}

func (f *fakeResolver) ResolveManifest(ctx context.Context, key string) (*media.Manifest, error) {
	f.mu.Lock()
	f.manifests++
	gate := f.blockManifest[key]
	f.mu.Unlock()

	if gate != nil {
		f.mu.Lock()
		f.blocked++
		f.mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &media.Manifest{PlaylistURL: "http://resolver.test/hls/" + key, SessionID: "s1"}, nil
}

func (f *fakeResolver) OpenStream(ctx context.Context, manifest *media.Manifest) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeResolver) Download(ctx context.Context, id structures.SongID, opts *structures.DownloadOptions, progress func(structures.Progress)) ([]byte, string, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, id)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	if progress != nil {
		progress(structures.Progress{Downloaded: int64(len(f.payload)), Total: int64(len(f.payload))})
	}
	return f.payload, f.contentType, nil
}

func (f *fakeResolver) FetchArtwork(ctx context.Context, artworkURL string) ([]byte, error) {
	return nil, nil
}

func (f *fakeResolver) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.downloads)
}

func (f *fakeResolver) blockedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked
}

func (f *fakeResolver) manifestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.manifests
}

func newTestRepo(t *testing.T) *library.Repository {
	t.Helper()
	repo := library.NewRepository(store.NewMemStore())
	require.NoError(t, repo.EnsureDefaults())
	return repo
}

func songID(videoID string) structures.SongID {
	return structures.SongID{VideoID: videoID, SourceID: "src", Source: structures.SourceYouTube}
}

func newTestDownloadSystem(t *testing.T, repo *library.Repository, resolver *fakeResolver, concurrency int) *DownloadSystem {
	t.Helper()
	ds := NewDownloadSystem(repo, resolver, concurrency)
	ds.completeLinger = 40 * time.Millisecond
	ds.rampMinTick = 5 * time.Millisecond
	ds.rampMaxTick = 10 * time.Millisecond
	require.NoError(t, ds.Start())
	t.Cleanup(ds.Stop)
	return ds
}

func TestRequestDownloadDeduplicates(t *testing.T) {
	repo := newTestRepo(t)
	resolver := newFakeResolver()
	resolver.gate = make(chan struct{})

	ds := newTestDownloadSystem(t, repo, resolver, 1)

	id := songID("dup1")
	ds.RequestDownload(id, nil)
	ds.RequestDownload(id, nil)
	ds.RequestDownload(id, nil)

	require.Eventually(t, func() bool {
		return ds.ActiveCount() == 1
	}, time.Second, 5*time.Millisecond)

	close(resolver.gate)

	require.Eventually(t, func() bool {
		return ds.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, resolver.downloadCount())

	song, ok := repo.Song(identity.FullKey(id))
	require.True(t, ok)
	assert.True(t, song.Downloaded)
}

func TestRequestDownloadSkipsAlreadyDownloaded(t *testing.T) {
	repo := newTestRepo(t)
	resolver := newFakeResolver()

	id := songID("cached1")
	require.NoError(t, repo.SaveSong(&structures.Song{ID: id, Name: "Cached", Downloaded: true}))

	ds := newTestDownloadSystem(t, repo, resolver, 1)
	ds.RequestDownload(id, nil)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, resolver.downloadCount())
	assert.Zero(t, ds.ActiveCount())
}

func TestConcurrencyBound(t *testing.T) {
	repo := newTestRepo(t)
	resolver := newFakeResolver()
	resolver.gate = make(chan struct{})

	ds := newTestDownloadSystem(t, repo, resolver, 2)

	for i := 0; i < 5; i++ {
		ds.RequestDownload(songID(string(rune('a'+i))+"vid"), nil)
	}

	require.Eventually(t, func() bool {
		return resolver.downloadCount() == 2
	}, time.Second, 5*time.Millisecond)

	// The remaining three must stay queued while both workers are held.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, resolver.downloadCount())
	assert.Equal(t, 2, ds.ActiveCount())

	close(resolver.gate)

	require.Eventually(t, func() bool {
		return resolver.downloadCount() == 5 && ds.ActiveCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestProgressLingersThenClears(t *testing.T) {
	repo := newTestRepo(t)
	resolver := newFakeResolver()

	ds := newTestDownloadSystem(t, repo, resolver, 1)
	id := songID("linger1")
	ds.RequestDownload(id, nil)

	require.Eventually(t, func() bool {
		return ds.Progress()[id.VideoID] == 100
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		_, live := ds.Progress()[id.VideoID]
		return !live
	}, time.Second, 5*time.Millisecond)

	assert.False(t, ds.IsQueued(identity.FullKey(id)))
}

func TestFailedDownloadLeavesSongUntouched(t *testing.T) {
	repo := newTestRepo(t)
	resolver := newFakeResolver()
	resolver.downloadErr = context.DeadlineExceeded

	ds := newTestDownloadSystem(t, repo, resolver, 1)
	id := songID("fail1")
	require.NoError(t, repo.SaveSong(&structures.Song{ID: id, Name: "Fragile"}))

	ds.RequestDownload(id, nil)

	require.Eventually(t, func() bool {
		return resolver.downloadCount() == 1 && ds.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	song, ok := repo.Song(identity.FullKey(id))
	require.True(t, ok)
	assert.False(t, song.Downloaded)
	assert.Empty(t, song.Audio)

	downloads, ok := repo.Playlist(structures.DownloadsPlaylistID)
	require.True(t, ok)
	assert.Empty(t, downloads.Songs)
}

func TestNonAudioPayloadRejected(t *testing.T) {
	repo := newTestRepo(t)
	resolver := newFakeResolver()
	resolver.payload = []byte("<html>not found</html>")
	resolver.contentType = "text/html"

	ds := newTestDownloadSystem(t, repo, resolver, 1)
	id := songID("badtype1")
	ds.RequestDownload(id, nil)

	require.Eventually(t, func() bool {
		return resolver.downloadCount() == 1 && ds.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := repo.Song(identity.FullKey(id))
	assert.False(t, ok)
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, artworkURL string) (string, []string, error) {
	return "#112233", []string{"#445566", "#778899"}, nil
}

func TestDownloadCapturesArtworkColors(t *testing.T) {
	repo := newTestRepo(t)
	resolver := newFakeResolver()

	ds := newTestDownloadSystem(t, repo, resolver, 1)
	ds.SetColorExtractor(fakeExtractor{})

	id := songID("colorful1")
	require.NoError(t, repo.SaveSong(&structures.Song{ID: id, Name: "Colorful", ArtworkURL: "http://img.test/c1.jpg"}))

	ds.RequestDownload(id, nil)

	require.Eventually(t, func() bool {
		song, ok := repo.Song(identity.FullKey(id))
		return ok && song.Downloaded
	}, time.Second, 5*time.Millisecond)

	song, _ := repo.Song(identity.FullKey(id))
	assert.Equal(t, []string{"#112233", "#445566", "#778899"}, song.Colors)
}
