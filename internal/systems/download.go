package systems

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/theviolentghost/StudySync-sub000/internal/artwork"
	"github.com/theviolentghost/StudySync-sub000/internal/constants"
	"github.com/theviolentghost/StudySync-sub000/internal/identity"
	"github.com/theviolentghost/StudySync-sub000/internal/library"
	"github.com/theviolentghost/StudySync-sub000/internal/logger"
	"github.com/theviolentghost/StudySync-sub000/internal/media"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// DownloadSystem schedules audio downloads on a bounded worker pool,
// deduplicates in-flight requests and reports blended live progress.
type DownloadSystem struct {
	mu       sync.Mutex
	repo     *library.Repository
	resolver media.Resolver

	concurrency int
	queue       chan structures.DownloadRequest
	queued      map[string]struct{} // song key -> queued, not yet picked up
	progress    map[string]float64  // video id -> percent

	// Timer knobs, defaulted from constants; tests shorten them.
	completeLinger time.Duration
	rampMinTick    time.Duration
	rampMaxTick    time.Duration

	songDownloaded func(song *structures.Song)
	colorExtractor artwork.Extractor

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// NewDownloadSystem creates a download system with the given concurrency
// limit (values below one fall back to the default of two).
func NewDownloadSystem(repo *library.Repository, resolver media.Resolver, concurrency int) *DownloadSystem {
	if concurrency < 1 {
		concurrency = constants.DefaultDownloadConcurrency
	}
	return &DownloadSystem{
		repo:           repo,
		resolver:       resolver,
		concurrency:    concurrency,
		queue:          make(chan structures.DownloadRequest, constants.DownloadQueueSize),
		queued:         make(map[string]struct{}),
		progress:       make(map[string]float64),
		completeLinger: constants.ProgressCompleteLinger,
		rampMinTick:    constants.FakeProgressMinInterval,
		rampMaxTick:    constants.FakeProgressMaxInterval,
		stopChan:       make(chan struct{}),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetSongDownloadedCallback registers the hook invoked with the freshly
// persisted record after every successful download.
func (ds *DownloadSystem) SetSongDownloadedCallback(fn func(song *structures.Song)) {
	ds.songDownloaded = fn
}

// SetColorExtractor wires the optional artwork color collaborator. When
// set, downloaded songs get a palette derived from their artwork.
func (ds *DownloadSystem) SetColorExtractor(e artwork.Extractor) {
	ds.colorExtractor = e
}

// Start launches the worker pool.
func (ds *DownloadSystem) Start() error {
	for i := 0; i < ds.concurrency; i++ {
		ds.wg.Add(1)
		go ds.worker()
	}
	logger.Info("Download system started with %d workers", ds.concurrency)
	return nil
}

// Stop shuts the worker pool down. In-flight downloads are cancelled.
func (ds *DownloadSystem) Stop() {
	ds.stopOnce.Do(func() { close(ds.stopChan) })
	ds.wg.Wait()
}

// RequestDownload queues a song for download. Duplicate requests and songs
// whose persisted record is already downloaded are logged no-ops.
func (ds *DownloadSystem) RequestDownload(id structures.SongID, opts *structures.DownloadOptions) {
	key := identity.FullKey(id)

	if song, ok := ds.repo.Song(key); ok && song.Downloaded {
		logger.Warn("Song %s is already downloaded", key)
		return
	}

	ds.mu.Lock()
	if _, inFlight := ds.queued[key]; inFlight {
		ds.mu.Unlock()
		logger.Warn("Download for %s already queued", key)
		return
	}
	if _, tracking := ds.progress[id.VideoID]; tracking {
		ds.mu.Unlock()
		logger.Warn("Download for %s already in progress", key)
		return
	}
	ds.queued[key] = struct{}{}
	ds.mu.Unlock()

	select {
	case ds.queue <- structures.DownloadRequest{Key: key, ID: id, Options: opts}:
	default:
		ds.mu.Lock()
		delete(ds.queued, key)
		ds.mu.Unlock()
		logger.Error("Download queue full, dropping request for %s", key)
	}
}

// IsQueued reports whether a song key is queued or in flight.
func (ds *DownloadSystem) IsQueued(key string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	_, ok := ds.queued[key]
	return ok
}

// Progress returns a copy of the live progress map (video id -> percent).
func (ds *DownloadSystem) Progress() map[string]float64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	out := make(map[string]float64, len(ds.progress))
	for k, v := range ds.progress {
		out[k] = v
	}
	return out
}

// ActiveCount returns the number of downloads with a live progress entry.
func (ds *DownloadSystem) ActiveCount() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.progress)
}

func (ds *DownloadSystem) worker() {
	defer ds.wg.Done()

	for {
		select {
		case req := <-ds.queue:
			ds.process(req)
		case <-ds.stopChan:
			return
		}
	}
}

// process runs one download to completion. The progress entry is released
// on every exit path; the linger delay applies to both success and failure
// so observers can render the terminal state.
func (ds *DownloadSystem) process(req structures.DownloadRequest) {
	ds.mu.Lock()
	delete(ds.queued, req.Key)
	ds.progress[req.ID.VideoID] = 0
	ds.mu.Unlock()

	defer ds.finishProgress(req.ID.VideoID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-ds.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ramp := ds.startFakeRamp(ctx, req.ID.VideoID)
	defer ramp.stop()

	payload, contentType, err := ds.resolver.Download(ctx, req.ID, req.Options, func(p structures.Progress) {
		ramp.observeReal(p)
	})
	if err != nil {
		logger.Error("Download of %s failed: %v", req.Key, err)
		return
	}
	if len(payload) == 0 || !isAudioContentType(contentType) {
		logger.Error("Download of %s returned unusable payload (type %q, %d bytes)", req.Key, contentType, len(payload))
		return
	}

	song, ok := ds.repo.Song(req.Key)
	if !ok {
		id := req.ID
		song = &structures.Song{ID: id, Name: id.VideoID}
	}
	song.Downloaded = true
	song.Audio = payload
	song.Options = req.Options

	if blob, err := ds.resolver.FetchArtwork(ctx, song.ArtworkURL); err == nil && len(blob) > 0 {
		song.Artwork = blob
	}
	if ds.colorExtractor != nil && song.ArtworkURL != "" {
		if dominant, palette, err := ds.colorExtractor.Extract(ctx, song.ArtworkURL); err == nil {
			song.Colors = artwork.MergePalette([]string{dominant}, palette, constants.PlaylistImageLimit)
		} else {
			logger.Debug("Color extraction failed for %s: %v", req.Key, err)
		}
	}

	if err := ds.repo.SaveSong(song); err != nil {
		logger.Error("Failed to persist downloaded song %s: %v", req.Key, err)
		return
	}
	if err := ds.repo.AddSong(structures.DownloadsPlaylistID, song); err != nil {
		logger.Error("Failed to register %s in downloads playlist: %v", req.Key, err)
	}
	if err := ds.repo.RecordRecentlyAdded(song); err != nil {
		logger.Error("Failed to record %s as recently added: %v", req.Key, err)
	}

	logger.Info("Downloaded %s (%d bytes)", req.Key, len(payload))

	if ds.songDownloaded != nil {
		ds.songDownloaded(song)
	}
}

// finishProgress pins the entry at 100 for the linger window, then deletes
// it. This keeps the completed state queryable briefly before it vanishes.
func (ds *DownloadSystem) finishProgress(videoID string) {
	ds.mu.Lock()
	ds.progress[videoID] = 100
	ds.mu.Unlock()

	select {
	case <-time.After(ds.completeLinger):
	case <-ds.stopChan:
	}

	ds.mu.Lock()
	delete(ds.progress, videoID)
	ds.mu.Unlock()
}

func isAudioContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "application/octet-stream")
}

// fakeRamp animates the synthetic ease-in shown before real transfer
// samples arrive, then blends them with the real fraction.
type fakeRamp struct {
	ds      *DownloadSystem
	videoID string
	cancel  context.CancelFunc

	mu     sync.Mutex
	fake   float64 // 0..1 of target
	target float64 // percent, randomized 15..65
	real   float64 // 0..1 transfer fraction
}

func (ds *DownloadSystem) startFakeRamp(parent context.Context, videoID string) *fakeRamp {
	ctx, cancel := context.WithCancel(parent)

	r := &fakeRamp{
		ds:      ds,
		videoID: videoID,
		cancel:  cancel,
		target:  constants.FakeProgressMinTarget + ds.randomFloat()*(constants.FakeProgressMaxTarget-constants.FakeProgressMinTarget),
	}

	go func() {
		for {
			interval := ds.rampMinTick + time.Duration(ds.randomFloat()*float64(ds.rampMaxTick-ds.rampMinTick))
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}

			r.mu.Lock()
			if r.fake < 1 {
				r.fake += 0.04 + ds.randomFloat()*0.06
				if r.fake > 1 {
					r.fake = 1
				}
			}
			r.publishLocked()
			r.mu.Unlock()
		}
	}()

	return r
}

func (r *fakeRamp) observeReal(p structures.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Total > 0 {
		r.real = float64(p.Downloaded) / float64(p.Total)
		if r.real > 1 {
			r.real = 1
		}
	}
	r.publishLocked()
}

// publishLocked writes the blended percent into the system progress map.
// Callers must hold r.mu.
func (r *fakeRamp) publishLocked() {
	percent := r.fake*r.target + constants.RealProgressWeight*100*r.real
	if percent > 100 {
		percent = 100
	}

	r.ds.mu.Lock()
	if _, live := r.ds.progress[r.videoID]; live {
		r.ds.progress[r.videoID] = percent
	}
	r.ds.mu.Unlock()
}

func (r *fakeRamp) stop() {
	r.cancel()
}

func (ds *DownloadSystem) randomFloat() float64 {
	ds.rngMu.Lock()
	defer ds.rngMu.Unlock()
	return ds.rng.Float64()
}
