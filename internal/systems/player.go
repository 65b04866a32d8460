package systems

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/theviolentghost/StudySync-sub000/internal/constants"
	"github.com/theviolentghost/StudySync-sub000/internal/events"
	"github.com/theviolentghost/StudySync-sub000/internal/identity"
	"github.com/theviolentghost/StudySync-sub000/internal/library"
	"github.com/theviolentghost/StudySync-sub000/internal/logger"
	"github.com/theviolentghost/StudySync-sub000/internal/media"
	"github.com/theviolentghost/StudySync-sub000/internal/player"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// ErrNoPlaylist is returned by SkipToNext when the queue is exhausted and
// no playlist is loaded to refill it.
var ErrNoPlaylist = errors.New("no playlist loaded")

// LoadOptions controls how LoadPlaylist replaces the play queue.
type LoadOptions struct {
	KeepHistory     bool
	PlayImmediately bool
	LoadFirstTrack  bool
	Shuffle         bool
}

// PlayerSystem owns the play queue, navigation history and the audio
// output. All mutation goes through its methods or the action channel.
type PlayerSystem struct {
	mu sync.Mutex

	cfg      *structures.Config
	repo     *library.Repository
	resolver media.Resolver
	output   player.Output
	events   *events.Emitter
	cacheDir string

	current           *structures.Song
	currentPlaylist   *structures.Playlist
	currentIdentifier *structures.PlaylistID
	queue             []structures.SongID
	playNext          []structures.SongID
	history           []structures.SongID
	repeatCount       int
	loading           bool

	skippingNext bool
	skippingPrev bool

	// loadGen identifies the newest track load. Older loads observe a
	// mismatch after every blocking step and abandon silently.
	loadGen    uint64
	loadCancel context.CancelFunc
	audioPath  string

	// The configured volume cannot be applied until the output has audio
	// attached, so it is deferred to the first successful load.
	defaultVolume float64
	volumeApplied bool

	// Invoked when a track had to be streamed, so it can be cached in the
	// background for next time.
	requestDownload func(id structures.SongID, opts *structures.DownloadOptions)

	actions  chan structures.SoundAction
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	updateInterval time.Duration
}

// NewPlayerSystem wires the playback engine against its collaborators.
// cacheDir is where downloaded audio is materialized for the decoder.
func NewPlayerSystem(cfg *structures.Config, repo *library.Repository, resolver media.Resolver, output player.Output, cacheDir string) *PlayerSystem {
	ps := &PlayerSystem{
		cfg:            cfg,
		repo:           repo,
		resolver:       resolver,
		output:         output,
		events:         &events.Emitter{Release: 100 * time.Millisecond},
		cacheDir:       cacheDir,
		actions:        make(chan structures.SoundAction, 64),
		stopChan:       make(chan struct{}),
		updateInterval: constants.PlayerUpdateInterval,
	}
	if cfg != nil {
		ps.defaultVolume = cfg.DefaultVolume
	}
	return ps
}

// SetDownloadRequestCallback registers the hook used to cache streamed
// tracks in the background.
func (ps *PlayerSystem) SetDownloadRequestCallback(fn func(id structures.SongID, opts *structures.DownloadOptions)) {
	ps.requestDownload = fn
}

// Events exposes the notification surface consumers listen on.
func (ps *PlayerSystem) Events() *events.Emitter {
	return ps.events
}

// Start launches the action loop and the position watcher.
func (ps *PlayerSystem) Start() error {
	ps.wg.Add(2)
	go ps.run()
	go ps.updateLoop()
	logger.Info("Player system started")
	return nil
}

// Stop shuts the loops down, cancels any in-flight load and releases the
// audio backend.
func (ps *PlayerSystem) Stop() {
	ps.stopOnce.Do(func() { close(ps.stopChan) })
	ps.wg.Wait()

	ps.mu.Lock()
	if ps.loadCancel != nil {
		ps.loadCancel()
	}
	path := ps.audioPath
	ps.audioPath = ""
	ps.mu.Unlock()
	if path != "" {
		os.Remove(path)
	}

	if err := ps.output.Close(); err != nil {
		logger.Warn("Failed to close audio output: %v", err)
	}
}

// SendAction queues an action for the run loop. Drops with a warning when
// the channel is saturated.
func (ps *PlayerSystem) SendAction(action structures.SoundAction) {
	select {
	case ps.actions <- action:
	default:
		logger.Warn("Action channel full, dropping %T", action)
	}
}

func (ps *PlayerSystem) run() {
	defer ps.wg.Done()
	for {
		select {
		case <-ps.stopChan:
			return
		case action := <-ps.actions:
			ps.handleAction(action)
		}
	}
}

func (ps *PlayerSystem) handleAction(action structures.SoundAction) {
	switch a := action.(type) {
	case structures.PlayPauseAction:
		if ps.output.IsPlaying() {
			ps.output.Pause()
		} else {
			ps.output.Play()
		}
	case structures.PlayAction:
		ps.output.Play()
	case structures.PauseAction:
		ps.output.Pause()
	case structures.NextAction:
		if err := ps.SkipToNext(); err != nil {
			logger.Error("Skip to next failed: %v", err)
		}
	case structures.PreviousAction:
		if err := ps.SkipToPrevious(); err != nil {
			logger.Error("Skip to previous failed: %v", err)
		}
	case structures.SeekAction:
		if err := ps.output.Seek(a.Position); err != nil {
			logger.Warn("Seek failed: %v", err)
		}
	case structures.VolumeAction:
		if err := ps.output.SetVolume(a.Volume); err != nil {
			logger.Warn("Volume change failed: %v", err)
		}
	case structures.VolumeUpAction:
		ps.stepVolume(constants.VolumeStep)
	case structures.VolumeDownAction:
		ps.stepVolume(-constants.VolumeStep)
	case structures.RepeatAction:
		ps.mu.Lock()
		ps.repeatCount = a.Count
		ps.mu.Unlock()
	case structures.PlayNextAction:
		ps.mu.Lock()
		ps.playNext = append(ps.playNext, a.ID)
		ps.mu.Unlock()
	case structures.EnqueueAction:
		ps.mu.Lock()
		ps.queue = append(ps.queue, a.ID)
		ps.mu.Unlock()
	case structures.SongDownloadedAction:
		ps.OnDownloaded(a.Song)
	default:
		logger.Warn("Unhandled action %T", action)
	}
}

// stepVolume nudges the volume by delta, clamped to [0, 1].
func (ps *PlayerSystem) stepVolume(delta float64) {
	volume := ps.output.Volume() + delta
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	if err := ps.output.SetVolume(volume); err != nil {
		logger.Warn("Volume change failed: %v", err)
	}
}

// updateLoop watches playback position and auto-advances at track end.
func (ps *PlayerSystem) updateLoop() {
	defer ps.wg.Done()

	ticker := time.NewTicker(ps.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ps.stopChan:
			return
		case <-ticker.C:
			ps.maybeAdvance()
		}
	}
}

func (ps *PlayerSystem) maybeAdvance() {
	ps.mu.Lock()
	busy := ps.loading || ps.current == nil
	ps.mu.Unlock()
	if busy {
		return
	}

	duration := ps.output.Duration()
	if duration <= 0 {
		return
	}
	if ps.output.Position() >= duration {
		if err := ps.SkipToNext(); err != nil {
			if errors.Is(err, ErrNoPlaylist) {
				ps.output.Stop()
				ps.events.Emit(events.ReducePlayer)
				return
			}
			logger.Error("Auto-advance failed: %v", err)
		}
	}
}

// LoadPlaylist replaces the queue with the playlist's tracks in persisted
// key order, prefetches their records and optionally starts playback. The
// currently loaded song is dropped from the fresh queue unless dropping it
// would leave the queue empty.
func (ps *PlayerSystem) LoadPlaylist(pl *structures.Playlist, identifier *structures.PlaylistID, opts LoadOptions) error {
	if pl == nil || len(pl.Songs) == 0 {
		logger.Warn("Refusing to load empty playlist")
		return nil
	}

	keys := lo.Keys(pl.Songs)
	sort.Strings(keys)

	// Warm the record cache for every track. Failures are logged and the
	// track plays from its bare identity instead.
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if _, ok := ps.repo.Song(key); !ok {
				logger.Debug("No stored record for %s", key)
			}
		}(key)
	}
	wg.Wait()

	ids := lo.Map(keys, func(key string, _ int) structures.SongID {
		return pl.Songs[key]
	})
	if opts.Shuffle {
		ids = lo.Shuffle(ids)
	}

	ps.mu.Lock()
	if ps.current != nil {
		currentKey := identity.BareKey(ps.current.ID)
		filtered := lo.Reject(ids, func(id structures.SongID, _ int) bool {
			return identity.BareKey(id) == currentKey
		})
		if len(filtered) > 0 {
			ids = filtered
		}
	}
	ps.currentPlaylist = pl
	ps.currentIdentifier = identifier
	ps.queue = ids
	ps.playNext = nil
	ps.repeatCount = 0
	if !opts.KeepHistory {
		ps.history = nil
	}
	ps.mu.Unlock()

	ps.events.Emit(events.OpenPlayer)
	logger.Info("Loaded playlist %q with %d tracks", pl.Name, len(ids))

	if opts.PlayImmediately {
		return ps.advance()
	}
	if opts.LoadFirstTrack {
		if err := ps.advance(); err != nil {
			return err
		}
		return ps.output.Pause()
	}
	return nil
}

// LoadTrack loads a track by its full key. Requesting the already loaded
// track restarts it from the beginning instead of reloading audio.
func (ps *PlayerSystem) LoadTrack(key string, data *structures.Song) error {
	ps.mu.Lock()
	if ps.current != nil && identity.FullKey(ps.current.ID) == key {
		ps.mu.Unlock()
		if err := ps.output.Seek(0); err != nil {
			logger.Warn("Restart seek failed: %v", err)
		}
		return ps.output.Play()
	}
	ps.mu.Unlock()

	song := data
	if song == nil {
		if stored, ok := ps.repo.Song(key); ok {
			song = stored
		}
	}
	if song == nil {
		id, ok := identity.ParseKey(key)
		if !ok {
			return fmt.Errorf("cannot load track %s: malformed key", key)
		}
		song = &structures.Song{ID: id, Name: id.VideoID}
	}

	ps.mu.Lock()
	ps.current = song
	ps.mu.Unlock()
	ps.events.Emit(events.SongChanged)

	return ps.loadAudio(song)
}

// loadAudio resolves an audio source for song and hands it to the output.
// Downloaded songs play from a materialized local file and feed the
// analyser; everything else streams from the resolver without analysis.
// A newer load supersedes this one at any blocking step, which is not an
// error.
func (ps *PlayerSystem) loadAudio(song *structures.Song) error {
	ps.mu.Lock()
	ps.loadGen++
	gen := ps.loadGen
	if ps.loadCancel != nil {
		ps.loadCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	ps.loadCancel = cancel
	ps.loading = true
	ps.mu.Unlock()

	key := identity.FullKey(song.ID)

	if song.Downloaded && len(song.Audio) > 0 {
		path, err := ps.materialize(gen, song.Audio)
		if err != nil {
			ps.finishLoad(gen)
			return fmt.Errorf("failed to stage audio for %s: %w", key, err)
		}
		if ps.superseded(ctx, gen) {
			return nil
		}
		ps.output.EnableAnalysis(true)
		if err := ps.output.LoadFile(path); err != nil {
			ps.finishLoad(gen)
			return fmt.Errorf("failed to load %s: %w", key, err)
		}
	} else {
		manifest, err := ps.resolver.ResolveManifest(ctx, key)
		if ps.superseded(ctx, gen) {
			return nil
		}
		if err != nil {
			ps.finishLoad(gen)
			return fmt.Errorf("failed to resolve stream for %s: %w", key, err)
		}

		rc, err := ps.resolver.OpenStream(ctx, manifest)
		if ps.superseded(ctx, gen) {
			if rc != nil {
				rc.Close()
			}
			return nil
		}
		if err != nil {
			ps.finishLoad(gen)
			return fmt.Errorf("failed to open stream for %s: %w", key, err)
		}

		ps.output.EnableAnalysis(false)
		if err := ps.output.LoadStream(rc); err != nil {
			ps.finishLoad(gen)
			return fmt.Errorf("failed to load stream for %s: %w", key, err)
		}

		if ps.requestDownload != nil {
			ps.requestDownload(song.ID, song.Options)
		}
	}

	ps.mu.Lock()
	if gen != ps.loadGen {
		ps.mu.Unlock()
		return nil
	}
	ps.loading = false
	applyVolume := !ps.volumeApplied && ps.defaultVolume > 0
	ps.volumeApplied = true
	ps.mu.Unlock()

	if applyVolume {
		if err := ps.output.SetVolume(ps.defaultVolume); err != nil {
			logger.Warn("Failed to apply default volume: %v", err)
		}
	}
	if err := ps.output.Play(); err != nil {
		logger.Warn("Playback start failed for %s: %v", key, err)
	}
	ps.events.Emit(events.TrackLoaded)

	if err := ps.repo.RecordRecentlyPlayed(song); err != nil {
		logger.Warn("Failed to record %s as recently played: %v", key, err)
	}
	return nil
}

// materialize writes downloaded bytes to a fresh per-load file and removes
// the previous one. Old paths are never reused.
func (ps *PlayerSystem) materialize(gen uint64, audio []byte) (string, error) {
	path := filepath.Join(ps.cacheDir, fmt.Sprintf("current_%d.mp3", gen))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", err
	}

	ps.mu.Lock()
	old := ps.audioPath
	ps.audioPath = path
	ps.mu.Unlock()
	if old != "" {
		os.Remove(old)
	}
	return path, nil
}

func (ps *PlayerSystem) superseded(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return true
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return gen != ps.loadGen
}

// finishLoad clears the loading flag if this load is still the newest.
func (ps *PlayerSystem) finishLoad(gen uint64) {
	ps.mu.Lock()
	if gen == ps.loadGen {
		ps.loading = false
	}
	ps.mu.Unlock()
}

// SkipToNext advances through repeat, the play-next list, the queue, then
// a reload of the current playlist. Re-entrant calls while a skip is in
// flight are silent no-ops; an exhausted queue with no playlist is the one
// hard error.
func (ps *PlayerSystem) SkipToNext() error {
	ps.mu.Lock()
	if ps.skippingNext {
		ps.mu.Unlock()
		return nil
	}
	ps.skippingNext = true
	ps.mu.Unlock()
	defer func() {
		ps.mu.Lock()
		ps.skippingNext = false
		ps.mu.Unlock()
	}()

	return ps.advance()
}

func (ps *PlayerSystem) advance() error {
	ps.mu.Lock()

	if ps.repeatCount > 0 && ps.current != nil {
		ps.repeatCount--
		ps.mu.Unlock()
		if err := ps.output.Seek(0); err != nil {
			logger.Warn("Repeat seek failed: %v", err)
		}
		return ps.output.Play()
	}

	var next structures.SongID
	switch {
	case len(ps.playNext) > 0:
		next = ps.playNext[0]
		ps.playNext = ps.playNext[1:]
	case len(ps.queue) > 0:
		next = ps.queue[0]
		ps.queue = ps.queue[1:]
	case ps.currentPlaylist != nil && len(ps.currentPlaylist.Songs) > 0:
		pl, ident := ps.currentPlaylist, ps.currentIdentifier
		ps.mu.Unlock()
		return ps.LoadPlaylist(pl, ident, LoadOptions{KeepHistory: true, PlayImmediately: true})
	default:
		ps.mu.Unlock()
		logger.Error("Cannot skip forward, queue empty and no playlist loaded")
		return ErrNoPlaylist
	}

	if ps.current != nil {
		ps.pushHistoryLocked(ps.current.ID)
	}
	ps.mu.Unlock()

	return ps.LoadTrack(identity.FullKey(next), nil)
}

// SkipToPrevious restarts the current track when more than the threshold
// has played, otherwise pops history. The outgoing track is reinserted at
// the queue front so forward navigation finds it again.
func (ps *PlayerSystem) SkipToPrevious() error {
	ps.mu.Lock()
	if ps.skippingPrev {
		ps.mu.Unlock()
		return nil
	}
	ps.skippingPrev = true
	ps.mu.Unlock()
	defer func() {
		ps.mu.Lock()
		ps.skippingPrev = false
		ps.mu.Unlock()
	}()

	if ps.output.Position() > constants.PreviousRestartThreshold {
		if err := ps.output.Seek(0); err != nil {
			logger.Warn("Restart seek failed: %v", err)
		}
		return ps.output.Play()
	}

	ps.mu.Lock()
	if len(ps.history) == 0 {
		ps.mu.Unlock()
		if err := ps.output.Seek(0); err != nil {
			logger.Warn("Restart seek failed: %v", err)
		}
		return ps.output.Play()
	}

	prev := ps.history[len(ps.history)-1]
	ps.history = ps.history[:len(ps.history)-1]
	if ps.current != nil {
		ps.queue = append([]structures.SongID{ps.current.ID}, ps.queue...)
	}
	ps.mu.Unlock()

	return ps.LoadTrack(identity.FullKey(prev), nil)
}

// pushHistoryLocked appends to history, evicting the oldest entries past
// the cap. Callers must hold ps.mu.
func (ps *PlayerSystem) pushHistoryLocked(id structures.SongID) {
	ps.history = append(ps.history, id)
	if len(ps.history) > constants.HistoryLimit {
		ps.history = ps.history[len(ps.history)-constants.HistoryLimit:]
	}
}

// OnDownloaded swaps a freshly downloaded record in for the currently
// loaded song so playback continues from the cached copy. Position and
// pause state carry over.
func (ps *PlayerSystem) OnDownloaded(song *structures.Song) {
	if song == nil {
		return
	}

	ps.mu.Lock()
	match := ps.current != nil && identity.FullKey(ps.current.ID) == identity.FullKey(song.ID)
	if match {
		ps.current = song
	}
	ps.mu.Unlock()
	if !match {
		return
	}

	pos := ps.output.Position()
	wasPlaying := ps.output.IsPlaying()

	if err := ps.loadAudio(song); err != nil {
		logger.Error("Failed to switch %s to cached audio: %v", identity.FullKey(song.ID), err)
		return
	}
	if pos > 0 {
		if err := ps.output.Seek(pos); err != nil {
			logger.Warn("Position restore failed: %v", err)
		}
	}
	if !wasPlaying {
		ps.output.Pause()
	}
}

// Current returns the currently loaded song, if any.
func (ps *PlayerSystem) Current() *structures.Song {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.current
}

// Identifier returns the identifier of the loaded playlist, if any.
func (ps *PlayerSystem) Identifier() *structures.PlaylistID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.currentIdentifier
}

// Queue returns a copy of the upcoming track queue.
func (ps *PlayerSystem) Queue() []structures.SongID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]structures.SongID(nil), ps.queue...)
}

// History returns a copy of the navigation history, oldest first.
func (ps *PlayerSystem) History() []structures.SongID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]structures.SongID(nil), ps.history...)
}

// Loading reports whether a track load is in flight.
func (ps *PlayerSystem) Loading() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.loading
}
