package player

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"github.com/theviolentghost/StudySync-sub000/internal/logger"
)

// Player is the beep-backed audio output.
type Player struct {
	mu                 sync.RWMutex
	streamer           beep.StreamSeekCloser
	stream             beep.Streamer // non-seekable network stream, if any
	ctrl               *beep.Ctrl
	volume             *effects.Volume
	format             beep.Format
	analyser           *Analyser
	analysisEnabled    bool
	isPlaying          bool
	currentFile        string
	duration           time.Duration
	speakerInitialized bool
	currentSampleRate  beep.SampleRate
	seeking            bool
}

// New creates a new audio player. The speaker is initialized lazily on the
// first load so headless use never touches the audio device.
func New() (*Player, error) {
	return &Player{
		analyser: NewAnalyser(),
	}, nil
}

// LoadFile loads a local MP3 file for playback.
func (p *Player) LoadFile(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	streamer, format, err := mp3.Decode(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to decode MP3: %w", err)
	}

	p.unloadLocked()

	var chain beep.Streamer = streamer
	if p.analysisEnabled {
		// Attaching is idempotent: the analyser is a single tap reused
		// across loads, never stacked.
		chain = p.analyser.Tap(chain)
	}

	if err := p.attachLocked(chain, format); err != nil {
		streamer.Close()
		return err
	}

	p.streamer = streamer
	p.currentFile = path
	p.duration = format.SampleRate.D(streamer.Len())

	logger.Debug("Loaded file: %s, duration: %v", path, p.duration)
	return nil
}

// LoadStream plays a remote MP3 stream. Streamed audio bypasses the
// analyser and reports an unknown (zero) duration.
func (p *Player) LoadStream(rc io.ReadCloser) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	streamer, format, err := mp3.Decode(rc)
	if err != nil {
		rc.Close()
		return fmt.Errorf("failed to decode stream: %w", err)
	}

	p.unloadLocked()

	buffered := NewBufferedStreamer(streamer, format, 2.0)
	if err := p.attachLocked(buffered, format); err != nil {
		streamer.Close()
		return err
	}

	p.streamer = streamer
	p.stream = buffered
	p.currentFile = ""
	p.duration = 0

	logger.Debug("Loaded network stream at %d Hz", format.SampleRate)
	return nil
}

// unloadLocked tears down the current source. Callers must hold p.mu.
func (p *Player) unloadLocked() {
	if p.streamer != nil {
		p.streamer.Close()
		p.streamer = nil
	}
	if bs, ok := p.stream.(*BufferedStreamer); ok {
		bs.Close()
	}
	p.stream = nil
	if p.speakerInitialized {
		speaker.Clear()
	}
	p.ctrl = nil
	p.volume = nil
	p.duration = 0
	p.seeking = false
}

// attachLocked wires a decoded source through volume and control and hands
// it to the speaker. Callers must hold p.mu.
func (p *Player) attachLocked(source beep.Streamer, format beep.Format) error {
	volume := &effects.Volume{
		Streamer: source,
		Base:     2,
		Volume:   0,
	}
	ctrl := &beep.Ctrl{
		Streamer: volume,
		Paused:   true,
	}

	if !p.speakerInitialized || p.currentSampleRate != format.SampleRate {
		if p.speakerInitialized {
			speaker.Close()
			time.Sleep(100 * time.Millisecond)
		}
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			return fmt.Errorf("failed to initialize speaker at %d Hz: %w", format.SampleRate, err)
		}
		p.speakerInitialized = true
		p.currentSampleRate = format.SampleRate
	}

	speaker.Clear()
	speaker.Play(ctrl)

	p.ctrl = ctrl
	p.volume = volume
	p.format = format
	p.isPlaying = false
	return nil
}

// EnableAnalysis controls whether locally-loaded audio is routed through
// the analyser tap. Takes effect on the next LoadFile.
func (p *Player) EnableAnalysis(enable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analysisEnabled = enable
}

// Analyser returns the analyser tap.
func (p *Player) Analyser() *Analyser {
	return p.analyser
}

// Play starts playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil {
		return fmt.Errorf("no audio loaded")
	}

	speaker.Lock()
	p.ctrl.Paused = false
	p.isPlaying = true
	speaker.Unlock()
	return nil
}

// Pause pauses playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil {
		return fmt.Errorf("no audio loaded")
	}

	speaker.Lock()
	p.ctrl.Paused = true
	p.isPlaying = false
	speaker.Unlock()
	return nil
}

// Stop halts playback and rewinds seekable sources.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil || !p.speakerInitialized {
		return nil
	}

	speaker.Clear()
	if p.streamer != nil && p.stream == nil {
		if err := p.streamer.Seek(0); err != nil {
			logger.Error("Error seeking to start: %v", err)
		}
	}
	p.isPlaying = false
	return nil
}

// Seek seeks to a position. Network streams are not seekable.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return fmt.Errorf("no audio loaded")
	}
	if p.stream != nil {
		return fmt.Errorf("stream is not seekable")
	}
	if p.seeking {
		return fmt.Errorf("seek already in progress")
	}
	p.seeking = true
	defer func() { p.seeking = false }()

	if pos < 0 {
		pos = 0
	}
	if pos > p.duration {
		pos = p.duration
	}

	samplePos := p.format.SampleRate.N(pos)
	if length := p.streamer.Len(); samplePos >= length {
		samplePos = length - 1
		if samplePos < 0 {
			samplePos = 0
		}
	}

	wasPlaying := p.isPlaying
	if wasPlaying && p.ctrl != nil {
		speaker.Lock()
		p.ctrl.Paused = true
		speaker.Unlock()
		speaker.Clear()
	}

	if err := p.streamer.Seek(samplePos); err != nil {
		logger.Debug("Seek to sample %d failed: %v", samplePos, err)
		if err := p.streamer.Seek(0); err != nil {
			return fmt.Errorf("failed to reset position: %w", err)
		}
	}

	if wasPlaying && p.ctrl != nil {
		speaker.Play(p.ctrl)
		speaker.Lock()
		p.ctrl.Paused = false
		speaker.Unlock()
	}
	return nil
}

// Position returns the current playback position.
func (p *Player) Position() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.streamer == nil || p.stream != nil {
		return 0
	}
	return p.format.SampleRate.D(p.streamer.Position())
}

// Duration returns the total duration, or zero for network streams.
func (p *Player) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duration
}

// IsPlaying reports whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isPlaying && p.ctrl != nil && !p.ctrl.Paused
}

// SetVolume sets the volume (0.0 to 1.0) on a logarithmic scale.
func (p *Player) SetVolume(volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.volume == nil || !p.speakerInitialized {
		return fmt.Errorf("no audio loaded")
	}

	if volume <= 0 {
		p.volume.Silent = true
		return nil
	}
	p.volume.Silent = false

	var dbVolume float64
	if volume < 0.01 {
		dbVolume = -4.0
	} else {
		dbVolume = 20 * (volume - 1)
	}

	speaker.Lock()
	p.volume.Volume = dbVolume
	speaker.Unlock()
	return nil
}

// Volume returns the current volume (0.0 to 1.0).
func (p *Player) Volume() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.volume == nil {
		return 0.5
	}
	if p.volume.Silent {
		return 0.0
	}
	return (p.volume.Volume / 20) + 1
}

// Close releases the audio device and any loaded source.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unloadLocked()
	if p.speakerInitialized {
		speaker.Close()
		p.speakerInitialized = false
	}
	return nil
}
