package player

import (
	"io"
	"time"
)

// Output is the audio backend the player system drives. The beep-based
// Player implements it; tests substitute a fake.
type Output interface {
	// LoadFile loads a local audio file and routes it through the analyser
	// when analysis is enabled.
	LoadFile(path string) error
	// LoadStream plays a remote audio stream. Streamed content never
	// touches the analyser (it cannot be captured for analysis).
	LoadStream(rc io.ReadCloser) error
	Play() error
	Pause() error
	Stop() error
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	IsPlaying() bool
	SetVolume(volume float64) error
	Volume() float64
	EnableAnalysis(enable bool)
	Analyser() *Analyser
	Close() error
}
