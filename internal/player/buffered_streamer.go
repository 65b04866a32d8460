package player

import (
	"sync"
	"time"

	"github.com/faiface/beep"

	"github.com/theviolentghost/StudySync-sub000/internal/logger"
)

// BufferedStreamer decouples a network-backed source from the speaker with
// a ring buffer filled in the background, so transfer jitter does not reach
// the audio device.
type BufferedStreamer struct {
	source     beep.Streamer
	buffer     [][2]float64
	bufferSize int
	readPos    int
	writePos   int
	filled     int
	mu         sync.Mutex
	cond       *sync.Cond
	closed     bool
	format     beep.Format

	underruns int
	maxFilled int
}

// NewBufferedStreamer wraps source with bufferSeconds of ring buffer and
// starts filling it.
func NewBufferedStreamer(source beep.Streamer, format beep.Format, bufferSeconds float64) *BufferedStreamer {
	bufferSize := int(float64(format.SampleRate) * bufferSeconds)

	bs := &BufferedStreamer{
		source:     source,
		buffer:     make([][2]float64, bufferSize),
		bufferSize: bufferSize,
		format:     format,
	}
	bs.cond = sync.NewCond(&bs.mu)

	go bs.fillLoop()

	logger.Debug("Created buffered streamer with %.1f seconds buffer (%d samples)", bufferSeconds, bufferSize)
	return bs
}

func (bs *BufferedStreamer) fillLoop() {
	tempBuffer := make([][2]float64, 1024)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in BufferedStreamer fillLoop: %v", r)
		}
	}()

	for {
		bs.mu.Lock()
		if bs.closed {
			bs.mu.Unlock()
			return
		}

		available := bs.bufferSize - bs.filled
		if available < len(tempBuffer) {
			// Buffer is nearly full; wait for the reader to drain it.
			bs.cond.Wait()
			if bs.closed {
				bs.mu.Unlock()
				return
			}
		}
		bs.mu.Unlock()

		// Read from the source outside the lock to avoid stalling playback.
		n, ok := bs.source.Stream(tempBuffer)
		if n == 0 && !ok {
			bs.mu.Lock()
			bs.closed = true
			bs.cond.Broadcast()
			bs.mu.Unlock()
			return
		}

		bs.mu.Lock()
		for i := 0; i < n; i++ {
			bs.buffer[bs.writePos] = tempBuffer[i]
			bs.writePos = (bs.writePos + 1) % bs.bufferSize
		}
		bs.filled += n
		if bs.filled > bs.maxFilled {
			bs.maxFilled = bs.filled
		}
		bs.cond.Broadcast()
		bs.mu.Unlock()
	}
}

// Stream implements beep.Streamer.
func (bs *BufferedStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	// Wait for a minimum fill before the very first read.
	if bs.readPos == 0 && bs.filled < bs.bufferSize/4 && !bs.closed {
		for bs.filled < bs.bufferSize/4 && !bs.closed {
			bs.cond.Wait()
		}
	}

	if bs.filled == 0 {
		if !bs.closed {
			bs.underruns++
			if bs.underruns%10 == 0 {
				logger.Warn("Audio buffer underrun: %d occurrences (max fill: %d/%d)",
					bs.underruns, bs.maxFilled, bs.bufferSize)
			}
		} else {
			return 0, false
		}
	}

	for i := range samples {
		if bs.filled == 0 {
			if bs.closed {
				ok = i > 0
			} else {
				ok = true
			}
			n = i
			bs.cond.Broadcast()
			return
		}

		samples[i] = bs.buffer[bs.readPos]
		bs.readPos = (bs.readPos + 1) % bs.bufferSize
		bs.filled--
	}

	bs.cond.Broadcast()
	return len(samples), true
}

// Err implements beep.Streamer.
func (bs *BufferedStreamer) Err() error {
	if source, ok := bs.source.(beep.StreamSeeker); ok {
		return source.Err()
	}
	return nil
}

// Close stops the fill loop. The underlying source is closed by the player.
func (bs *BufferedStreamer) Close() error {
	bs.mu.Lock()
	if bs.closed {
		bs.mu.Unlock()
		return nil
	}
	bs.closed = true
	bs.cond.Broadcast()
	bs.mu.Unlock()

	// Give fillLoop a moment to exit cleanly.
	time.Sleep(10 * time.Millisecond)

	if bs.underruns > 0 {
		logger.Info("BufferedStreamer stats: %d underruns, max fill %d/%d",
			bs.underruns, bs.maxFilled, bs.bufferSize)
	}
	return nil
}
