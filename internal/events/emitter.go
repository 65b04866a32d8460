// Package events provides the player's outward notification surface:
// single-shot named events fanned out to any number of listener channels.
// Consumers re-read player getters after receiving an event; the event name
// carries no payload guarantees beyond "state changed".
package events

import (
	"sync"
	"time"
)

// Event names emitted by the player system.
const (
	OpenPlayer   = "open_player"
	ReducePlayer = "reduce_player"
	TrackLoaded  = "track_loaded"
	SongChanged  = "song_changed"
)

type Emitter struct {
	// Release determines how long an event is buffered to suppress
	// duplicate emissions. A zero value disables buffering.
	Release time.Duration

	listeners       map[<-chan string]chan string
	listenerClosers map[<-chan string]chan struct{}
	lock            sync.RWMutex

	release map[string]struct{}
}

func (emitter *Emitter) init() {
	emitter.lock.RLock()
	shouldInit := emitter.listeners == nil
	emitter.lock.RUnlock()
	if shouldInit {
		emitter.lock.Lock()
		if emitter.listeners == nil {
			emitter.listeners = map[<-chan string]chan string{}
			emitter.listenerClosers = map[<-chan string]chan struct{}{}
			emitter.release = map[string]struct{}{}
		}
		emitter.lock.Unlock()
	}
}

func (emitter *Emitter) broadcast(event string) {
	emitter.lock.RLock()
	defer emitter.lock.RUnlock()
	for _, listener := range emitter.listeners {
		go func(listener chan string) {
			select {
			case listener <- event:
			case <-emitter.listenerClosers[listener]:
			}
		}(listener)
	}
}

// Emit broadcasts an event to all listeners.
func (emitter *Emitter) Emit(event string) {
	emitter.init()

	emitter.lock.RLock()
	defer emitter.lock.RUnlock()

	if emitter.Release == 0 {
		go emitter.broadcast(event)
		return
	}

	// Check whether the event is already scheduled.
	if _, ok := emitter.release[event]; ok {
		return
	}

	go func() {
		emitter.lock.Lock()
		emitter.release[event] = struct{}{}
		emitter.lock.Unlock()

		time.Sleep(emitter.Release)
		emitter.broadcast(event)

		emitter.lock.Lock()
		delete(emitter.release, event)
		emitter.lock.Unlock()
	}()
}

// Listen registers a new listener channel.
func (emitter *Emitter) Listen() <-chan string {
	emitter.init()

	emitter.lock.Lock()
	defer emitter.lock.Unlock()

	ch := make(chan string, 1)
	emitter.listeners[ch] = ch
	emitter.listenerClosers[ch] = make(chan struct{})
	return ch
}

// Unlisten removes a listener channel and closes it.
func (emitter *Emitter) Unlisten(ch <-chan string) {
	emitter.init()

	emitter.lock.Lock()
	defer emitter.lock.Unlock()

	// Signal any remaining broadcasts to abort writing to the channel.
	close(emitter.listenerClosers[ch])

	close(emitter.listeners[ch])
	delete(emitter.listenerClosers, ch)
	delete(emitter.listeners, ch)
}
