package engine

import (
	"sync"
	"time"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

type (
	// Broker is the centralized message broker for the engine. It carries
	// control messages into the render entry point and monitoring data
	// (alerts, transport position, rendered audio for scopes) out to the
	// UI or logging layer. All sends through the broker are non-blocking;
	// a full channel drops the message rather than stalling a domain.
	//
	// The broker also owns a sync.Pool of *pulsar.AudioBuffer so the
	// render domain can hand rendered audio to the monitor without
	// allocating a fresh buffer per block.
	//
	// For closing goroutines there are two channels per goroutine:
	// CloseXXX has capacity 1, so requesting closure never blocks and a
	// second request is simply dropped. FinishedXXX is closed (never sent
	// to) when the goroutine has cleaned up; wait on it with a timeout to
	// avoid deadlocks.
	Broker struct {
		ToEngine  chan any
		ToMonitor chan MsgToMonitor

		CloseScheduler    chan struct{}
		FinishedScheduler chan struct{}

		bufferPool sync.Pool
	}

	// MsgToMonitor carries the frequently-sent fields unboxed to avoid
	// allocations; infrequent messages (Alert, *pulsar.AudioBuffer) travel
	// boxed in Data.
	MsgToMonitor struct {
		HasPosition bool
		Step        int
		Bar         int
		Playing     bool

		Reset bool // transport (re)started; scopes and meters should clear

		Data any
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToEngine:          make(chan any, 1024),
		ToMonitor:         make(chan MsgToMonitor, 1024),
		CloseScheduler:    make(chan struct{}, 1),
		FinishedScheduler: make(chan struct{}),
		bufferPool:        sync.Pool{New: func() any { return &pulsar.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an empty audio buffer from the pool. Return it
// with PutAudioBuffer when done.
func (b *Broker) GetAudioBuffer() *pulsar.AudioBuffer {
	return b.bufferPool.Get().(*pulsar.AudioBuffer)
}

// PutAudioBuffer returns a buffer to the pool, resetting its length but
// keeping its capacity.
func (b *Broker) PutAudioBuffer(buf *pulsar.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// SendAlert delivers an alert to the monitor channel without blocking.
func (b *Broker) SendAlert(name, message string, priority AlertPriority) {
	TrySend(b.ToMonitor, MsgToMonitor{Data: Alert{
		Name:     name,
		Message:  message,
		Priority: priority,
		Duration: defaultAlertDuration,
	}})
}

// TrySend sends a value to a channel if it is not full. Guaranteed
// non-blocking; returns false if the value was dropped.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received or the timeout elapses.
// ok is false on timeout or when the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
