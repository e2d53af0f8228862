// Package fx implements the render-domain half of the glitch engine: the
// per-track dry/wet chain, the five glitch processors, the automation
// timeline they are driven by, and the capture buffers they read from.
//
// Two timing domains touch this package. Control-domain code (trigger
// functions, parameter setters) runs in ordinary goroutines and communicates
// with the render domain only through atomically published immutable values.
// Render-domain code runs inside the audio callback and must do bounded,
// allocation-free work; everything it needs is preallocated at construction.
package fx

import "sync/atomic"

// Clock is the render clock: a monotonically increasing fractional-second
// time that advances one block at a time as audio is rendered. The render
// domain advances it; the control domain reads it to schedule ahead of it.
type Clock struct {
	sampleRate float64
	frames     atomic.Int64
}

func NewClock(sampleRate float64) *Clock {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Clock{sampleRate: sampleRate}
}

// Now returns the current render time in seconds.
func (c *Clock) Now() float64 {
	return float64(c.frames.Load()) / c.sampleRate
}

// Frames returns the number of frames rendered so far.
func (c *Clock) Frames() int64 { return c.frames.Load() }

func (c *Clock) SampleRate() float64 { return c.sampleRate }

// Advance moves the clock forward by n frames. Called by the render domain
// after each rendered block.
func (c *Clock) Advance(n int) {
	c.frames.Add(int64(n))
}

// TimeAt returns the render time of the given frame offset from now.
func (c *Clock) TimeAt(offset int) float64 {
	return float64(c.frames.Load()+int64(offset)) / c.sampleRate
}
