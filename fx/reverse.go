package fx

import (
	"math"
	"sync/atomic"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// maxReverseSeconds is the longest recordable fragment (durationParam = 1).
const maxReverseSeconds = 0.5

type (
	// Reverse records a fragment of live input, flips it, and plays it back
	// in place of the dry signal. The whole lifecycle is a three-state
	// machine driven from the render callback; the control domain only
	// posts trigger and stop requests.
	Reverse struct {
		sampleRate float64
		params     atomic.Pointer[pulsar.ReverseParams]
		trigger    atomic.Pointer[reverseTrigger]
		stopReq    atomic.Bool

		state    reverseState
		fragment pulsar.AudioBuffer // preallocated to the max fragment size
		fragLen  int
		recorded int
		playPos  float64
		playRate float64
		loop     int
		loops    int
		loopAmp  float32
		feedback float64
	}

	reverseTrigger struct{}

	reverseState int
)

const (
	reverseIdle reverseState = iota
	reverseRecording
	reversePlaying
)

func NewReverse(sampleRate float64) *Reverse {
	r := &Reverse{
		sampleRate: sampleRate,
		fragment:   make(pulsar.AudioBuffer, int(maxReverseSeconds*sampleRate)+1),
	}
	p := pulsar.DefaultReverseParams()
	r.params.Store(&p)
	return r
}

// SetParams publishes a new parameter set. Control domain.
func (r *Reverse) SetParams(p pulsar.ReverseParams) {
	p = p.Clamp()
	r.params.Store(&p)
}

func (r *Reverse) Params() pulsar.ReverseParams { return *r.params.Load() }

// Trigger starts recording at the next block boundary. A trigger while
// already recording or playing restarts the capture.
func (r *Reverse) Trigger() { r.trigger.Store(&reverseTrigger{}) }

// Stop aborts recording or playback immediately. Idempotent.
func (r *Reverse) Stop() { r.stopReq.Store(true) }

func (r *Reverse) Active() bool { return r.state != reverseIdle }

// Process runs the state machine over the block in place. Render domain.
func (r *Reverse) Process(buf pulsar.AudioBuffer) {
	if r.trigger.Swap(nil) != nil {
		p := r.params.Load()
		r.fragLen = int((0.1 + 0.4*p.Duration) * r.sampleRate)
		if r.fragLen > len(r.fragment) {
			r.fragLen = len(r.fragment)
		}
		r.recorded = 0
		r.state = reverseRecording
	}
	if r.stopReq.Swap(false) && r.state != reverseIdle {
		r.state = reverseIdle
		r.resetTransients()
	}
	if r.state == reverseIdle {
		return
	}

	p := r.params.Load()
	mix := float32(p.Mix)

	for i := range buf {
		in := buf[i]
		var wet [2]float32 // silence while recording

		switch r.state {
		case reverseRecording:
			r.fragment[r.recorded] = in
			r.recorded++
			if r.recorded >= r.fragLen {
				r.finishCapture(p)
			}
		case reversePlaying:
			wet = r.playSample()
		}

		buf[i][0] = in[0] + (wet[0]-in[0])*mix
		buf[i][1] = in[1] + (wet[1]-in[1])*mix
	}
}

// finishCapture turns the recorded fragment into the playback buffer:
// optional rotation, in-place reversal, edge crossfades, then playback setup.
func (r *Reverse) finishCapture(p *pulsar.ReverseParams) {
	frag := r.fragment[:r.fragLen]
	if shift := int(p.Position * float64(r.fragLen) / 2); shift > 0 {
		rotateFrames(frag, shift)
	}
	reverseFrames(frag)
	fade := int((0.005 + 0.095*p.Crossfade) * r.sampleRate)
	fadeEdges(frag, fade)

	r.playPos = 0
	r.playRate = 0.5 + 1.5*p.Speed
	r.loops = p.LoopCount
	if r.loops < 1 {
		r.loops = 1
	}
	r.loop = 0
	r.loopAmp = 1
	r.feedback = p.Feedback
	r.state = reversePlaying
}

func (r *Reverse) playSample() [2]float32 {
	if r.playPos >= float64(r.fragLen-1) {
		r.loop++
		if r.loop >= r.loops {
			r.state = reverseIdle
			r.resetTransients()
			return [2]float32{}
		}
		r.playPos = 0
		r.loopAmp = float32(math.Pow(1-r.feedback*0.3, float64(r.loop)))
	}
	i := int(r.playPos)
	frac := float32(r.playPos - float64(i))
	a, b := r.fragment[i], r.fragment[i+1]
	r.playPos += r.playRate
	return [2]float32{
		(a[0] + (b[0]-a[0])*frac) * r.loopAmp,
		(a[1] + (b[1]-a[1])*frac) * r.loopAmp,
	}
}

func (r *Reverse) resetTransients() {
	r.recorded = 0
	r.playPos = 0
	r.loop = 0
	r.loopAmp = 1
}

// reverseFrames flips the buffer in place. Reversing twice restores the
// original contents exactly.
func reverseFrames(buf pulsar.AudioBuffer) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}

// rotateFrames rotates the buffer left by n frames in place using triple
// reversal.
func rotateFrames(buf pulsar.AudioBuffer, n int) {
	if len(buf) == 0 {
		return
	}
	n %= len(buf)
	if n == 0 {
		return
	}
	reverseFrames(buf[:n])
	reverseFrames(buf[n:])
	reverseFrames(buf)
}

// fadeEdges applies a linear ramp over the first and last fade frames so
// playback start and loop seams do not click.
func fadeEdges(buf pulsar.AudioBuffer, fade int) {
	if fade > len(buf)/2 {
		fade = len(buf) / 2
	}
	for i := 0; i < fade; i++ {
		g := float32(i) / float32(fade)
		buf[i][0] *= g
		buf[i][1] *= g
		j := len(buf) - 1 - i
		buf[j][0] *= g
		buf[j][1] *= g
	}
}
