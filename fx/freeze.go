package fx

import (
	"math"
	"sync/atomic"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

const (
	// maxGrains bounds concurrent grain playback; spawning past the pool
	// size drops grains rather than allocating.
	maxGrains = 64

	// snapshotSeconds is how much of the capture ring is frozen on trigger.
	snapshotSeconds = 1.0
)

type (
	// Freeze is the granular freeze block processor. It writes every input
	// block into a capture ring regardless of activation, so triggering
	// can immediately snapshot the most recent second of audio. Grains are
	// spawned lazily from a fixed pool and read only from the snapshot,
	// never from the live ring.
	Freeze struct {
		sampleRate float64
		params     atomic.Pointer[pulsar.FreezeParams]
		trigger    atomic.Pointer[freezeTrigger]
		stopReq    atomic.Bool

		ring     *captureRing
		snapshot pulsar.AudioBuffer // preallocated; snapLen frames valid
		snapLen  int

		state      freezeState
		sustain    bool
		spawnLeft  int     // momentary: grains still to spawn
		untilSpawn float64 // frames until the next grain spawn
		interval   float64 // spawn interval in frames
		env        float64
		envStep    float64
		grains     [maxGrains]grain
		rngState   uint32
	}

	freezeTrigger struct{ sustain bool }

	freezeState int

	grain struct {
		active  bool
		delay   int     // frames until playback starts
		pos     float64 // read position in the snapshot
		rate    float64
		amp     [2]float32
		age     int
		length  int
		attack  int
		release int
	}
)

const (
	freezeIdle freezeState = iota
	freezeActive
	freezeDraining // no more spawns, waiting for live grains to end
)

func NewFreeze(sampleRate float64, seed int64) *Freeze {
	f := &Freeze{
		sampleRate: sampleRate,
		ring:       newCaptureRing(int(2 * sampleRate)),
		snapshot:   make(pulsar.AudioBuffer, int(snapshotSeconds*sampleRate)),
		envStep:    1 / (0.01 * sampleRate),
		rngState:   uint32(seed)*2654435761 + 7,
	}
	p := pulsar.DefaultFreezeParams()
	f.params.Store(&p)
	return f
}

// SetParams publishes a new parameter set. Control domain.
func (f *Freeze) SetParams(p pulsar.FreezeParams) {
	p = p.Clamp()
	f.params.Store(&p)
}

func (f *Freeze) Params() pulsar.FreezeParams { return *f.params.Load() }

// Trigger requests a freeze starting at the next block boundary, where the
// snapshot is taken in the render domain so it cannot race the ring writer.
func (f *Freeze) Trigger(sustain bool) {
	f.trigger.Store(&freezeTrigger{sustain: sustain})
}

// Stop ends a sustained freeze (or cuts a momentary one short). Idempotent.
func (f *Freeze) Stop() { f.stopReq.Store(true) }

func (f *Freeze) Active() bool { return f.state != freezeIdle }

// Process captures the block into the ring and, when frozen, replaces the
// output with grain playback from the snapshot. Render domain.
func (f *Freeze) Process(buf pulsar.AudioBuffer) {
	if req := f.trigger.Swap(nil); req != nil {
		f.engage(req.sustain)
	}
	f.ring.Write(buf)
	if f.stopReq.Swap(false) && f.state == freezeActive {
		f.state = freezeDraining
		f.spawnLeft = 0
	}
	if f.state == freezeIdle {
		return
	}

	p := f.params.Load()
	mix := p.Mix

	for i := range buf {
		f.stepSpawner(p)

		var wetL, wetR float32
		alive := false
		for g := range f.grains {
			gr := &f.grains[g]
			if !gr.active {
				continue
			}
			alive = true
			if gr.delay > 0 {
				gr.delay--
				continue
			}
			l, r := f.readSnapshot(gr.pos)
			e := gr.envelope()
			wetL += l * gr.amp[0] * e
			wetR += r * gr.amp[1] * e
			gr.pos += gr.rate
			gr.age++
			if gr.age >= gr.length || gr.pos >= float64(f.snapLen-1) || gr.pos < 0 {
				gr.active = false
			}
		}

		switch f.state {
		case freezeActive:
			if f.env < 1 {
				f.env += f.envStep
				if f.env > 1 {
					f.env = 1
				}
			}
		case freezeDraining:
			if !alive {
				f.env -= f.envStep
				if f.env <= 0 {
					f.env = 0
					f.state = freezeIdle
					f.resetTransients()
				}
			}
		}

		m := float32(mix * f.env)
		in := buf[i]
		buf[i][0] = in[0] + (wetL-in[0])*m
		buf[i][1] = in[1] + (wetR-in[1])*m
	}
}

// engage snapshots the ring and starts the spawner. Render domain.
func (f *Freeze) engage(sustain bool) {
	p := f.params.Load()
	f.snapLen = f.ring.SnapshotInto(f.snapshot, len(f.snapshot), p.Reverse)
	if f.snapLen == 0 {
		return
	}
	densityHz := 5 + 55*p.Density
	overlap := 1 + 7*p.Overlap
	f.interval = f.sampleRate / (densityHz * overlap)
	if f.interval < 1 {
		f.interval = 1
	}
	f.sustain = sustain
	if sustain {
		f.spawnLeft = -1
	} else {
		freezeDuration := 0.5 + 5*p.GrainSize
		f.spawnLeft = int(freezeDuration * f.sampleRate / f.interval)
		if f.spawnLeft < 1 {
			f.spawnLeft = 1
		}
	}
	f.untilSpawn = 0
	f.state = freezeActive
}

// stepSpawner advances the spawn clock by one frame and launches grains on
// schedule while any remain.
func (f *Freeze) stepSpawner(p *pulsar.FreezeParams) {
	if f.state != freezeActive || f.spawnLeft == 0 {
		return
	}
	f.untilSpawn--
	if f.untilSpawn > 0 {
		return
	}
	f.untilSpawn += f.interval
	if f.spawnLeft > 0 {
		f.spawnLeft--
		if f.spawnLeft == 0 && !f.sustain {
			f.state = freezeDraining
		}
	}
	f.spawnGrain(p)
}

func (f *Freeze) spawnGrain(p *pulsar.FreezeParams) {
	var gr *grain
	for i := range f.grains {
		if !f.grains[i].active {
			gr = &f.grains[i]
			break
		}
	}
	if gr == nil {
		return // pool exhausted, drop this grain
	}

	grainSizeSec := 0.02 + 0.18*p.GrainSize
	length := int(grainSizeSec * f.sampleRate)
	if length < 8 {
		length = 8
	}

	// detune is a deterministic per-trigger offset; per-grain pitch
	// randomness rides on the spread amount
	playbackRate := math.Exp2((p.Pitch - 0.5) * 4)
	detuneCents := (p.Detune-0.5)*2400 + (f.rand()*2-1)*p.Spread*50
	rate := playbackRate * math.Exp2(detuneCents/1200)

	snapDur := float64(f.snapLen)
	pos := p.Position*(snapDur-float64(length)*rate) + (f.rand()*2-1)*p.Scatter*snapDur
	pos = pulsar.ClampF(pos, 0, snapDur-2)

	delay := int((f.rand()*2 - 1) * p.Jitter * f.interval)
	if delay < 0 {
		delay = 0
	}

	amp := float32(1 - p.Spread*f.rand()*0.5)
	pan := (f.rand()*2 - 1) * p.Spread
	gl := amp * float32(math.Sqrt(0.5*(1-pan)))
	grr := amp * float32(math.Sqrt(0.5*(1+pan)))

	attack := int((0.002 + 0.048*p.Attack) * f.sampleRate)
	release := int(0.4 * grainSizeSec * f.sampleRate)
	if attack+release > length {
		attack = length / 4
		release = length / 2
	}

	*gr = grain{
		active:  true,
		delay:   delay,
		pos:     pos,
		rate:    rate,
		amp:     [2]float32{gl, grr},
		length:  length,
		attack:  attack,
		release: release,
	}
}

// envelope is the grain's attack/sustain/release gain at its current age.
func (g *grain) envelope() float32 {
	if g.attack > 0 && g.age < g.attack {
		return float32(g.age) / float32(g.attack)
	}
	tail := g.length - g.age
	if g.release > 0 && tail < g.release {
		return float32(tail) / float32(g.release)
	}
	return 1
}

// readSnapshot returns linearly interpolated stereo samples at a fractional
// position in the frozen snapshot.
func (f *Freeze) readSnapshot(pos float64) (float32, float32) {
	i := int(pos)
	if i >= f.snapLen-1 {
		i = f.snapLen - 2
	}
	frac := float32(pos - float64(i))
	a, b := f.snapshot[i], f.snapshot[i+1]
	return a[0] + (b[0]-a[0])*frac, a[1] + (b[1]-a[1])*frac
}

func (f *Freeze) resetTransients() {
	for i := range f.grains {
		f.grains[i].active = false
	}
	f.spawnLeft = 0
	f.untilSpawn = 0
	f.snapLen = 0
	f.sustain = false
}

func (f *Freeze) rand() float64 {
	f.rngState = f.rngState*1664525 + 1013904223
	return float64(f.rngState) / float64(math.MaxUint32)
}
