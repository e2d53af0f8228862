// Package oto plays engine audio through the ebitengine/oto/v3 backend.
// oto pulls samples: the player reads from an io.Reader on its own
// goroutine, so the engine's render entry point runs inside Read.
package oto

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ebitengine/oto/v3"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

type (
	Context struct {
		ctx        *oto.Context
		sampleRate int
	}

	Player struct {
		player *oto.Player
	}

	reader struct {
		proc  pulsar.AudioProcessor
		block pulsar.AudioBuffer
	}
)

// NewContext opens the audio device at the given sample rate, stereo
// float32. Blocks until the device is ready.
func NewContext(sampleRate int) (*Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate}, nil
}

// Play starts pulling audio from the processor. The processor's Process
// runs on oto's reader goroutine, which becomes the render domain.
func (c *Context) Play(proc pulsar.AudioProcessor) *Player {
	r := &reader{proc: proc, block: make(pulsar.AudioBuffer, 4096)}
	p := c.ctx.NewPlayer(r)
	p.Play()
	return &Player{player: p}
}

func (c *Context) SampleRate() int { return c.sampleRate }

func (p *Player) Close() error {
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

// Read renders one block and serializes it as interleaved float32 LE.
func (r *reader) Read(p []byte) (int, error) {
	frames := len(p) / 8 // 2 channels x 4 bytes
	if frames == 0 {
		return 0, nil
	}
	if frames > len(r.block) {
		frames = len(r.block)
	}
	block := r.block[:frames]
	r.proc.Process(block)
	for i, frame := range block {
		binary.LittleEndian.PutUint32(p[i*8:], math.Float32bits(frame[0]))
		binary.LittleEndian.PutUint32(p[i*8+4:], math.Float32bits(frame[1]))
	}
	return frames * 8, nil
}
