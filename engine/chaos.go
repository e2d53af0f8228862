package engine

import (
	"math/rand"
	"sync"
	"time"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
	"github.com/CarlosNMK25/pulsar-v1-sub001/fx"
)

// chaosLoop randomly fires glitch effects on one track. Each iteration
// waits a randomized interval derived from the density parameter, then
// picks one of stutter, bitcrush or freeze by fixed weights; the trigger's
// own probability gate applies on top. The loop self-terminates if its
// track was bypassed mid-flight.
type chaosLoop struct {
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func startChaos(chain *fx.Chain, params func() pulsar.ChaosParams, bpm func() float64, broker *Broker, trackID int) *chaosLoop {
	c := &chaosLoop{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go c.run(chain, params, bpm, broker, trackID)
	return c
}

func (c *chaosLoop) run(chain *fx.Chain, params func() pulsar.ChaosParams, bpm func() float64, broker *Broker, trackID int) {
	defer close(c.done)
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(trackID)))
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		p := params().Clamp()
		base := 200 + 800*(1-p.Density) // milliseconds
		interval := base * (0.5 + rng.Float64())
		timer.Reset(time.Duration(interval * float64(time.Millisecond)))
		select {
		case <-c.stop:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			return
		case <-timer.C:
		}
		if chain.Bypassed() {
			broker.SendAlert("Chaos", "track bypassed, chaos loop stopping", Notify)
			return
		}
		duration := 0.05 + 0.4*p.Intensity
		switch roll := rng.Float64(); {
		case roll < 0.4:
			chain.TriggerStutter(bpm())
		case roll < 0.7:
			chain.TriggerBitcrush(duration, false)
		default:
			chain.TriggerFreeze(false)
		}
	}
}

// Stop cancels the pending timer and waits for the loop to exit.
// Idempotent; stopping an already-terminated loop returns immediately.
func (c *chaosLoop) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	TimeoutReceive(c.done, time.Second)
}
