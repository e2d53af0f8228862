// Package midi maps incoming MIDI to engine gestures through rtmidi. Pads
// (note on/off) fire per-track effect triggers, a few low notes drive the
// transport and CC 7 sets the master gain. Effect triggers are control
// domain gestures, so messages are dispatched straight from the listen
// callback with no frame accounting.
package midi

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/CarlosNMK25/pulsar-v1-sub001/engine"
)

// Pad layout: one bank of eight notes per track, starting at note 36.
// Within a bank the offsets are:
//
//	0 stutter        4 reverse
//	1 tape-stop      5 chaos on
//	2 bitcrush hold  6 chaos off
//	3 freeze hold    7 bypass toggle
//
// Held pads (offsets 2 and 3) sustain until their note off. Notes below
// the banks drive the transport.
const (
	bankBase = 36
	bankSize = 8

	noteStart  = 24
	noteStop   = 25
	notePause  = 26
	noteResume = 27

	ccMasterGain = 7
)

type (
	Context struct {
		driver             *rtmididrv.Driver
		currentIn          drivers.In
		inputDevices       []Device
		devicesInitialized bool
		eng                *engine.Engine
	}

	Device struct {
		context *Context
		in      drivers.In
	}

	// InputDevice is what the UI layer sees when enumerating inputs.
	InputDevice interface {
		Open() error
		fmt.Stringer
	}
)

// NewContext opens the rtmidi driver for the given engine. A nil driver
// just means no MIDI is available; every method stays safe to call.
func NewContext(eng *engine.Engine) *Context {
	c := &Context{eng: eng}
	c.driver, _ = rtmididrv.New()
	return c
}

func (c *Context) InputDevices(yield func(InputDevice) bool) {
	if c.devicesInitialized {
		for _, device := range c.inputDevices {
			if !yield(device) {
				break
			}
		}
		return
	}
	if c.driver == nil {
		return
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return
	}
	for _, in := range ins {
		device := Device{context: c, in: in}
		c.inputDevices = append(c.inputDevices, device)
		if !yield(device) {
			break
		}
	}
	c.devicesInitialized = true
}

// Open an input device, closing the currently open one if necessary.
func (d Device) Open() error {
	if d.context.currentIn == d.in {
		return nil
	}
	if d.context.driver == nil {
		return errors.New("no driver available")
	}
	if d.context.HasDeviceOpen() {
		d.context.currentIn.Close()
	}
	d.context.currentIn = d.in
	if err := d.in.Open(); err != nil {
		d.context.currentIn = nil
		return fmt.Errorf("opening MIDI input failed: %w", err)
	}
	if _, err := midi.ListenTo(d.in, d.context.handleMessage); err != nil {
		d.in.Close()
		d.context.currentIn = nil
		return fmt.Errorf("listening to MIDI input failed: %w", err)
	}
	return nil
}

func (d Device) String() string { return d.in.String() }

// TryToOpenBy opens the first input whose name starts with namePrefix, or
// just the first input when takeFirst is set.
func (c *Context) TryToOpenBy(namePrefix string, takeFirst bool) error {
	if namePrefix == "" && !takeFirst {
		return nil
	}
	var opened bool
	c.InputDevices(func(input InputDevice) bool {
		if takeFirst || strings.HasPrefix(input.String(), namePrefix) {
			opened = input.Open() == nil
			return false
		}
		return true
	})
	if opened {
		return nil
	}
	if takeFirst {
		return errors.New("could not find any MIDI input")
	}
	return fmt.Errorf("could not find a MIDI input starting with %q", namePrefix)
}

func (c *Context) HasDeviceOpen() bool {
	return c.currentIn != nil && c.currentIn.IsOpen()
}

func (c *Context) Close() {
	if c.driver == nil {
		return
	}
	if c.currentIn != nil && c.currentIn.IsOpen() {
		c.currentIn.Close()
	}
	c.driver.Close()
}

func (c *Context) handleMessage(msg midi.Message, timestampms int32) {
	var channel, key, velocity, cc, value uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		c.noteOn(key, velocity)
	case msg.GetNoteOff(&channel, &key, &velocity):
		c.noteOff(key)
	case msg.GetControlChange(&channel, &cc, &value):
		if cc == ccMasterGain {
			c.eng.SetMasterGain(float64(value) / 127 * 2)
		}
	}
}

func (c *Context) noteOn(key, velocity uint8) {
	switch key {
	case noteStart:
		c.eng.Start()
		return
	case noteStop:
		c.eng.Stop()
		return
	case notePause:
		c.eng.Pause()
		return
	case noteResume:
		c.eng.Resume()
		return
	}
	track, pad, ok := padFor(key)
	if !ok {
		return
	}
	switch pad {
	case 0:
		c.eng.TriggerStutter(track)
	case 1:
		c.eng.TriggerTapeStop(track)
	case 2:
		c.eng.TriggerBitcrush(track, 0, true)
	case 3:
		c.eng.TriggerFreeze(track, true)
	case 4:
		c.eng.TriggerReverse(track)
	case 5:
		// pad velocity sets the chaos intensity
		if t, found := c.trackByID(track); found {
			p := t.ChaosParams()
			p.Intensity = float64(velocity) / 127
			c.eng.SetChaosParams(track, p)
		}
		c.eng.StartChaos(track)
	case 6:
		c.eng.StopChaos(track)
	case 7:
		if t, found := c.trackByID(track); found {
			c.eng.SetBypass(track, !t.Chain.Bypassed())
		}
	}
}

func (c *Context) noteOff(key uint8) {
	track, pad, ok := padFor(key)
	if !ok {
		return
	}
	switch pad {
	case 2:
		c.eng.StopBitcrush(track)
	case 3:
		c.eng.StopFreeze(track)
	}
}

func (c *Context) trackByID(id int) (*engine.Track, bool) {
	tracks := c.eng.Tracks()
	if id < 0 || id >= len(tracks) {
		return nil, false
	}
	return tracks[id], true
}

func padFor(key uint8) (track, pad int, ok bool) {
	if key < bankBase {
		return 0, 0, false
	}
	n := int(key) - bankBase
	return n / bankSize, n % bankSize, true
}
