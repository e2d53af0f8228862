package fx

import (
	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// tapeRestoreSeconds is the linear gain recovery after the stop completes.
const tapeRestoreSeconds = 0.15

// TapeStop schedules a deceleration gesture on the chain's tape gain
// parameter: a 64-point value curve sweeping from unity down to near
// silence, optionally perturbed by a slow wobble, then a linear restore.
type TapeStop struct {
	tape *Param
}

func NewTapeStop(tape *Param) *TapeStop {
	return &TapeStop{tape: tape}
}

// Duration returns the stop length in seconds for the given normalized
// duration and speed parameters. Faster "motor" speeds shorten the stop.
func (TapeStop) Duration(durationParam, speedParam float64) float64 {
	return (0.3 + 0.5*durationParam*1.2) / (0.3 + 1.7*speedParam)
}

// Trigger schedules the stop starting at now (seconds on the render clock)
// and returns the total gesture duration including the restore ramp.
// Control domain.
func (ts *TapeStop) Trigger(now float64, p pulsar.TapeStopParams) float64 {
	p = p.Clamp()
	duration := ts.Duration(p.Duration, p.Speed)
	curve := tapeStopCurve(p.Curve, p.Wobble, duration)
	ts.tape.SetValueCurveAtTime(curve, now, duration)
	ts.tape.LinearRampToValueAtTime(1, now+duration+tapeRestoreSeconds)
	return duration + tapeRestoreSeconds
}

// Cancel drops any pending stop automation and snaps the gain back to
// unity. Idempotent.
func (ts *TapeStop) Cancel(now float64) {
	ts.tape.CancelScheduledValues(now)
	ts.tape.SetValueAtTime(1, now)
}
