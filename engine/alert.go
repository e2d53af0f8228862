package engine

import "time"

type (
	// Alert is a non-blocking notification from the engine or scheduler to
	// whoever is monitoring: callback panics, transport changes, dropped
	// triggers. Alerts ride the monitor channel and are never allowed to
	// stall the sender.
	Alert struct {
		Name     string
		Message  string
		Priority AlertPriority
		Duration time.Duration
	}

	AlertPriority int
)

const (
	None AlertPriority = iota
	Notify
	Warning
	Error
)

const defaultAlertDuration = 3 * time.Second
