package events

import (
	"time"

	"git.home.luguber.info/inful/cicdsim/internal/status"
)

// BuildEvent is implemented by every event that belongs to a single build.
type BuildEvent interface {
	EventBuildID() string
}

// TriggerFired is emitted when a quiet window elapses and a watcher asks for a build.
type TriggerFired struct {
	TriggerID  string
	Root       string
	Events     int // qualifying events folded into the window
	FirstEvent time.Time
	LastEvent  time.Time
	FiredAt    time.Time
}

// TriggerCoalesced is emitted when a trigger arrives while a build for the
// same root is running and is folded into the pending follow-up build.
type TriggerCoalesced struct {
	TriggerID string
	Root      string
	At        time.Time
}

// BuildTransitioned is emitted after every status change of a build record.
type BuildTransitioned struct {
	BuildID       string
	Root          string
	TriggerID     string
	From          status.Status
	To            status.Status
	FailureReason string
	Image         string
	Commit        string
	At            time.Time
}

func (e BuildTransitioned) EventBuildID() string { return e.BuildID }

// Terminal reports whether the transition finished the build.
func (e BuildTransitioned) Terminal() bool { return e.To.IsTerminal() }
