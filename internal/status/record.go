package status

import (
	"slices"
	"time"
)

// Transition is one entry of a record's status history.
type Transition struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// Record tracks the progress of one pipeline run.
type Record struct {
	ID            string       `json:"id"`
	Status        Status       `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`
	Root          string       `json:"root,omitempty"`
	TriggerID     string       `json:"trigger_id,omitempty"`
	Image         string       `json:"image,omitempty"`
	Commit        string       `json:"commit,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
	Transitions   []Transition `json:"transitions"`
}

// Meta is supplied when a record is created.
type Meta struct {
	Root      string
	TriggerID string
	Commit    string
}

// Annotations are non-status details learned while a build runs. Empty fields
// leave the current value untouched.
type Annotations struct {
	Image  string
	Commit string
}

// IsTerminal reports whether the record has reached success or failed.
func (r Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Statuses returns the sequence of statuses the record has held.
func (r Record) Statuses() []Status {
	out := make([]Status, len(r.Transitions))
	for i, t := range r.Transitions {
		out[i] = t.Status
	}
	return out
}

func (r *Record) clone() Record {
	cp := *r
	cp.Transitions = slices.Clone(r.Transitions)
	if r.FinishedAt != nil {
		at := *r.FinishedAt
		cp.FinishedAt = &at
	}
	return cp
}
