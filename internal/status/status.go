package status

// Status is the lifecycle state of one build record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusParsing   Status = "parsing"
	StatusTesting   Status = "testing"
	StatusBuilding  Status = "building"
	StatusDeploying Status = "deploying"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// chain is the only forward path a build may take.
var chain = []Status{
	StatusPending,
	StatusParsing,
	StatusTesting,
	StatusBuilding,
	StatusDeploying,
	StatusSuccess,
}

// Chain returns the ordered forward statuses.
func Chain() []Status {
	out := make([]Status, len(chain))
	copy(out, chain)
	return out
}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusFailed || s.index() >= 0
}

// Next returns the status that follows s in the chain, or "" when s is terminal or unknown.
func (s Status) Next() Status {
	i := s.index()
	if i < 0 || i == len(chain)-1 {
		return ""
	}
	return chain[i+1]
}

// CanTransition reports whether moving from s to to is legal.
func (s Status) CanTransition(to Status) bool {
	if s.IsTerminal() || !s.Valid() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return s.Next() == to
}

func (s Status) index() int {
	for i, c := range chain {
		if c == s {
			return i
		}
	}
	return -1
}
