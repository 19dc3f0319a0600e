package status

import (
	"crypto/rand"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
)

// IDPrefix is prepended to every generated build identifier.
const IDPrefix = "build-"

// IDGenerator produces time-ordered build identifiers. Identifiers drawn within
// the same millisecond stay unique because the entropy is monotonic.
type IDGenerator struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator returns a generator reading time from clock. A nil clock uses
// the real clock.
func NewIDGenerator(clock clockwork.Clock) *IDGenerator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IDGenerator{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Next returns a fresh identifier.
func (g *IDGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.clock.Now()), g.entropy)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryInternal, "build id generation failed").Fatal().Build()
	}
	return IDPrefix + id.String(), nil
}
