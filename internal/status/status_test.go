package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusParsing))
	assert.True(t, StatusDeploying.CanTransition(StatusSuccess))
	assert.True(t, StatusTesting.CanTransition(StatusFailed))
	assert.True(t, StatusPending.CanTransition(StatusFailed))

	assert.False(t, StatusPending.CanTransition(StatusTesting))
	assert.False(t, StatusBuilding.CanTransition(StatusParsing))
	assert.False(t, StatusSuccess.CanTransition(StatusFailed))
	assert.False(t, StatusFailed.CanTransition(StatusPending))
	assert.False(t, Status("bogus").CanTransition(StatusFailed))
}

func TestStatus_NextAndTerminal(t *testing.T) {
	assert.Equal(t, StatusTesting, StatusParsing.Next())
	assert.Equal(t, Status(""), StatusSuccess.Next())
	assert.Equal(t, Status(""), StatusFailed.Next())
	assert.True(t, StatusSuccess.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusDeploying.IsTerminal())
}
