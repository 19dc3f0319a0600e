package status

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGenerator_UniqueWithinSameTick(t *testing.T) {
	gen := NewIDGenerator(clockwork.NewFakeClockAt(time.Unix(1700000000, 0)))

	seen := make(map[string]struct{})
	var prev string
	for range 5000 {
		id, err := gen.Next()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(id, IDPrefix))
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
		if prev != "" {
			assert.Greater(t, id, prev)
		}
		prev = id
	}
}

func TestIDGenerator_Concurrent(t *testing.T) {
	gen := NewIDGenerator(clockwork.NewFakeClock())

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				id, err := gen.Next()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 16*200)
}
