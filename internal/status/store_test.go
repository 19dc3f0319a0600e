package status

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
)

func newTestStore(t *testing.T, maxRecords int) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	return NewStore(StoreConfig{Clock: clock, MaxRecords: maxRecords}), clock
}

func TestStore_CreateStartsPending(t *testing.T) {
	s, clock := newTestStore(t, 0)

	rec, err := s.Create("build-1", Meta{Root: "/srv/app", TriggerID: "t-1"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "/srv/app", rec.Root)
	assert.Equal(t, "t-1", rec.TriggerID)
	assert.Equal(t, clock.Now(), rec.CreatedAt)
	assert.Empty(t, rec.FailureReason)
	assert.Equal(t, []Status{StatusPending}, rec.Statuses())
}

func TestStore_CreateRejectsDuplicate(t *testing.T) {
	s, _ := newTestStore(t, 0)
	_, err := s.Create("build-1", Meta{})
	require.NoError(t, err)

	_, err = s.Create("build-1", Meta{})
	require.ErrorIs(t, err, ErrDuplicateBuild)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryInternal))
}

func TestStore_FullChainToSuccess(t *testing.T) {
	s, clock := newTestStore(t, 0)
	_, err := s.Create("b", Meta{})
	require.NoError(t, err)

	for _, st := range Chain()[1:] {
		clock.Advance(time.Second)
		rec, err := s.Transition("b", st, "")
		require.NoError(t, err)
		assert.Equal(t, st, rec.Status)
	}

	rec, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, Chain(), rec.Statuses())
	require.NotNil(t, rec.FinishedAt)
	assert.Equal(t, clock.Now(), *rec.FinishedAt)
}

func TestStore_FailedRecordsReasonAndIsTerminal(t *testing.T) {
	s, _ := newTestStore(t, 0)
	_, err := s.Create("b", Meta{})
	require.NoError(t, err)
	_, err = s.Transition("b", StatusParsing, "")
	require.NoError(t, err)

	rec, err := s.Transition("b", StatusFailed, "config error")
	require.NoError(t, err)
	assert.Equal(t, "config error", rec.FailureReason)

	_, err = s.Transition("b", StatusTesting, "")
	require.ErrorIs(t, err, ErrTerminal)
	_, err = s.Transition("b", StatusFailed, "again")
	require.ErrorIs(t, err, ErrTerminal)

	rec, err = s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "config error", rec.FailureReason)
	assert.Equal(t, []Status{StatusPending, StatusParsing, StatusFailed}, rec.Statuses())
}

func TestStore_ReasonIgnoredForNonFailure(t *testing.T) {
	s, _ := newTestStore(t, 0)
	_, err := s.Create("b", Meta{})
	require.NoError(t, err)

	rec, err := s.Transition("b", StatusParsing, "ignored")
	require.NoError(t, err)
	assert.Empty(t, rec.FailureReason)
}

func TestStore_RejectsSkippingAndReentry(t *testing.T) {
	s, _ := newTestStore(t, 0)
	_, err := s.Create("b", Meta{})
	require.NoError(t, err)

	_, err = s.Transition("b", StatusBuilding, "")
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, err = s.Transition("b", StatusParsing, "")
	require.NoError(t, err)
	_, err = s.Transition("b", StatusPending, "")
	require.ErrorIs(t, err, ErrIllegalTransition)
	_, err = s.Transition("b", StatusParsing, "")
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestStore_UnknownIDIsInternalError(t *testing.T) {
	s, _ := newTestStore(t, 0)

	_, err := s.Transition("missing", StatusParsing, "")
	require.ErrorIs(t, err, ErrUnknownBuild)
	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.True(t, classified.IsFatal())

	_, err = s.Annotate("missing", Annotations{Image: "x:1"})
	require.ErrorIs(t, err, ErrUnknownBuild)

	_, err = s.Get("missing")
	require.ErrorIs(t, err, ErrBuildNotFound)
}

func TestStore_Annotate(t *testing.T) {
	s, _ := newTestStore(t, 0)
	_, err := s.Create("b", Meta{Commit: "abc"})
	require.NoError(t, err)

	rec, err := s.Annotate("b", Annotations{Image: "app:1.2"})
	require.NoError(t, err)
	assert.Equal(t, "app:1.2", rec.Image)
	assert.Equal(t, "abc", rec.Commit)
}

func TestStore_ReadersGetCopies(t *testing.T) {
	s, _ := newTestStore(t, 0)
	_, err := s.Create("b", Meta{})
	require.NoError(t, err)

	rec, err := s.Get("b")
	require.NoError(t, err)
	rec.Status = StatusSuccess
	rec.Transitions[0].Status = StatusFailed

	again, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
	assert.Equal(t, StatusPending, again.Transitions[0].Status)
}

func TestStore_ListKeepsCreationOrder(t *testing.T) {
	s, _ := newTestStore(t, 0)
	for _, id := range []string{"c", "a", "b"} {
		_, err := s.Create(id, Meta{})
		require.NoError(t, err)
	}

	var ids []string
	for _, rec := range s.List() {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Len(t, s.Snapshot(), 3)
}

func finish(t *testing.T, s *Store, id string) {
	t.Helper()
	_, err := s.Create(id, Meta{})
	require.NoError(t, err)
	_, err = s.Transition(id, StatusFailed, "config error")
	require.NoError(t, err)
}

func TestStore_MaxRecordsEvictsOldestTerminal(t *testing.T) {
	s, _ := newTestStore(t, 2)

	_, err := s.Create("running", Meta{})
	require.NoError(t, err)
	finish(t, s, "old")
	finish(t, s, "mid")
	finish(t, s, "new")

	_, err = s.Get("old")
	require.Error(t, err)

	var ids []string
	for _, rec := range s.List() {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"running", "mid", "new"}, ids)
}

func TestStore_SweepByAge(t *testing.T) {
	s, clock := newTestStore(t, 0)

	finish(t, s, "old")
	clock.Advance(2 * time.Hour)
	finish(t, s, "fresh")
	_, err := s.Create("running", Meta{})
	require.NoError(t, err)

	assert.Equal(t, 0, s.Sweep(0))
	assert.Equal(t, 1, s.Sweep(time.Hour))
	assert.Equal(t, 2, s.Len())
	_, err = s.Get("fresh")
	require.NoError(t, err)
}

func TestStore_ConcurrentReadersDuringTransitions(t *testing.T) {
	s, _ := newTestStore(t, 0)
	_, err := s.Create("b", Meta{})
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var bad error
	var badOnce sync.Once

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, rec := range s.List() {
					statuses := rec.Statuses()
					if statuses[len(statuses)-1] != rec.Status {
						badOnce.Do(func() { bad = errors.New("status does not match history tail") })
					}
				}
			}
		}()
	}

	for _, st := range Chain()[1:] {
		_, err := s.Transition("b", st, "")
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	require.NoError(t, bad)
}
