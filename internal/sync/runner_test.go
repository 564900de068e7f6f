package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/coordination/internal/coordination"
	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/notify"
	"github.com/nhle/coordination/internal/rules"
	"github.com/nhle/coordination/internal/store"
	"github.com/nhle/coordination/internal/testutil"
)

func newTestRunner(t *testing.T, now time.Time) (*Runner, *store.SQLiteStore) {
	t.Helper()
	s := testutil.NewTestStore(t)
	clock := func() time.Time { return now }
	catalog := rules.DefaultCatalog()
	engine := coordination.NewEngine(s, catalog, zap.NewNop(), coordination.WithClock(clock))
	gate := notify.NewGate(s, catalog, notify.DefaultConfig(), zap.NewNop(), notify.WithClock(clock))
	return New(engine, gate, Options{Interval: time.Hour}, zap.NewNop()), s
}

func TestRunOnce_ProcessesSweepsAndDelivers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r, s := newTestRunner(t, now)

	require.NoError(t, s.CreateEvent(ctx, model.CoordinationEvent{
		ProjectID: "proj-1", Type: model.EventBlocker, TargetUserID: "user-1",
		RelatedEntityID: "issue-1", Severity: model.SeverityHigh,
		Metadata:   model.Metadata{model.MetaBlockerDays: 2},
		OccurredAt: now.Add(-time.Hour),
	}))

	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Process.Events)
	assert.Equal(t, 1, res.Process.Created)
	assert.Equal(t, 1, res.Sweep.Evaluated)
	assert.Equal(t, 1, res.Deliver.Sent)

	for _, st := range r.Statuses() {
		assert.Equal(t, SyncIdle, st.State, "stage %s", st.Stage)
		assert.NoError(t, st.Error)
		assert.False(t, st.LastSync.IsZero())
	}

	res, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Process.Events)
	assert.Equal(t, 0, res.Deliver.Evaluated)
}

func TestRunOnce_StageFailureIsReported(t *testing.T) {
	r, s := newTestRunner(t, time.Now())
	require.NoError(t, s.Close())

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)

	statuses := r.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, StageProcess, statuses[0].Stage)
	assert.Equal(t, SyncError, statuses[0].State)
	assert.Equal(t, SyncIdle, statuses[1].State)
}

func TestRunner_StartStop(t *testing.T) {
	r, _ := newTestRunner(t, time.Now())

	r.Start(context.Background())
	r.Start(context.Background())
	r.Refresh()
	r.Stop()
	r.Stop()

	assert.Equal(t, SyncIdle, r.Statuses()[0].State)
}

func TestProjectLimiter(t *testing.T) {
	ctx := context.Background()

	unlimited := newProjectLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Wait(ctx, "proj-1"))
	}

	l := newProjectLimiter(60)
	require.NoError(t, l.Wait(ctx, "proj-1"))
	require.NoError(t, l.Wait(ctx, "proj-2"))
	assert.Len(t, l.limiters, 2)

	l.Evict(-time.Second)
	assert.Empty(t, l.limiters)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, l.Wait(cancelled, "proj-3"))
}
