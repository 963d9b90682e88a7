package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/types"
)

// testClock is a manually advanced time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, mutate func(*config.SessionConfig)) (*Manager, *testClock) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg.Session)
	}
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(
		func() config.SessionConfig { return cfg.Session },
		NewMemoryStore(),
		WithClock(clock.Now),
	)
	t.Cleanup(func() { _ = m.Close() })
	return m, clock
}

// goodNotes passes both the length floor and the quality cutoff.
func goodNotes() string {
	return "Implemented the webhook trigger and mapped the payload fields. " +
		"Next: wire the email send node and verify the template variables render."
}

func handover(from, to string) types.HandoverRecord {
	return types.HandoverRecord{
		FromWorker: from,
		ToWorker:   to,
		Notes:      goodNotes(),
	}
}

func TestManager_CreateSession(t *testing.T) {
	m, clock := newTestManager(t, nil)

	session, err := m.Create(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, types.PhasePlanning, session.Phase)
	assert.Equal(t, clock.Now().Add(30*time.Minute), session.ExpiresAt)
	assert.Empty(t, session.Chain)
	require.Len(t, session.Security.AuditLog, 1)
	assert.Equal(t, "created", session.Security.AuditLog[0].Action)
}

func TestManager_FirstHandoverStartsImplementation(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)

	session, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
	require.NoError(t, err)

	assert.Equal(t, types.PhaseImplementation, session.Phase)
	require.Len(t, session.Chain, 1)
	assert.Equal(t, "builder", session.ActiveWorker())
	assert.NotEmpty(t, session.Chain[0].ID)
	assert.GreaterOrEqual(t, session.Chain[0].QualityScore, 60)
}

func TestManager_HandoverValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("notes below length floor", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)

		rec := handover("router", "builder")
		rec.Notes = "too short"
		_, err = m.AppendHandover(ctx, session.ID, rec)
		assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
	})

	t.Run("low quality notes", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)

		rec := handover("router", "builder")
		rec.Notes = "did a little work on this item"
		_, err = m.AppendHandover(ctx, session.ID, rec)
		require.Error(t, err)
		assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
		assert.Contains(t, err.Error(), "quality")
	})

	t.Run("risk flagged without remediation", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)

		rec := handover("router", "builder")
		rec.RiskFlagged = true
		_, err = m.AppendHandover(ctx, session.ID, rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remediation")
	})

	t.Run("risk flagged with remediation passes", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)

		rec := handover("router", "builder")
		rec.RiskFlagged = true
		rec.Notes = goodNotes() + " Risk mitigated by pinning the API version."
		_, err = m.AppendHandover(ctx, session.ID, rec)
		assert.NoError(t, err)
	})

	t.Run("from worker must hold the task", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)

		_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
		require.NoError(t, err)

		_, err = m.AppendHandover(ctx, session.ID, handover("stranger", "validator"))
		require.Error(t, err)
		assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
	})

	t.Run("rejected handover leaves the session untouched", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)

		rec := handover("router", "builder")
		rec.Notes = "too short"
		_, err = m.AppendHandover(ctx, session.ID, rec)
		require.Error(t, err)

		reloaded, err := m.Get(ctx, session.ID)
		require.NoError(t, err)
		assert.Empty(t, reloaded.Chain)
		assert.Equal(t, types.PhasePlanning, reloaded.Phase)
	})
}

func TestManager_ChainLengthBounded(t *testing.T) {
	m, _ := newTestManager(t, func(sc *config.SessionConfig) { sc.MaxChainLength = 2 })
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)

	_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
	require.NoError(t, err)
	_, err = m.AppendHandover(ctx, session.ID, handover("builder", "validator"))
	require.NoError(t, err)

	_, err = m.AppendHandover(ctx, session.ID, handover("validator", "builder"))
	assert.Equal(t, types.ErrChainTooLong, types.GetErrorCode(err))
}

func TestManager_PhaseLifecycle(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)

	// Completing from planning skips required phases.
	_, err = m.Complete(ctx, session.ID)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))

	_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
	require.NoError(t, err)

	session, err = m.AdvancePhase(ctx, session.ID, types.PhaseValidation)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseValidation, session.Phase)

	session, err = m.Complete(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCompleted, session.Phase)

	// Terminal sessions reject every mutation.
	_, err = m.AppendHandover(ctx, session.ID, handover("builder", "validator"))
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
	_, err = m.Cancel(ctx, session.ID, "late cancel")
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestManager_Cancel(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)

	session, err = m.Cancel(ctx, session.ID, "user aborted")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCancelled, session.Phase)

	last := session.Security.AuditLog[len(session.Security.AuditLog)-1]
	assert.Equal(t, "cancelled", last.Action)
	assert.Equal(t, "user aborted", last.Detail)
}

func TestManager_Rollback(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
	require.NoError(t, err)
	_, err = m.AppendHandover(ctx, session.ID, handover("builder", "validator"))
	require.NoError(t, err)
	_, err = m.AppendHandover(ctx, session.ID, handover("validator", "builder"))
	require.NoError(t, err)

	session, err = m.Rollback(ctx, session.ID, 2)
	require.NoError(t, err)

	require.Len(t, session.Chain, 1)
	assert.Equal(t, "builder", session.ActiveWorker())
	assert.Equal(t, types.PhaseImplementation, session.Phase)

	// Removed handovers survive in the audit trail.
	removed := 0
	for _, entry := range session.Security.AuditLog {
		if entry.Action == "rollback_removed" {
			removed++
		}
	}
	assert.Equal(t, 2, removed)
}

func TestManager_RollbackToEmptyChainRestoresPlanning(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
	require.NoError(t, err)

	session, err = m.Rollback(ctx, session.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, session.Chain)
	assert.Equal(t, types.PhasePlanning, session.Phase)
}

func TestManager_RollbackBounds(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
	require.NoError(t, err)

	for _, steps := range []int{0, -1, 6} {
		_, err := m.Rollback(ctx, session.ID, steps)
		assert.Equal(t, types.ErrRollbackBounds, types.GetErrorCode(err), "steps=%d", steps)
	}

	// More steps than handovers.
	_, err = m.Rollback(ctx, session.ID, 2)
	assert.Equal(t, types.ErrRollbackBounds, types.GetErrorCode(err))
}

func TestManager_RollbackRateLimited(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)
	for _, h := range []types.HandoverRecord{
		handover("router", "builder"),
		handover("builder", "validator"),
		handover("validator", "builder"),
	} {
		_, err = m.AppendHandover(ctx, session.ID, h)
		require.NoError(t, err)
	}

	_, err = m.Rollback(ctx, session.ID, 1)
	require.NoError(t, err)
	_, err = m.Rollback(ctx, session.ID, 1)
	require.NoError(t, err)

	// Burst exhausted.
	_, err = m.Rollback(ctx, session.ID, 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func limiterCount(m *Manager) int {
	n := 0
	m.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func TestManager_TerminalSessionReleasesRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("on completion", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)
		_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
		require.NoError(t, err)
		_, err = m.AppendHandover(ctx, session.ID, handover("builder", "validator"))
		require.NoError(t, err)

		_, err = m.Rollback(ctx, session.ID, 1)
		require.NoError(t, err)
		require.Equal(t, 1, limiterCount(m))

		_, err = m.AdvancePhase(ctx, session.ID, types.PhaseValidation)
		require.NoError(t, err)
		_, err = m.Complete(ctx, session.ID)
		require.NoError(t, err)
		assert.Zero(t, limiterCount(m))
	})

	t.Run("on cancellation", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)
		_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
		require.NoError(t, err)

		_, err = m.Rollback(ctx, session.ID, 1)
		require.NoError(t, err)
		require.Equal(t, 1, limiterCount(m))

		_, err = m.Cancel(ctx, session.ID, "user aborted")
		require.NoError(t, err)
		assert.Zero(t, limiterCount(m))
	})

	t.Run("on expiry sweep", func(t *testing.T) {
		m, clock := newTestManager(t, nil)
		session, err := m.Create(ctx)
		require.NoError(t, err)
		_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
		require.NoError(t, err)
		_, err = m.Rollback(ctx, session.ID, 1)
		require.NoError(t, err)
		require.Equal(t, 1, limiterCount(m))

		clock.Advance(31 * time.Minute)
		m.Sweep(ctx)
		assert.Zero(t, limiterCount(m))
	})
}

func TestManager_ExpiredSessionRejectsMutation(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()

	session, err := m.Create(ctx)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)

	_, err = m.AppendHandover(ctx, session.ID, handover("router", "builder"))
	assert.Equal(t, types.ErrSessionExpired, types.GetErrorCode(err))
	_, err = m.Rollback(ctx, session.ID, 1)
	assert.Equal(t, types.ErrSessionExpired, types.GetErrorCode(err))
	_, err = m.AdvancePhase(ctx, session.ID, types.PhaseImplementation)
	assert.Equal(t, types.ErrSessionExpired, types.GetErrorCode(err))
}

func TestManager_SweepCancelsExpired(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()

	expired, err := m.Create(ctx)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	fresh, err := m.Create(ctx)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	m.Sweep(ctx)

	got, err := m.Get(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCancelled, got.Phase)
	last := got.Security.AuditLog[len(got.Security.AuditLog)-1]
	assert.Equal(t, "expired", last.Detail)

	got, err = m.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PhasePlanning, got.Phase)
}

func TestManager_SessionNotFound(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, err := m.Get(context.Background(), "missing")
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
}

func TestScoreHandover(t *testing.T) {
	base := types.HandoverRecord{Notes: goodNotes()}
	assert.GreaterOrEqual(t, scoreHandover(base), 60)

	short := types.HandoverRecord{Notes: "quick note about work"}
	assert.Less(t, scoreHandover(short), 60)

	full := types.HandoverRecord{
		Notes:           goodNotes(),
		ContextSnapshot: []byte(`{"workflow":"wf-1"}`),
	}
	assert.Greater(t, scoreHandover(full), scoreHandover(base))
	assert.LessOrEqual(t, scoreHandover(full), 100)
}
