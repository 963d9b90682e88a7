package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/session"
	"github.com/BaSui01/flowroute/types"
)

// mockWorker is a function-field test double.
type mockWorker struct {
	id        string
	canHandle func(types.RouteStrategy) bool
	handle    func(ctx context.Context, task Task) (Outcome, error)
}

func (m *mockWorker) ID() string {
	return m.id
}

func (m *mockWorker) CanHandle(strategy types.RouteStrategy) bool {
	if m.canHandle == nil {
		return true
	}
	return m.canHandle(strategy)
}

func (m *mockWorker) Handle(ctx context.Context, task Task) (Outcome, error) {
	return m.handle(ctx, task)
}

// chainNotes satisfies handover validation.
const chainNotes = "Built the requested workflow skeleton and mapped all trigger fields. " +
	"Next: validate the node wiring and confirm the output schema is stable."

func newTestCoordinator(t *testing.T, mutate func(*config.SessionConfig)) (*Coordinator, *session.Manager) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg.Session)
	}
	mgr := session.NewManager(
		func() config.SessionConfig { return cfg.Session },
		session.NewMemoryStore(),
	)
	t.Cleanup(func() { _ = mgr.Close() })
	return New(mgr), mgr
}

func directTask(worker string) Task {
	return Task{
		Text: "send the weekly email",
		Classification: types.ClassificationResult{
			Intent:          types.IntentEmailAutomation,
			ComplexityLevel: types.ComplexityExpress,
		},
		Decision: types.RoutingDecision{
			Strategy:     types.StrategyDirect,
			TargetWorker: worker,
		},
	}
}

func chainTask(worker string) Task {
	return Task{
		Text: "integrate the crm with billing",
		Classification: types.ClassificationResult{
			Intent:          types.IntentAPIIntegration,
			ComplexityLevel: types.ComplexityStandard,
		},
		Decision: types.RoutingDecision{
			Strategy:     types.StrategyLight,
			TargetWorker: worker,
		},
	}
}

func TestDispatch_Direct(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	c.RegisterWorker(&mockWorker{
		id: "builder",
		handle: func(_ context.Context, task Task) (Outcome, error) {
			return Outcome{Terminal: true, Notes: "done"}, nil
		},
	})

	result, err := c.Dispatch(context.Background(), directTask("builder"))
	require.NoError(t, err)

	assert.Equal(t, types.StrategyDirect, result.Strategy)
	assert.Equal(t, 1, result.Hops)
	assert.Empty(t, result.SessionID, "direct dispatch must not open a session")
	assert.True(t, result.Outcome.Terminal)
}

func TestDispatch_WorkerNotFound(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	_, err := c.Dispatch(context.Background(), directTask("missing"))
	assert.Equal(t, types.ErrWorkerNotFound, types.GetErrorCode(err))
}

func TestDispatch_WorkerRejectsStrategy(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	c.RegisterWorker(&mockWorker{
		id:        "builder",
		canHandle: func(s types.RouteStrategy) bool { return s == types.StrategyFullChain },
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			return Outcome{Terminal: true}, nil
		},
	})

	_, err := c.Dispatch(context.Background(), directTask("builder"))
	assert.Equal(t, types.ErrWorkerNotFound, types.GetErrorCode(err))
}

func TestDispatch_ChainCompletesSession(t *testing.T) {
	c, mgr := newTestCoordinator(t, nil)
	c.RegisterWorker(&mockWorker{
		id: "builder",
		handle: func(_ context.Context, task Task) (Outcome, error) {
			return Outcome{
				NextWorker: "validator",
				Notes:      chainNotes,
				Snapshot:   json.RawMessage(`{"nodes":3}`),
			}, nil
		},
	})
	c.RegisterWorker(&mockWorker{
		id: "validator",
		handle: func(_ context.Context, task Task) (Outcome, error) {
			// Snapshot from the previous hop is carried in.
			assert.JSONEq(t, `{"nodes":3}`, string(task.Context))
			return Outcome{Terminal: true, Notes: "validated"}, nil
		},
	})

	result, err := c.Dispatch(context.Background(), chainTask("builder"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Hops)
	require.NotEmpty(t, result.SessionID)

	sess, err := mgr.Get(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCompleted, sess.Phase)
	require.Len(t, sess.Chain, 1)
	assert.Equal(t, "builder", sess.Chain[0].FromWorker)
	assert.Equal(t, "validator", sess.Chain[0].ToWorker)
}

func TestDispatch_HandBackReturnsToPreviousWorker(t *testing.T) {
	c, mgr := newTestCoordinator(t, nil)

	builderCalls := 0
	c.RegisterWorker(&mockWorker{
		id: "builder",
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			builderCalls++
			if builderCalls == 1 {
				return Outcome{NextWorker: "validator", Notes: chainNotes}, nil
			}
			return Outcome{Terminal: true, Notes: "fixed and finished"}, nil
		},
	})
	c.RegisterWorker(&mockWorker{
		id: "validator",
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			return Outcome{HandBack: true, Notes: chainNotes}, nil
		},
	})

	result, err := c.Dispatch(context.Background(), chainTask("builder"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Hops)
	assert.Equal(t, 2, builderCalls)

	sess, err := mgr.Get(context.Background(), result.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Chain, 2)
	assert.False(t, sess.Chain[0].HandBack)
	assert.True(t, sess.Chain[1].HandBack)
	assert.Equal(t, "builder", sess.Chain[1].ToWorker)
}

func TestDispatch_WorkerErrorCancelsSession(t *testing.T) {
	c, mgr := newTestCoordinator(t, nil)
	c.RegisterWorker(&mockWorker{
		id: "builder",
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			return Outcome{}, errors.New("boom")
		},
	})

	_, err := c.Dispatch(context.Background(), chainTask("builder"))
	require.Error(t, err)
	assert.Equal(t, types.ErrDispatchFailed, types.GetErrorCode(err))

	sess, err := mgr.Get(context.Background(), sessionIDFromErr(err))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCancelled, sess.Phase)
}

func TestDispatch_ChainLengthEnforced(t *testing.T) {
	c, mgr := newTestCoordinator(t, func(sc *config.SessionConfig) { sc.MaxChainLength = 2 })

	// Workers ping-pong forever; the chain limit must stop them.
	c.RegisterWorker(&mockWorker{
		id: "builder",
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			return Outcome{NextWorker: "validator", Notes: chainNotes}, nil
		},
	})
	c.RegisterWorker(&mockWorker{
		id: "validator",
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			return Outcome{NextWorker: "builder", Notes: chainNotes}, nil
		},
	})

	_, err := c.Dispatch(context.Background(), chainTask("builder"))
	require.Error(t, err)
	assert.Equal(t, types.ErrChainTooLong, types.GetErrorCode(err))

	active, err := mgr.Get(context.Background(), sessionIDFromErr(err))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCancelled, active.Phase)
}

func sessionIDFromErr(err error) string {
	var e *types.Error
	if errors.As(err, &e) {
		return e.SessionID
	}
	return ""
}

func TestDispatch_CancelledContextAbortsChain(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	c.RegisterWorker(&mockWorker{
		id: "builder",
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			cancel()
			return Outcome{NextWorker: "validator", Notes: chainNotes}, nil
		},
	})
	c.RegisterWorker(&mockWorker{
		id: "validator",
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			t.Fatal("hop must not run after cancellation")
			return Outcome{}, nil
		},
	})

	_, err := c.Dispatch(ctx, chainTask("builder"))
	require.Error(t, err)
	assert.Equal(t, types.ErrDispatchFailed, types.GetErrorCode(err))
}

func TestDispatch_NoNextWorkerFails(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	c.RegisterWorker(&mockWorker{
		id: "builder",
		handle: func(_ context.Context, _ Task) (Outcome, error) {
			return Outcome{Notes: chainNotes}, nil
		},
	})

	_, err := c.Dispatch(context.Background(), chainTask("builder"))
	require.Error(t, err)
	assert.Equal(t, types.ErrDispatchFailed, types.GetErrorCode(err))
}

func TestWithRetry(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	t.Run("retries retryable errors", func(t *testing.T) {
		attempts := 0
		err := c.withRetry(context.Background(), "test", func() error {
			attempts++
			if attempts < 3 {
				return types.NewError(types.ErrStoreUnavailable, "flaky").WithRetryable(true)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on non-retryable errors", func(t *testing.T) {
		attempts := 0
		err := c.withRetry(context.Background(), "test", func() error {
			attempts++
			return types.NewError(types.ErrValidation, "bad input")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		err := c.withRetry(context.Background(), "test", func() error {
			attempts++
			return types.NewError(types.ErrStoreUnavailable, "down").WithRetryable(true)
		})
		require.Error(t, err)
		assert.Equal(t, c.retry.MaxAttempts, attempts)
	})
}

func TestRetryConfig_Backoff(t *testing.T) {
	r := DefaultRetryConfig()

	assert.Equal(t, r.InitialBackoff, r.Backoff(0))
	assert.Greater(t, r.Backoff(2), r.Backoff(1))
	assert.Equal(t, r.MaxBackoff, r.Backoff(20))
}
