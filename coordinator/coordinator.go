package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/flowroute/internal/metrics"
	"github.com/BaSui01/flowroute/session"
	"github.com/BaSui01/flowroute/types"
)

// Result is the final outcome of one dispatched request.
type Result struct {
	SessionID string              `json:"session_id,omitempty"`
	Strategy  types.RouteStrategy `json:"strategy"`
	Outcome   Outcome             `json:"outcome"`
	Hops      int                 `json:"hops"`
}

// Coordinator owns the worker registry and executes routing decisions.
// Safe for concurrent use.
type Coordinator struct {
	sessions  *session.Manager
	retry     RetryConfig
	collector *metrics.Collector
	logger    *zap.Logger
	tracer    trace.Tracer

	mu      sync.RWMutex
	workers map[string]Worker
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics records dispatch metrics on the collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Coordinator) {
		c.collector = collector
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(retry RetryConfig) Option {
	return func(c *Coordinator) {
		c.retry = retry
	}
}

// New creates a Coordinator over the session manager.
func New(sessions *session.Manager, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions: sessions,
		retry:    DefaultRetryConfig(),
		logger:   zap.NewNop(),
		workers:  make(map[string]Worker),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "coordinator"))
	c.tracer = otel.Tracer("flowroute/coordinator")
	return c
}

// RegisterWorker adds a worker to the registry, replacing any previous
// worker with the same id.
func (c *Coordinator) RegisterWorker(w Worker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers[w.ID()] = w
	c.logger.Info("worker registered", zap.String("worker", w.ID()))
}

func (c *Coordinator) worker(id string, strategy types.RouteStrategy) (Worker, error) {
	c.mu.RLock()
	w, ok := c.workers[id]
	c.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrWorkerNotFound,
			fmt.Sprintf("worker %q is not registered", id))
	}
	if !w.CanHandle(strategy) {
		return nil, types.NewError(types.ErrWorkerNotFound,
			fmt.Sprintf("worker %q does not accept strategy %s", id, strategy))
	}
	return w, nil
}

// Dispatch executes a routing decision. Direct and emergency strategies run
// a single hop; handover strategies open a session and walk the chain until
// a worker reports a terminal outcome.
func (c *Coordinator) Dispatch(ctx context.Context, task Task) (*Result, error) {
	strategy := task.Decision.Strategy

	ctx, span := c.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("strategy", string(strategy)),
			attribute.String("intent", string(task.Classification.Intent)),
		))
	defer span.End()

	if strategy == types.StrategyEmergency && c.collector != nil {
		c.collector.RecordEscalation()
	}

	var (
		result *Result
		err    error
	)
	if strategy.RequiresSession() {
		result, err = c.dispatchChain(ctx, task)
	} else {
		result, err = c.dispatchDirect(ctx, task)
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if c.collector != nil {
			c.collector.RecordRequest(string(strategy), "error")
		}
		return nil, err
	}
	if c.collector != nil {
		c.collector.RecordRequest(string(strategy), "ok")
	}
	return result, nil
}

func (c *Coordinator) dispatchDirect(ctx context.Context, task Task) (*Result, error) {
	w, err := c.worker(task.Decision.TargetWorker, task.Decision.Strategy)
	if err != nil {
		return nil, err
	}

	outcome, err := c.runHop(ctx, w, task)
	if err != nil {
		return nil, err
	}
	return &Result{
		Strategy: task.Decision.Strategy,
		Outcome:  outcome,
		Hops:     1,
	}, nil
}

func (c *Coordinator) dispatchChain(ctx context.Context, task Task) (*Result, error) {
	w, err := c.worker(task.Decision.TargetWorker, task.Decision.Strategy)
	if err != nil {
		return nil, err
	}

	sess, err := c.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	task.SessionID = sess.ID

	c.logger.Info("chain started",
		zap.String("session_id", sess.ID),
		zap.String("strategy", string(task.Decision.Strategy)),
		zap.String("worker", w.ID()))

	hops := 0
	var previous string

	for {
		select {
		case <-ctx.Done():
			c.abort(sess.ID, "dispatch cancelled")
			return nil, types.NewError(types.ErrDispatchFailed, "dispatch cancelled").
				WithCause(ctx.Err()).WithSession(sess.ID)
		default:
		}

		outcome, err := c.runHop(ctx, w, task)
		if err != nil {
			c.abort(sess.ID, fmt.Sprintf("worker %s failed", w.ID()))
			return nil, types.NewError(types.ErrDispatchFailed,
				fmt.Sprintf("worker %s failed", w.ID())).WithCause(err).WithSession(sess.ID)
		}
		hops++

		if outcome.Terminal {
			if err := c.finish(ctx, sess.ID); err != nil {
				return nil, err
			}
			if c.collector != nil {
				c.collector.RecordChainLength(hops - 1)
			}
			return &Result{
				SessionID: sess.ID,
				Strategy:  task.Decision.Strategy,
				Outcome:   outcome,
				Hops:      hops,
			}, nil
		}

		next := outcome.NextWorker
		if outcome.HandBack {
			next = previous
			if c.collector != nil {
				c.collector.RecordHandBack()
			}
		}
		if next == "" {
			c.abort(sess.ID, "worker returned no next hop")
			return nil, types.NewError(types.ErrDispatchFailed,
				fmt.Sprintf("worker %s returned neither a terminal outcome nor a next worker", w.ID())).
				WithSession(sess.ID)
		}

		nextWorker, err := c.worker(next, task.Decision.Strategy)
		if err != nil {
			c.abort(sess.ID, fmt.Sprintf("next worker %s unavailable", next))
			return nil, err
		}

		rec := types.HandoverRecord{
			FromWorker:      w.ID(),
			ToWorker:        next,
			ContextSnapshot: outcome.Snapshot,
			Notes:           outcome.Notes,
			RiskFlagged:     outcome.RiskFlagged,
			HandBack:        outcome.HandBack,
		}
		err = c.withRetry(ctx, "append_handover", func() error {
			_, err := c.sessions.AppendHandover(ctx, sess.ID, rec)
			return err
		})
		if err != nil {
			c.abort(sess.ID, "handover append failed")
			return nil, err
		}

		previous = w.ID()
		w = nextWorker
		task.Context = outcome.Snapshot
	}
}

// runHop executes one worker hop with tracing and timing.
func (c *Coordinator) runHop(ctx context.Context, w Worker, task Task) (Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "dispatch.hop",
		trace.WithAttributes(attribute.String("worker", w.ID())))
	defer span.End()

	start := time.Now()
	outcome, err := w.Handle(ctx, task)
	status := "ok"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
	}
	if c.collector != nil {
		c.collector.RecordHop(w.ID(), status, time.Since(start))
	}
	c.logger.Debug("hop finished",
		zap.String("worker", w.ID()),
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)))
	return outcome, err
}

// finish walks the session to completion: implementation → validation →
// completed. A chain that never appended a handover is still in planning
// and gets cancelled instead.
func (c *Coordinator) finish(ctx context.Context, sessionID string) error {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Phase == types.PhasePlanning {
		c.abort(sessionID, "terminal outcome before any handover")
		return nil
	}
	if sess.Phase == types.PhaseImplementation {
		if _, err := c.sessions.AdvancePhase(ctx, sessionID, types.PhaseValidation); err != nil {
			return err
		}
	}
	_, err = c.sessions.Complete(ctx, sessionID)
	return err
}

func (c *Coordinator) abort(sessionID, reason string) {
	// Cancellation uses a fresh context so an aborted dispatch still
	// releases its session.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.sessions.Cancel(ctx, sessionID, reason); err != nil {
		c.logger.Warn("session abort failed",
			zap.String("session_id", sessionID),
			zap.String("reason", reason),
			zap.Error(err))
	}
}
