package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/internal/metrics"
	"github.com/BaSui01/flowroute/types"
)

// lockStripes is the number of mutexes mutations are striped over.
const lockStripes = 64

// Manager owns session lifecycle. All mutations for one session serialize on
// a striped lock, so each Save the store receives is a complete, consistent
// snapshot: rollback and chain appends are atomic at the store boundary.
type Manager struct {
	cfg       func() config.SessionConfig
	store     Store
	tokens    *TokenIssuer
	collector *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time

	locks    [lockStripes]sync.Mutex
	limiters sync.Map // session id → *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records session operations on the collector.
func WithMetrics(collector *metrics.Collector) ManagerOption {
	return func(m *Manager) {
		m.collector = collector
	}
}

// WithClock overrides the time source, used by expiry tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager over the given store. The config func is read
// per operation so validation thresholds follow hot reload.
func NewManager(cfg func() config.SessionConfig, store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:    cfg,
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "session"))
	m.tokens = NewTokenIssuer(cfg().TokenSecret)
	return m
}

func (m *Manager) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.locks[h.Sum32()%lockStripes]
}

func (m *Manager) record(op, status string) {
	if m.collector != nil {
		m.collector.RecordSessionOp(op, status)
	}
}

// Create starts a new session in the planning phase with an absolute expiry.
func (m *Manager) Create(ctx context.Context) (*types.Session, error) {
	now := m.now()
	session := &types.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg().Timeout),
		Phase:     types.PhasePlanning,
		Chain:     []types.HandoverRecord{},
		Security: types.SecurityContext{
			AuditLog: []types.AuditEntry{
				{Timestamp: now, Action: "created"},
			},
		},
	}

	token, err := m.tokens.Issue(session.ID, session.ExpiresAt)
	if err != nil {
		m.record("create", "error")
		return nil, err
	}
	session.Security.Token = token

	if err := m.store.Save(ctx, session); err != nil {
		m.record("create", "error")
		return nil, err
	}
	m.record("create", "ok")
	m.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.Time("expires_at", session.ExpiresAt))
	return session, nil
}

// Get returns the session regardless of phase or expiry. Callers that need
// a live session use the mutation operations, which enforce both.
func (m *Manager) Get(ctx context.Context, id string) (*types.Session, error) {
	return m.store.Get(ctx, id)
}

// VerifyToken validates a session token and returns the session it names.
func (m *Manager) VerifyToken(ctx context.Context, token string) (*types.Session, error) {
	id, err := m.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return m.store.Get(ctx, id)
}

// AppendHandover validates and appends one handover record. The first record
// moves the session from planning to implementation. Handovers below the
// quality cutoff, past the chain limit, or on expired or terminal sessions
// are rejected and leave the session untouched.
func (m *Manager) AppendHandover(ctx context.Context, sessionID string, rec types.HandoverRecord) (*types.Session, error) {
	lock := m.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.loadMutable(ctx, sessionID)
	if err != nil {
		m.record("handover", "error")
		return nil, err
	}

	cfg := m.cfg()
	if len(session.Chain) >= cfg.MaxChainLength {
		m.record("handover", "rejected")
		return nil, types.NewError(types.ErrChainTooLong,
			fmt.Sprintf("chain already has %d handovers", len(session.Chain))).WithSession(sessionID)
	}
	if active := session.ActiveWorker(); active != "" && rec.FromWorker != active {
		m.record("handover", "rejected")
		return nil, types.NewError(types.ErrValidation,
			fmt.Sprintf("handover from %q but %q holds the task", rec.FromWorker, active)).WithSession(sessionID)
	}
	if len(rec.Notes) < cfg.MinNotesLen {
		m.record("handover", "rejected")
		return nil, types.NewError(types.ErrValidation,
			fmt.Sprintf("handover notes shorter than %d characters", cfg.MinNotesLen)).WithSession(sessionID)
	}
	if rec.RiskFlagged && !mentionsRemediation(rec.Notes) {
		m.record("handover", "rejected")
		return nil, types.NewError(types.ErrValidation,
			"risk-flagged handover notes must describe remediation").WithSession(sessionID)
	}

	rec.QualityScore = scoreHandover(rec)
	if rec.QualityScore < cfg.QualityCutoff {
		m.record("handover", "rejected")
		return nil, types.NewError(types.ErrValidation,
			fmt.Sprintf("handover quality %d below cutoff %d", rec.QualityScore, cfg.QualityCutoff)).WithSession(sessionID)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Timestamp = m.now()

	session.Chain = append(session.Chain, rec)
	if session.Phase == types.PhasePlanning {
		session.Phase = types.PhaseImplementation
	}
	session.Security.AuditLog = append(session.Security.AuditLog, types.AuditEntry{
		Timestamp: rec.Timestamp,
		Action:    "handover",
		Detail:    fmt.Sprintf("%s → %s (quality %d)", rec.FromWorker, rec.ToWorker, rec.QualityScore),
	})

	if err := m.store.Save(ctx, session); err != nil {
		m.record("handover", "error")
		return nil, err
	}
	m.record("handover", "ok")
	m.logger.Debug("handover appended",
		zap.String("session_id", sessionID),
		zap.String("from", rec.FromWorker),
		zap.String("to", rec.ToWorker),
		zap.Int("quality", rec.QualityScore),
		zap.Int("chain_len", len(session.Chain)))
	return session, nil
}

// AdvancePhase moves the session along the lifecycle state machine.
func (m *Manager) AdvancePhase(ctx context.Context, sessionID string, next types.SessionPhase) (*types.Session, error) {
	lock := m.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.loadMutable(ctx, sessionID)
	if err != nil {
		m.record("advance", "error")
		return nil, err
	}

	if !session.Phase.CanTransitionTo(next) {
		m.record("advance", "rejected")
		return nil, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot move from %s to %s", session.Phase, next)).WithSession(sessionID)
	}

	prev := session.Phase
	session.Phase = next
	session.Security.AuditLog = append(session.Security.AuditLog, types.AuditEntry{
		Timestamp: m.now(),
		Action:    "phase_change",
		Detail:    fmt.Sprintf("%s → %s", prev, next),
	})

	if err := m.store.Save(ctx, session); err != nil {
		m.record("advance", "error")
		return nil, err
	}
	if next.Terminal() {
		m.releaseLimiter(sessionID)
	}
	m.record("advance", "ok")
	return session, nil
}

// Complete finishes a session. Only valid from the validation phase.
func (m *Manager) Complete(ctx context.Context, sessionID string) (*types.Session, error) {
	return m.AdvancePhase(ctx, sessionID, types.PhaseCompleted)
}

// Cancel aborts a session from any non-terminal phase, recording the reason.
func (m *Manager) Cancel(ctx context.Context, sessionID, reason string) (*types.Session, error) {
	lock := m.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.cancelLocked(ctx, sessionID, reason)
}

func (m *Manager) cancelLocked(ctx context.Context, sessionID, reason string) (*types.Session, error) {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		m.record("cancel", "error")
		return nil, err
	}
	if session.Phase.Terminal() {
		m.record("cancel", "rejected")
		return nil, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("session already %s", session.Phase)).WithSession(sessionID)
	}

	session.Phase = types.PhaseCancelled
	session.Security.AuditLog = append(session.Security.AuditLog, types.AuditEntry{
		Timestamp: m.now(),
		Action:    "cancelled",
		Detail:    reason,
	})

	if err := m.store.Save(ctx, session); err != nil {
		m.record("cancel", "error")
		return nil, err
	}
	m.releaseLimiter(sessionID)
	m.record("cancel", "ok")
	m.logger.Info("session cancelled",
		zap.String("session_id", sessionID),
		zap.String("reason", reason))
	return session, nil
}

// Rollback undoes the last steps handovers in one atomic store write.
// Removed records stay visible in the audit log. Rollback is bounded by
// MaxRollbackSteps and rate-limited per session.
func (m *Manager) Rollback(ctx context.Context, sessionID string, steps int) (*types.Session, error) {
	lock := m.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.loadMutable(ctx, sessionID)
	if err != nil {
		m.record("rollback", "error")
		return nil, err
	}

	cfg := m.cfg()
	if steps <= 0 || steps > cfg.MaxRollbackSteps {
		m.record("rollback", "rejected")
		return nil, types.NewError(types.ErrRollbackBounds,
			fmt.Sprintf("steps must be in [1,%d]", cfg.MaxRollbackSteps)).WithSession(sessionID)
	}
	if steps > len(session.Chain) {
		m.record("rollback", "rejected")
		return nil, types.NewError(types.ErrRollbackBounds,
			fmt.Sprintf("cannot undo %d of %d handovers", steps, len(session.Chain))).WithSession(sessionID)
	}
	if !m.limiter(sessionID, cfg).Allow() {
		m.record("rollback", "rejected")
		return nil, types.NewError(types.ErrRateLimited, "rollback rate limit exceeded").
			WithRetryable(true).WithSession(sessionID)
	}

	now := m.now()
	removed := session.Chain[len(session.Chain)-steps:]
	for _, rec := range removed {
		session.Security.AuditLog = append(session.Security.AuditLog, types.AuditEntry{
			Timestamp: now,
			Action:    "rollback_removed",
			Detail:    fmt.Sprintf("handover %s (%s → %s)", rec.ID, rec.FromWorker, rec.ToWorker),
		})
	}
	session.Chain = session.Chain[:len(session.Chain)-steps]
	if len(session.Chain) == 0 {
		session.Phase = types.PhasePlanning
	} else if session.Phase == types.PhaseValidation {
		session.Phase = types.PhaseImplementation
	}
	session.Security.AuditLog = append(session.Security.AuditLog, types.AuditEntry{
		Timestamp: now,
		Action:    "rollback",
		Detail:    fmt.Sprintf("undid %d handovers", steps),
	})

	if err := m.store.Save(ctx, session); err != nil {
		m.record("rollback", "error")
		return nil, err
	}
	m.record("rollback", "ok")
	m.logger.Info("session rolled back",
		zap.String("session_id", sessionID),
		zap.Int("steps", steps),
		zap.Int("chain_len", len(session.Chain)))
	return session, nil
}

func (m *Manager) limiter(sessionID string, cfg config.SessionConfig) *rate.Limiter {
	if v, ok := m.limiters.Load(sessionID); ok {
		return v.(*rate.Limiter)
	}
	perMinute := cfg.RollbackPerMinute
	if perMinute <= 0 {
		perMinute = 1
	}
	burst := cfg.RollbackBurst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	actual, _ := m.limiters.LoadOrStore(sessionID, limiter)
	return actual.(*rate.Limiter)
}

// releaseLimiter drops the per-session rate limiter once the session is
// terminal. Limiters are created lazily, so leaving this out would leak one
// entry per rolled-back session for the life of the process.
func (m *Manager) releaseLimiter(sessionID string) {
	m.limiters.Delete(sessionID)
}

// loadMutable loads a session and rejects mutation of terminal or expired
// sessions. Callers hold the stripe lock.
func (m *Manager) loadMutable(ctx context.Context, sessionID string) (*types.Session, error) {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase.Terminal() {
		return nil, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("session is %s", session.Phase)).WithSession(sessionID)
	}
	if session.Expired(m.now()) {
		return nil, types.NewError(types.ErrSessionExpired, "session expired").WithSession(sessionID)
	}
	return session, nil
}

// Start launches the expiry sweeper. It cancels expired sessions every
// SweepInterval until ctx is done or Close is called.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg().SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

// Sweep cancels all expired active sessions and updates the active gauge.
func (m *Manager) Sweep(ctx context.Context) {
	active, err := m.store.ListActive(ctx)
	if err != nil {
		m.logger.Warn("sweep list failed", zap.Error(err))
		return
	}

	now := m.now()
	remaining := 0
	for _, session := range active {
		if !session.Expired(now) {
			remaining++
			continue
		}
		lock := m.lock(session.ID)
		lock.Lock()
		_, err := m.cancelLocked(ctx, session.ID, "expired")
		lock.Unlock()
		if err != nil && types.GetErrorCode(err) != types.ErrInvalidTransition {
			m.logger.Warn("sweep cancel failed",
				zap.String("session_id", session.ID), zap.Error(err))
			remaining++
			continue
		}
	}
	if m.collector != nil {
		m.collector.SetActiveSessions(remaining)
	}
}

// Close stops the sweeper and closes the store.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
	return m.store.Close()
}

// scoreHandover rates a handover 0-100: up to 40 points for substantive
// notes, 30 for next-step guidance, 30 for an attached context snapshot.
func scoreHandover(rec types.HandoverRecord) int {
	score := len(rec.Notes) / 4
	if score > 40 {
		score = 40
	}
	if mentionsNextSteps(rec.Notes) {
		score += 30
	}
	if len(rec.ContextSnapshot) > 0 {
		score += 30
	}
	if score > 100 {
		score = 100
	}
	return score
}

func mentionsNextSteps(notes string) bool {
	lower := strings.ToLower(notes)
	for _, term := range []string{"next", "todo", "remaining", "follow up", "follow-up"} {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func mentionsRemediation(notes string) bool {
	lower := strings.ToLower(notes)
	for _, term := range []string{"remediat", "mitigat", "rollback", "revert", "fix"} {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
