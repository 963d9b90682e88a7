package types

import (
	"encoding/json"
	"time"
)

// SessionPhase is the lifecycle phase of a handover session.
type SessionPhase string

const (
	PhasePlanning       SessionPhase = "planning"
	PhaseImplementation SessionPhase = "implementation"
	PhaseValidation     SessionPhase = "validation"
	PhaseCompleted      SessionPhase = "completed"
	PhaseCancelled      SessionPhase = "cancelled"
)

// Terminal reports whether the phase permits no further transitions.
func (p SessionPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// CanTransitionTo reports whether the phase may move to next.
// Forward order is planning → implementation → validation → completed;
// any non-terminal phase may move to cancelled.
func (p SessionPhase) CanTransitionTo(next SessionPhase) bool {
	if p.Terminal() {
		return false
	}
	if next == PhaseCancelled {
		return true
	}
	switch p {
	case PhasePlanning:
		return next == PhaseImplementation
	case PhaseImplementation:
		return next == PhaseValidation
	case PhaseValidation:
		return next == PhaseCompleted
	}
	return false
}

// HandoverRecord is one worker-to-worker transition in a session chain.
// Records are append-only; corrections happen via new records, never edits.
type HandoverRecord struct {
	ID              string          `json:"id"`
	FromWorker      string          `json:"from_worker"`
	ToWorker        string          `json:"to_worker"`
	ContextSnapshot json.RawMessage `json:"context_snapshot,omitempty"`
	Notes           string          `json:"notes"`
	QualityScore    int             `json:"quality_score"`
	RiskFlagged     bool            `json:"risk_flagged,omitempty"`
	HandBack        bool            `json:"hand_back,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// AuditEntry is one line of a session's immutable audit trail.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// SecurityContext carries a session's permissions, its signed token, and the
// audit trail. The audit log survives rollback and cancellation.
type SecurityContext struct {
	Permissions []string     `json:"permissions,omitempty"`
	Token       string       `json:"token,omitempty"`
	AuditLog    []AuditEntry `json:"audit_log,omitempty"`
}

// Session is the persisted record of a multi-hop handover chain.
// It is owned by the session manager and mutated only through append-only
// handover operations.
type Session struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Phase     SessionPhase     `json:"phase"`
	Chain     []HandoverRecord `json:"chain"`
	Security  SecurityContext  `json:"security"`
}

// Expired reports whether the session passed its absolute expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ActiveWorker returns the worker currently holding the task: the ToWorker
// of the chain's tail, or empty while the chain is empty.
func (s *Session) ActiveWorker() string {
	if len(s.Chain) == 0 {
		return ""
	}
	return s.Chain[len(s.Chain)-1].ToWorker
}

// Clone returns a deep copy so stores and callers never alias manager state.
func (s *Session) Clone() *Session {
	data, err := json.Marshal(s)
	if err != nil {
		return s
	}
	var copied Session
	if err := json.Unmarshal(data, &copied); err != nil {
		return s
	}
	return &copied
}
