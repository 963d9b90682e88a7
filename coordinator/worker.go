package coordinator

import (
	"context"
	"encoding/json"

	"github.com/BaSui01/flowroute/types"
)

// Task is the unit of work handed to a worker. Context carries the latest
// snapshot from the previous hop, empty on the first.
type Task struct {
	SessionID       string                     `json:"session_id,omitempty"`
	Text            string                     `json:"text"`
	Classification  types.ClassificationResult `json:"classification"`
	Decision        types.RoutingDecision      `json:"decision"`
	Recommendations types.RecommendationSet    `json:"recommendations"`
	Context         json.RawMessage            `json:"context,omitempty"`
}

// Outcome is what a worker reports after one hop.
type Outcome struct {
	// Snapshot is carried to the next worker and into the handover record.
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	// Notes become the handover notes and must satisfy handover validation.
	Notes string `json:"notes,omitempty"`
	// NextWorker names the next hop. Ignored when Terminal is set.
	NextWorker string `json:"next_worker,omitempty"`
	// HandBack marks a reversed-direction handover.
	HandBack bool `json:"hand_back,omitempty"`
	// Terminal ends the chain successfully.
	Terminal bool `json:"terminal,omitempty"`
	// RiskFlagged marks the handover as risky; notes must cover remediation.
	RiskFlagged bool `json:"risk_flagged,omitempty"`
}

// Worker executes one hop of a routed request.
type Worker interface {
	// ID is the stable worker identifier routing decisions refer to.
	ID() string

	// CanHandle reports whether the worker accepts the given strategy.
	CanHandle(strategy types.RouteStrategy) bool

	// Handle performs the work. Implementations must honor ctx cancellation.
	Handle(ctx context.Context, task Task) (Outcome, error)
}
