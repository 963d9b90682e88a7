package types

import "time"

// Intent is the inferred category of automation a request asks for.
type Intent string

const (
	IntentEmailAutomation Intent = "email_automation"
	IntentAIWorkflow      Intent = "ai_workflow"
	IntentDataProcessing  Intent = "data_processing"
	IntentAPIIntegration  Intent = "api_integration"
	IntentScheduling      Intent = "scheduling"
	IntentNotification    Intent = "notification"
	IntentUnknown         Intent = "unknown"
)

// Intents lists every known intent in scoring order.
// IntentUnknown is the fallback and never scored directly.
func Intents() []Intent {
	return []Intent{
		IntentEmailAutomation,
		IntentAIWorkflow,
		IntentDataProcessing,
		IntentAPIIntegration,
		IntentScheduling,
		IntentNotification,
	}
}

// ComplexityLevel buckets a complexity score into a routing tier.
type ComplexityLevel string

const (
	ComplexityExpress    ComplexityLevel = "express"
	ComplexityStandard   ComplexityLevel = "standard"
	ComplexityEnterprise ComplexityLevel = "enterprise"
)

// SuggestedRoute is the classifier's deterministic routing hint.
type SuggestedRoute string

const (
	SuggestDirect       SuggestedRoute = "direct"
	SuggestHandover     SuggestedRoute = "handover_eligible"
	SuggestOrchestrator SuggestedRoute = "orchestrator_required"
)

// RouteStrategy is the routing engine's final strategy choice.
type RouteStrategy string

const (
	StrategyDirect    RouteStrategy = "direct"
	StrategyLight     RouteStrategy = "lightweight_handover"
	StrategyFullChain RouteStrategy = "full_chain"
	StrategyEmergency RouteStrategy = "emergency"
)

// RequiresSession reports whether the strategy needs a persisted session.
func (s RouteStrategy) RequiresSession() bool {
	return s == StrategyLight || s == StrategyFullChain
}

// ClassificationResult is the immutable output of the classifier.
type ClassificationResult struct {
	Intent          Intent          `json:"intent"`
	Confidence      float64         `json:"confidence"`
	ComplexityScore float64         `json:"complexity_score"`
	ComplexityLevel ComplexityLevel `json:"complexity_level"`
	Keywords        []string        `json:"keywords,omitempty"`
	SuggestedRoute  SuggestedRoute  `json:"suggested_route"`
	Reasoning       string          `json:"reasoning,omitempty"`
}

// NodeCategory groups building blocks by function.
type NodeCategory string

const (
	CategoryTrigger       NodeCategory = "trigger"
	CategoryAction        NodeCategory = "action"
	CategoryTransform     NodeCategory = "transform"
	CategoryAI            NodeCategory = "ai"
	CategoryErrorHandling NodeCategory = "error_handling"
	CategoryIntegration   NodeCategory = "integration"
)

// Recommendation is a single ranked building-block suggestion.
type Recommendation struct {
	NodeID           string       `json:"node_id"`
	Category         NodeCategory `json:"category"`
	Confidence       float64      `json:"confidence"`
	Reasoning        string       `json:"reasoning,omitempty"`
	Alternatives     []string     `json:"alternatives,omitempty"`
	PerformanceScore int          `json:"performance_score"`
	CommunityRating  int          `json:"community_rating"`
}

// WorkflowPattern is a known node combination with a historical track record.
type WorkflowPattern struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Intent      Intent   `json:"intent"`
	Nodes       []string `json:"nodes"`
	SuccessRate float64  `json:"success_rate"`
}

// RecommendationSet aggregates everything the recommender returns for one
// request. All slices may be empty but are always well-formed.
type RecommendationSet struct {
	Primary  []Recommendation  `json:"primary"`
	Patterns []WorkflowPattern `json:"patterns"`
	Warnings []string          `json:"warnings"`
}

// RoutingDecision is derived per request and never persisted.
type RoutingDecision struct {
	Strategy          RouteStrategy `json:"strategy"`
	TargetWorker      string        `json:"target_worker"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Rationale         string        `json:"rationale"`
}

// WorkflowSignals are optional signals about an existing target workflow.
type WorkflowSignals struct {
	NodeCount          int      `json:"node_count"`
	IntegrationCount   int      `json:"integration_count"`
	HasCustomCode      bool     `json:"has_custom_code"`
	SecurityRisk       bool     `json:"security_risk"`
	ComplianceRequired bool     `json:"compliance_required"`
	ExistingNodes      []string `json:"existing_nodes,omitempty"`
}

// Preferences are user-level overrides applied at routing time.
type Preferences struct {
	PerformanceOverEaseOfUse bool `json:"performance_over_ease_of_use"`
	DisableHandovers         bool `json:"disable_handovers"`
	ForceCollaborative       bool `json:"force_collaborative"`
}
