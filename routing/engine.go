package routing

import (
	"go.uber.org/zap"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/internal/metrics"
	"github.com/BaSui01/flowroute/types"
)

// Engine decides the routing strategy for classified requests.
// Safe for concurrent use.
type Engine struct {
	flags     func() config.RoutingConfig
	collector *metrics.Collector
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records routing decisions on the collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Engine) {
		e.collector = collector
	}
}

// New creates an Engine. The config func is read on every decision so
// threshold and feature-switch changes apply without a restart.
func New(flags func() config.RoutingConfig, opts ...Option) *Engine {
	e := &Engine{
		flags:  flags,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "routing"))
	return e
}

// Route applies the decision table. Precedence, highest first:
//
//  1. a flagged security risk always routes to the emergency worker
//  2. enterprise complexity or a compliance requirement runs the full chain
//  3. standard complexity escalates on integration count or custom code
//  4. everything else dispatches directly
//
// Disabling handovers downgrades lightweight handovers to direct but never
// overrides the security or compliance escalations above it. Forcing
// collaborative mode upgrades non-emergency decisions to the full chain.
func (e *Engine) Route(result types.ClassificationResult, signals *types.WorkflowSignals, prefs *types.Preferences) types.RoutingDecision {
	flags := e.flags()
	decision := e.decide(result, signals, prefs, flags)

	if e.collector != nil {
		e.collector.RecordDecision(string(decision.Strategy), string(result.Intent))
	}
	e.logger.Debug("routing decision",
		zap.String("intent", string(result.Intent)),
		zap.String("level", string(result.ComplexityLevel)),
		zap.String("strategy", string(decision.Strategy)),
		zap.String("worker", decision.TargetWorker))
	return decision
}

func (e *Engine) decide(result types.ClassificationResult, signals *types.WorkflowSignals, prefs *types.Preferences, flags config.RoutingConfig) types.RoutingDecision {
	if signals != nil && signals.SecurityRisk {
		return types.RoutingDecision{
			Strategy:          types.StrategyEmergency,
			TargetWorker:      flags.EmergencyWorker,
			EstimatedDuration: flags.HopEstimate,
			Rationale:         "security risk flagged; bypassing normal routing",
		}
	}

	if result.ComplexityLevel == types.ComplexityEnterprise {
		return e.fullChain(flags, "enterprise complexity requires orchestration")
	}
	if signals != nil && signals.ComplianceRequired {
		return e.fullChain(flags, "compliance requirement requires orchestration")
	}

	forceCollaborative := flags.ForceCollaborative || (prefs != nil && prefs.ForceCollaborative)
	if forceCollaborative {
		return e.fullChain(flags, "collaborative mode forced")
	}

	handoversAllowed := flags.HandoversEnabled && (prefs == nil || !prefs.DisableHandovers)

	if result.ComplexityLevel == types.ComplexityStandard && signals != nil {
		if signals.IntegrationCount > flags.FullChainIntegrationThreshold {
			if handoversAllowed {
				return e.fullChain(flags, "integration count exceeds full-chain threshold")
			}
		} else if signals.IntegrationCount > flags.IntegrationThreshold || signals.HasCustomCode {
			if handoversAllowed {
				return types.RoutingDecision{
					Strategy:          types.StrategyLight,
					TargetWorker:      e.directWorker(result.Intent, flags),
					EstimatedDuration: 2 * flags.HopEstimate,
					Rationale:         "standard complexity with integrations or custom code",
				}
			}
		}
	}

	return types.RoutingDecision{
		Strategy:          types.StrategyDirect,
		TargetWorker:      e.directWorker(result.Intent, flags),
		EstimatedDuration: flags.HopEstimate,
		Rationale:         "within direct handling capacity",
	}
}

func (e *Engine) fullChain(flags config.RoutingConfig, rationale string) types.RoutingDecision {
	return types.RoutingDecision{
		Strategy:          types.StrategyFullChain,
		TargetWorker:      flags.OrchestratorWorker,
		EstimatedDuration: 3 * flags.HopEstimate,
		Rationale:         rationale,
	}
}

// directWorker picks the specialist for direct dispatch.
func (e *Engine) directWorker(intent types.Intent, flags config.RoutingConfig) string {
	if intent == types.IntentAIWorkflow {
		return flags.AISpecialistWorker
	}
	return flags.BuilderWorker
}
