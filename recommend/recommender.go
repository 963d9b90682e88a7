package recommend

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/internal/cache"
	"github.com/BaSui01/flowroute/internal/metrics"
	"github.com/BaSui01/flowroute/types"
)

const (
	// Boost per matched candidate keyword and its cap.
	keywordBoost    = 0.05
	keywordBoostCap = 0.15

	// Nodes already present in the workflow are down-weighted, not excluded.
	existingNodeFactor = 0.6

	// Learned adjustments stay within this band around the base confidence.
	learnStep = 0.02
	learnCap  = 0.1
)

// Request carries everything the recommender considers for one call.
type Request struct {
	Intent        types.Intent
	Text          string
	ExistingNodes []string
	Preferences   types.Preferences
}

// Recommender produces ranked building-block suggestions per intent.
// Safe for concurrent use. Recommend never fails.
type Recommender struct {
	cfg       func() config.RecommenderConfig
	cache     *cache.LRU[string, types.RecommendationSet]
	collector *metrics.Collector
	logger    *zap.Logger

	mu     sync.RWMutex
	boosts map[string]float64 // intent/node → learned confidence delta

	learnCh   chan Feedback
	seen      map[string]struct{}
	seenOrder []string
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recommender) {
		r.logger = logger
	}
}

// WithMetrics records cache hit/miss metrics on the collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(r *Recommender) {
		r.collector = collector
	}
}

// New creates a Recommender and starts its learning worker.
// Callers own the lifecycle: Close stops the worker.
func New(cfg func() config.RecommenderConfig, opts ...Option) *Recommender {
	r := &Recommender{
		cfg:    cfg,
		logger: zap.NewNop(),
		boosts: make(map[string]float64),
		seen:   make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "recommender"))

	c := cfg()
	r.cache = cache.NewLRU[string, types.RecommendationSet](c.CacheSize)
	queueSize := c.LearnQueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	r.learnCh = make(chan Feedback, queueSize)

	go r.learnLoop()
	return r
}

// Recommend returns ranked suggestions, matching patterns, and structural
// warnings for a classified request. It never returns an error: an unknown
// intent yields an empty but well-formed set.
func (r *Recommender) Recommend(req Request) types.RecommendationSet {
	key := r.cacheKey(req)
	if cached, ok := r.cache.Get(key); ok {
		if r.collector != nil {
			r.collector.RecordCacheHit("recommendation")
		}
		return cached
	}
	if r.collector != nil {
		r.collector.RecordCacheMiss("recommendation")
	}

	set := r.build(req)
	r.cache.Add(key, set)
	return set
}

func (r *Recommender) build(req Request) types.RecommendationSet {
	text := strings.ToLower(req.Text)
	existing := make(map[string]bool, len(req.ExistingNodes))
	for _, n := range req.ExistingNodes {
		existing[n] = true
	}

	maxAlternatives := r.cfg().MaxAlternatives

	primary := []types.Recommendation{}
	for _, cand := range catalog[req.Intent] {
		conf := cand.base

		boosted := 0.0
		for _, kw := range cand.keywords {
			if strings.Contains(text, kw) {
				boosted += keywordBoost
			}
		}
		if boosted > keywordBoostCap {
			boosted = keywordBoostCap
		}
		conf += boosted

		conf += r.learnedBoost(req.Intent, cand.nodeID)

		reasoning := fmt.Sprintf("catalog match for %s", req.Intent)
		if boosted > 0 {
			reasoning = "request keywords match node capabilities"
		}
		if existing[cand.nodeID] {
			conf *= existingNodeFactor
			reasoning = "already present in workflow; ranked lower"
		}

		alternatives := cand.alternatives
		if maxAlternatives >= 0 && len(alternatives) > maxAlternatives {
			alternatives = alternatives[:maxAlternatives]
		}

		primary = append(primary, types.Recommendation{
			NodeID:           cand.nodeID,
			Category:         cand.category,
			Confidence:       clamp01(conf),
			Reasoning:        reasoning,
			Alternatives:     alternatives,
			PerformanceScore: cand.performance,
			CommunityRating:  cand.community,
		})
	}

	rank(primary, req.Preferences.PerformanceOverEaseOfUse)

	return types.RecommendationSet{
		Primary:  primary,
		Patterns: patternsFor(req.Intent),
		Warnings: warningsFor(req, existing),
	}
}

// rank orders recommendations best-first. The node id is the final tiebreak
// so equal scores still rank deterministically.
func rank(recs []types.Recommendation, performanceFirst bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if performanceFirst && a.PerformanceScore != b.PerformanceScore {
			return a.PerformanceScore > b.PerformanceScore
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.NodeID < b.NodeID
	})
}

// warningsFor flags structural gaps in the target workflow: API workflows
// without error handling, AI requests against workflows with no AI node, and
// credential material in the request text.
func warningsFor(req Request, existing map[string]bool) []string {
	warnings := []string{}

	existingHas := func(cat types.NodeCategory) bool {
		for node := range existing {
			if nodeCategory[node] == cat {
				return true
			}
		}
		return false
	}

	if req.Intent == types.IntentAPIIntegration && !existingHas(types.CategoryErrorHandling) {
		warnings = append(warnings, "no error handling node in the workflow; external API calls will fail silently")
	}
	if req.Intent == types.IntentAIWorkflow && len(existing) > 0 && !existingHas(types.CategoryAI) {
		warnings = append(warnings, "existing workflow has no AI node; add one before extending it with AI steps")
	}

	text := strings.ToLower(req.Text)
	for _, term := range []string{"password", "credential", "secret", "api key"} {
		if strings.Contains(text, term) {
			warnings = append(warnings, "request mentions credential material; use a credential store instead of inline values")
			break
		}
	}

	return warnings
}

func (r *Recommender) learnedBoost(intent types.Intent, nodeID string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boosts[boostKey(intent, nodeID)]
}

func boostKey(intent types.Intent, nodeID string) string {
	return string(intent) + "/" + nodeID
}

func (r *Recommender) cacheKey(req Request) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%v|%v", req.Intent, strings.ToLower(strings.TrimSpace(req.Text)),
		req.ExistingNodes, req.Preferences.PerformanceOverEaseOfUse)
	return fmt.Sprintf("%x", h.Sum64())
}

// PurgeCache drops all cached recommendation sets.
func (r *Recommender) PurgeCache() {
	r.cache.Purge()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
