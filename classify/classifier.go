package classify

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/internal/cache"
	"github.com/BaSui01/flowroute/internal/metrics"
	"github.com/BaSui01/flowroute/types"
)

// Classifier scores free text against per-intent vocabularies.
// Safe for concurrent use; results are cached with single-writer fill.
type Classifier struct {
	cfg       func() config.ClassifierConfig
	routing   func() config.RoutingConfig
	cache     *cache.LRU[string, types.ClassificationResult]
	group     singleflight.Group
	collector *metrics.Collector
	logger    *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// WithMetrics records cache hit/miss metrics on the collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Classifier) {
		c.collector = collector
	}
}

// New creates a Classifier. Both config funcs are read lazily so hot reload
// of the input limit and the complexity thresholds takes effect without
// rebuilding the classifier. Callers should purge the cache on threshold
// changes (see PurgeCache).
func New(cfg func() config.ClassifierConfig, routing func() config.RoutingConfig, opts ...Option) *Classifier {
	c := &Classifier{
		cfg:     cfg,
		routing: routing,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "classifier"))
	c.cache = cache.NewLRU[string, types.ClassificationResult](cfg().CacheSize)
	return c
}

// Classify maps text to a ClassificationResult. It never fails: empty or
// unrecognized input yields IntentUnknown with low confidence. Optional
// workflow signals raise the complexity score for large existing workflows.
func (c *Classifier) Classify(text string, signals ...types.WorkflowSignals) types.ClassificationResult {
	var sig *types.WorkflowSignals
	if len(signals) > 0 {
		sig = &signals[0]
	}

	normalized := c.normalize(text)
	key := cacheKey(normalized, sig)

	if cached, ok := c.cache.Get(key); ok {
		if c.collector != nil {
			c.collector.RecordCacheHit("classification")
		}
		return cached
	}
	if c.collector != nil {
		c.collector.RecordCacheMiss("classification")
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		result := c.score(normalized, sig)
		c.cache.Add(key, result)
		return result, nil
	})
	return v.(types.ClassificationResult)
}

// normalize case-folds, trims, and truncates the input. Adversarially long
// input is truncated before scoring, never rejected.
func (c *Classifier) normalize(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	maxLen := c.cfg().MaxInputLen
	if maxLen > 0 && len(normalized) > maxLen {
		// Walk back to a rune boundary so truncation never splits a
		// multi-byte character.
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(normalized[cut]) {
			cut--
		}
		normalized = normalized[:cut]
	}
	return normalized
}

func cacheKey(normalized string, sig *types.WorkflowSignals) string {
	if sig == nil {
		return normalized
	}
	return fmt.Sprintf("%s|n=%d", normalized, sig.NodeCount)
}

// score runs the actual classification over normalized text.
func (c *Classifier) score(normalized string, sig *types.WorkflowSignals) types.ClassificationResult {
	if normalized == "" {
		result := c.buildResult(types.IntentUnknown, 0, nil, normalized, sig)
		result.Reasoning = "empty input"
		return result
	}

	wordCount := len(strings.Fields(normalized))

	var (
		best        types.Intent
		top, second float64
		matched     []string
	)
	for _, intent := range types.Intents() {
		raw, terms := matchVocab(normalized, intentVocab[intent])
		if wordCount > 0 {
			// Length-normalized term frequency: the same matches count for
			// more in a short, focused request.
			raw += raw * float64(len(terms)) / float64(wordCount) * 0.25
		}
		if raw > top {
			second = top
			top, best = raw, intent
			matched = terms
		} else if raw > second {
			second = raw
		}
	}

	if top == 0 {
		result := c.buildResult(types.IntentUnknown, 0, nil, normalized, sig)
		result.Reasoning = "no intent vocabulary matched"
		return result
	}

	// Confidence is the normalized margin between the top two intents.
	confidence := clamp((top-second)/top, 0, 1)
	result := c.buildResult(best, confidence, matched, normalized, sig)
	result.Reasoning = fmt.Sprintf("matched %d terms for %s (margin %.2f)", len(matched), best, confidence)
	return result
}

// buildResult derives complexity, level, and route for a chosen intent.
func (c *Classifier) buildResult(intent types.Intent, confidence float64, keywords []string, normalized string, sig *types.WorkflowSignals) types.ClassificationResult {
	score := baseComplexity[intent]

	if containsAny(normalized, securityVocab) {
		score += securityWeight
	}
	if containsAny(normalized, governanceVocab) {
		score += governanceWeight
	}
	if containsAny(normalized, integrationVocab) {
		score += integrationWeight
	}
	if containsAny(normalized, realtimeVocab) {
		score += realtimeWeight
	}
	if sig != nil && sig.NodeCount > 0 {
		sizeBoost := float64(sig.NodeCount) / workflowSizeDivisor
		if sizeBoost > workflowSizeCap {
			sizeBoost = workflowSizeCap
		}
		score += sizeBoost
	}

	// Threshold reads happen per call so hot reload applies immediately.
	routing := c.routing()
	level := levelFor(score, routing.StandardThreshold, routing.EnterpriseThreshold)

	sort.Strings(keywords)

	return types.ClassificationResult{
		Intent:          intent,
		Confidence:      confidence,
		ComplexityScore: score,
		ComplexityLevel: level,
		Keywords:        keywords,
		SuggestedRoute:  routeFor(level),
	}
}

// levelFor buckets a complexity score: below standard → express, above
// enterprise → enterprise, otherwise standard.
func levelFor(score, standardThreshold, enterpriseThreshold float64) types.ComplexityLevel {
	switch {
	case score < standardThreshold:
		return types.ComplexityExpress
	case score > enterpriseThreshold:
		return types.ComplexityEnterprise
	default:
		return types.ComplexityStandard
	}
}

// routeFor maps a complexity level to its deterministic routing hint.
func routeFor(level types.ComplexityLevel) types.SuggestedRoute {
	switch level {
	case types.ComplexityExpress:
		return types.SuggestDirect
	case types.ComplexityEnterprise:
		return types.SuggestOrchestrator
	default:
		return types.SuggestHandover
	}
}

// PurgeCache drops all cached results. Wire it to config reloads so cached
// complexity levels never outlive a threshold change.
func (c *Classifier) PurgeCache() {
	c.cache.Purge()
}

func matchVocab(text string, vocab []vocabTerm) (float64, []string) {
	var score float64
	var terms []string
	for _, vt := range vocab {
		if strings.Contains(text, vt.term) {
			score += vt.weight
			terms = append(terms, strings.TrimSpace(vt.term))
		}
	}
	return score, terms
}

func containsAny(text string, vocab []string) bool {
	for _, term := range vocab {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
