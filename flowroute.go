// Package flowroute routes free-text automation requests: it classifies the
// request, recommends workflow building blocks, picks a routing strategy,
// and dispatches to registered workers, driving handover sessions where the
// strategy demands them.
package flowroute

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowroute/classify"
	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/coordinator"
	"github.com/BaSui01/flowroute/internal/metrics"
	"github.com/BaSui01/flowroute/recommend"
	"github.com/BaSui01/flowroute/routing"
	"github.com/BaSui01/flowroute/session"
	"github.com/BaSui01/flowroute/types"
)

// Request is one free-text automation request with optional context.
type Request struct {
	// Text is the free-text request. Required.
	Text string `json:"text"`
	// Signals describe the target workflow, when one exists.
	Signals *types.WorkflowSignals `json:"signals,omitempty"`
	// Preferences are user-level routing overrides.
	Preferences *types.Preferences `json:"preferences,omitempty"`
}

// Response aggregates everything derived for one request. Result is set
// only by Handle; Analyze leaves it nil.
type Response struct {
	Classification  types.ClassificationResult `json:"classification"`
	Recommendations types.RecommendationSet    `json:"recommendations"`
	Decision        types.RoutingDecision      `json:"decision"`
	Result          *coordinator.Result        `json:"result,omitempty"`
}

// Engine wires the classifier, recommender, routing engine, session manager,
// and coordinator behind one entry point.
type Engine struct {
	cfg         *config.Manager
	classifier  *classify.Classifier
	recommender *recommend.Recommender
	router      *routing.Engine
	sessions    *session.Manager
	coordinator *coordinator.Coordinator
	collector   *metrics.Collector
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	registry  prometheus.Registerer
	collector *metrics.Collector
}

// WithLogger sets the logger shared by all components.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry registers metrics on the given registerer instead of the
// prometheus default. Tests pass a fresh registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithCollector shares an existing metrics collector instead of creating one.
func WithCollector(collector *metrics.Collector) Option {
	return func(o *options) {
		o.collector = collector
	}
}

// New builds an Engine over the live configuration and the session store.
// Config reloads purge the classification and recommendation caches so no
// cached result outlives a threshold change.
func New(cfg *config.Manager, store session.Store, opts ...Option) *Engine {
	o := &options{
		logger:   zap.NewNop(),
		registry: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(o)
	}

	collector := o.collector
	if collector == nil && cfg.Config().Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Config().Metrics.Namespace, o.registry, o.logger)
	}

	classifier := classify.New(cfg.Classifier, cfg.Routing,
		classify.WithLogger(o.logger), classify.WithMetrics(collector))
	recommender := recommend.New(cfg.Recommender,
		recommend.WithLogger(o.logger), recommend.WithMetrics(collector))
	router := routing.New(cfg.Routing,
		routing.WithLogger(o.logger), routing.WithMetrics(collector))
	sessions := session.NewManager(cfg.Session, store,
		session.WithLogger(o.logger), session.WithMetrics(collector))
	coord := coordinator.New(sessions,
		coordinator.WithLogger(o.logger), coordinator.WithMetrics(collector))

	cfg.OnReload(func(_, _ *config.Config) {
		classifier.PurgeCache()
		recommender.PurgeCache()
	})

	return &Engine{
		cfg:         cfg,
		classifier:  classifier,
		recommender: recommender,
		router:      router,
		sessions:    sessions,
		coordinator: coord,
		collector:   collector,
		logger:      o.logger.With(zap.String("component", "engine")),
	}
}

// RegisterWorker adds a worker to the dispatch registry.
func (e *Engine) RegisterWorker(w coordinator.Worker) {
	e.coordinator.RegisterWorker(w)
}

// Sessions exposes the session manager for direct lifecycle operations.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Analyze classifies, recommends, and routes without dispatching.
// Classification and recommendation run concurrently; the recommender
// starts as soon as the intent is known.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Response, error) {
	var (
		classification  types.ClassificationResult
		recommendations types.RecommendationSet
	)

	intentCh := make(chan types.ClassificationResult, 1)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		if req.Signals != nil {
			classification = e.classifier.Classify(req.Text, *req.Signals)
		} else {
			classification = e.classifier.Classify(req.Text)
		}
		intentCh <- classification
		return nil
	})
	g.Go(func() error {
		c := <-intentCh
		rreq := recommend.Request{Intent: c.Intent, Text: req.Text}
		if req.Signals != nil {
			rreq.ExistingNodes = req.Signals.ExistingNodes
		}
		if req.Preferences != nil {
			rreq.Preferences = *req.Preferences
		}
		recommendations = e.recommender.Recommend(rreq)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decision := e.router.Route(classification, req.Signals, req.Preferences)

	return &Response{
		Classification:  classification,
		Recommendations: recommendations,
		Decision:        decision,
	}, nil
}

// Handle analyzes the request and dispatches it to the routed worker.
func (e *Engine) Handle(ctx context.Context, req Request) (*Response, error) {
	resp, err := e.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := e.coordinator.Dispatch(ctx, coordinator.Task{
		Text:            req.Text,
		Classification:  resp.Classification,
		Decision:        resp.Decision,
		Recommendations: resp.Recommendations,
	})
	if err != nil {
		return nil, err
	}
	resp.Result = result
	return resp, nil
}

// LearnFromWorkflow forwards execution feedback to the recommender.
// Fire-and-forget: never blocks, never fails.
func (e *Engine) LearnFromWorkflow(fb recommend.Feedback) {
	e.recommender.LearnFromWorkflow(fb)
}

// Start launches background work: config hot reload and the session
// expiry sweeper.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.cfg.Start(ctx); err != nil {
		return err
	}
	e.sessions.Start(ctx)
	e.logger.Info("engine started")
	return nil
}

// Close stops background work and releases the recommender and store.
func (e *Engine) Close() error {
	e.cfg.Stop()
	e.recommender.Close()
	return e.sessions.Close()
}
