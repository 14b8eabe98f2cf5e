// Package service wires the decision pipeline: snapshot source, adjustment
// library, composer, simulator, EV engine, store and publisher, plus the
// queue and worker pool that drive it.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/courtside/internal/adapters/http/api"
	eventqueue "github.com/okian/courtside/internal/adapters/mq/queue"
	workerpool "github.com/okian/courtside/internal/adapters/mq/worker"
	"github.com/okian/courtside/internal/adapters/publisher"
	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/adapters/snapshot"
	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/internal/domain/adjust"
	"github.com/okian/courtside/internal/domain/dedupe"
	"github.com/okian/courtside/internal/domain/edge"
	"github.com/okian/courtside/internal/domain/learning"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/projection"
	"github.com/okian/courtside/internal/domain/simulation"
	"github.com/okian/courtside/internal/domain/walkforward"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrStopped    = errors.New("service stopped")
	ErrDuplicate  = errors.New("game already submitted")
	ErrNoSource   = errors.New("no snapshot source configured")
)

// Service runs the decision loop. Domain components are stateless; the
// only mutable state here is the bias correction and the lifecycle. The
// bias is read on every analysis, so it lives outside mu and never waits
// on a lifecycle change.
type Service struct {
	cfg *config.Config

	library   *adjust.Library
	composer  *projection.Composer
	simulator *simulation.Simulator
	engine    *edge.Engine
	learner   *learning.Learner
	validator *walkforward.Validator

	store     repository.Store
	source    snapshot.Source
	publisher publisher.Publisher
	deduper   dedupe.Deduper

	bias        atomic.Uint64 // math.Float64bits
	restoreOnce sync.Once

	mu      sync.RWMutex
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	started bool
	stopped bool

	now    func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the decision store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSource sets the snapshot source used to resolve game ids.
func WithSource(src snapshot.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithPublisher sets the decision publisher. Defaults to the log publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a service from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{
		cfg:       cfg,
		library:   adjust.New(cfg.Adjust),
		composer:  projection.New(cfg.Projection),
		simulator: simulation.New(cfg.Simulation),
		engine:    edge.New(cfg.Edge, cfg.Tiers),
		deduper:   dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize)),
		now:       time.Now,
		logger:    logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewInMemoryStore(repository.WithTiers(cfg.Tiers))
	}
	if s.publisher == nil {
		s.publisher = publisher.NewLog(s.logger.Named("publisher"))
	}
	s.bias.Store(math.Float64bits(cfg.Projection.BiasCorrection))
	s.learner = learning.New(cfg.Learning, learning.WithClock(s.now))
	s.validator = walkforward.New(cfg.Validation, cfg.Tiers, walkforward.WithLogger(s.logger.Named("walkforward")))
	return s
}

// Start restores the last applied bias, creates the queue and starts the
// worker pool. A stopped service cannot be restarted.
func (s *Service) Start(ctx context.Context) error {
	s.restoreBias(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.cfg.QueueSize),
		eventqueue.WithBufferSize(s.cfg.QueueSize),
	)
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, s, s)
	s.pool.Start(ctx)
	s.started = true

	s.logger.Info(ctx, "service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Float64("bias", s.Bias()),
	)
	return nil
}

// Stop shuts the pool down, if it was started, and closes the store and
// publisher. The lock is released before waiting on in-flight jobs; only
// the first call closes anything.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	pool, started := s.pool, s.started
	s.started, s.stopped = false, true
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping service")

	var errs []error
	if started {
		if err := pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.logger.Info(ctx, "service stopped")
	return errors.Join(errs...)
}

// Submit queues a game for asynchronous analysis. A game id the source does
// not know returns snapshot.ErrNotFound; a game and line already submitted
// return ErrDuplicate; a full queue returns queue.ErrFull and the submission
// can be retried.
func (s *Service) Submit(ctx context.Context, job model.AnalysisJob) error {
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	line := 0.0
	switch {
	case job.Input != nil:
		line = job.Input.Game.Market.Line
		if job.GameID == "" {
			job.GameID = job.Input.Game.ID
		}
	case s.source == nil:
		return ErrNoSource
	default:
		g, err := s.source.Game(ctx, job.GameID)
		if err != nil {
			return fmt.Errorf("game %s: %w", job.GameID, err)
		}
		line = g.Market.Line
	}
	key := dedupe.Key(job.GameID, line)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordGameDuplicate()
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	if !q.Enqueue(ctx, job) {
		s.deduper.Unrecord(ctx, key)
		return eventqueue.ErrFull
	}
	metrics.RecordGameSubmitted()
	return nil
}

// Bias returns the bias correction currently applied to projections.
func (s *Service) Bias() float64 {
	return math.Float64frombits(s.bias.Load())
}

// SetBias replaces the bias correction in memory only; Calibrate is what
// persists it.
func (s *Service) SetBias(ctx context.Context, bias float64) {
	old := math.Float64frombits(s.bias.Swap(math.Float64bits(bias)))
	s.logger.Info(ctx, "bias correction updated",
		logger.Float64("from", old),
		logger.Float64("to", bias),
	)
}

// restoreBias loads the last applied calibration once. Without one the
// configured bias stands; a store error is logged and does the same.
func (s *Service) restoreBias(ctx context.Context) {
	s.restoreOnce.Do(func() {
		c, err := s.store.LatestCalibration(ctx)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return
		case err != nil:
			s.logger.Warn(ctx, "stored calibration unavailable, keeping configured bias",
				logger.Float64("bias", s.Bias()),
				logger.Error(err),
			)
			return
		}
		s.bias.Store(math.Float64bits(c.Bias))
		s.logger.Info(ctx, "bias correction restored",
			logger.Float64("bias", c.Bias),
			logger.Int("samples", c.Samples),
			logger.String("appliedAt", c.AppliedAt.Format(time.RFC3339)),
		)
	})
}

// Store exposes the decision store for read endpoints.
func (s *Service) Store() repository.Store { return s.store }

// Decision returns a stored decision by id.
func (s *Service) Decision(ctx context.Context, id string) (model.Decision, error) {
	return s.store.Get(ctx, id)
}

// APIErrors maps service errors onto the ops API outcomes.
func APIErrors() api.Errors {
	return api.Errors{
		Duplicate:    func(err error) bool { return errors.Is(err, ErrDuplicate) },
		Backpressure: func(err error) bool { return errors.Is(err, eventqueue.ErrFull) },
		NotFound: func(err error) bool {
			return errors.Is(err, repository.ErrNotFound) || errors.Is(err, snapshot.ErrNotFound)
		},
		Unavailable: func(err error) bool {
			return errors.Is(err, ErrNotStarted) || errors.Is(err, ErrNoSource)
		},
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
		"dedupeSize":  s.deduper.Size(),
		"bias":        s.Bias(),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["processed"] = s.pool.Processed()
	}
	if n, err := s.store.Count(ctx); err == nil {
		stats["decisions"] = n
	}
	return stats
}
