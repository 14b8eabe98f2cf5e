package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// InMemoryStore keeps everything in process. One mutex serialises writes, so
// a settlement and its bucket update are a single step.
type InMemoryStore struct {
	cfg config

	mu          sync.RWMutex
	decisions   map[string]*model.Decision
	order       []string
	buckets     map[int]*model.CalibrationBucket
	rules       map[string]model.LearningRule
	postMortems map[string]model.PostMortem
	calibration *model.BiasCalibration
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	return &InMemoryStore{
		cfg:         newConfig(opts),
		decisions:   make(map[string]*model.Decision),
		buckets:     make(map[int]*model.CalibrationBucket),
		rules:       make(map[string]model.LearningRule),
		postMortems: make(map[string]model.PostMortem),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, d model.Decision) error {
	start := time.Now()
	defer observe("create", start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, d.ID)
	}
	if d.Outcome == "" {
		d.Outcome = model.OutcomePending
	}
	c := clone(d)
	s.decisions[d.ID] = &c
	s.order = append(s.order, d.ID)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (model.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[id]
	if !ok {
		return model.Decision{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(*d), nil
}

func (s *InMemoryStore) List(ctx context.Context, f Filter) ([]model.Decision, error) {
	start := time.Now()
	defer observe("list", start)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Decision
	for _, id := range s.order {
		d := s.decisions[id]
		if !f.match(d) {
			continue
		}
		out = append(out, clone(*d))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) Settle(ctx context.Context, id string, st model.Settlement) (model.Decision, error) {
	start := time.Now()
	defer observe("settle", start)

	if err := validateSettlement(st); err != nil {
		return model.Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[id]
	if !ok {
		return model.Decision{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if d.Outcome.IsTerminal() {
		metrics.RecordSettlementConflict()
		s.cfg.logger.Warn(ctx, "rejected second settlement",
			logger.String("decisionID", id),
			logger.String("outcome", string(d.Outcome)),
			logger.String("attempted", string(st.Outcome)),
		)
		return clone(*d), fmt.Errorf("%w: %s is %s", ErrDoubleSettlement, id, d.Outcome)
	}

	settledAt := st.SettledAt
	d.Outcome = st.Outcome
	d.Profit = st.Profit
	d.SettledAt = &settledAt
	if st.FinalTotal != nil {
		v := *st.FinalTotal
		d.FinalTotal = &v
	}

	if d.IsBet() {
		key := s.cfg.table.Bucket(d.Confidence)
		b, ok := s.buckets[key]
		if !ok {
			b = &model.CalibrationBucket{Bucket: key}
			s.buckets[key] = b
		}
		b.Apply(st.Outcome)
	}
	metrics.RecordDecisionSettled(string(st.Outcome))
	return clone(*d), nil
}

func (s *InMemoryStore) Buckets(ctx context.Context) ([]model.CalibrationBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CalibrationBucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out, nil
}

func (s *InMemoryStore) Rules(ctx context.Context, activeOnly bool) ([]model.LearningRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LearningRule
	for _, r := range s.rules {
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Condition < out[j].Condition })
	return out, nil
}

func (s *InMemoryStore) UpsertRule(ctx context.Context, r model.LearningRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
	active := 0
	for _, r := range s.rules {
		if r.Active {
			active++
		}
	}
	metrics.UpdateRulesActive(active)
	return nil
}

func (s *InMemoryStore) SavePostMortem(ctx context.Context, pm model.PostMortem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[pm.DecisionID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, pm.DecisionID)
	}
	s.postMortems[pm.DecisionID] = pm
	return nil
}

func (s *InMemoryStore) PostMortems(ctx context.Context) ([]model.PostMortem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PostMortem, 0, len(s.postMortems))
	for _, pm := range s.postMortems {
		out = append(out, pm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecisionID < out[j].DecisionID })
	return out, nil
}

func (s *InMemoryStore) SaveCalibration(ctx context.Context, c model.BiasCalibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibration = &c
	return nil
}

func (s *InMemoryStore) LatestCalibration(ctx context.Context) (model.BiasCalibration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.calibration == nil {
		return model.BiasCalibration{}, fmt.Errorf("%w: no calibration applied", ErrNotFound)
	}
	return *s.calibration, nil
}

func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.decisions), nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
