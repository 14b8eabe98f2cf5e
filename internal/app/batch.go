package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	eventqueue "github.com/okian/courtside/internal/adapters/mq/queue"
	workerpool "github.com/okian/courtside/internal/adapters/mq/worker"
	"github.com/okian/courtside/internal/adapters/snapshot"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
)

// BatchReport summarises a RunBatch call. Every requested game is either
// recorded or listed in Failed.
type BatchReport struct {
	Games           int                          `json:"games"`
	Recorded        int                          `json:"recorded"`
	Bets            int                          `json:"bets"`
	Recommendations map[model.Recommendation]int `json:"recommendations"`
	Failed          []string                     `json:"failed,omitempty"`
	CacheHits       int64                        `json:"cache_hits"`
	CacheMisses     int64                        `json:"cache_misses"`
	Elapsed         time.Duration                `json:"elapsed"`
}

// batchRun analyses against a per-batch cache and tallies what it records.
type batchRun struct {
	svc   *Service
	cache *snapshot.BatchCache

	mu  sync.Mutex
	rep BatchReport
}

func (b *batchRun) Analyze(ctx context.Context, job model.AnalysisJob) (model.Decision, error) {
	d, err := b.svc.analyzeFrom(ctx, b.cache, job)
	if err != nil {
		b.fail(job.GameID)
	}
	return d, err
}

func (b *batchRun) Record(ctx context.Context, d model.Decision) error {
	if err := b.svc.Record(ctx, d); err != nil {
		b.fail(d.EventID)
		return err
	}
	b.mu.Lock()
	b.rep.Recorded++
	b.rep.Recommendations[d.Recommendation]++
	if d.IsBet() {
		b.rep.Bets++
	}
	b.mu.Unlock()
	return nil
}

func (b *batchRun) fail(gameID string) {
	b.mu.Lock()
	b.rep.Failed = append(b.rep.Failed, gameID)
	b.mu.Unlock()
}

// RunBatch analyses gameIDs, or every game in the source when gameIDs is
// empty, on a dedicated queue and pool. Games and season-opening snapshots
// are read once per batch. It returns when every game has been processed;
// games that could not be read or recorded are listed in the report.
func (s *Service) RunBatch(ctx context.Context, gameIDs []string) (BatchReport, error) {
	if s.source == nil {
		return BatchReport{}, ErrNoSource
	}
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return BatchReport{}, ErrStopped
	}
	s.restoreBias(ctx)

	start := time.Now()
	run := &batchRun{
		svc:   s,
		cache: snapshot.NewBatchCache(s.source),
		rep:   BatchReport{Recommendations: make(map[model.Recommendation]int)},
	}

	if len(gameIDs) == 0 {
		games, err := run.cache.Games(ctx)
		if err != nil {
			return BatchReport{}, fmt.Errorf("list games: %w", err)
		}
		for _, g := range games {
			gameIDs = append(gameIDs, g.ID)
		}
	}

	q := eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(len(gameIDs)+1),
		eventqueue.WithBufferSize(len(gameIDs)+1),
	)
	pool := workerpool.NewPool(s.cfg.WorkerCount, q, run, run)
	pool.Start(ctx)

	for _, id := range gameIDs {
		if !q.Enqueue(ctx, model.AnalysisJob{GameID: id}) {
			_ = q.Close()
			_ = pool.Wait(ctx)
			return BatchReport{}, fmt.Errorf("enqueue %s: %w", id, eventqueue.ErrFull)
		}
	}
	if err := q.Close(); err != nil {
		return BatchReport{}, fmt.Errorf("close batch queue: %w", err)
	}
	if err := pool.Wait(ctx); err != nil {
		return BatchReport{}, err
	}

	run.mu.Lock()
	rep := run.rep
	run.mu.Unlock()
	rep.Games = len(gameIDs)
	rep.CacheHits, rep.CacheMisses = run.cache.Stats()
	rep.Elapsed = time.Since(start)
	sort.Strings(rep.Failed)

	s.logger.Info(ctx, "batch complete",
		logger.Int("games", rep.Games),
		logger.Int("recorded", rep.Recorded),
		logger.Int("bets", rep.Bets),
		logger.Int("failed", len(rep.Failed)),
		logger.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}
