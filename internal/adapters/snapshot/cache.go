package snapshot

import (
	"context"
	"strconv"
	"sync"

	"github.com/okian/courtside/internal/domain/model"
)

// BatchCache memoises game and season-opening team reads for the lifetime
// of one batch.
// Create one per run and drop it afterwards; nothing is shared across runs.
type BatchCache struct {
	src Source

	mu     sync.RWMutex
	teams  map[string]model.TeamSnapshot
	games  map[string]model.Game
	hits   int64
	misses int64
}

var _ Source = (*BatchCache)(nil)

// NewBatchCache wraps src.
func NewBatchCache(src Source) *BatchCache {
	return &BatchCache{
		src:   src,
		teams: make(map[string]model.TeamSnapshot),
		games: make(map[string]model.Game),
	}
}

func (c *BatchCache) Games(ctx context.Context) ([]model.Game, error) {
	return c.src.Games(ctx)
}

func (c *BatchCache) Game(ctx context.Context, id string) (model.Game, error) {
	c.mu.RLock()
	g, ok := c.games[id]
	c.mu.RUnlock()
	if ok {
		c.hit()
		return g, nil
	}
	g, err := c.src.Game(ctx, id)
	if err != nil {
		return model.Game{}, err
	}
	c.mu.Lock()
	c.games[id] = g
	c.misses++
	c.mu.Unlock()
	return g, nil
}

func (c *BatchCache) Team(ctx context.Context, teamID string, season int) (model.TeamSnapshot, error) {
	key := strconv.Itoa(season) + "/" + teamID
	c.mu.RLock()
	t, ok := c.teams[key]
	c.mu.RUnlock()
	if ok {
		c.hit()
		return t, nil
	}
	t, err := c.src.Team(ctx, teamID, season)
	if err != nil {
		return model.TeamSnapshot{}, err
	}
	c.mu.Lock()
	c.teams[key] = t
	c.misses++
	c.mu.Unlock()
	return t, nil
}

// PreGame is never cached; each snapshot belongs to a single game.
func (c *BatchCache) PreGame(ctx context.Context, gameID, teamID string) (model.TeamSnapshot, bool, error) {
	return c.src.PreGame(ctx, gameID, teamID)
}

func (c *BatchCache) Signals(ctx context.Context, gameID string) (model.Signals, error) {
	return c.src.Signals(ctx, gameID)
}

func (c *BatchCache) Narrative(ctx context.Context, gameID string) (*model.Narrative, error) {
	return c.src.Narrative(ctx, gameID)
}

// FinalTotal is never cached; results arrive while a batch may be running.
func (c *BatchCache) FinalTotal(ctx context.Context, gameID string) (float64, bool, error) {
	return c.src.FinalTotal(ctx, gameID)
}

// Stats returns cache hits and misses.
func (c *BatchCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *BatchCache) hit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}
