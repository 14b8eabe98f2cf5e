package synthetic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/courtside/internal/adapters/snapshot"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
)

// SubmitConfig controls a load run against a live server.
type SubmitConfig struct {
	BaseURL string        // e.g. http://localhost:9080
	Workers int           // concurrent submitters
	Timeout time.Duration // per request
}

// SubmitStats counts submission outcomes by response status.
type SubmitStats struct {
	Submitted int           `json:"submitted"`
	Accepted  int           `json:"accepted"`
	Duplicate int           `json:"duplicate"`
	Throttled int           `json:"throttled"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

type gameRequest struct {
	Input model.GameInput `json:"input"`
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeThrottled
	outcomeFailed
)

// Inputs resolves every game in ds into a full analysis input, so a server
// without the archive can analyse it.
func Inputs(ctx context.Context, ds snapshot.Dataset) ([]model.GameInput, error) {
	src, err := snapshot.NewMemory(ds)
	if err != nil {
		return nil, err
	}
	out := make([]model.GameInput, 0, len(ds.Games))
	for _, g := range ds.Games {
		in, err := snapshot.Input(ctx, src, g.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", g.ID, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// CheckHealth verifies the server answers /healthz.
func CheckHealth(ctx context.Context, cfg SubmitConfig) error {
	client := &http.Client{Timeout: cfg.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.BaseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// Submit posts inputs to POST /games with cfg.Workers goroutines.
func Submit(ctx context.Context, cfg SubmitConfig, inputs []model.GameInput) (SubmitStats, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	log := logger.Get().Named("synthetic")
	client := &http.Client{Timeout: cfg.Timeout}
	url := cfg.BaseURL + "/games"
	start := time.Now()

	var counts [4]int64
	jobs := make(chan model.GameInput, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range jobs {
				o := submitOne(ctx, client, url, in)
				atomic.AddInt64(&counts[o], 1)
			}
		}()
	}

feed:
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- in:
		}
	}
	close(jobs)
	wg.Wait()

	st := SubmitStats{
		Accepted:  int(counts[outcomeAccepted]),
		Duplicate: int(counts[outcomeDuplicate]),
		Throttled: int(counts[outcomeThrottled]),
		Failed:    int(counts[outcomeFailed]),
		Elapsed:   time.Since(start),
	}
	st.Submitted = st.Accepted + st.Duplicate + st.Throttled + st.Failed
	log.Info(ctx, "submission completed",
		logger.Int("submitted", st.Submitted),
		logger.Int("accepted", st.Accepted),
		logger.Int("duplicate", st.Duplicate),
		logger.Int("throttled", st.Throttled),
		logger.Int("failed", st.Failed),
		logger.Duration("elapsed", st.Elapsed),
	)
	return st, ctx.Err()
}

func submitOne(ctx context.Context, client *http.Client, url string, in model.GameInput) outcome {
	body, err := json.Marshal(gameRequest{Input: in})
	if err != nil {
		return outcomeFailed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return outcomeFailed
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return outcomeFailed
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return outcomeAccepted
	case http.StatusOK:
		return outcomeDuplicate
	case http.StatusTooManyRequests:
		return outcomeThrottled
	default:
		return outcomeFailed
	}
}
