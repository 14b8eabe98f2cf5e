// Package publisher delivers recorded decisions to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream decisions are appended to.
const DefaultStream = "decisions.recorded"

// Sentinel kinds for publisher errors.
var (
	ErrPublish = errors.New("publish decision")
)

// Publisher emits a Decision. It is the only outbound surface of the core.
type Publisher interface {
	Publish(ctx context.Context, d model.Decision) error
	Close() error
}

// RedisStream appends each decision as JSON to a Redis stream. A
// per-recommendation stream is written too so consumers can subscribe to
// bets only.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
	logger logger.Logger
}

var _ Publisher = (*RedisStream)(nil)

// Option configures a RedisStream.
type Option func(*RedisStream)

// WithStream overrides the stream key.
func WithStream(stream string) Option {
	return func(p *RedisStream) {
		if stream != "" {
			p.stream = stream
		}
	}
}

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) Option {
	return func(p *RedisStream) {
		if n > 0 {
			p.maxLen = n
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) Option {
	return func(p *RedisStream) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewRedisStream wraps an existing client.
func NewRedisStream(client *redis.Client, opts ...Option) *RedisStream {
	p := &RedisStream{
		client: client,
		stream: DefaultStream,
		logger: logger.Get().Named("publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialRedisStream connects to addr and verifies the connection.
func DialRedisStream(ctx context.Context, addr string, opts ...Option) (*RedisStream, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStream(client, opts...), nil
}

// Stream returns the main stream key.
func (p *RedisStream) Stream() string { return p.stream }

// Publish appends d to the main stream and, for bets, to the
// recommendation stream.
func (p *RedisStream) Publish(ctx context.Context, d model.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		metrics.RecordPublishError()
		return fmt.Errorf("%w: marshal %s: %v", ErrPublish, d.ID, err)
	}

	streams := []string{p.stream}
	if d.IsBet() {
		streams = append(streams, p.stream+"."+string(d.Recommendation))
	}
	for _, s := range streams {
		args := &redis.XAddArgs{
			Stream: s,
			Values: map[string]any{
				"id":             d.ID,
				"event_id":       d.EventID,
				"recommendation": string(d.Recommendation),
				"decision":       string(payload),
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			metrics.RecordPublishError()
			metrics.RecordErrorByComponent("publisher", "xadd")
			return fmt.Errorf("%w: stream %s: %w", ErrPublish, s, err)
		}
	}
	metrics.RecordDecisionPublished()
	p.logger.Debug(ctx, "decision published",
		logger.String("decisionID", d.ID),
		logger.String("stream", p.stream),
	)
	return nil
}

// Close closes the Redis client.
func (p *RedisStream) Close() error {
	return p.client.Close()
}

// Log writes decisions to the logger. It is used when no stream is
// configured.
type Log struct {
	logger logger.Logger
}

var _ Publisher = (*Log)(nil)

// NewLog returns a log publisher. A nil logger uses the default.
func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.Get().Named("publisher")
	}
	return &Log{logger: l}
}

func (p *Log) Publish(ctx context.Context, d model.Decision) error {
	p.logger.Info(ctx, "decision",
		logger.String("decisionID", d.ID),
		logger.String("eventID", d.EventID),
		logger.String("recommendation", string(d.Recommendation)),
		logger.Float64("line", d.Line),
		logger.Float64("confidence", d.Confidence),
		logger.String("stake", d.Stake.StringFixed(2)),
		logger.String("reason", d.Reason),
	)
	metrics.RecordDecisionPublished()
	return nil
}

// Close is a no-op.
func (p *Log) Close() error { return nil }
