package repository

import (
	"github.com/okian/courtside/internal/domain/tiers"
	"github.com/okian/courtside/pkg/logger"
)

// config is shared by both store implementations.
type config struct {
	table  tiers.Table
	logger logger.Logger
}

func newConfig(opts []Option) config {
	c := config{table: tiers.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("repository")
	}
	return c
}

// Option configures a store.
type Option func(*config)

// WithTiers sets the table whose bucket width rounds confidence.
func WithTiers(t tiers.Table) Option {
	return func(c *config) {
		c.table = t
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
