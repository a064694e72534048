package synth

import (
	"context"
	"fmt"
	"log/slog"
)

// chainEntry pairs a backend with the profile it speaks with. Voice names are
// backend-specific, so each link in the chain carries its own.
type chainEntry struct {
	name    string
	backend Synthesizer
	profile Profile
}

// Chain tries backends in order until one succeeds. A chain with a local
// engine first and a hosted API second keeps speech working when either side
// is down.
type Chain struct {
	entries []chainEntry
	log     *slog.Logger
}

// NewChain creates an empty chain.
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{log: logger.With("component", "synth.chain")}
}

// Add appends a backend with its voice profile. Order of addition is
// fallback order.
func (c *Chain) Add(name string, backend Synthesizer, profile Profile) *Chain {
	c.entries = append(c.entries, chainEntry{name: name, backend: backend, profile: profile})
	return c
}

// Synthesize renders text with the first backend that succeeds. The profile
// argument is ignored; each entry uses its own. Returns a ChainError when
// every backend fails.
func (c *Chain) Synthesize(ctx context.Context, text string, _ Profile) (*Result, error) {
	if len(c.entries) == 0 {
		return nil, fmt.Errorf("synth: chain has no backends")
	}

	var errs []error
	for i, entry := range c.entries {
		res, err := entry.backend.Synthesize(ctx, text, entry.profile)
		if err == nil {
			if i > 0 {
				c.log.Info("fell back to secondary backend", "backend", entry.name)
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("backend failed", "backend", entry.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
	}
	return nil, &ChainError{Errors: errs}
}

var _ Synthesizer = (*Chain)(nil)
