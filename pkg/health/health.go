// Package health aggregates liveness checks over the service's stateful
// dependencies.
package health

import (
	"context"
	"sync"
	"time"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Checker runs registered checks with a shared timeout.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// Result is the outcome of one dependency probe.
type Result struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Register adds a named check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run probes every dependency and reports per-dependency results plus an
// overall verdict.
func (c *Checker) Run(ctx context.Context) (map[string]Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]Result, len(c.checks))
	healthy := true
	for name, check := range c.checks {
		if err := check(ctx); err != nil {
			results[name] = Result{Healthy: false, Error: err.Error()}
			healthy = false
			continue
		}
		results[name] = Result{Healthy: true}
	}
	return results, healthy
}
