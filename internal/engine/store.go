// Package engine holds the lead store backends.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

// Store is the authoritative holder of lead records.
// Every backend (memory, file, sqlite, postgres, redis) implements this contract.
type Store interface {
	// Create assigns identity and timestamp and stores the lead. Callers validate.
	Create(ctx context.Context, in schema.LeadInput) (schema.Lead, error)
	// ListAll returns every lead in insertion order.
	ListAll(ctx context.Context) ([]schema.Lead, error)
	// GetByID returns schema.ErrLeadNotFound on a miss.
	GetByID(ctx context.Context, id string) (schema.Lead, error)
	// Count returns the number of stored leads.
	Count(ctx context.Context) (int, error)
	Close() error
}

// clock hands out insertion timestamps that never run backwards, even when
// the wall clock does.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now}
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// observe bumps the clock to at least t. Used after loading existing data.
func (c *clock) observe(t time.Time) {
	c.mu.Lock()
	if t.After(c.last) {
		c.last = t
	}
	c.mu.Unlock()
}

func newID() string {
	return uuid.NewString()
}

func inputOf(l schema.Lead) schema.LeadInput {
	return schema.LeadInput{
		Name:     l.Name,
		Email:    l.Email,
		Phone:    l.Clone().Phone,
		Company:  l.Company,
		Role:     l.Role,
		Location: l.Location,
		Score:    l.Score,
	}
}
