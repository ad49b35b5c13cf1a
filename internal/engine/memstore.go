package engine

import (
	"context"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

// MemStore is the thread-safe in-process lead store. With a Persistence
// attached it snapshots to disk after every insert.
type MemStore struct {
	mu    sync.RWMutex
	leads []schema.Lead
	index map[string]int
	clock *clock
	newID func() string

	persister *Persistence
	gen       uint64
	wg        sync.WaitGroup
}

// NewMemStore initializes a store with existing leads (from LoadAll, in
// insertion order) and an optional persister.
func NewMemStore(initial []schema.Lead, p *Persistence) *MemStore {
	m := &MemStore{
		leads:     make([]schema.Lead, 0, len(initial)),
		index:     make(map[string]int, len(initial)),
		clock:     newClock(nil),
		newID:     newID,
		persister: p,
	}
	for _, l := range initial {
		if _, dup := m.index[l.ID]; dup {
			continue
		}
		m.index[l.ID] = len(m.leads)
		m.leads = append(m.leads, l)
		m.clock.observe(l.Timestamp)
	}
	return m
}

// WithClock replaces the time source. Used by tests.
func (m *MemStore) WithClock(now func() time.Time) *MemStore {
	m.clock = newClock(now)
	return m
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

func (m *MemStore) Create(_ context.Context, in schema.LeadInput) (schema.Lead, error) {
	m.mu.Lock()
	id := m.newID()
	for {
		if _, taken := m.index[id]; !taken {
			break
		}
		id = m.newID()
	}
	// Stamped under the write lock so timestamp order matches list order.
	lead := in.Lead(id, m.clock.next())
	m.index[id] = len(m.leads)
	m.leads = append(m.leads, lead.Clone())

	var snapshot []schema.Lead
	var gen uint64
	if m.persister != nil {
		m.gen++
		gen = m.gen
		snapshot = m.copyLeads()
	}
	m.mu.Unlock()

	if m.persister != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.persister.Save(gen, snapshot)
		}()
	}
	return lead, nil
}

func (m *MemStore) ListAll(_ context.Context) ([]schema.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyLeads(), nil
}

func (m *MemStore) GetByID(_ context.Context, id string) (schema.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.index[id]
	if !ok {
		return schema.Lead{}, schema.ErrLeadNotFound
	}
	return m.leads[i].Clone(), nil
}

func (m *MemStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leads), nil
}

// Close flushes pending snapshots and releases the persister.
func (m *MemStore) Close() error {
	m.Wait()
	if m.persister != nil {
		return m.persister.Close()
	}
	return nil
}

// copyLeads returns a fresh slice of the current leads.
// It MUST be called while holding m.mu.Lock or m.mu.RLock.
func (m *MemStore) copyLeads() []schema.Lead {
	out := make([]schema.Lead, len(m.leads))
	for i, l := range m.leads {
		out[i] = l.Clone()
	}
	return out
}
