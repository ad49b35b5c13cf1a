package sdk

import (
	"context"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

// ErrLeadNotFound is returned when a requested lead does not exist.
var ErrLeadNotFound = schema.ErrLeadNotFound

// --- Functional Interfaces (Interface Segregation) ---

// LeadReader defines the read operations for the store.
type LeadReader interface {
	ListAll(ctx context.Context) ([]schema.Lead, error)
	GetByID(ctx context.Context, id string) (schema.Lead, error)
	Count(ctx context.Context) (int, error)
}

// LeadWriter defines the only write operation. Leads are never updated or deleted.
type LeadWriter interface {
	Create(ctx context.Context, in schema.LeadInput) (schema.Lead, error)
}

// --- Composite Interfaces ---

// LeadStore is the primary interface for interacting with lead storage.
// Both the embedded engine and the remote Client implement this contract.
type LeadStore interface {
	LeadReader
	LeadWriter
	Close() error
}
