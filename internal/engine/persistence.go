package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/celerix-dev/celerix-leads/internal/vault"
	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

const (
	snapshotFile = "leads.json"
	lockFile     = "leads.lock"
)

// ErrDataDirLocked is returned when another process owns the data directory.
var ErrDataDirLocked = errors.New("data directory is locked by another process")

// Persistence handles the disk I/O for the MemStore.
type Persistence struct {
	DataDir string
	key     []byte
	log     *slog.Logger
	lock    *flock.Flock

	mu      sync.Mutex // Protects concurrent writes to the filesystem
	written uint64     // generation of the snapshot on disk
}

// NewPersistence locks dir and prepares it for snapshots. A non-empty key
// seals every snapshot with AES-GCM.
func NewPersistence(dir string, key []byte, log *slog.Logger) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, ErrDataDirLocked)
	}
	return &Persistence{DataDir: dir, key: key, log: log, lock: lock}, nil
}

// Save writes a snapshot atomically. Snapshots older than the one already on
// disk are dropped, so out-of-order background saves cannot lose leads.
func (p *Persistence) Save(gen uint64, leads []schema.Lead) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != 0 && gen <= p.written {
		return nil
	}
	if err := p.write(leads); err != nil {
		p.log.Error("persist leads snapshot", "generation", gen, "error", err)
		return err
	}
	if gen != 0 {
		p.written = gen
	}
	return nil
}

func (p *Persistence) write(leads []schema.Lead) error {
	if leads == nil {
		leads = []schema.Lead{}
	}
	data, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return err
	}
	if len(p.key) > 0 {
		if data, err = vault.Seal(data, p.key); err != nil {
			return err
		}
	}

	path := filepath.Join(p.DataDir, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	// Readers see either the old snapshot or the new one, never a torn file.
	return os.Rename(tmp, path)
}

// LoadAll returns the leads of the last snapshot, oldest first.
func (p *Persistence) LoadAll() ([]schema.Lead, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(p.DataDir, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if vault.IsSealed(data) {
		if len(p.key) == 0 {
			return nil, errors.New("snapshot is encrypted but no encryption key is configured")
		}
		if data, err = vault.Open(data, p.key); err != nil {
			return nil, err
		}
	} else if len(p.key) > 0 {
		p.log.Warn("snapshot is not encrypted; it will be sealed on the next write")
	}

	var leads []schema.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return leads, nil
}

// Close releases the data directory lock.
func (p *Persistence) Close() error {
	return p.lock.Unlock()
}
