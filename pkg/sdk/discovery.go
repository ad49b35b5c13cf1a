package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/celerix-dev/celerix-leads/internal/config"
	"github.com/celerix-dev/celerix-leads/internal/engine"
)

// New initializes the store based on the environment.
// It returns the Interface, so the app doesn't care if it's local or remote.
func New(ctx context.Context, cfg config.Storage, log *slog.Logger) (LeadStore, error) {
	// 1. A remote service named in the environment is authoritative. Falling
	// back to a local store would accept writes the daemon never sees.
	if remoteAddr := os.Getenv("CELERIX_LEADS_ADDR"); remoteAddr != "" {
		client, err := Connect(ctx, remoteAddr, WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", remoteAddr, err)
		}
		return client, nil
	}

	// 2. Embedded Mode
	// This uses the same engine the daemon uses, but inside the calling process.
	return engine.Open(ctx, cfg, log)
}
