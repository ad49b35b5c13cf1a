package engine

import (
	"context"
	"fmt"
)

// Migrate copies every lead from src into dst, oldest first, and returns how
// many were copied. It works in any direction between backends:
// - memory/file -> sqlite/postgres/redis (the "upgrade")
// - any backend -> file (the "backup")
//
// dst assigns fresh ids and timestamps; Create owns identity.
func Migrate(ctx context.Context, src, dst Store) (int, error) {
	leads, err := src.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list source leads: %w", err)
	}

	for i, l := range leads {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		in := inputOf(l)
		if _, err := dst.Create(ctx, in); err != nil {
			return i, fmt.Errorf("failed to copy lead %s: %w", l.ID, err)
		}
	}
	return len(leads), nil
}
