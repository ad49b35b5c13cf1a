package engine

import (
	"strings"

	"github.com/celerix-dev/celerix-leads/internal/config"
)

func configFor(driver, dataDir string) config.Storage {
	return config.Storage{Driver: driver, DataDir: dataDir}
}

func containsBytes(b []byte, s string) bool {
	return strings.Contains(string(b), s)
}
