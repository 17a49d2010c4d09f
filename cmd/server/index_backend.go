package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"polardrop.dev/internal/persistence/indexdb"
)

// openRuntimeIndex opens the read-model index. A nil index with a nil error
// means indexing is off.
func openRuntimeIndex(worldDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("PD_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexPath(worldDir))
	default:
		return nil, fmt.Errorf("unsupported PD_INDEX_BACKEND: %s", backend)
	}
}

func indexPath(worldDir string) string {
	return filepath.Join(worldDir, "index", "world.sqlite")
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
