package docstore

import (
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/primeuro-storefront/internal/telemetry"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Open creates a Store for the named backend. The postgres backend opens an
// instrumented connection pool; reachability is checked later by the
// readiness probe.
func Open(backend, postgresURL string, logger *slog.Logger) (*Store, error) {
	switch backend {
	case BackendMemory:
		return New(NewMemoryBackend()), nil
	case BackendPostgres:
		if postgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires POSTGRES_URL")
		}
		db, err := telemetry.OpenDB("postgres", postgresURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return New(NewPostgresBackend(db, postgresURL, logger)), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
