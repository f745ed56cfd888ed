// Package cmd provides common initialization functions for the command-line
// binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/bizbooks/approvalflow/pkg/persistence/file"
	"github.com/bizbooks/approvalflow/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence layer from the database URL scheme.
// postgres:// and postgresql:// select the SQL backend; anything else is
// treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize PostgreSQL persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
