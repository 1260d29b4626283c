// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/briefwell/briefwell/pkg/persistence"
	"github.com/briefwell/briefwell/pkg/persistence/file"
	"github.com/briefwell/briefwell/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme:
// postgres:// URLs get the SQL backend, anything else is treated as a file
// root for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	scheme, _, found := strings.Cut(databaseURL, "://")

	if found && (scheme == "postgres" || scheme == "postgresql") {
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	}

	root := databaseURL
	if found && scheme == "file" {
		root = strings.TrimPrefix(databaseURL, "file://")
	}

	return file.NewPersistence(root), nil
}
