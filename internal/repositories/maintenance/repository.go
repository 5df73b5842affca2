// Package maintenance holds the destructive rebuild operations: truncating
// the canonical core before a full re-normalization.
package maintenance

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// MaintenanceRepository defines the destructive maintenance operations
type MaintenanceRepository interface {
	TruncateCore(ctx context.Context) error
}

// Repository implements MaintenanceRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new maintenance repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// coreTables are the canonical tables cleared before a full rebuild.
// Staging and provenance runs are kept; ingest keys cascade with flows.
var coreTables = []string{
	"fact_source_document",
	"funding_ingest_key",
	"person_link",
	"funding_flow",
	"role_event",
	"organization_alias",
	"organization",
	"person_alias",
	"person",
}

// TruncateCore clears the canonical model so normalization can rebuild it
// from staging. Provenance documents and runs are preserved.
func (r *Repository) TruncateCore(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "maintenance.Repository.TruncateCore")
	defer span.End()

	for _, table := range coreTables {
		if _, err := r.db.ExecContext(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"table": table,
			}).Error("Failed to truncate core table")
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	r.logger.WithContext(ctx).Warn("Truncated canonical core tables")
	return nil
}
