// Package stagingrow stores raw parsed sheet rows exactly as received so
// normalization can be replayed without re-ingesting.
package stagingrow

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/fingerprint"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// StagingRowRepository defines the interface for staging row operations
type StagingRowRepository interface {
	CreateBatch(ctx context.Context, ingestRunID string, reqs []models.CreateStagingRowRequest) (int, error)
	ListBySheet(ctx context.Context, sourceSystem, sheetName string) ([]models.StagingRow, error)
	DeleteBySourceSystem(ctx context.Context, sourceSystem string) (int64, error)
}

// Repository implements StagingRowRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging row repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "staging_row"

// CreateBatch stages parsed rows under one ingest run. Rows are written in
// a single transaction; a failure stages nothing. A row whose fingerprint
// is already staged for this run is left untouched, so replaying an
// ingest never duplicates it. Returns rows actually written.
func (r *Repository) CreateBatch(ctx context.Context, ingestRunID string, reqs []models.CreateStagingRowRequest) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.CreateBatch")
	defer span.End()

	if len(reqs) == 0 {
		return 0, nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	inserted := 0

	const batchSize = 500
	for i := 0; i < len(reqs); i += batchSize {
		end := i + batchSize
		if end > len(reqs) {
			end = len(reqs)
		}

		sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		sb.InsertInto(tableName)
		sb.Cols("id", "ingest_run_id", "source_system", "sheet_name", "row_index", "row_payload", "fingerprint", "created_at")
		for _, req := range reqs[i:end] {
			fp, fpErr := fingerprint.GenerateFromJSON(req.RowPayload)
			if fpErr != nil {
				r.logger.WithContext(ctx).WithError(fpErr).WithFields(map[string]any{
					"sheet_name": req.SheetName,
					"row_index":  req.RowIndex,
				}).Error("Invalid staging row payload")
				return 0, fmt.Errorf("invalid staging row payload at row %d: %w", req.RowIndex, fpErr)
			}
			sb.Values(uuid.New().String(), ingestRunID, req.SourceSystem, req.SheetName, req.RowIndex, req.RowPayload, fp, now)
		}

		query, args := sb.Build()
		query += " ON CONFLICT (ingest_run_id, fingerprint) DO NOTHING"
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"ingest_run_id": ingestRunID,
			}).Error("Failed to stage rows")
			return 0, fmt.Errorf("failed to stage rows: %w", err)
		}
		batchInserted, _ := res.RowsAffected()
		inserted += int(batchInserted)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit staged rows: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"ingest_run_id": ingestRunID,
		"rows":          inserted,
	}).Info("Staged sheet rows")

	return inserted, nil
}

// ListBySheet returns the staged rows of one sheet in row order
func (r *Repository) ListBySheet(ctx context.Context, sourceSystem, sheetName string) ([]models.StagingRow, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.ListBySheet")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "ingest_run_id", "source_system", "sheet_name", "row_index", "row_payload", "fingerprint", "created_at")
	sb.From(tableName)
	sb.Where(
		sb.Equal("source_system", sourceSystem),
		sb.Equal("sheet_name", sheetName),
	)
	sb.OrderBy("row_index")

	query, args := sb.Build()

	var rows []models.StagingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list staging rows")
		return nil, fmt.Errorf("failed to list staging rows: %w", err)
	}

	return rows, nil
}

// DeleteBySourceSystem clears the staged rows of one source system
func (r *Repository) DeleteBySourceSystem(ctx context.Context, sourceSystem string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.DeleteBySourceSystem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(sb.Equal("source_system", sourceSystem))

	query, args := sb.Build()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete staging rows")
		return 0, fmt.Errorf("failed to delete staging rows: %w", err)
	}

	rows, _ := res.RowsAffected()
	return rows, nil
}
