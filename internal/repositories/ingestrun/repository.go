// Package ingestrun tracks pipeline job executions. Every job opens a run
// before touching data and closes it success or failed with its totals.
package ingestrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// IngestRunRepository defines the interface for ingest run operations
type IngestRunRepository interface {
	StartRun(ctx context.Context, sourceSystem, jobName string) (*models.IngestRun, error)
	FinishRun(ctx context.Context, runID, status string, counts models.RunCounts, notes any) error
	GetByID(ctx context.Context, id string) (*models.IngestRun, error)
	ListRecent(ctx context.Context, limit int) ([]models.IngestRun, error)
}

// Repository implements IngestRunRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new ingest run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "ingest_run"

// StartRun opens a running ingest run for a job
func (r *Repository) StartRun(ctx context.Context, sourceSystem, jobName string) (*models.IngestRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestrun.Repository.StartRun")
	defer span.End()

	id := uuid.New().String()
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "source_system", "job_name", "status", "started_at")
	sb.Values(id, sourceSystem, jobName, models.RunStatusRunning, now)

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_system": sourceSystem,
			"job_name":      jobName,
		}).Error("Failed to start ingest run")
		return nil, fmt.Errorf("failed to start ingest run: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":        id,
		"source_system": sourceSystem,
		"job_name":      jobName,
	}).Info("Started ingest run")

	return r.GetByID(ctx, id)
}

// FinishRun closes a run with its status, totals, and optional notes. The
// notes value is marshaled to JSON.
func (r *Repository) FinishRun(ctx context.Context, runID, status string, counts models.RunCounts, notes any) error {
	ctx, span := tracing.StartSpan(ctx, "ingestrun.Repository.FinishRun")
	defer span.End()

	var notesJSON *string
	if notes != nil {
		b, err := json.Marshal(notes)
		if err != nil {
			return fmt.Errorf("failed to marshal run notes: %w", err)
		}
		s := string(b)
		notesJSON = &s
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("finished_at", time.Now().UTC()),
		sb.Assign("rows_seen", counts.RowsSeen),
		sb.Assign("rows_ingested", counts.RowsIngested),
		sb.Assign("rows_skipped", counts.RowsSkipped),
		sb.Assign("notes", notesJSON),
	)
	sb.Where(sb.Equal("id", runID))

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": runID,
			"status": status,
		}).Error("Failed to finish ingest run")
		return fmt.Errorf("failed to finish ingest run: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":        runID,
		"status":        status,
		"rows_seen":     counts.RowsSeen,
		"rows_ingested": counts.RowsIngested,
		"rows_skipped":  counts.RowsSkipped,
	}).Info("Finished ingest run")

	return nil
}

// GetByID gets an ingest run by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.IngestRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestrun.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "source_system", "job_name", "status", "started_at", "finished_at", "rows_seen", "rows_ingested", "rows_skipped", "notes")
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var run models.IngestRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get ingest run")
		return nil, fmt.Errorf("failed to get ingest run: %w", err)
	}

	return &run, nil
}

// ListRecent returns the newest runs, most recent first
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.IngestRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestrun.Repository.ListRecent")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "source_system", "job_name", "status", "started_at", "finished_at", "rows_seen", "rows_ingested", "rows_skipped", "notes")
	sb.From(tableName)
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()

	var runs []models.IngestRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list ingest runs")
		return nil, fmt.Errorf("failed to list ingest runs: %w", err)
	}

	return runs, nil
}
