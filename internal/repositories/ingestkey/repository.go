// Package ingestkey is the durable dedup ledger for funding events. A key
// is registered in the same transaction as its funding flow, so an event
// is either fully applied or not recorded at all.
package ingestkey

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// IngestKeyRepository defines the interface for ingest key operations
type IngestKeyRepository interface {
	Lookup(ctx context.Context, sourceSystem, eventKey string) (*models.FundingIngestKey, error)
	Register(ctx context.Context, sourceSystem, eventKey, fundingFlowID string) (*models.FundingIngestKey, bool, error)
	CountBySourceSystem(ctx context.Context, sourceSystem string) (int, error)
}

// Repository implements IngestKeyRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new ingest key repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "funding_ingest_key"

// Lookup returns the key record for (source_system, event_key), or nil when
// the event has never been applied.
func (r *Repository) Lookup(ctx context.Context, sourceSystem, eventKey string) (*models.FundingIngestKey, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestkey.Repository.Lookup")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "source_system", "event_key", "funding_flow_id", "first_seen_at", "last_seen_at")
	sb.From(tableName)
	sb.Where(
		sb.Equal("source_system", sourceSystem),
		sb.Equal("event_key", eventKey),
	)

	query, args := sb.Build()

	var key models.FundingIngestKey
	if err := r.db.GetContext(ctx, &key, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to look up ingest key")
		return nil, fmt.Errorf("failed to look up ingest key: %w", err)
	}

	return &key, nil
}

// Register records that an event has been applied to the given funding
// flow. Runs inside the caller's transaction when one is open on the
// context. On conflict the existing mapping is kept and only last_seen_at
// moves forward; the unique constraint makes concurrent registration of
// the same event resolve to a single applied flow. Returns whether the
// key was newly registered.
func (r *Repository) Register(ctx context.Context, sourceSystem, eventKey, fundingFlowID string) (*models.FundingIngestKey, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestkey.Repository.Register")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	query := `
		INSERT INTO funding_ingest_key (id, source_system, event_key, funding_flow_id, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_system, event_key)
		DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, source_system, event_key, funding_flow_id, first_seen_at, last_seen_at, (xmax = 0) AS inserted
	`

	var result struct {
		models.FundingIngestKey
		Inserted bool `db:"inserted"`
	}

	err = tx.GetContext(ctx, &result, query,
		uuid.New().String(), sourceSystem, eventKey, fundingFlowID, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_system": sourceSystem,
			"event_key":     eventKey,
		}).Error("Failed to register ingest key")
		return nil, false, fmt.Errorf("failed to register ingest key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit ingest key: %w", err)
	}

	return &result.FundingIngestKey, result.Inserted, nil
}

// CountBySourceSystem returns how many events one source has applied
func (r *Repository) CountBySourceSystem(ctx context.Context, sourceSystem string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestkey.Repository.CountBySourceSystem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(tableName)
	sb.Where(sb.Equal("source_system", sourceSystem))

	query, args := sb.Build()

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count ingest keys")
		return 0, fmt.Errorf("failed to count ingest keys: %w", err)
	}

	return count, nil
}
