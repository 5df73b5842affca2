// Package evidence links canonical facts to the source documents that
// support them.
package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// EvidenceRepository defines the interface for evidence link operations
type EvidenceRepository interface {
	Ensure(ctx context.Context, factType, factID, sourceDocumentID, relationType string) error
	ListByFact(ctx context.Context, factType, factID string) ([]models.Evidence, error)
	ListByFactType(ctx context.Context, factType string) ([]models.Evidence, error)
}

// Repository implements EvidenceRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new evidence repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "fact_source_document"

// Ensure records that a document supports a fact. Duplicate links are
// silently kept.
func (r *Repository) Ensure(ctx context.Context, factType, factID, sourceDocumentID, relationType string) error {
	ctx, span := tracing.StartSpan(ctx, "evidence.Repository.Ensure")
	defer span.End()

	query := `
		INSERT INTO fact_source_document (id, fact_type, fact_id, source_document_id, relation_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fact_type, fact_id, source_document_id, relation_type) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), factType, factID, sourceDocumentID, relationType, time.Now().UTC(),
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"fact_type":     factType,
			"fact_id":       factID,
			"relation_type": relationType,
		}).Error("Failed to link evidence")
		return fmt.Errorf("failed to link evidence: %w", err)
	}

	return nil
}

// ListByFact returns the evidence links of one fact
func (r *Repository) ListByFact(ctx context.Context, factType, factID string) ([]models.Evidence, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Repository.ListByFact")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "fact_type", "fact_id", "source_document_id", "relation_type", "created_at")
	sb.From(tableName)
	sb.Where(
		sb.Equal("fact_type", factType),
		sb.Equal("fact_id", factID),
	)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var links []models.Evidence
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list evidence")
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}

	return links, nil
}

// ListByFactType returns every evidence link for one fact type, for
// projection.
func (r *Repository) ListByFactType(ctx context.Context, factType string) ([]models.Evidence, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Repository.ListByFactType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "fact_type", "fact_id", "source_document_id", "relation_type", "created_at")
	sb.From(tableName)
	sb.Where(sb.Equal("fact_type", factType))
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var links []models.Evidence
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list evidence by fact type")
		return nil, fmt.Errorf("failed to list evidence by fact type: %w", err)
	}

	return links, nil
}
