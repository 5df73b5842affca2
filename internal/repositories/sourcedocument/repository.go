// Package sourcedocument stores the provenance documents canonical facts
// point at.
package sourcedocument

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

// SourceDocumentRepository defines the interface for source document operations
type SourceDocumentRepository interface {
	Ensure(ctx context.Context, req models.EnsureSourceDocumentRequest) (*models.SourceDocument, error)
	GetByID(ctx context.Context, id string) (*models.SourceDocument, error)
	ListAll(ctx context.Context) ([]models.SourceDocument, error)
}

// Repository implements SourceDocumentRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new source document repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "source_document"

const docColumns = "id, title, publisher, url, doc_type, published_on, retrieved_at, external_ref, created_at"

// Ensure upserts a source document so re-ingests of the same source reuse
// the same provenance row. Documents are matched by external_ref when set,
// otherwise by URL; documents with neither are always inserted.
func (r *Repository) Ensure(ctx context.Context, req models.EnsureSourceDocumentRequest) (*models.SourceDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcedocument.Repository.Ensure")
	defer span.End()

	if req.ExternalRef != nil {
		if doc, err := r.getByColumn(ctx, "external_ref", *req.ExternalRef); err != nil || doc != nil {
			return doc, err
		}
	} else if req.URL != nil {
		if doc, err := r.getByColumn(ctx, "url", *req.URL); err != nil || doc != nil {
			return doc, err
		}
	}

	now := time.Now().UTC()
	id := uuid.New().String()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "title", "publisher", "url", "doc_type", "published_on", "retrieved_at", "external_ref", "created_at")
	sb.Values(id, req.Title, req.Publisher, req.URL, req.DocType, req.PublishedOn, req.RetrievedAt, req.ExternalRef, now)

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create source document")
		return nil, fmt.Errorf("failed to create source document: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id": id,
	}).Info("Created source document")

	return r.GetByID(ctx, id)
}

func (r *Repository) getByColumn(ctx context.Context, column, value string) (*models.SourceDocument, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "title", "publisher", "url", "doc_type", "published_on", "retrieved_at", "external_ref", "created_at")
	sb.From(tableName)
	sb.Where(sb.Equal(column, value))
	sb.Limit(1)

	query, args := sb.Build()

	var doc models.SourceDocument
	if err := r.db.GetContext(ctx, &doc, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get source document")
		return nil, fmt.Errorf("failed to get source document: %w", err)
	}

	return &doc, nil
}

// GetByID gets a source document by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.SourceDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcedocument.Repository.GetByID")
	defer span.End()

	return r.getByColumn(ctx, "id", id)
}

// ListAll returns every source document for projection
func (r *Repository) ListAll(ctx context.Context) ([]models.SourceDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcedocument.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "title", "publisher", "url", "doc_type", "published_on", "retrieved_at", "external_ref", "created_at")
	sb.From(tableName)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var docs []models.SourceDocument
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list source documents")
		return nil, fmt.Errorf("failed to list source documents: %w", err)
	}

	return docs, nil
}
