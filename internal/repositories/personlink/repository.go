// Package personlink stores curated person-to-person relationships. A
// link is undirected: the pair is normalized so the smaller person id is
// always person_a, and self-links are rejected.
package personlink

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

// PersonLinkRepository defines the interface for person link operations
type PersonLinkRepository interface {
	Upsert(ctx context.Context, req models.UpsertPersonLinkRequest) (*models.PersonLink, bool, error)
	ListByPerson(ctx context.Context, personID string) ([]models.PersonLink, error)
	ListAll(ctx context.Context) ([]models.PersonLink, error)
}

// Repository implements PersonLinkRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "person_link"

const linkColumns = "id, person_a_id, person_b_id, relation_type, relation_label, start_on, end_on, confidence, source_document_id, notes, created_at, updated_at"

// Upsert creates or refreshes a curated link by its natural key
// (person_a, person_b, relation_type, start_on). The pair may arrive in
// either order; it is sorted before writing so the same relationship can
// never exist twice in opposite directions. Confidence only ever grows.
func (r *Repository) Upsert(ctx context.Context, req models.UpsertPersonLinkRequest) (*models.PersonLink, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "personlink.Repository.Upsert")
	defer span.End()

	if req.PersonAID == req.PersonBID {
		return nil, false, fmt.Errorf("person link endpoints must differ: %s", req.PersonAID)
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, false, fmt.Errorf("confidence %f out of range [0,1]", req.Confidence)
	}
	if req.StartOn != nil && req.EndOn != nil && req.EndOn.Before(*req.StartOn) {
		return nil, false, fmt.Errorf("end date %s precedes start date %s", req.EndOn.Format("2006-01-02"), req.StartOn.Format("2006-01-02"))
	}

	personA, personB := req.PersonAID, req.PersonBID
	if personB < personA {
		personA, personB = personB, personA
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO person_link (
			id, person_a_id, person_b_id, relation_type, relation_label,
			start_on, end_on, confidence, source_document_id, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (person_a_id, person_b_id, relation_type, COALESCE(start_on, '0001-01-01'::date))
		DO UPDATE SET
			relation_label = COALESCE(EXCLUDED.relation_label, person_link.relation_label),
			end_on = COALESCE(EXCLUDED.end_on, person_link.end_on),
			confidence = GREATEST(person_link.confidence, EXCLUDED.confidence),
			source_document_id = COALESCE(EXCLUDED.source_document_id, person_link.source_document_id),
			notes = COALESCE(EXCLUDED.notes, person_link.notes),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + linkColumns + `, (xmax = 0) AS inserted
	`

	var result struct {
		models.PersonLink
		Inserted bool `db:"inserted"`
	}

	err := r.db.GetContext(ctx, &result, query,
		uuid.New().String(), personA, personB, req.RelationType, req.RelationLabel,
		req.StartOn, req.EndOn, req.Confidence, req.SourceDocumentID, req.Notes, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"person_a_id":   personA,
			"person_b_id":   personB,
			"relation_type": req.RelationType,
		}).Error("Failed to upsert person link")
		return nil, false, fmt.Errorf("failed to upsert person link: %w", err)
	}

	return &result.PersonLink, result.Inserted, nil
}

// ListByPerson returns links touching one person, on either side
func (r *Repository) ListByPerson(ctx context.Context, personID string) ([]models.PersonLink, error) {
	ctx, span := tracing.StartSpan(ctx, "personlink.Repository.ListByPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "person_a_id", "person_b_id", "relation_type", "relation_label", "start_on", "end_on", "confidence", "source_document_id", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Or(
		sb.Equal("person_a_id", personID),
		sb.Equal("person_b_id", personID),
	))
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var links []models.PersonLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list person links")
		return nil, fmt.Errorf("failed to list person links: %w", err)
	}

	return links, nil
}

// ListAll returns every curated link for projection
func (r *Repository) ListAll(ctx context.Context) ([]models.PersonLink, error) {
	ctx, span := tracing.StartSpan(ctx, "personlink.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "person_a_id", "person_b_id", "relation_type", "relation_label", "start_on", "end_on", "confidence", "source_document_id", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var links []models.PersonLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list all person links")
		return nil, fmt.Errorf("failed to list all person links: %w", err)
	}

	return links, nil
}
