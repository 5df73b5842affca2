// Package roleevent stores role events, upserted by their natural key
// (person, organization, role title, start date) with start_on null-safe.
package roleevent

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

// RoleEventRepository defines the interface for role event operations
type RoleEventRepository interface {
	Upsert(ctx context.Context, req models.UpsertRoleEventRequest) (*models.RoleEvent, bool, error)
	ListByPerson(ctx context.Context, personID string) ([]models.RoleEvent, error)
	ListAll(ctx context.Context) ([]models.RoleEvent, error)
}

// Repository implements RoleEventRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new role event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "role_event"

const roleEventColumns = "id, person_id, organization_id, role_title, role_level, announced_on, start_on, end_on, source_document_id, confidence, notes, created_at, updated_at"

// Upsert creates or updates a role event by its natural key. Existing
// values are kept; the new row only fills gaps, mirroring how canonical
// entities are consolidated.
func (r *Repository) Upsert(ctx context.Context, req models.UpsertRoleEventRequest) (*models.RoleEvent, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "roleevent.Repository.Upsert")
	defer span.End()

	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, false, fmt.Errorf("confidence %f out of range [0,1]", req.Confidence)
	}
	if req.StartOn != nil && req.EndOn != nil && req.EndOn.Before(*req.StartOn) {
		return nil, false, fmt.Errorf("end date %s precedes start date %s", req.EndOn.Format("2006-01-02"), req.StartOn.Format("2006-01-02"))
	}

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO role_event (
			id, person_id, organization_id, role_title, role_level,
			announced_on, start_on, end_on, source_document_id, confidence, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (person_id, organization_id, role_title, COALESCE(start_on, '0001-01-01'::date))
		DO UPDATE SET
			role_level = COALESCE(role_event.role_level, EXCLUDED.role_level),
			announced_on = COALESCE(role_event.announced_on, EXCLUDED.announced_on),
			end_on = COALESCE(role_event.end_on, EXCLUDED.end_on),
			source_document_id = COALESCE(role_event.source_document_id, EXCLUDED.source_document_id),
			confidence = GREATEST(role_event.confidence, EXCLUDED.confidence),
			notes = COALESCE(role_event.notes, EXCLUDED.notes),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + roleEventColumns + `, (xmax = 0) AS inserted
	`

	var result struct {
		models.RoleEvent
		Inserted bool `db:"inserted"`
	}

	err := r.db.GetContext(ctx, &result, query,
		id, req.PersonID, req.OrganizationID, req.RoleTitle, req.RoleLevel,
		req.AnnouncedOn, req.StartOn, req.EndOn, req.SourceDocumentID, req.Confidence, req.Notes, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"person_id":       req.PersonID,
			"organization_id": req.OrganizationID,
			"role_title":      req.RoleTitle,
		}).Error("Failed to upsert role event")
		return nil, false, fmt.Errorf("failed to upsert role event: %w", err)
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"id":         result.ID,
			"role_title": result.RoleTitle,
		}).Info("Created role event")
	}

	return &result.RoleEvent, result.Inserted, nil
}

// ListByPerson returns the role events of one person, newest start first
func (r *Repository) ListByPerson(ctx context.Context, personID string) ([]models.RoleEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "roleevent.Repository.ListByPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "person_id", "organization_id", "role_title", "role_level", "announced_on", "start_on", "end_on", "source_document_id", "confidence", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("person_id", personID))
	sb.OrderBy("start_on DESC NULLS LAST")

	query, args := sb.Build()

	var events []models.RoleEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list role events by person")
		return nil, fmt.Errorf("failed to list role events: %w", err)
	}

	return events, nil
}

// ListAll returns every role event for projection
func (r *Repository) ListAll(ctx context.Context) ([]models.RoleEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "roleevent.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "person_id", "organization_id", "role_title", "role_level", "announced_on", "start_on", "end_on", "source_document_id", "confidence", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var events []models.RoleEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list all role events")
		return nil, fmt.Errorf("failed to list all role events: %w", err)
	}

	return events, nil
}
