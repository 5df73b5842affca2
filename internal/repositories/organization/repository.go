// Package organization stores canonical organizations, upserted by
// canonical name with keep-existing semantics.
package organization

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

// OrganizationRepository defines the interface for canonical organization operations
type OrganizationRepository interface {
	Ensure(ctx context.Context, req models.EnsureOrganizationRequest) (*models.Organization, bool, error)
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetByCanonicalName(ctx context.Context, name string) (*models.Organization, error)
	List(ctx context.Context, search string, page, pageSize int) ([]models.Organization, int, error)
	ListAll(ctx context.Context) ([]models.Organization, error)
}

// Repository implements OrganizationRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new organization repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "organization"

const orgColumns = "id, canonical_name, org_type, country_code, org_number, website, notes, created_at, updated_at"

// Ensure upserts an organization by canonical name. Values already present
// on the canonical row win over newly supplied ones; only gaps are filled.
func (r *Repository) Ensure(ctx context.Context, req models.EnsureOrganizationRequest) (*models.Organization, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.Ensure")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO organization (id, canonical_name, org_type, country_code, org_number, website, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (canonical_name)
		DO UPDATE SET
			org_type = COALESCE(organization.org_type, EXCLUDED.org_type),
			country_code = COALESCE(organization.country_code, EXCLUDED.country_code),
			org_number = COALESCE(organization.org_number, EXCLUDED.org_number),
			website = COALESCE(organization.website, EXCLUDED.website),
			notes = COALESCE(organization.notes, EXCLUDED.notes),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + orgColumns + `, (xmax = 0) AS inserted
	`

	var result struct {
		models.Organization
		Inserted bool `db:"inserted"`
	}

	err := r.db.GetContext(ctx, &result, query,
		id, req.CanonicalName, req.OrgType, req.CountryCode, req.OrgNumber, req.Website, req.Notes, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"canonical_name": req.CanonicalName,
		}).Error("Failed to ensure organization")
		return nil, false, fmt.Errorf("failed to ensure organization: %w", err)
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"id":             result.ID,
			"canonical_name": result.CanonicalName,
		}).Info("Created organization")
	}

	return &result.Organization, result.Inserted, nil
}

// GetByID gets an organization by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name", "org_type", "country_code", "org_number", "website", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get organization by ID")
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// GetByCanonicalName gets an organization by exact canonical name
func (r *Repository) GetByCanonicalName(ctx context.Context, name string) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.GetByCanonicalName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name", "org_type", "country_code", "org_number", "website", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("canonical_name", name))

	query, args := sb.Build()

	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get organization by canonical name")
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// List returns organizations matching an optional case-insensitive name search
func (r *Repository) List(ctx context.Context, search string, page, pageSize int) ([]models.Organization, int, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name", "org_type", "country_code", "org_number", "website", "notes", "created_at", "updated_at")
	sb.From(tableName)
	if search != "" {
		sb.Where(sb.ILike("canonical_name", "%"+search+"%"))
	}
	sb.OrderBy("canonical_name")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()

	var orgs []models.Organization
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list organizations")
		return nil, 0, fmt.Errorf("failed to list organizations: %w", err)
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From(tableName)
	if search != "" {
		cb.Where(cb.ILike("canonical_name", "%"+search+"%"))
	}

	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count organizations")
		return nil, 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	return orgs, total, nil
}

// ListAll returns every organization, ordered by creation. Used by the
// entity resolver to build its in-memory lookup.
func (r *Repository) ListAll(ctx context.Context) ([]models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name", "org_type", "country_code", "org_number", "website", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var orgs []models.Organization
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list all organizations")
		return nil, fmt.Errorf("failed to list all organizations: %w", err)
	}

	return orgs, nil
}
