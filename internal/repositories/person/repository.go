// Package person stores canonical people, upserted by canonical name.
package person

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

// PersonRepository defines the interface for canonical person operations
type PersonRepository interface {
	Ensure(ctx context.Context, req models.EnsurePersonRequest) (*models.Person, bool, error)
	GetByID(ctx context.Context, id string) (*models.Person, error)
	GetByCanonicalName(ctx context.Context, name string) (*models.Person, error)
	List(ctx context.Context, search string, page, pageSize int) ([]models.Person, int, error)
	ListAll(ctx context.Context) ([]models.Person, error)
}

// Repository implements PersonRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "person"

const personColumns = "id, canonical_name, birth_year, country_code, notes, created_at, updated_at"

// Ensure upserts a person by canonical name. Values already present on the
// canonical row are kept; new values only fill gaps. Returns the row and
// whether it was newly inserted.
func (r *Repository) Ensure(ctx context.Context, req models.EnsurePersonRequest) (*models.Person, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Ensure")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO person (id, canonical_name, birth_year, country_code, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (canonical_name)
		DO UPDATE SET
			birth_year = COALESCE(person.birth_year, EXCLUDED.birth_year),
			country_code = COALESCE(person.country_code, EXCLUDED.country_code),
			notes = COALESCE(person.notes, EXCLUDED.notes),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + personColumns + `, (xmax = 0) AS inserted
	`

	var result struct {
		models.Person
		Inserted bool `db:"inserted"`
	}

	err := r.db.GetContext(ctx, &result, query,
		id, req.CanonicalName, req.BirthYear, req.CountryCode, req.Notes, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"canonical_name": req.CanonicalName,
		}).Error("Failed to ensure person")
		return nil, false, fmt.Errorf("failed to ensure person: %w", err)
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"id":             result.ID,
			"canonical_name": result.CanonicalName,
		}).Info("Created person")
	}

	return &result.Person, result.Inserted, nil
}

// GetByID gets a person by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name", "birth_year", "country_code", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var p models.Person
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get person by ID")
		return nil, fmt.Errorf("failed to get person: %w", err)
	}

	return &p, nil
}

// GetByCanonicalName gets a person by exact canonical name
func (r *Repository) GetByCanonicalName(ctx context.Context, name string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetByCanonicalName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name", "birth_year", "country_code", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("canonical_name", name))

	query, args := sb.Build()

	var p models.Person
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get person by canonical name")
		return nil, fmt.Errorf("failed to get person: %w", err)
	}

	return &p, nil
}

// List returns people matching an optional case-insensitive name search
func (r *Repository) List(ctx context.Context, search string, page, pageSize int) ([]models.Person, int, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name", "birth_year", "country_code", "notes", "created_at", "updated_at")
	sb.From(tableName)
	if search != "" {
		sb.Where(sb.ILike("canonical_name", "%"+search+"%"))
	}
	sb.OrderBy("canonical_name")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()

	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list people")
		return nil, 0, fmt.Errorf("failed to list people: %w", err)
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count people")
		return nil, 0, fmt.Errorf("failed to count people: %w", err)
	}

	return people, total, nil
}

// ListAll returns every person, for full graph projection
func (r *Repository) ListAll(ctx context.Context) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name", "birth_year", "country_code", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.OrderBy("canonical_name")

	query, args := sb.Build()

	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list people")
		return nil, fmt.Errorf("failed to list people: %w", err)
	}

	return people, nil
}
