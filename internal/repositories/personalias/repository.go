// Package personalias stores person name aliases. Like organization
// aliases they only grow, so two spellings of the same name converge on
// one canonical person and stay converged.
package personalias

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

// AliasRepository defines the interface for person alias operations
type AliasRepository interface {
	Ensure(ctx context.Context, personID, alias, aliasKey, sourceSystem string) (bool, error)
	ListByPerson(ctx context.Context, personID string) ([]models.PersonAlias, error)
	ListAll(ctx context.Context) ([]models.PersonAlias, error)
}

// Repository implements AliasRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person alias repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "person_alias"

// Ensure inserts an alias if its key is not already registered. The first
// person to claim a key owns it. Returns whether a new row was written.
func (r *Repository) Ensure(ctx context.Context, personID, alias, aliasKey, sourceSystem string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "personalias.Repository.Ensure")
	defer span.End()

	if aliasKey == "" {
		return false, nil
	}

	query := `
		INSERT INTO person_alias (id, person_id, alias, alias_key, source_system, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (alias_key) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), personID, alias, aliasKey, sourceSystem, time.Now().UTC(),
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"person_id": personID,
			"alias_key": aliasKey,
		}).Error("Failed to ensure person alias")
		return false, fmt.Errorf("failed to ensure person alias: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"person_id":     personID,
			"alias":         alias,
			"source_system": sourceSystem,
		}).Info("Registered person alias")
	}

	return rows > 0, nil
}

// ListByPerson returns the aliases of one person
func (r *Repository) ListByPerson(ctx context.Context, personID string) ([]models.PersonAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "personalias.Repository.ListByPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "person_id", "alias", "alias_key", "source_system", "created_at")
	sb.From(tableName)
	sb.Where(sb.Equal("person_id", personID))
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var aliases []models.PersonAlias
	if err := r.db.SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list person aliases")
		return nil, fmt.Errorf("failed to list person aliases: %w", err)
	}

	return aliases, nil
}

// ListAll returns every alias, in insertion order. The resolver loads this
// once per run; first-registered keys win on duplicates.
func (r *Repository) ListAll(ctx context.Context) ([]models.PersonAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "personalias.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "person_id", "alias", "alias_key", "source_system", "created_at")
	sb.From(tableName)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var aliases []models.PersonAlias
	if err := r.db.SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list all person aliases")
		return nil, fmt.Errorf("failed to list all person aliases: %w", err)
	}

	return aliases, nil
}
