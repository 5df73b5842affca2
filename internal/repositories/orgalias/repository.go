// Package orgalias stores organization aliases. Aliases only grow; nothing
// in the pipeline deletes them, so resolution gets strictly better over time.
package orgalias

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

// AliasRepository defines the interface for organization alias operations
type AliasRepository interface {
	Ensure(ctx context.Context, organizationID, alias, aliasKey, sourceSystem string) (bool, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]models.OrganizationAlias, error)
	ListAll(ctx context.Context) ([]models.OrganizationAlias, error)
}

// Repository implements AliasRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new alias repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "organization_alias"

// Ensure inserts an alias if its key is not already registered. Conflicts
// on alias_key are silently kept as-is: the first organization to claim a
// key owns it. Returns whether a new alias row was written.
func (r *Repository) Ensure(ctx context.Context, organizationID, alias, aliasKey, sourceSystem string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "orgalias.Repository.Ensure")
	defer span.End()

	if aliasKey == "" {
		return false, nil
	}

	query := `
		INSERT INTO organization_alias (id, organization_id, alias, alias_key, source_system, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (alias_key) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), organizationID, alias, aliasKey, sourceSystem, time.Now().UTC(),
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"organization_id": organizationID,
			"alias_key":       aliasKey,
		}).Error("Failed to ensure organization alias")
		return false, fmt.Errorf("failed to ensure organization alias: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"organization_id": organizationID,
			"alias":           alias,
			"source_system":   sourceSystem,
		}).Info("Registered organization alias")
	}

	return rows > 0, nil
}

// ListByOrganization returns the aliases of one organization
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]models.OrganizationAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "orgalias.Repository.ListByOrganization")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "organization_id", "alias", "alias_key", "source_system", "created_at")
	sb.From(tableName)
	sb.Where(sb.Equal("organization_id", organizationID))
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var aliases []models.OrganizationAlias
	if err := r.db.SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list organization aliases")
		return nil, fmt.Errorf("failed to list organization aliases: %w", err)
	}

	return aliases, nil
}

// ListAll returns every alias, in insertion order. The resolver loads this
// once per run; first-registered keys win on duplicates.
func (r *Repository) ListAll(ctx context.Context) ([]models.OrganizationAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "orgalias.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "organization_id", "alias", "alias_key", "source_system", "created_at")
	sb.From(tableName)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var aliases []models.OrganizationAlias
	if err := r.db.SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list all aliases")
		return nil, fmt.Errorf("failed to list all aliases: %w", err)
	}

	return aliases, nil
}
