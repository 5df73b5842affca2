// Package iatistaging stores harvested activities and their transactions
// before normalization.
package iatistaging

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

// StagingRepository defines the interface for harvested activity staging
type StagingRepository interface {
	InsertActivity(ctx context.Context, activity models.IATIActivity) (*models.IATIActivity, error)
	InsertTransactions(ctx context.Context, txs []models.IATITransaction) (int, error)
	ListTransactions(ctx context.Context) ([]models.IATITransaction, error)
	GetActivity(ctx context.Context, id string) (*models.IATIActivity, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Repository implements StagingRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const activityColumns = "id, ingest_run_id, activity_id, reporting_org_ref, reporting_org_name, title, recipient_country_code, resource_url, payload, created_at"
const transactionColumns = "id, ingest_run_id, activity_row_id, event_key, transaction_type_code, transaction_date, value, currency, provider_ref, provider_name, receiver_ref, receiver_name, description, payload, created_at"

// InsertActivity stages one harvested activity
func (r *Repository) InsertActivity(ctx context.Context, activity models.IATIActivity) (*models.IATIActivity, error) {
	ctx, span := tracing.StartSpan(ctx, "iatistaging.Repository.InsertActivity")
	defer span.End()

	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	activity.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("iati_activity")
	sb.Cols("id", "ingest_run_id", "activity_id", "reporting_org_ref", "reporting_org_name", "title", "recipient_country_code", "resource_url", "payload", "created_at")
	sb.Values(activity.ID, activity.IngestRunID, activity.ActivityID, activity.ReportingOrgRef, activity.ReportingOrgName, activity.Title, activity.RecipientCountryCode, activity.ResourceURL, activity.Payload, activity.CreatedAt)

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"activity_id": activity.ActivityID,
		}).Error("Failed to stage activity")
		return nil, fmt.Errorf("failed to stage activity: %w", err)
	}

	return &activity, nil
}

// InsertTransactions stages the transactions of an activity in one batch.
// A transaction already staged for the same run (by event key) is left
// untouched, so re-harvesting a source is safe. Returns how many rows
// were actually written.
func (r *Repository) InsertTransactions(ctx context.Context, txs []models.IATITransaction) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "iatistaging.Repository.InsertTransactions")
	defer span.End()

	if len(txs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("iati_transaction")
	sb.Cols("id", "ingest_run_id", "activity_row_id", "event_key", "transaction_type_code", "transaction_date", "value", "currency", "provider_ref", "provider_name", "receiver_ref", "receiver_name", "description", "payload", "created_at")
	for _, t := range txs {
		id := t.ID
		if id == "" {
			id = uuid.New().String()
		}
		sb.Values(id, t.IngestRunID, t.ActivityRowID, t.EventKey, t.TransactionTypeCode, t.TransactionDate, t.Value, t.Currency, t.ProviderRef, t.ProviderName, t.ReceiverRef, t.ReceiverName, t.Description, t.Payload, now)
	}

	query, args := sb.Build()
	query += " ON CONFLICT (ingest_run_id, event_key) DO NOTHING"

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to stage transactions")
		return 0, fmt.Errorf("failed to stage transactions: %w", err)
	}

	inserted, _ := res.RowsAffected()
	return int(inserted), nil
}

// ListTransactions returns all staged transactions in ingest order
func (r *Repository) ListTransactions(ctx context.Context) ([]models.IATITransaction, error) {
	ctx, span := tracing.StartSpan(ctx, "iatistaging.Repository.ListTransactions")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "ingest_run_id", "activity_row_id", "event_key", "transaction_type_code", "transaction_date", "value", "currency", "provider_ref", "provider_name", "receiver_ref", "receiver_name", "description", "payload", "created_at")
	sb.From("iati_transaction")
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()

	var txs []models.IATITransaction
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list staged transactions")
		return nil, fmt.Errorf("failed to list staged transactions: %w", err)
	}

	return txs, nil
}

// GetActivity gets one staged activity row by its row ID
func (r *Repository) GetActivity(ctx context.Context, id string) (*models.IATIActivity, error) {
	ctx, span := tracing.StartSpan(ctx, "iatistaging.Repository.GetActivity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "ingest_run_id", "activity_id", "reporting_org_ref", "reporting_org_name", "title", "recipient_country_code", "resource_url", "payload", "created_at")
	sb.From("iati_activity")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var activity models.IATIActivity
	if err := r.db.GetContext(ctx, &activity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get staged activity")
		return nil, fmt.Errorf("failed to get staged activity: %w", err)
	}

	return &activity, nil
}

// DeleteAll clears the harvested staging tables
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "iatistaging.Repository.DeleteAll")
	defer span.End()

	res, err := r.db.ExecContext(ctx, "DELETE FROM iati_activity")
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear staged activities")
		return 0, fmt.Errorf("failed to clear staged activities: %w", err)
	}

	rows, _ := res.RowsAffected()
	return rows, nil
}
