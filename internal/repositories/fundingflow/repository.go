// Package fundingflow stores funding flows, the central fact table of the
// pipeline. Flows are upserted by a null-safe natural key so re-running
// normalization never duplicates them.
package fundingflow

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

// ListFilter narrows flow listings for the read API.
type ListFilter struct {
	SourceSystem  string
	MinConfidence float64
	Year          int
	DonorOrgID    string
	RecipientOrgID string
}

// FundingFlowRepository defines the interface for funding flow operations
type FundingFlowRepository interface {
	Upsert(ctx context.Context, req models.UpsertFundingFlowRequest) (*models.FundingFlow, bool, error)
	GetByID(ctx context.Context, id string) (*models.FundingFlow, error)
	List(ctx context.Context, filter ListFilter, page, pageSize int) ([]models.FundingFlow, int, error)
	ListAll(ctx context.Context) ([]models.FundingFlow, error)
	DeleteBySourceSystem(ctx context.Context, sourceSystem string) (int64, error)
}

// Repository implements FundingFlowRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new funding flow repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "funding_flow"

const flowColumns = "id, donor_org_id, donor_country_code, recipient_org_id, recipient_name_raw, amount_nok, amount_original, currency_code, announced_on, decided_on, fiscal_year, period_start, period_end, funding_channel, source_system, source_document_id, confidence, notes, created_at, updated_at"

// Upsert creates or updates a funding flow by its natural key. Amounts,
// confidence and notes take the latest values; the endpoints of the flow
// are part of the key and never change in place. Runs inside the caller's
// transaction when one is open on the context.
func (r *Repository) Upsert(ctx context.Context, req models.UpsertFundingFlowRequest) (*models.FundingFlow, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "fundingflow.Repository.Upsert")
	defer span.End()

	if !req.HasDonor() {
		return nil, false, fmt.Errorf("funding flow requires a donor organization or donor country")
	}
	if !req.HasRecipient() {
		return nil, false, fmt.Errorf("funding flow requires a recipient organization or raw recipient name")
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, false, fmt.Errorf("confidence %f out of range [0,1]", req.Confidence)
	}
	if req.FiscalYear != nil && (*req.FiscalYear < 1900 || *req.FiscalYear > 2100) {
		return nil, false, fmt.Errorf("fiscal year %d out of range [1900,2100]", *req.FiscalYear)
	}
	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.Before(*req.PeriodStart) {
		return nil, false, fmt.Errorf("period end %s precedes period start %s", req.PeriodEnd.Format("2006-01-02"), req.PeriodStart.Format("2006-01-02"))
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO funding_flow (
			id, donor_org_id, donor_country_code, recipient_org_id, recipient_name_raw,
			amount_nok, amount_original, currency_code, announced_on, decided_on,
			fiscal_year, period_start, period_end,
			funding_channel, source_system, source_document_id, confidence, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (
			source_system,
			COALESCE(source_document_id, '00000000-0000-0000-0000-000000000000'::uuid),
			COALESCE(donor_org_id, '00000000-0000-0000-0000-000000000000'::uuid),
			COALESCE(donor_country_code, ''),
			COALESCE(recipient_org_id, '00000000-0000-0000-0000-000000000000'::uuid),
			COALESCE(recipient_name_raw, ''),
			COALESCE(announced_on, '0001-01-01'::date)
		)
		DO UPDATE SET
			amount_nok = COALESCE(EXCLUDED.amount_nok, funding_flow.amount_nok),
			amount_original = COALESCE(EXCLUDED.amount_original, funding_flow.amount_original),
			currency_code = COALESCE(EXCLUDED.currency_code, funding_flow.currency_code),
			decided_on = COALESCE(EXCLUDED.decided_on, funding_flow.decided_on),
			fiscal_year = COALESCE(EXCLUDED.fiscal_year, funding_flow.fiscal_year),
			period_start = COALESCE(EXCLUDED.period_start, funding_flow.period_start),
			period_end = COALESCE(EXCLUDED.period_end, funding_flow.period_end),
			funding_channel = COALESCE(EXCLUDED.funding_channel, funding_flow.funding_channel),
			confidence = EXCLUDED.confidence,
			notes = COALESCE(EXCLUDED.notes, funding_flow.notes),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + flowColumns + `, (xmax = 0) AS inserted
	`

	var result struct {
		models.FundingFlow
		Inserted bool `db:"inserted"`
	}

	err = tx.GetContext(ctx, &result, query,
		id, req.DonorOrgID, req.DonorCountryCode, req.RecipientOrgID, req.RecipientNameRaw,
		req.AmountNOK, req.AmountOriginal, req.CurrencyCode, req.AnnouncedOn, req.DecidedOn,
		req.FiscalYear, req.PeriodStart, req.PeriodEnd,
		req.FundingChannel, req.SourceSystem, req.SourceDocumentID, req.Confidence, req.Notes, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_system": req.SourceSystem,
		}).Error("Failed to upsert funding flow")
		return nil, false, fmt.Errorf("failed to upsert funding flow: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit funding flow upsert: %w", err)
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"id":            result.ID,
			"source_system": result.SourceSystem,
		}).Info("Created funding flow")
	}

	return &result.FundingFlow, result.Inserted, nil
}

// GetByID gets a funding flow by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.FundingFlow, error) {
	ctx, span := tracing.StartSpan(ctx, "fundingflow.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "donor_org_id", "donor_country_code", "recipient_org_id", "recipient_name_raw", "amount_nok", "amount_original", "currency_code", "announced_on", "decided_on", "fiscal_year", "period_start", "period_end", "funding_channel", "source_system", "source_document_id", "confidence", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var flow models.FundingFlow
	if err := r.db.GetContext(ctx, &flow, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get funding flow by ID")
		return nil, fmt.Errorf("failed to get funding flow: %w", err)
	}

	return &flow, nil
}

// List returns funding flows matching the filter
func (r *Repository) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]models.FundingFlow, int, error) {
	ctx, span := tracing.StartSpan(ctx, "fundingflow.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	build := func(sb *sqlbuilder.SelectBuilder) {
		sb.From(tableName)
		if filter.SourceSystem != "" {
			sb.Where(sb.Equal("source_system", filter.SourceSystem))
		}
		if filter.MinConfidence > 0 {
			sb.Where(sb.GreaterEqualThan("confidence", filter.MinConfidence))
		}
		if filter.Year > 0 {
			start := time.Date(filter.Year, 1, 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(1, 0, 0)
			sb.Where(sb.GreaterEqualThan("announced_on", start), sb.LessThan("announced_on", end))
		}
		if filter.DonorOrgID != "" {
			sb.Where(sb.Equal("donor_org_id", filter.DonorOrgID))
		}
		if filter.RecipientOrgID != "" {
			sb.Where(sb.Equal("recipient_org_id", filter.RecipientOrgID))
		}
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "donor_org_id", "donor_country_code", "recipient_org_id", "recipient_name_raw", "amount_nok", "amount_original", "currency_code", "announced_on", "decided_on", "fiscal_year", "period_start", "period_end", "funding_channel", "source_system", "source_document_id", "confidence", "notes", "created_at", "updated_at")
	build(sb)
	sb.OrderBy("announced_on DESC NULLS LAST", "created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()

	var flows []models.FundingFlow
	if err := r.db.SelectContext(ctx, &flows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list funding flows")
		return nil, 0, fmt.Errorf("failed to list funding flows: %w", err)
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	build(cb)

	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count funding flows")
		return nil, 0, fmt.Errorf("failed to count funding flows: %w", err)
	}

	return flows, total, nil
}

// ListAll returns every funding flow for projection
func (r *Repository) ListAll(ctx context.Context) ([]models.FundingFlow, error) {
	ctx, span := tracing.StartSpan(ctx, "fundingflow.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "donor_org_id", "donor_country_code", "recipient_org_id", "recipient_name_raw", "amount_nok", "amount_original", "currency_code", "announced_on", "decided_on", "fiscal_year", "period_start", "period_end", "funding_channel", "source_system", "source_document_id", "confidence", "notes", "created_at", "updated_at")
	sb.From(tableName)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var flows []models.FundingFlow
	if err := r.db.SelectContext(ctx, &flows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list all funding flows")
		return nil, fmt.Errorf("failed to list all funding flows: %w", err)
	}

	return flows, nil
}

// DeleteBySourceSystem removes the derived flows of one source system so it
// can be re-normalized from staging. Ingest keys cascade with the flows.
func (r *Repository) DeleteBySourceSystem(ctx context.Context, sourceSystem string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "fundingflow.Repository.DeleteBySourceSystem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(sb.Equal("source_system", sourceSystem))

	query, args := sb.Build()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_system": sourceSystem,
		}).Error("Failed to delete funding flows by source system")
		return 0, fmt.Errorf("failed to delete funding flows: %w", err)
	}

	rows, _ := res.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"source_system": sourceSystem,
		"deleted":       rows,
	}).Info("Deleted derived funding flows")

	return rows, nil
}
