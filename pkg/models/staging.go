package models

import (
	"encoding/json"
	"time"
)

// Source systems known to the pipeline.
const (
	SourceSystemCuratedSheet = "curated_sheet"
	SourceSystemIATI         = "iati"
	SourceSystemNorad        = "norad"
	SourceSystemOECD         = "oecd"
)

// StagingRow is one raw parsed sheet row. The pipeline receives rows
// already parsed into maps; the payload is stored verbatim for replay.
type StagingRow struct {
	ID           string          `json:"id" db:"id"`
	IngestRunID  string          `json:"ingest_run_id" db:"ingest_run_id"`
	SourceSystem string          `json:"source_system" db:"source_system"`
	SheetName    string          `json:"sheet_name" db:"sheet_name"`
	RowIndex     int             `json:"row_index" db:"row_index"`
	RowPayload   json.RawMessage `json:"row_payload" db:"row_payload"`
	Fingerprint  string          `json:"fingerprint" db:"fingerprint"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// CreateStagingRowRequest stages one parsed sheet row.
type CreateStagingRowRequest struct {
	SourceSystem string          `json:"source_system" validate:"required"`
	SheetName    string          `json:"sheet_name" validate:"required"`
	RowIndex     int             `json:"row_index"`
	RowPayload   json.RawMessage `json:"row_payload" validate:"required"`
}

// IATIActivity is a staged reported activity.
type IATIActivity struct {
	ID                   string          `json:"id" db:"id"`
	IngestRunID          string          `json:"ingest_run_id" db:"ingest_run_id"`
	ActivityID           string          `json:"activity_id" db:"activity_id"`
	ReportingOrgRef      *string         `json:"reporting_org_ref,omitempty" db:"reporting_org_ref"`
	ReportingOrgName     *string         `json:"reporting_org_name,omitempty" db:"reporting_org_name"`
	Title                *string         `json:"title,omitempty" db:"title"`
	RecipientCountryCode *string         `json:"recipient_country_code,omitempty" db:"recipient_country_code"`
	ResourceURL          *string         `json:"resource_url,omitempty" db:"resource_url"`
	Payload              json.RawMessage `json:"payload,omitempty" db:"payload"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// IATITransaction is a staged reported transaction, keyed by the
// deterministic event key the deduplicator uses.
type IATITransaction struct {
	ID                  string          `json:"id" db:"id"`
	IngestRunID         string          `json:"ingest_run_id" db:"ingest_run_id"`
	ActivityRowID       string          `json:"activity_row_id" db:"activity_row_id"`
	EventKey            string          `json:"event_key" db:"event_key"`
	TransactionTypeCode *string         `json:"transaction_type_code,omitempty" db:"transaction_type_code"`
	TransactionDate     *time.Time      `json:"transaction_date,omitempty" db:"transaction_date"`
	Value               *float64        `json:"value,omitempty" db:"value"`
	Currency            *string         `json:"currency,omitempty" db:"currency"`
	ProviderRef         *string         `json:"provider_ref,omitempty" db:"provider_ref"`
	ProviderName        *string         `json:"provider_name,omitempty" db:"provider_name"`
	ReceiverRef         *string         `json:"receiver_ref,omitempty" db:"receiver_ref"`
	ReceiverName        *string         `json:"receiver_name,omitempty" db:"receiver_name"`
	Description         *string         `json:"description,omitempty" db:"description"`
	Payload             json.RawMessage `json:"payload,omitempty" db:"payload"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
}

// FundingIngestKey is the durable dedup record for a funding event. The
// unique (source_system, event_key) pair is the at-most-once guarantee.
type FundingIngestKey struct {
	ID            string    `json:"id" db:"id"`
	SourceSystem  string    `json:"source_system" db:"source_system"`
	EventKey      string    `json:"event_key" db:"event_key"`
	FundingFlowID string    `json:"funding_flow_id" db:"funding_flow_id"`
	FirstSeenAt   time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at" db:"last_seen_at"`
}
