package models

import (
	"encoding/json"
	"time"
)

// Run statuses for ingest runs.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// SourceDocument is the provenance record every canonical fact points at.
// Upserted by external_ref (falling back to URL) so re-ingests reuse the
// same document row.
type SourceDocument struct {
	ID          string     `json:"id" db:"id"`
	Title       *string    `json:"title,omitempty" db:"title"`
	Publisher   *string    `json:"publisher,omitempty" db:"publisher"`
	URL         *string    `json:"url,omitempty" db:"url"`
	DocType     *string    `json:"doc_type,omitempty" db:"doc_type"`
	PublishedOn *time.Time `json:"published_on,omitempty" db:"published_on"`
	RetrievedAt *time.Time `json:"retrieved_at,omitempty" db:"retrieved_at"`
	ExternalRef *string    `json:"external_ref,omitempty" db:"external_ref"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// EnsureSourceDocumentRequest upserts a source document.
type EnsureSourceDocumentRequest struct {
	Title       *string    `json:"title,omitempty"`
	Publisher   *string    `json:"publisher,omitempty"`
	URL         *string    `json:"url,omitempty"`
	DocType     *string    `json:"doc_type,omitempty"`
	PublishedOn *time.Time `json:"published_on,omitempty"`
	RetrievedAt *time.Time `json:"retrieved_at,omitempty"`
	ExternalRef *string    `json:"external_ref,omitempty"`
}

// IngestRun tracks one execution of a pipeline job from start to finish.
type IngestRun struct {
	ID           string          `json:"id" db:"id"`
	SourceSystem string          `json:"source_system" db:"source_system"`
	JobName      string          `json:"job_name" db:"job_name"`
	Status       string          `json:"status" db:"status"`
	StartedAt    time.Time       `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	RowsSeen     int             `json:"rows_seen" db:"rows_seen"`
	RowsIngested int             `json:"rows_ingested" db:"rows_ingested"`
	RowsSkipped  int             `json:"rows_skipped" db:"rows_skipped"`
	Notes        json.RawMessage `json:"notes,omitempty" db:"notes"`
}

// RunCounts are the totals recorded when an ingest run is closed.
type RunCounts struct {
	RowsSeen     int `json:"rows_seen"`
	RowsIngested int `json:"rows_ingested"`
	RowsSkipped  int `json:"rows_skipped"`
}
