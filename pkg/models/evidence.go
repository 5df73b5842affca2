package models

import "time"

// Fact types for evidence links.
const (
	FactTypePerson       = "person"
	FactTypeOrganization = "organization"
	FactTypeRoleEvent    = "role_event"
	FactTypeFundingFlow  = "funding_flow"
	FactTypePersonLink   = "person_link"
)

// Evidence links a canonical fact to a source document with the relation
// that document supports ("appointment", "bio", "donor_report", ...).
// One fact can carry evidence from many documents.
type Evidence struct {
	ID               string    `json:"id" db:"id"`
	FactType         string    `json:"fact_type" db:"fact_type"`
	FactID           string    `json:"fact_id" db:"fact_id"`
	SourceDocumentID string    `json:"source_document_id" db:"source_document_id"`
	RelationType     string    `json:"relation_type" db:"relation_type"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
