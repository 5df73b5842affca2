package models

import (
	"time"
)

// Person is a canonical person consolidated from staged evidence.
type Person struct {
	ID            string     `json:"id" db:"id"`
	CanonicalName string     `json:"canonical_name" db:"canonical_name"`
	BirthYear     *int       `json:"birth_year,omitempty" db:"birth_year"`
	CountryCode   *string    `json:"country_code,omitempty" db:"country_code"`
	Notes         *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// EnsurePersonRequest upserts a person by canonical name. Fields already
// set on the canonical row win over newly supplied values.
type EnsurePersonRequest struct {
	CanonicalName string  `json:"canonical_name" validate:"required"`
	BirthYear     *int    `json:"birth_year,omitempty"`
	CountryCode   *string `json:"country_code,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// PersonAlias is one known spelling of a person's name. alias_key is the
// case-insensitive match key; aliases are only ever added, never removed.
type PersonAlias struct {
	ID           string    `json:"id" db:"id"`
	PersonID     string    `json:"person_id" db:"person_id"`
	Alias        string    `json:"alias" db:"alias"`
	AliasKey     string    `json:"alias_key" db:"alias_key"`
	SourceSystem string    `json:"source_system" db:"source_system"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Organization is a canonical organization.
type Organization struct {
	ID            string    `json:"id" db:"id"`
	CanonicalName string    `json:"canonical_name" db:"canonical_name"`
	OrgType       *string   `json:"org_type,omitempty" db:"org_type"`
	CountryCode   *string   `json:"country_code,omitempty" db:"country_code"`
	OrgNumber     *string   `json:"org_number,omitempty" db:"org_number"`
	Website       *string   `json:"website,omitempty" db:"website"`
	Notes         *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// EnsureOrganizationRequest upserts an organization by canonical name.
type EnsureOrganizationRequest struct {
	CanonicalName string  `json:"canonical_name" validate:"required"`
	OrgType       *string `json:"org_type,omitempty"`
	CountryCode   *string `json:"country_code,omitempty"`
	OrgNumber     *string `json:"org_number,omitempty"`
	Website       *string `json:"website,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// OrganizationAlias is one known spelling or external reference for an
// organization. alias_key is the case-insensitive match key; aliases are
// only ever added, never removed, so resolution can only improve.
type OrganizationAlias struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Alias          string    `json:"alias" db:"alias"`
	AliasKey       string    `json:"alias_key" db:"alias_key"`
	SourceSystem   string    `json:"source_system" db:"source_system"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// RoleEvent is a person holding a role at an organization, as announced by
// a source document. Natural key: (person_id, organization_id, role_title,
// start_on) with start_on matched null-safe.
type RoleEvent struct {
	ID               string     `json:"id" db:"id"`
	PersonID         string     `json:"person_id" db:"person_id"`
	OrganizationID   string     `json:"organization_id" db:"organization_id"`
	RoleTitle        string     `json:"role_title" db:"role_title"`
	RoleLevel        *string    `json:"role_level,omitempty" db:"role_level"`
	AnnouncedOn      *time.Time `json:"announced_on,omitempty" db:"announced_on"`
	StartOn          *time.Time `json:"start_on,omitempty" db:"start_on"`
	EndOn            *time.Time `json:"end_on,omitempty" db:"end_on"`
	SourceDocumentID *string    `json:"source_document_id,omitempty" db:"source_document_id"`
	Confidence       float64    `json:"confidence" db:"confidence"`
	Notes            *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// UpsertRoleEventRequest upserts a role event by its natural key.
type UpsertRoleEventRequest struct {
	PersonID         string     `json:"person_id" validate:"required"`
	OrganizationID   string     `json:"organization_id" validate:"required"`
	RoleTitle        string     `json:"role_title" validate:"required"`
	RoleLevel        *string    `json:"role_level,omitempty"`
	AnnouncedOn      *time.Time `json:"announced_on,omitempty"`
	StartOn          *time.Time `json:"start_on,omitempty"`
	EndOn            *time.Time `json:"end_on,omitempty"`
	SourceDocumentID *string    `json:"source_document_id,omitempty"`
	Confidence       float64    `json:"confidence" validate:"gte=0,lte=1"`
	Notes            *string    `json:"notes,omitempty"`
}

// FundingFlow is money moving from a donor (organization or country) to a
// recipient (organization or a raw external name). Confidence is in [0,1].
type FundingFlow struct {
	ID               string     `json:"id" db:"id"`
	DonorOrgID       *string    `json:"donor_org_id,omitempty" db:"donor_org_id"`
	DonorCountryCode *string    `json:"donor_country_code,omitempty" db:"donor_country_code"`
	RecipientOrgID   *string    `json:"recipient_org_id,omitempty" db:"recipient_org_id"`
	RecipientNameRaw *string    `json:"recipient_name_raw,omitempty" db:"recipient_name_raw"`
	AmountNOK        *float64   `json:"amount_nok,omitempty" db:"amount_nok"`
	AmountOriginal   *float64   `json:"amount_original,omitempty" db:"amount_original"`
	CurrencyCode     *string    `json:"currency_code,omitempty" db:"currency_code"`
	AnnouncedOn      *time.Time `json:"announced_on,omitempty" db:"announced_on"`
	DecidedOn        *time.Time `json:"decided_on,omitempty" db:"decided_on"`
	FiscalYear       *int       `json:"fiscal_year,omitempty" db:"fiscal_year"`
	PeriodStart      *time.Time `json:"period_start,omitempty" db:"period_start"`
	PeriodEnd        *time.Time `json:"period_end,omitempty" db:"period_end"`
	FundingChannel   *string    `json:"funding_channel,omitempty" db:"funding_channel"`
	SourceSystem     string     `json:"source_system" db:"source_system"`
	SourceDocumentID *string    `json:"source_document_id,omitempty" db:"source_document_id"`
	Confidence       float64    `json:"confidence" db:"confidence"`
	Notes            *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// UpsertFundingFlowRequest creates or updates a funding flow. At least one
// donor side and one recipient side must be set.
type UpsertFundingFlowRequest struct {
	DonorOrgID       *string    `json:"donor_org_id,omitempty"`
	DonorCountryCode *string    `json:"donor_country_code,omitempty"`
	RecipientOrgID   *string    `json:"recipient_org_id,omitempty"`
	RecipientNameRaw *string    `json:"recipient_name_raw,omitempty"`
	AmountNOK        *float64   `json:"amount_nok,omitempty"`
	AmountOriginal   *float64   `json:"amount_original,omitempty"`
	CurrencyCode     *string    `json:"currency_code,omitempty"`
	AnnouncedOn      *time.Time `json:"announced_on,omitempty"`
	DecidedOn        *time.Time `json:"decided_on,omitempty"`
	FiscalYear       *int       `json:"fiscal_year,omitempty"`
	PeriodStart      *time.Time `json:"period_start,omitempty"`
	PeriodEnd        *time.Time `json:"period_end,omitempty"`
	FundingChannel   *string    `json:"funding_channel,omitempty"`
	SourceSystem     string     `json:"source_system" validate:"required"`
	SourceDocumentID *string    `json:"source_document_id,omitempty"`
	Confidence       float64    `json:"confidence" validate:"gte=0,lte=1"`
	Notes            *string    `json:"notes,omitempty"`
}

// HasDonor reports whether at least one donor side is present.
func (r *UpsertFundingFlowRequest) HasDonor() bool {
	return r.DonorOrgID != nil || r.DonorCountryCode != nil
}

// HasRecipient reports whether at least one recipient side is present.
func (r *UpsertFundingFlowRequest) HasRecipient() bool {
	return r.RecipientOrgID != nil || r.RecipientNameRaw != nil
}

// PersonLink is a curated relationship between two people. The pair is
// stored in canonical order: person_a_id is always the smaller UUID, so a
// link between A and B and a link between B and A are the same row.
type PersonLink struct {
	ID               string     `json:"id" db:"id"`
	PersonAID        string     `json:"person_a_id" db:"person_a_id"`
	PersonBID        string     `json:"person_b_id" db:"person_b_id"`
	RelationType     string     `json:"relation_type" db:"relation_type"`
	RelationLabel    *string    `json:"relation_label,omitempty" db:"relation_label"`
	StartOn          *time.Time `json:"start_on,omitempty" db:"start_on"`
	EndOn            *time.Time `json:"end_on,omitempty" db:"end_on"`
	Confidence       float64    `json:"confidence" db:"confidence"`
	SourceDocumentID *string    `json:"source_document_id,omitempty" db:"source_document_id"`
	Notes            *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// UpsertPersonLinkRequest upserts a curated person link by
// (person_a_id, person_b_id, relation_type, start_on). Callers may supply
// the pair in either order; the repository normalizes it.
type UpsertPersonLinkRequest struct {
	PersonAID        string     `json:"person_a_id" validate:"required"`
	PersonBID        string     `json:"person_b_id" validate:"required"`
	RelationType     string     `json:"relation_type" validate:"required"`
	RelationLabel    *string    `json:"relation_label,omitempty"`
	StartOn          *time.Time `json:"start_on,omitempty"`
	EndOn            *time.Time `json:"end_on,omitempty"`
	Confidence       float64    `json:"confidence" validate:"gte=0,lte=1"`
	SourceDocumentID *string    `json:"source_document_id,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
}
