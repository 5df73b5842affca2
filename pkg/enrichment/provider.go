// Package enrichment augments canonical organizations with funding flows
// looked up from external statistics APIs. Providers match organizations by
// fuzzy name and report yearly disbursement amounts; everything they write
// carries its own source document and evidence link.
package enrichment

import "context"

// MatchResult is the provider-side entity an organization resolved to.
type MatchResult struct {
	Code  string
	Name  string
	Score float64
}

// YearAmount is one fiscal-year disbursement reported by a provider.
type YearAmount struct {
	Year   int
	Amount float64
}

// Candidate is everything a provider found for one organization: the
// matched provider entity, its yearly amounts, and the provenance for the
// request that produced them.
type Candidate struct {
	Match          MatchResult
	Points         []YearAmount
	FundingChannel string
	// CurrencyCode is set when amounts are foreign currency; empty means
	// the amounts are NOK.
	CurrencyCode string
	// SourceURL is the exact request the amounts came from, recorded as a
	// source document.
	SourceURL   string
	SourceNotes string
	FlowNotes   string
}

// Provider looks up funding data for an organization by name.
type Provider interface {
	// Name identifies the provider; it is used as the source system on
	// everything the provider's data produces.
	Name() string

	// Publisher is the source document publisher for this provider.
	Publisher() string

	// RelationType is the evidence relation recorded for flows this
	// provider produced.
	RelationType() string

	// Lookup finds the provider's best match for the organization and its
	// yearly amounts. A nil candidate with nil error means no acceptable
	// match.
	Lookup(ctx context.Context, orgName string, hqCountry *string) (*Candidate, error)
}
