package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/models"
)

type fakeProvider struct {
	name       string
	candidates map[string]*Candidate
	err        error
	lookups    int
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) Publisher() string    { return f.name + "-api" }
func (f *fakeProvider) RelationType() string { return f.name + "_api" }

func (f *fakeProvider) Lookup(ctx context.Context, orgName string, hqCountry *string) (*Candidate, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates[orgName], nil
}

type enricherFixture struct {
	orgs     *fakeOrgRepo
	flows    *fakeFlowRepo
	docs     *fakeDocRepo
	evidence *fakeEvidenceRepo
	runs     *fakeRunRepo
}

func newEnricher(t *testing.T, fixture *enricherFixture, providers ...Provider) *Enricher {
	t.Helper()
	config := DefaultEnricherConfig()
	config.Retry = RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond}
	return NewEnricher(fixture.orgs, fixture.flows, fixture.docs, fixture.evidence, fixture.runs, providers, nil, config, testLogger())
}

func newEnricherFixture() *enricherFixture {
	return &enricherFixture{
		orgs:     &fakeOrgRepo{},
		flows:    &fakeFlowRepo{},
		docs:     &fakeDocRepo{},
		evidence: &fakeEvidenceRepo{},
		runs:     &fakeRunRepo{},
	}
}

func nokCandidate() *Candidate {
	return &Candidate{
		Match:          MatchResult{Code: "123", Name: "Norsk Folkehjelp", Score: 0.91},
		Points:         []YearAmount{{Year: 2021, Amount: 5000000}, {Year: 2022, Amount: 6500000}},
		FundingChannel: "NORAD partner_sid=123",
		SourceURL:      "https://example.org/money?agreement_partner_sid=123",
		SourceNotes:    "agreement_partner_sid=123; matched_name=Norsk Folkehjelp",
		FlowNotes:      "Norad match 'Norsk Folkehjelp' -> 'Norsk Folkehjelp' (score=0.910)",
	}
}

func TestEnrichWritesFlowsForMatchedOrganizations(t *testing.T) {
	fixture := newEnricherFixture()
	ctx := context.Background()
	org, _, err := fixture.orgs.Ensure(ctx, models.EnsureOrganizationRequest{CanonicalName: "Norsk Folkehjelp"})
	require.NoError(t, err)
	_, _, err = fixture.orgs.Ensure(ctx, models.EnsureOrganizationRequest{CanonicalName: "Unmatched Org"})
	require.NoError(t, err)

	provider := &fakeProvider{
		name:       models.SourceSystemNorad,
		candidates: map[string]*Candidate{"Norsk Folkehjelp": nokCandidate()},
	}

	result, err := newEnricher(t, fixture, provider).Enrich(ctx)
	require.NoError(t, err)

	require.Len(t, result.Providers, 1)
	providerResult := result.Providers[0]
	assert.Equal(t, models.SourceSystemNorad, providerResult.Provider)
	assert.Equal(t, 2, providerResult.Organizations)
	assert.Equal(t, 1, providerResult.Matches)
	assert.Equal(t, 2, providerResult.FlowsCreated)
	assert.Zero(t, providerResult.FlowsUpdated)
	assert.Zero(t, providerResult.Failures)

	require.Len(t, fixture.flows.flows, 2)
	flow := fixture.flows.flows[0]
	require.NotNil(t, flow.DonorCountryCode)
	assert.Equal(t, "NO", *flow.DonorCountryCode)
	require.NotNil(t, flow.RecipientOrgID)
	assert.Equal(t, org.ID, *flow.RecipientOrgID)
	require.NotNil(t, flow.AmountNOK)
	assert.InDelta(t, 5000000.0, *flow.AmountNOK, 0.001)
	assert.Nil(t, flow.AmountOriginal)
	assert.Nil(t, flow.CurrencyCode)
	require.NotNil(t, flow.AnnouncedOn)
	assert.Equal(t, time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC), *flow.AnnouncedOn)
	require.NotNil(t, flow.FiscalYear)
	assert.Equal(t, 2021, *flow.FiscalYear)
	require.NotNil(t, flow.PeriodStart)
	assert.Equal(t, time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC), *flow.PeriodStart)
	require.NotNil(t, flow.PeriodEnd)
	assert.Equal(t, time.Date(2021, time.December, 31, 0, 0, 0, 0, time.UTC), *flow.PeriodEnd)
	assert.Equal(t, models.SourceSystemNorad, flow.SourceSystem)
	assert.InDelta(t, 0.85, flow.Confidence, 0.001)
	require.NotNil(t, flow.Notes)
	assert.Contains(t, *flow.Notes, "fiscal_year=2021")

	// One source document per candidate, linked to every flow it backs.
	require.Len(t, fixture.docs.docs, 1)
	doc := fixture.docs.docs[0]
	require.NotNil(t, doc.Publisher)
	assert.Equal(t, "norad-api", *doc.Publisher)
	require.NotNil(t, doc.DocType)
	assert.Equal(t, "api", *doc.DocType)

	require.Len(t, fixture.evidence.links, 2)
	for _, link := range fixture.evidence.links {
		assert.Equal(t, models.FactTypeFundingFlow, link.FactType)
		assert.Equal(t, doc.ID, link.SourceDocumentID)
		assert.Equal(t, "norad_api", link.RelationType)
	}

	require.Len(t, fixture.runs.runs, 1)
	run := fixture.runs.runs[0]
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, "enrich."+models.SourceSystemNorad, run.JobName)
	assert.Equal(t, 2, run.RowsSeen)
	assert.Equal(t, 2, run.RowsIngested)
	assert.Equal(t, 1, run.RowsSkipped)
}

func TestEnrichConvertsForeignCurrencyAmounts(t *testing.T) {
	fixture := newEnricherFixture()
	ctx := context.Background()
	_, _, err := fixture.orgs.Ensure(ctx, models.EnsureOrganizationRequest{CanonicalName: "Kenya Relief"})
	require.NoError(t, err)

	provider := &fakeProvider{
		name: models.SourceSystemOECD,
		candidates: map[string]*Candidate{"Kenya Relief": {
			Match:          MatchResult{Code: "KEN", Name: "Kenya", Score: 0.8},
			Points:         []YearAmount{{Year: 2022, Amount: 1250000}},
			FundingChannel: "OECD DAC2A recipient proxy",
			CurrencyCode:   "USD",
			SourceURL:      "https://example.org/data/NOR.KEN.206.USD.V",
			FlowNotes:      "OECD DAC2A proxy recipient=KEN (Kenya); unit_mult=6; match_score=0.800",
		}},
	}

	_, err = newEnricher(t, fixture, provider).Enrich(ctx)
	require.NoError(t, err)

	require.Len(t, fixture.flows.flows, 1)
	flow := fixture.flows.flows[0]
	assert.Nil(t, flow.AmountNOK)
	require.NotNil(t, flow.AmountOriginal)
	assert.InDelta(t, 1250000.0, *flow.AmountOriginal, 0.001)
	require.NotNil(t, flow.CurrencyCode)
	assert.Equal(t, "USD", *flow.CurrencyCode)
}

func TestEnrichIsIdempotent(t *testing.T) {
	fixture := newEnricherFixture()
	ctx := context.Background()
	_, _, err := fixture.orgs.Ensure(ctx, models.EnsureOrganizationRequest{CanonicalName: "Norsk Folkehjelp"})
	require.NoError(t, err)

	provider := &fakeProvider{
		name:       models.SourceSystemNorad,
		candidates: map[string]*Candidate{"Norsk Folkehjelp": nokCandidate()},
	}
	enricher := newEnricher(t, fixture, provider)

	_, err = enricher.Enrich(ctx)
	require.NoError(t, err)
	result, err := enricher.Enrich(ctx)
	require.NoError(t, err)

	assert.Zero(t, result.Providers[0].FlowsCreated)
	assert.Equal(t, 2, result.Providers[0].FlowsUpdated)
	assert.Len(t, fixture.flows.flows, 2)
	assert.Len(t, fixture.docs.docs, 1)
	assert.Len(t, fixture.evidence.links, 2)
}

func TestEnrichSkipsFailingProvider(t *testing.T) {
	fixture := newEnricherFixture()
	ctx := context.Background()
	_, _, err := fixture.orgs.Ensure(ctx, models.EnsureOrganizationRequest{CanonicalName: "Norsk Folkehjelp"})
	require.NoError(t, err)

	failing := &fakeProvider{name: models.SourceSystemNorad, err: errors.New("upstream down")}
	healthy := &fakeProvider{
		name:       models.SourceSystemOECD,
		candidates: map[string]*Candidate{"Norsk Folkehjelp": nokCandidate()},
	}

	result, err := newEnricher(t, fixture, failing, healthy).Enrich(ctx)
	require.NoError(t, err)

	require.Len(t, result.Providers, 2)
	assert.Equal(t, 1, result.Providers[0].Failures)
	assert.Zero(t, result.Providers[0].FlowsCreated)
	assert.Equal(t, 2, result.Providers[1].FlowsCreated)

	// Both runs still close successfully; a flaky provider is not a
	// pipeline failure.
	require.Len(t, fixture.runs.runs, 2)
	assert.Equal(t, models.RunStatusSuccess, fixture.runs.runs[0].Status)
	assert.Equal(t, models.RunStatusSuccess, fixture.runs.runs[1].Status)
}

func TestEnrichRunsEveryProviderPerOrganization(t *testing.T) {
	fixture := newEnricherFixture()
	ctx := context.Background()
	for _, name := range []string{"One", "Two", "Three"} {
		_, _, err := fixture.orgs.Ensure(ctx, models.EnsureOrganizationRequest{CanonicalName: name})
		require.NoError(t, err)
	}

	first := &fakeProvider{name: models.SourceSystemNorad}
	second := &fakeProvider{name: models.SourceSystemOECD}

	_, err := newEnricher(t, fixture, first, second).Enrich(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, first.lookups)
	assert.Equal(t, 3, second.lookups)
}
