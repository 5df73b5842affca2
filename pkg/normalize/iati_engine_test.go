package normalize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/resolver"
)

type iatiFixture struct {
	engine   *IATIEngine
	staging  *fakeIATIStagingRepo
	keys     *fakeKeyRepo
	flows    *fakeFlowRepo
	docs     *fakeDocRepo
	evidence *fakeEvidenceRepo
	runs     *fakeRunRepo
	orgs     *fakeOrgRepo
	aliases  *fakeAliasRepo
}

func newIATIFixture() *iatiFixture {
	f := &iatiFixture{
		staging:  &fakeIATIStagingRepo{},
		keys:     newFakeKeyRepo(),
		flows:    &fakeFlowRepo{},
		docs:     &fakeDocRepo{},
		evidence: &fakeEvidenceRepo{},
		runs:     &fakeRunRepo{},
		orgs:     &fakeOrgRepo{},
		aliases:  &fakeAliasRepo{},
	}
	f.flows.keys = f.keys
	f.engine = NewIATIEngine(
		&fakeDB{}, f.staging, f.keys, f.flows, f.docs, f.evidence, f.runs,
		newTestResolver(f.orgs, f.aliases, &fakePersonRepo{}, &fakePersonAliasRepo{}), nil,
		DefaultIATIEngineConfig(), testLogger(),
	)
	return f
}

// seedOrganization creates a canonical org with a registered reference alias.
func (f *iatiFixture) seedOrganization(t *testing.T, name, ref string) string {
	t.Helper()
	org, _, err := f.orgs.Ensure(context.Background(), models.EnsureOrganizationRequest{CanonicalName: name})
	require.NoError(t, err)
	_, err = f.aliases.Ensure(context.Background(), org.ID, name, resolver.NameKey(name), "seed")
	require.NoError(t, err)
	if ref != "" {
		_, err = f.aliases.Ensure(context.Background(), org.ID, ref, resolver.RefKey(ref), "seed")
		require.NoError(t, err)
	}
	return org.ID
}

func (f *iatiFixture) stageTransaction(t *testing.T, activity models.IATIActivity, tx models.IATITransaction) {
	t.Helper()
	staged, err := f.staging.InsertActivity(context.Background(), activity)
	require.NoError(t, err)
	tx.ActivityRowID = staged.ID
	_, err = f.staging.InsertTransactions(context.Background(), []models.IATITransaction{tx})
	require.NoError(t, err)
}

func sampleActivity() models.IATIActivity {
	return models.IATIActivity{
		ActivityID:       "NO-BRC-971277882-PROJ1",
		ReportingOrgRef:  optional("NO-BRC-971277882"),
		ReportingOrgName: optional("Norad"),
		Title:            optional("Support to civil society"),
		ResourceURL:      optional("https://iatiregistry.org/dataset/norad-acts.xml"),
	}
}

func sampleTransaction(eventKey string) models.IATITransaction {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	value := 1250000.0
	return models.IATITransaction{
		EventKey:            eventKey,
		TransactionTypeCode: optional("3"),
		TransactionDate:     &date,
		Value:               &value,
		Currency:            optional("NOK"),
		ReceiverRef:         optional("NO-BRC-938429785"),
		ReceiverName:        optional("Norsk Folkehjelp"),
	}
}

func TestIATINormalizeConsolidatesTransaction(t *testing.T) {
	f := newIATIFixture()
	recipientID := f.seedOrganization(t, "Norsk Folkehjelp", "NO-BRC-938429785")
	f.stageTransaction(t, sampleActivity(), sampleTransaction("evt-1"))

	result, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RowsSeen)
	assert.Equal(t, 1, result.RowsWritten)
	assert.Equal(t, 1, result.FlowsCreated)

	require.Len(t, f.flows.flows, 1)
	flow := f.flows.flows[0]
	require.NotNil(t, flow.RecipientOrgID)
	assert.Equal(t, recipientID, *flow.RecipientOrgID)
	assert.Nil(t, flow.RecipientNameRaw)
	require.NotNil(t, flow.AmountNOK)
	assert.InDelta(t, 1250000, *flow.AmountNOK, 0.001)
	assert.Nil(t, flow.AmountOriginal)
	require.NotNil(t, flow.DonorCountryCode)
	assert.Equal(t, "NO", *flow.DonorCountryCode)
	require.NotNil(t, flow.FundingChannel)
	assert.Equal(t, "IATI transaction type 3", *flow.FundingChannel)
	require.NotNil(t, flow.DecidedOn)
	assert.Equal(t, "2024-03-15", flow.DecidedOn.Format("2006-01-02"))
	require.NotNil(t, flow.FiscalYear)
	assert.Equal(t, 2024, *flow.FiscalYear)
	require.NotNil(t, flow.PeriodStart)
	assert.Equal(t, "2024-03-15", flow.PeriodStart.Format("2006-01-02"))
	require.NotNil(t, flow.PeriodEnd)
	assert.Equal(t, "2024-03-15", flow.PeriodEnd.Format("2006-01-02"))
	// recipient matched, donor unmatched, date and type present
	assert.InDelta(t, 0.91, flow.Confidence, 0.0001)
	require.NotNil(t, flow.Notes)
	assert.Contains(t, *flow.Notes, "event_key=evt-1")
	assert.Contains(t, *flow.Notes, "match_recipient=true")
	assert.Contains(t, *flow.Notes, "match_donor=false")

	registered, err := f.keys.Lookup(context.Background(), models.SourceSystemIATI, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, registered)
	assert.Equal(t, flow.ID, registered.FundingFlowID)

	links, err := f.evidence.ListByFact(context.Background(), models.FactTypeFundingFlow, flow.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "iati_xml", links[0].RelationType)

	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, models.RunStatusSuccess, f.runs.runs[0].Status)
}

func TestIATINormalizeSkipsSeenEvents(t *testing.T) {
	f := newIATIFixture()
	f.seedOrganization(t, "Norsk Folkehjelp", "NO-BRC-938429785")
	f.stageTransaction(t, sampleActivity(), sampleTransaction("evt-1"))

	_, _, err := f.keys.Register(context.Background(), models.SourceSystemIATI, "evt-1", "flow-from-earlier-run")
	require.NoError(t, err)

	result, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RowsSeen)
	assert.Equal(t, 1, result.RowsSkipped)
	assert.Equal(t, 0, result.RowsWritten)
	assert.Empty(t, f.flows.flows)
}

func TestIATINormalizeIsIdempotent(t *testing.T) {
	f := newIATIFixture()
	f.seedOrganization(t, "Norsk Folkehjelp", "NO-BRC-938429785")
	f.stageTransaction(t, sampleActivity(), sampleTransaction("evt-1"))

	first, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.RowsWritten)

	second, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.RowsWritten)
	assert.Equal(t, 1, second.RowsSkipped)
	assert.Len(t, f.flows.flows, 1)
}

func TestIATINormalizeForeignCurrency(t *testing.T) {
	f := newIATIFixture()
	f.seedOrganization(t, "Norsk Folkehjelp", "NO-BRC-938429785")

	tx := sampleTransaction("evt-usd")
	tx.Currency = optional("usd")
	f.stageTransaction(t, sampleActivity(), tx)

	result, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsWritten)

	require.Len(t, f.flows.flows, 1)
	flow := f.flows.flows[0]
	assert.Nil(t, flow.AmountNOK)
	require.NotNil(t, flow.AmountOriginal)
	assert.InDelta(t, 1250000, *flow.AmountOriginal, 0.001)
	require.NotNil(t, flow.CurrencyCode)
	assert.Equal(t, "USD", *flow.CurrencyCode)
}

func TestIATINormalizeUnresolvedRecipientKeepsRawName(t *testing.T) {
	f := newIATIFixture()

	tx := sampleTransaction("evt-raw")
	tx.ReceiverRef = nil
	tx.ReceiverName = optional("Some Unknown Charity")
	f.stageTransaction(t, sampleActivity(), tx)

	result, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsWritten)

	require.Len(t, f.flows.flows, 1)
	flow := f.flows.flows[0]
	assert.Nil(t, flow.RecipientOrgID)
	require.NotNil(t, flow.RecipientNameRaw)
	assert.Equal(t, "Some Unknown Charity", *flow.RecipientNameRaw)
	assert.Contains(t, *flow.Notes, "match_recipient=false")
}

func TestIATINormalizeSkipsUnusableRows(t *testing.T) {
	f := newIATIFixture()

	// no amount
	noValue := sampleTransaction("evt-novalue")
	noValue.Value = nil
	f.stageTransaction(t, sampleActivity(), noValue)

	// no recipient side at all
	noRecipient := sampleTransaction("evt-norecipient")
	noRecipient.ReceiverRef = nil
	noRecipient.ReceiverName = nil
	f.stageTransaction(t, sampleActivity(), noRecipient)

	// no donor side: nothing resolves and the reference has no country prefix
	noDonor := sampleTransaction("evt-nodonor")
	activity := sampleActivity()
	activity.ReportingOrgRef = optional("47122")
	activity.ReportingOrgName = optional("Unknown Reporter")
	f.stageTransaction(t, activity, noDonor)

	result, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.RowsSeen)
	assert.Equal(t, 3, result.RowsInvalid)
	assert.Equal(t, 0, result.RowsWritten)
	assert.Empty(t, f.flows.flows)
}

func TestIATINormalizeRejectsImplausibleTransactionYears(t *testing.T) {
	f := newIATIFixture()
	f.seedOrganization(t, "Norsk Folkehjelp", "NO-BRC-938429785")

	tx := sampleTransaction("evt-badyear")
	badDate := time.Date(1024, 3, 15, 0, 0, 0, 0, time.UTC)
	tx.TransactionDate = &badDate
	f.stageTransaction(t, sampleActivity(), tx)

	result, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RowsSeen)
	assert.Equal(t, 1, result.RowsInvalid)
	assert.Equal(t, 0, result.RowsWritten)
	assert.Empty(t, f.flows.flows)
}

func TestIATINormalizeRegistersMatchedReferenceAsAlias(t *testing.T) {
	f := newIATIFixture()

	// Known only by name; the reference should become a durable alias.
	orgID := f.seedOrganization(t, "Norsk Folkehjelp", "")
	f.stageTransaction(t, sampleActivity(), sampleTransaction("evt-alias"))

	_, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)

	orgAliases, err := f.aliases.ListByOrganization(context.Background(), orgID)
	require.NoError(t, err)

	var found bool
	for _, a := range orgAliases {
		if a.Alias == "NO-BRC-938429785" {
			found = true
			assert.Equal(t, "iati_ref", a.SourceSystem)
		}
	}
	assert.True(t, found, "matched reference should be registered as alias")
}

func TestIATINormalizeRebuildDerived(t *testing.T) {
	f := newIATIFixture()
	f.seedOrganization(t, "Norsk Folkehjelp", "NO-BRC-938429785")
	f.stageTransaction(t, sampleActivity(), sampleTransaction("evt-1"))

	_, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{})
	require.NoError(t, err)
	require.Len(t, f.flows.flows, 1)
	firstID := f.flows.flows[0].ID

	// A rebuild clears the derived flows; the ingest keys cascade with
	// them, so every staged event consolidates again.
	result, err := f.engine.Normalize(context.Background(), IATINormalizeOptions{RebuildDerived: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsWritten)
	require.Len(t, f.flows.flows, 1)
	assert.NotEqual(t, firstID, f.flows.flows[0].ID)
}
