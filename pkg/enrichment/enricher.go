package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/internal/repositories/evidence"
	"github.com/Ramsey-B/willow/internal/repositories/fundingflow"
	"github.com/Ramsey-B/willow/internal/repositories/ingestrun"
	"github.com/Ramsey-B/willow/internal/repositories/organization"
	"github.com/Ramsey-B/willow/internal/repositories/sourcedocument"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// enrichedConfidence is the confidence recorded on provider-derived flows.
// Lower than curated data, higher than raw feed matches: the amounts are
// authoritative but the name match is fuzzy.
const enrichedConfidence = 0.85

// EnricherConfig holds enrichment settings
type EnricherConfig struct {
	Retry RetryPolicy
}

// DefaultEnricherConfig returns the default enricher configuration
func DefaultEnricherConfig() EnricherConfig {
	return EnricherConfig{
		Retry: DefaultRetryPolicy(),
	}
}

// ProviderResult summarizes one provider's pass over the organizations.
type ProviderResult struct {
	Provider      string `json:"provider"`
	RunID         string `json:"run_id"`
	Organizations int    `json:"organizations"`
	Matches       int    `json:"matches"`
	FlowsCreated  int    `json:"flows_created"`
	FlowsUpdated  int    `json:"flows_updated"`
	Failures      int    `json:"failures"`
}

// Result is the outcome of one enrichment pass across all providers.
type Result struct {
	Providers []ProviderResult `json:"providers"`
}

// Enricher runs every provider over the canonical organizations and writes
// the flows they report. Provider failures on a single organization are
// logged and skipped; only storage errors fail a run.
type Enricher struct {
	orgRepo      organization.OrganizationRepository
	flowRepo     fundingflow.FundingFlowRepository
	docRepo      sourcedocument.SourceDocumentRepository
	evidenceRepo evidence.EvidenceRepository
	runRepo      ingestrun.IngestRunRepository
	providers    []Provider
	emitter      *events.Emitter
	config       EnricherConfig
	logger       ectologger.Logger
}

// NewEnricher creates an enrichment engine
func NewEnricher(
	orgRepo organization.OrganizationRepository,
	flowRepo fundingflow.FundingFlowRepository,
	docRepo sourcedocument.SourceDocumentRepository,
	evidenceRepo evidence.EvidenceRepository,
	runRepo ingestrun.IngestRunRepository,
	providers []Provider,
	emitter *events.Emitter,
	config EnricherConfig,
	logger ectologger.Logger,
) *Enricher {
	return &Enricher{
		orgRepo:      orgRepo,
		flowRepo:     flowRepo,
		docRepo:      docRepo,
		evidenceRepo: evidenceRepo,
		runRepo:      runRepo,
		providers:    providers,
		emitter:      emitter,
		config:       config,
		logger:       logger,
	}
}

// Enrich runs all providers. Each provider gets its own ingest run under
// its own source system.
func (e *Enricher) Enrich(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "enrichment.Enricher.Enrich")
	defer span.End()

	orgs, err := e.orgRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, provider := range e.providers {
		providerResult, err := e.enrichWithProvider(ctx, provider, orgs)
		if err != nil {
			return nil, err
		}
		result.Providers = append(result.Providers, *providerResult)
	}

	return result, nil
}

func (e *Enricher) enrichWithProvider(ctx context.Context, provider Provider, orgs []models.Organization) (*ProviderResult, error) {
	run, err := e.runRepo.StartRun(ctx, provider.Name(), "enrich."+provider.Name())
	if err != nil {
		return nil, err
	}

	result := &ProviderResult{
		Provider:      provider.Name(),
		RunID:         run.ID,
		Organizations: len(orgs),
	}

	if err := e.enrichOrganizations(ctx, provider, orgs, result); err != nil {
		_ = e.runRepo.FinishRun(ctx, run.ID, models.RunStatusFailed, models.RunCounts{}, map[string]any{"error": err.Error()})
		return nil, err
	}

	counts := models.RunCounts{
		RowsSeen:     result.Organizations,
		RowsIngested: result.FlowsCreated + result.FlowsUpdated,
		RowsSkipped:  result.Organizations - result.Matches,
	}
	if err := e.runRepo.FinishRun(ctx, run.ID, models.RunStatusSuccess, counts, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (e *Enricher) enrichOrganizations(ctx context.Context, provider Provider, orgs []models.Organization, result *ProviderResult) error {
	for _, org := range orgs {
		var candidate *Candidate
		lookupErr := e.config.Retry.Do(ctx, e.logger, "enrich."+provider.Name()+".lookup", func(ctx context.Context) error {
			var err error
			candidate, err = provider.Lookup(ctx, org.CanonicalName, org.CountryCode)
			return err
		})
		if lookupErr != nil {
			if ctx.Err() != nil {
				return lookupErr
			}
			result.Failures++
			e.logger.WithContext(ctx).WithError(lookupErr).WithFields(map[string]any{
				"provider":     provider.Name(),
				"organization": org.CanonicalName,
			}).Warn("Provider lookup failed, skipping organization")
			continue
		}
		if candidate == nil {
			continue
		}

		result.Matches++
		if err := e.applyCandidate(ctx, provider, org, candidate, result); err != nil {
			return err
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"provider":      provider.Name(),
		"organizations": result.Organizations,
		"matches":       result.Matches,
		"flows_created": result.FlowsCreated,
		"flows_updated": result.FlowsUpdated,
		"failures":      result.Failures,
	}).Info("Enriched organizations from provider")

	return nil
}

func (e *Enricher) applyCandidate(ctx context.Context, provider Provider, org models.Organization, candidate *Candidate, result *ProviderResult) error {
	now := time.Now().UTC()
	doc, err := e.docRepo.Ensure(ctx, models.EnsureSourceDocumentRequest{
		Title:       optional(candidate.SourceNotes),
		Publisher:   optional(provider.Publisher()),
		URL:         &candidate.SourceURL,
		DocType:     optional("api"),
		RetrievedAt: &now,
	})
	if err != nil {
		return err
	}

	donorCountry := "NO"
	for _, point := range candidate.Points {
		// A provider data point covers one whole fiscal year.
		fiscalYear := point.Year
		periodStart := time.Date(point.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		periodEnd := time.Date(point.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
		notes := fmt.Sprintf("%s; fiscal_year=%d", candidate.FlowNotes, point.Year)

		req := models.UpsertFundingFlowRequest{
			DonorCountryCode: &donorCountry,
			RecipientOrgID:   &org.ID,
			AnnouncedOn:      &periodStart,
			FiscalYear:       &fiscalYear,
			PeriodStart:      &periodStart,
			PeriodEnd:        &periodEnd,
			FundingChannel:   &candidate.FundingChannel,
			SourceSystem:     provider.Name(),
			Confidence:       enrichedConfidence,
			Notes:            &notes,
		}
		amount := point.Amount
		if candidate.CurrencyCode == "" {
			req.AmountNOK = &amount
		} else {
			req.AmountOriginal = &amount
			currency := candidate.CurrencyCode
			req.CurrencyCode = &currency
		}

		flow, created, err := e.flowRepo.Upsert(ctx, req)
		if err != nil {
			return err
		}
		if created {
			result.FlowsCreated++
		} else {
			result.FlowsUpdated++
		}
		if e.emitter != nil {
			e.emitter.EmitFlowConsolidated(ctx, flow, created)
		}

		if err := e.evidenceRepo.Ensure(ctx, models.FactTypeFundingFlow, flow.ID, doc.ID, provider.RelationType()); err != nil {
			return err
		}
	}

	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
