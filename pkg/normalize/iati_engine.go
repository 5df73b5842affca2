package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/internal/repositories/evidence"
	"github.com/Ramsey-B/willow/internal/repositories/fundingflow"
	"github.com/Ramsey-B/willow/internal/repositories/iatistaging"
	"github.com/Ramsey-B/willow/internal/repositories/ingestkey"
	"github.com/Ramsey-B/willow/internal/repositories/ingestrun"
	"github.com/Ramsey-B/willow/internal/repositories/sourcedocument"
	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/resolver"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const iatiAliasSource = "iati_ref"

// IATIEngineConfig holds IATI normalization settings
type IATIEngineConfig struct {
	SourceSystem string
}

// DefaultIATIEngineConfig returns the default configuration
func DefaultIATIEngineConfig() IATIEngineConfig {
	return IATIEngineConfig{
		SourceSystem: models.SourceSystemIATI,
	}
}

// IATIEngine consolidates staged reported transactions into funding flows.
// Each staged transaction carries a deterministic event key; a durable
// ingest key registered in the same transaction as the flow write makes
// consolidation at most once per event.
type IATIEngine struct {
	db           database.DB
	stagingRepo  iatistaging.StagingRepository
	keyRepo      ingestkey.IngestKeyRepository
	flowRepo     fundingflow.FundingFlowRepository
	docRepo      sourcedocument.SourceDocumentRepository
	evidenceRepo evidence.EvidenceRepository
	runRepo      ingestrun.IngestRunRepository
	resolver     *resolver.Resolver
	emitter      *events.Emitter
	config       IATIEngineConfig
	logger       ectologger.Logger
}

// NewIATIEngine creates an IATI normalization engine
func NewIATIEngine(
	db database.DB,
	stagingRepo iatistaging.StagingRepository,
	keyRepo ingestkey.IngestKeyRepository,
	flowRepo fundingflow.FundingFlowRepository,
	docRepo sourcedocument.SourceDocumentRepository,
	evidenceRepo evidence.EvidenceRepository,
	runRepo ingestrun.IngestRunRepository,
	res *resolver.Resolver,
	emitter *events.Emitter,
	config IATIEngineConfig,
	logger ectologger.Logger,
) *IATIEngine {
	return &IATIEngine{
		db:           db,
		stagingRepo:  stagingRepo,
		keyRepo:      keyRepo,
		flowRepo:     flowRepo,
		docRepo:      docRepo,
		evidenceRepo: evidenceRepo,
		runRepo:      runRepo,
		resolver:     res,
		emitter:      emitter,
		config:       config,
		logger:       logger,
	}
}

// IATINormalizeOptions control one IATI normalization run.
type IATINormalizeOptions struct {
	// RebuildDerived deletes the flows this source previously produced
	// before consolidating, for a full rebuild from staging. Ingest keys
	// cascade with their flows.
	RebuildDerived bool
}

// Normalize consolidates all staged transactions. Previously seen events
// and rows without a resolvable donor, recipient, or amount are skipped;
// the run only fails on storage errors.
func (e *IATIEngine) Normalize(ctx context.Context, opts IATINormalizeOptions) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "normalize.IATIEngine.Normalize")
	defer span.End()

	run, err := e.runRepo.StartRun(ctx, e.config.SourceSystem, "normalize.iati")
	if err != nil {
		return nil, err
	}

	result, err := e.normalize(ctx, opts)
	if err != nil {
		_ = e.runRepo.FinishRun(ctx, run.ID, models.RunStatusFailed, models.RunCounts{}, map[string]any{"error": err.Error()})
		return nil, err
	}

	result.RunID = run.ID
	counts := models.RunCounts{
		RowsSeen:     result.RowsSeen,
		RowsIngested: result.RowsWritten,
		RowsSkipped:  result.RowsSkipped + result.RowsInvalid,
	}
	if err := e.runRepo.FinishRun(ctx, run.ID, models.RunStatusSuccess, counts, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (e *IATIEngine) normalize(ctx context.Context, opts IATINormalizeOptions) (*Result, error) {
	if opts.RebuildDerived {
		deleted, err := e.flowRepo.DeleteBySourceSystem(ctx, e.config.SourceSystem)
		if err != nil {
			return nil, err
		}
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"deleted": deleted,
		}).Info("Cleared derived funding flows for rebuild")
	}

	if err := e.resolver.Load(ctx); err != nil {
		return nil, err
	}

	txs, err := e.stagingRepo.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	activities := map[string]*models.IATIActivity{}
	docsByURL := map[string]string{}

	for _, tx := range txs {
		result.RowsSeen++

		existing, err := e.keyRepo.Lookup(ctx, e.config.SourceSystem, tx.EventKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			result.RowsSkipped++
			continue
		}

		activity, ok := activities[tx.ActivityRowID]
		if !ok {
			activity, err = e.stagingRepo.GetActivity(ctx, tx.ActivityRowID)
			if err != nil {
				return nil, err
			}
			activities[tx.ActivityRowID] = activity
		}
		if activity == nil {
			result.RowsInvalid++
			continue
		}

		written, err := e.consolidateTransaction(ctx, tx, activity, docsByURL, result)
		if err != nil {
			return nil, err
		}
		if written {
			result.RowsWritten++
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"rows_seen":    result.RowsSeen,
		"rows_written": result.RowsWritten,
		"rows_skipped": result.RowsSkipped,
		"rows_invalid": result.RowsInvalid,
	}).Info("Normalized reported transactions")

	return result, nil
}

// consolidateTransaction writes one funding flow and registers its ingest
// key in the same database transaction, so a crash between the two writes
// never records the event as ingested.
func (e *IATIEngine) consolidateTransaction(ctx context.Context, tx models.IATITransaction, activity *models.IATIActivity, docsByURL map[string]string, result *Result) (bool, error) {
	if tx.Value == nil {
		result.RowsInvalid++
		return false, nil
	}

	recipientOrgID, recipientNameRaw, recipientMatched, err := e.resolveRecipient(ctx, tx)
	if err != nil {
		return false, err
	}
	if recipientOrgID == nil && recipientNameRaw == nil {
		result.RowsInvalid++
		return false, nil
	}

	donorOrgID, donorCountry, donorMatched, err := e.resolveDonor(ctx, tx, activity)
	if err != nil {
		return false, err
	}
	if donorOrgID == nil && donorCountry == nil {
		result.RowsInvalid++
		return false, nil
	}

	req := models.UpsertFundingFlowRequest{
		DonorOrgID:       donorOrgID,
		DonorCountryCode: donorCountry,
		RecipientOrgID:   recipientOrgID,
		RecipientNameRaw: recipientNameRaw,
		DecidedOn:        tx.TransactionDate,
		SourceSystem:     e.config.SourceSystem,
	}

	// The transaction date fixes the fiscal period: a reported transaction
	// is a point-in-time payment, so the period collapses to that date.
	if tx.TransactionDate != nil {
		year := tx.TransactionDate.Year()
		if year < 1900 || year > 2100 {
			result.RowsInvalid++
			return false, nil
		}
		req.FiscalYear = &year
		req.PeriodStart = tx.TransactionDate
		req.PeriodEnd = tx.TransactionDate
	}

	if tx.Currency == nil || strings.EqualFold(*tx.Currency, "NOK") {
		req.AmountNOK = tx.Value
	} else {
		req.AmountOriginal = tx.Value
		currency := strings.ToUpper(*tx.Currency)
		req.CurrencyCode = &currency
	}

	channel := "IATI transaction"
	if tx.TransactionTypeCode != nil && *tx.TransactionTypeCode != "" {
		channel = fmt.Sprintf("IATI transaction type %s", *tx.TransactionTypeCode)
	}
	req.FundingChannel = &channel

	notes := fmt.Sprintf("IATI activity=%s; match_recipient=%t; match_donor=%t; event_key=%s",
		activity.ActivityID, recipientMatched, donorMatched, tx.EventKey)
	req.Notes = &notes

	req.Confidence = buildConfidence(recipientMatched, donorMatched,
		tx.TransactionDate != nil,
		tx.TransactionTypeCode != nil && *tx.TransactionTypeCode != "")

	docID, err := e.ensureActivityDocument(ctx, activity, docsByURL)
	if err != nil {
		return false, err
	}
	if docID != "" {
		req.SourceDocumentID = &docID
	}

	ctx, dbTx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer dbTx.Rollback(ctx)

	flow, created, err := e.flowRepo.Upsert(ctx, req)
	if err != nil {
		return false, err
	}

	_, inserted, err := e.keyRepo.Register(ctx, e.config.SourceSystem, tx.EventKey, flow.ID)
	if err != nil {
		return false, err
	}
	if !inserted {
		// Another writer registered the key between our lookup and this
		// write. The unique constraint resolved the race; roll back and
		// count the event as a duplicate.
		result.RowsSkipped++
		return false, nil
	}

	if docID != "" {
		if err := e.evidenceRepo.Ensure(ctx, models.FactTypeFundingFlow, flow.ID, docID, "iati_xml"); err != nil {
			return false, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return false, err
	}

	if created {
		result.FlowsCreated++
	} else {
		result.FlowsUpdated++
	}
	if e.emitter != nil {
		e.emitter.EmitFlowConsolidated(ctx, flow, created)
	}

	return true, nil
}

func (e *IATIEngine) resolveRecipient(ctx context.Context, tx models.IATITransaction) (*string, *string, bool, error) {
	receiverName := resolver.CleanText(deref(tx.ReceiverName))
	receiverRef := resolver.CleanText(deref(tx.ReceiverRef))

	orgID, mode := e.resolver.ResolveOrganization(ctx, receiverName, receiverRef)
	if mode != resolver.MatchModeNone {
		if receiverRef != "" {
			if err := e.resolver.RegisterAlias(ctx, orgID, receiverRef, iatiAliasSource); err != nil {
				return nil, nil, false, err
			}
		}
		return &orgID, nil, true, nil
	}

	if receiverName != "" {
		return nil, &receiverName, false, nil
	}
	return nil, nil, false, nil
}

// resolveDonor resolves the provider side, falling back to the reporting
// organization and finally to the country prefix of the reference.
func (e *IATIEngine) resolveDonor(ctx context.Context, tx models.IATITransaction, activity *models.IATIActivity) (*string, *string, bool, error) {
	providerName := resolver.CleanText(deref(tx.ProviderName))
	providerRef := resolver.CleanText(deref(tx.ProviderRef))
	if providerName == "" && providerRef == "" {
		providerName = resolver.CleanText(deref(activity.ReportingOrgName))
		providerRef = resolver.CleanText(deref(activity.ReportingOrgRef))
	}

	orgID, mode := e.resolver.ResolveOrganization(ctx, providerName, providerRef)
	if mode != resolver.MatchModeNone {
		if providerRef != "" {
			if err := e.resolver.RegisterAlias(ctx, orgID, providerRef, iatiAliasSource); err != nil {
				return nil, nil, false, err
			}
		}
		return &orgID, nil, true, nil
	}

	if code := resolver.RefCountryCode(providerRef); code != "" {
		return nil, &code, false, nil
	}
	return nil, nil, false, nil
}

func (e *IATIEngine) ensureActivityDocument(ctx context.Context, activity *models.IATIActivity, docsByURL map[string]string) (string, error) {
	if activity.ResourceURL == nil || *activity.ResourceURL == "" {
		return "", nil
	}

	if docID, ok := docsByURL[*activity.ResourceURL]; ok {
		return docID, nil
	}

	doc, err := e.docRepo.Ensure(ctx, models.EnsureSourceDocumentRequest{
		Title:     activity.Title,
		Publisher: optional("iati-registry"),
		URL:       activity.ResourceURL,
		DocType:   optional("iati_xml"),
	})
	if err != nil {
		return "", err
	}

	docsByURL[*activity.ResourceURL] = doc.ID
	return doc.ID, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
