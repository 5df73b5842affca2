package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/internal/repositories/evidence"
	"github.com/Ramsey-B/willow/internal/repositories/fundingflow"
	"github.com/Ramsey-B/willow/internal/repositories/ingestrun"
	"github.com/Ramsey-B/willow/internal/repositories/maintenance"
	"github.com/Ramsey-B/willow/internal/repositories/personlink"
	"github.com/Ramsey-B/willow/internal/repositories/roleevent"
	"github.com/Ramsey-B/willow/internal/repositories/sourcedocument"
	"github.com/Ramsey-B/willow/internal/repositories/stagingrow"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/resolver"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Sheet names the curated workbook stages rows under.
const (
	sheetOrganizations = "Organisasjoner"
	sheetDataSources   = "Datakilder"
	sheetPersonLinks   = "Personrelasjoner"
)

// SheetEngineConfig holds sheet normalization settings
type SheetEngineConfig struct {
	SourceSystem string
}

// DefaultSheetEngineConfig returns the default configuration
func DefaultSheetEngineConfig() SheetEngineConfig {
	return SheetEngineConfig{
		SourceSystem: models.SourceSystemCuratedSheet,
	}
}

// SheetEngine consolidates staged curated-sheet rows into people,
// organizations, role events and funding flows.
type SheetEngine struct {
	stagingRepo  stagingrow.StagingRowRepository
	roleRepo     roleevent.RoleEventRepository
	flowRepo     fundingflow.FundingFlowRepository
	linkRepo     personlink.PersonLinkRepository
	docRepo      sourcedocument.SourceDocumentRepository
	evidenceRepo evidence.EvidenceRepository
	runRepo      ingestrun.IngestRunRepository
	maintRepo    maintenance.MaintenanceRepository
	resolver     *resolver.Resolver
	emitter      *events.Emitter
	config       SheetEngineConfig
	logger       ectologger.Logger
}

// NewSheetEngine creates a sheet normalization engine
func NewSheetEngine(
	stagingRepo stagingrow.StagingRowRepository,
	roleRepo roleevent.RoleEventRepository,
	flowRepo fundingflow.FundingFlowRepository,
	linkRepo personlink.PersonLinkRepository,
	docRepo sourcedocument.SourceDocumentRepository,
	evidenceRepo evidence.EvidenceRepository,
	runRepo ingestrun.IngestRunRepository,
	maintRepo maintenance.MaintenanceRepository,
	res *resolver.Resolver,
	emitter *events.Emitter,
	config SheetEngineConfig,
	logger ectologger.Logger,
) *SheetEngine {
	return &SheetEngine{
		stagingRepo:  stagingRepo,
		roleRepo:     roleRepo,
		flowRepo:     flowRepo,
		linkRepo:     linkRepo,
		docRepo:      docRepo,
		evidenceRepo: evidenceRepo,
		runRepo:      runRepo,
		maintRepo:    maintRepo,
		resolver:     res,
		emitter:      emitter,
		config:       config,
		logger:       logger,
	}
}

// NormalizeOptions control one normalization run.
type NormalizeOptions struct {
	// TruncateCore clears the canonical model before consolidating, for a
	// full rebuild from staging.
	TruncateCore bool
}

// Normalize consolidates all staged sheet rows. Invalid rows are counted
// and skipped; the run only fails on storage errors.
func (e *SheetEngine) Normalize(ctx context.Context, opts NormalizeOptions) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "normalize.SheetEngine.Normalize")
	defer span.End()

	run, err := e.runRepo.StartRun(ctx, e.config.SourceSystem, "normalize.sheet")
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

func (e *SheetEngine) normalize(ctx context.Context, opts NormalizeOptions) (*Result, error) {
	if opts.TruncateCore {
		if err := e.maintRepo.TruncateCore(ctx); err != nil {
			return nil, err
		}
	}

	if err := e.resolver.Load(ctx); err != nil {
		return nil, err
	}

	result := &Result{}

	docRows, err := e.stagingRepo.ListBySheet(ctx, e.config.SourceSystem, sheetDataSources)
	if err != nil {
		return nil, err
	}
	if err := e.processRows(ctx, docRows, result, e.processDataSourceRow); err != nil {
		return nil, err
	}

	orgRows, err := e.stagingRepo.ListBySheet(ctx, e.config.SourceSystem, sheetOrganizations)
	if err != nil {
		return nil, err
	}
	if err := e.processRows(ctx, orgRows, result, func(ctx context.Context, row models.StagingRow) error {
		return e.processOrganizationRow(ctx, row, result)
	}); err != nil {
		return nil, err
	}

	linkRows, err := e.stagingRepo.ListBySheet(ctx, e.config.SourceSystem, sheetPersonLinks)
	if err != nil {
		return nil, err
	}
	if err := e.processRows(ctx, linkRows, result, e.processPersonLinkRow); err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"rows_seen":    result.RowsSeen,
		"rows_written": result.RowsWritten,
		"rows_invalid": result.RowsInvalid,
	}).Info("Normalized curated sheet staging")

	return result, nil
}

// processRows consolidates one sheet's rows. Row validation failures are
// counted and skipped; anything else aborts the run.
func (e *SheetEngine) processRows(ctx context.Context, rows []models.StagingRow, result *Result, process func(context.Context, models.StagingRow) error) error {
	for _, row := range rows {
		result.RowsSeen++
		if err := process(ctx, row); err != nil {
			if rowErr, ok := err.(*RowValidationError); ok {
				result.RowsInvalid++
				e.logger.WithContext(ctx).WithFields(map[string]any{
					"sheet":     rowErr.SheetName,
					"row_index": rowErr.RowIndex,
					"reason":    rowErr.Reason,
				}).Warn("Skipped invalid staged row")
				continue
			}
			return err
		}
		result.RowsWritten++
	}
	return nil
}

func (e *SheetEngine) processDataSourceRow(ctx context.Context, row models.StagingRow) error {
	payload, err := decodePayload(row)
	if err != nil {
		return err
	}

	docURL := stringField(payload, "URL")
	if !strings.HasPrefix(docURL, "http") {
		return &RowValidationError{SheetName: row.SheetName, RowIndex: row.RowIndex, Reason: "missing or non-http URL"}
	}

	title := stringField(payload, "Datakilde")
	if title == "" {
		title = hostOf(docURL)
	}

	_, err = e.docRepo.Ensure(ctx, models.EnsureSourceDocumentRequest{
		Title:     optional(title),
		Publisher: optional(hostOf(docURL)),
		URL:       &docURL,
		DocType:   optional("catalog"),
	})
	return err
}

func (e *SheetEngine) processOrganizationRow(ctx context.Context, row models.StagingRow, result *Result) error {
	payload, err := decodePayload(row)
	if err != nil {
		return err
	}

	orgName := stringField(payload, "Organisasjon")
	personName := stringField(payload, "Norsk toppperson")
	roleTitle := stringField(payload, "Rolle/tittel")
	if orgName == "" || personName == "" || roleTitle == "" {
		return &RowValidationError{SheetName: row.SheetName, RowIndex: row.RowIndex, Reason: "missing organization, person, or role title"}
	}

	orgID, _, err := e.resolver.EnsureOrganization(ctx, models.EnsureOrganizationRequest{
		CanonicalName: orgName,
		OrgType:       optional(stringField(payload, "Type")),
		CountryCode:   optional(stringField(payload, "Hovedsete/land")),
	}, "", e.config.SourceSystem)
	if err != nil {
		return err
	}

	personID, _, err := e.resolver.EnsurePerson(ctx, models.EnsurePersonRequest{CanonicalName: personName}, e.config.SourceSystem)
	if err != nil {
		return err
	}

	announcedOn := ParseDate(stringField(payload, "Dato kunngjort/valgt"))
	startOn := ParseDate(stringField(payload, "Tiltredelse"))
	endOn := ParseDate(stringField(payload, "Slutt"))
	if startOn != nil && endOn != nil && endOn.Before(*startOn) {
		return &RowValidationError{SheetName: row.SheetName, RowIndex: row.RowIndex, Reason: "role end date precedes start date"}
	}

	roleEvent, _, err := e.roleRepo.Upsert(ctx, models.UpsertRoleEventRequest{
		PersonID:       personID,
		OrganizationID: orgID,
		RoleTitle:      roleTitle,
		RoleLevel:      optional(stringField(payload, "Nivå")),
		AnnouncedOn:    announcedOn,
		StartOn:        startOn,
		EndOn:          endOn,
		Confidence:     sheetConfidence,
		Notes:          optional(stringField(payload, "Norsk posisjon før (kort)")),
	})
	if err != nil {
		return err
	}

	if err := e.linkEvidence(ctx, payload, "Primærkilde: utnevnelse/valg (URL)", "appointment", map[string]string{
		models.FactTypeRoleEvent:    roleEvent.ID,
		models.FactTypePerson:       personID,
		models.FactTypeOrganization: orgID,
	}); err != nil {
		return err
	}
	if err := e.linkEvidence(ctx, payload, "Primærkilde: bio/rolle (URL)", "bio", map[string]string{
		models.FactTypeRoleEvent: roleEvent.ID,
		models.FactTypePerson:    personID,
	}); err != nil {
		return err
	}

	return e.processFundingColumns(ctx, payload, orgID, announcedOn, startOn, result)
}

// processFundingColumns writes the funding flow a curated row documents,
// when it documents one. Curated flows always read as Norwegian state
// support to the recipient organization.
func (e *SheetEngine) processFundingColumns(ctx context.Context, payload map[string]any, orgID string, announcedOn, startOn *time.Time, result *Result) error {
	amountNOK := ParseAmountNOK(stringField(payload, "Dokumentert beløp (NOK)"))
	fundingChannel := stringField(payload, "Bidragskanal (typisk)")
	donorURL := stringField(payload, "Primærkilde: bidrag/donoroversikt (URL)")

	if amountNOK == nil && fundingChannel == "" && donorURL == "" {
		return nil
	}

	flowDate := startOn
	if flowDate == nil {
		flowDate = announcedOn
	}
	var fiscalYear *int
	if flowDate != nil {
		year := flowDate.Year()
		fiscalYear = &year
	}

	donorCountry := "NO"
	flow, created, err := e.flowRepo.Upsert(ctx, models.UpsertFundingFlowRequest{
		DonorCountryCode: &donorCountry,
		RecipientOrgID:   &orgID,
		AmountNOK:        amountNOK,
		AnnouncedOn:      flowDate,
		FiscalYear:       fiscalYear,
		FundingChannel:   optional(fundingChannel),
		SourceSystem:     e.config.SourceSystem,
		Confidence:       sheetConfidence,
		Notes:            optional(stringField(payload, "Beløp – detaljer/forbehold")),
	})
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

	if strings.HasPrefix(donorURL, "http") {
		doc, err := e.docRepo.Ensure(ctx, models.EnsureSourceDocumentRequest{
			URL:       &donorURL,
			DocType:   optional("funding"),
			Publisher: optional(hostOf(donorURL)),
		})
		if err != nil {
			return err
		}
		if err := e.evidenceRepo.Ensure(ctx, models.FactTypeFundingFlow, flow.ID, doc.ID, "donor_report"); err != nil {
			return err
		}
		if err := e.evidenceRepo.Ensure(ctx, models.FactTypeOrganization, orgID, doc.ID, "funding"); err != nil {
			return err
		}
	}

	return nil
}

// processPersonLinkRow consolidates one curated relationship row. Both
// endpoints resolve through the person lookup, so the row may spell either
// name differently than the canonical record.
func (e *SheetEngine) processPersonLinkRow(ctx context.Context, row models.StagingRow) error {
	payload, err := decodePayload(row)
	if err != nil {
		return err
	}

	nameA := stringField(payload, "Person A")
	nameB := stringField(payload, "Person B")
	relationType := stringField(payload, "Relasjon")
	if nameA == "" || nameB == "" || relationType == "" {
		return &RowValidationError{SheetName: row.SheetName, RowIndex: row.RowIndex, Reason: "missing person or relation type"}
	}

	startOn := ParseDate(stringField(payload, "Start"))
	endOn := ParseDate(stringField(payload, "Slutt"))
	if startOn != nil && endOn != nil && endOn.Before(*startOn) {
		return &RowValidationError{SheetName: row.SheetName, RowIndex: row.RowIndex, Reason: "relation end date precedes start date"}
	}

	personA, _, err := e.resolver.EnsurePerson(ctx, models.EnsurePersonRequest{CanonicalName: nameA}, e.config.SourceSystem)
	if err != nil {
		return err
	}
	personB, _, err := e.resolver.EnsurePerson(ctx, models.EnsurePersonRequest{CanonicalName: nameB}, e.config.SourceSystem)
	if err != nil {
		return err
	}
	if personA == personB {
		return &RowValidationError{SheetName: row.SheetName, RowIndex: row.RowIndex, Reason: "relation links a person to themselves"}
	}

	link, _, err := e.linkRepo.Upsert(ctx, models.UpsertPersonLinkRequest{
		PersonAID:     personA,
		PersonBID:     personB,
		RelationType:  relationType,
		RelationLabel: optional(stringField(payload, "Beskrivelse")),
		StartOn:       startOn,
		EndOn:         endOn,
		Confidence:    linkConfidence,
		Notes:         optional(stringField(payload, "Notater")),
	})
	if err != nil {
		return err
	}

	return e.linkEvidence(ctx, payload, "Kilde (URL)", "relation", map[string]string{
		models.FactTypePersonLink: link.ID,
	})
}

func (e *SheetEngine) linkEvidence(ctx context.Context, payload map[string]any, column, relationType string, facts map[string]string) error {
	docURL := stringField(payload, column)
	if !strings.HasPrefix(docURL, "http") {
		return nil
	}

	doc, err := e.docRepo.Ensure(ctx, models.EnsureSourceDocumentRequest{
		URL:       &docURL,
		DocType:   optional(relationType),
		Publisher: optional(hostOf(docURL)),
	})
	if err != nil {
		return err
	}

	for factType, factID := range facts {
		if err := e.evidenceRepo.Ensure(ctx, factType, factID, doc.ID, relationType); err != nil {
			return err
		}
	}

	return nil
}

func decodePayload(row models.StagingRow) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(row.RowPayload, &payload); err != nil {
		return nil, &RowValidationError{SheetName: row.SheetName, RowIndex: row.RowIndex, Reason: fmt.Sprintf("invalid payload: %v", err)}
	}
	return payload, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
