package normalize

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Ramsey-B/willow/internal/repositories/fundingflow"
	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/fingerprint"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/resolver"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// fakeDB satisfies database.DB for engines that only need transaction
// scoping; the fakes below keep their own state, so the transaction is a
// no-op.
type fakeDB struct{}

func (f *fakeDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, nil
}
func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (f *fakeDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return sql.ErrNoRows
}
func (f *fakeDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (f *fakeDB) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}
func (f *fakeDB) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}
func (f *fakeDB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (f *fakeDB) Rebind(query string) string      { return query }
func (f *fakeDB) PingContext(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                    { return nil }
func (f *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &fakeTx{}, nil
}

type fakeTx struct{ closed bool }

func (f *fakeTx) IsOpen() bool                      { return !f.closed }
func (f *fakeTx) Commit(ctx context.Context) error  { f.closed = true; return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { f.closed = true; return nil }
func (f *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (f *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return sql.ErrNoRows
}
func (f *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (f *fakeTx) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}
func (f *fakeTx) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}
func (f *fakeTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (f *fakeTx) Rebind(query string) string { return query }

type fakeOrgRepo struct {
	orgs []models.Organization
}

func (f *fakeOrgRepo) Ensure(ctx context.Context, req models.EnsureOrganizationRequest) (*models.Organization, bool, error) {
	for i := range f.orgs {
		if strings.EqualFold(f.orgs[i].CanonicalName, req.CanonicalName) {
			return &f.orgs[i], false, nil
		}
	}
	org := models.Organization{
		ID:            uuid.New().String(),
		CanonicalName: req.CanonicalName,
		OrgType:       req.OrgType,
		CountryCode:   req.CountryCode,
	}
	f.orgs = append(f.orgs, org)
	return &org, true, nil
}

func (f *fakeOrgRepo) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	for i := range f.orgs {
		if f.orgs[i].ID == id {
			return &f.orgs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeOrgRepo) GetByCanonicalName(ctx context.Context, name string) (*models.Organization, error) {
	for i := range f.orgs {
		if strings.EqualFold(f.orgs[i].CanonicalName, name) {
			return &f.orgs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeOrgRepo) List(ctx context.Context, search string, page, pageSize int) ([]models.Organization, int, error) {
	return f.orgs, len(f.orgs), nil
}

func (f *fakeOrgRepo) ListAll(ctx context.Context) ([]models.Organization, error) {
	return f.orgs, nil
}

type fakeAliasRepo struct {
	aliases []models.OrganizationAlias
}

func (f *fakeAliasRepo) Ensure(ctx context.Context, organizationID, alias, aliasKey, sourceSystem string) (bool, error) {
	if aliasKey == "" {
		return false, nil
	}
	for _, a := range f.aliases {
		if a.AliasKey == aliasKey {
			return false, nil
		}
	}
	f.aliases = append(f.aliases, models.OrganizationAlias{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		Alias:          alias,
		AliasKey:       aliasKey,
		SourceSystem:   sourceSystem,
	})
	return true, nil
}

func (f *fakeAliasRepo) ListByOrganization(ctx context.Context, organizationID string) ([]models.OrganizationAlias, error) {
	var out []models.OrganizationAlias
	for _, a := range f.aliases {
		if a.OrganizationID == organizationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAliasRepo) ListAll(ctx context.Context) ([]models.OrganizationAlias, error) {
	return f.aliases, nil
}

type fakePersonRepo struct {
	persons []models.Person
}

// Matching is byte-exact: spelling variants are collapsed by the
// resolver's alias lookup, never by the person store.
func (f *fakePersonRepo) Ensure(ctx context.Context, req models.EnsurePersonRequest) (*models.Person, bool, error) {
	for i := range f.persons {
		if f.persons[i].CanonicalName == req.CanonicalName {
			return &f.persons[i], false, nil
		}
	}
	p := models.Person{ID: uuid.New().String(), CanonicalName: req.CanonicalName}
	f.persons = append(f.persons, p)
	return &p, true, nil
}

func (f *fakePersonRepo) GetByID(ctx context.Context, id string) (*models.Person, error) {
	for i := range f.persons {
		if f.persons[i].ID == id {
			return &f.persons[i], nil
		}
	}
	return nil, nil
}

func (f *fakePersonRepo) GetByCanonicalName(ctx context.Context, name string) (*models.Person, error) {
	for i := range f.persons {
		if f.persons[i].CanonicalName == name {
			return &f.persons[i], nil
		}
	}
	return nil, nil
}

func (f *fakePersonRepo) List(ctx context.Context, search string, page, pageSize int) ([]models.Person, int, error) {
	return f.persons, len(f.persons), nil
}

func (f *fakePersonRepo) ListAll(ctx context.Context) ([]models.Person, error) {
	return f.persons, nil
}

type fakePersonAliasRepo struct {
	aliases []models.PersonAlias
}

func (f *fakePersonAliasRepo) Ensure(ctx context.Context, personID, alias, aliasKey, sourceSystem string) (bool, error) {
	if aliasKey == "" {
		return false, nil
	}
	for _, a := range f.aliases {
		if a.AliasKey == aliasKey {
			return false, nil
		}
	}
	f.aliases = append(f.aliases, models.PersonAlias{
		ID:           uuid.New().String(),
		PersonID:     personID,
		Alias:        alias,
		AliasKey:     aliasKey,
		SourceSystem: sourceSystem,
	})
	return true, nil
}

func (f *fakePersonAliasRepo) ListByPerson(ctx context.Context, personID string) ([]models.PersonAlias, error) {
	var out []models.PersonAlias
	for _, a := range f.aliases {
		if a.PersonID == personID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakePersonAliasRepo) ListAll(ctx context.Context) ([]models.PersonAlias, error) {
	return f.aliases, nil
}

type fakeLinkRepo struct {
	links []models.PersonLink
}

func linkNaturalKey(personA, personB, relationType string, startOn *time.Time) string {
	start := "0001-01-01"
	if startOn != nil {
		start = startOn.Format("2006-01-02")
	}
	return strings.Join([]string{personA, personB, relationType, start}, "|")
}

func (f *fakeLinkRepo) Upsert(ctx context.Context, req models.UpsertPersonLinkRequest) (*models.PersonLink, bool, error) {
	if req.PersonAID == req.PersonBID {
		return nil, false, fmt.Errorf("person link endpoints must differ: %s", req.PersonAID)
	}
	personA, personB := req.PersonAID, req.PersonBID
	if personB < personA {
		personA, personB = personB, personA
	}
	key := linkNaturalKey(personA, personB, req.RelationType, req.StartOn)
	for i := range f.links {
		l := &f.links[i]
		if linkNaturalKey(l.PersonAID, l.PersonBID, l.RelationType, l.StartOn) == key {
			if req.Confidence > l.Confidence {
				l.Confidence = req.Confidence
			}
			if l.RelationLabel == nil {
				l.RelationLabel = req.RelationLabel
			}
			if l.EndOn == nil {
				l.EndOn = req.EndOn
			}
			return l, false, nil
		}
	}
	link := models.PersonLink{
		ID:               uuid.New().String(),
		PersonAID:        personA,
		PersonBID:        personB,
		RelationType:     req.RelationType,
		RelationLabel:    req.RelationLabel,
		StartOn:          req.StartOn,
		EndOn:            req.EndOn,
		Confidence:       req.Confidence,
		SourceDocumentID: req.SourceDocumentID,
		Notes:            req.Notes,
	}
	f.links = append(f.links, link)
	return &link, true, nil
}

func (f *fakeLinkRepo) ListByPerson(ctx context.Context, personID string) ([]models.PersonLink, error) {
	var out []models.PersonLink
	for _, l := range f.links {
		if l.PersonAID == personID || l.PersonBID == personID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinkRepo) ListAll(ctx context.Context) ([]models.PersonLink, error) {
	return f.links, nil
}

type fakeRoleRepo struct {
	roles []models.RoleEvent
}

func roleKey(personID, orgID, title string, startOn *time.Time) string {
	start := "0001-01-01"
	if startOn != nil {
		start = startOn.Format("2006-01-02")
	}
	return strings.Join([]string{personID, orgID, title, start}, "|")
}

func (f *fakeRoleRepo) Upsert(ctx context.Context, req models.UpsertRoleEventRequest) (*models.RoleEvent, bool, error) {
	key := roleKey(req.PersonID, req.OrganizationID, req.RoleTitle, req.StartOn)
	for i := range f.roles {
		r := &f.roles[i]
		if roleKey(r.PersonID, r.OrganizationID, r.RoleTitle, r.StartOn) == key {
			if req.Confidence > r.Confidence {
				r.Confidence = req.Confidence
			}
			return r, false, nil
		}
	}
	role := models.RoleEvent{
		ID:             uuid.New().String(),
		PersonID:       req.PersonID,
		OrganizationID: req.OrganizationID,
		RoleTitle:      req.RoleTitle,
		RoleLevel:      req.RoleLevel,
		AnnouncedOn:    req.AnnouncedOn,
		StartOn:        req.StartOn,
		EndOn:          req.EndOn,
		Confidence:     req.Confidence,
		Notes:          req.Notes,
	}
	f.roles = append(f.roles, role)
	return &role, true, nil
}

func (f *fakeRoleRepo) ListByPerson(ctx context.Context, personID string) ([]models.RoleEvent, error) {
	var out []models.RoleEvent
	for _, r := range f.roles {
		if r.PersonID == personID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRoleRepo) ListAll(ctx context.Context) ([]models.RoleEvent, error) {
	return f.roles, nil
}

type fakeFlowRepo struct {
	flows []models.FundingFlow

	// keys mirrors the ingest key cascade: deleting a flow deletes the
	// keys registered against it.
	keys *fakeKeyRepo
}

func flowKey(sourceSystem string, donorOrg, donorCountry, recipientOrg, recipientName *string, announcedOn *time.Time) string {
	parts := []string{sourceSystem}
	for _, s := range []*string{donorOrg, donorCountry, recipientOrg, recipientName} {
		if s != nil {
			parts = append(parts, *s)
		} else {
			parts = append(parts, "-")
		}
	}
	if announcedOn != nil {
		parts = append(parts, announcedOn.Format("2006-01-02"))
	} else {
		parts = append(parts, "-")
	}
	return strings.Join(parts, "|")
}

func (f *fakeFlowRepo) Upsert(ctx context.Context, req models.UpsertFundingFlowRequest) (*models.FundingFlow, bool, error) {
	if !req.HasDonor() || !req.HasRecipient() {
		return nil, false, fmt.Errorf("funding flow requires a donor and a recipient")
	}
	key := flowKey(req.SourceSystem, req.DonorOrgID, req.DonorCountryCode, req.RecipientOrgID, req.RecipientNameRaw, req.AnnouncedOn)
	for i := range f.flows {
		fl := &f.flows[i]
		if flowKey(fl.SourceSystem, fl.DonorOrgID, fl.DonorCountryCode, fl.RecipientOrgID, fl.RecipientNameRaw, fl.AnnouncedOn) == key {
			fl.AmountNOK = req.AmountNOK
			fl.AmountOriginal = req.AmountOriginal
			fl.CurrencyCode = req.CurrencyCode
			fl.Confidence = req.Confidence
			fl.FundingChannel = req.FundingChannel
			fl.Notes = req.Notes
			if req.FiscalYear != nil {
				fl.FiscalYear = req.FiscalYear
			}
			if req.PeriodStart != nil {
				fl.PeriodStart = req.PeriodStart
			}
			if req.PeriodEnd != nil {
				fl.PeriodEnd = req.PeriodEnd
			}
			return fl, false, nil
		}
	}
	flow := models.FundingFlow{
		ID:               uuid.New().String(),
		DonorOrgID:       req.DonorOrgID,
		DonorCountryCode: req.DonorCountryCode,
		RecipientOrgID:   req.RecipientOrgID,
		RecipientNameRaw: req.RecipientNameRaw,
		AmountNOK:        req.AmountNOK,
		AmountOriginal:   req.AmountOriginal,
		CurrencyCode:     req.CurrencyCode,
		AnnouncedOn:      req.AnnouncedOn,
		DecidedOn:        req.DecidedOn,
		FiscalYear:       req.FiscalYear,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		FundingChannel:   req.FundingChannel,
		SourceSystem:     req.SourceSystem,
		SourceDocumentID: req.SourceDocumentID,
		Confidence:       req.Confidence,
		Notes:            req.Notes,
	}
	f.flows = append(f.flows, flow)
	return &flow, true, nil
}

func (f *fakeFlowRepo) GetByID(ctx context.Context, id string) (*models.FundingFlow, error) {
	for i := range f.flows {
		if f.flows[i].ID == id {
			return &f.flows[i], nil
		}
	}
	return nil, nil
}

func (f *fakeFlowRepo) List(ctx context.Context, filter fundingflow.ListFilter, page, pageSize int) ([]models.FundingFlow, int, error) {
	return f.flows, len(f.flows), nil
}

func (f *fakeFlowRepo) ListAll(ctx context.Context) ([]models.FundingFlow, error) {
	return f.flows, nil
}

func (f *fakeFlowRepo) DeleteBySourceSystem(ctx context.Context, sourceSystem string) (int64, error) {
	var kept []models.FundingFlow
	var deleted int64
	for _, fl := range f.flows {
		if fl.SourceSystem == sourceSystem {
			deleted++
			if f.keys != nil {
				for mapKey, k := range f.keys.keys {
					if k.FundingFlowID == fl.ID {
						delete(f.keys.keys, mapKey)
					}
				}
			}
			continue
		}
		kept = append(kept, fl)
	}
	f.flows = kept
	return deleted, nil
}

type fakeDocRepo struct {
	docs []models.SourceDocument
}

func (f *fakeDocRepo) Ensure(ctx context.Context, req models.EnsureSourceDocumentRequest) (*models.SourceDocument, error) {
	for i := range f.docs {
		d := &f.docs[i]
		if req.ExternalRef != nil && d.ExternalRef != nil && *d.ExternalRef == *req.ExternalRef {
			return d, nil
		}
		if req.ExternalRef == nil && req.URL != nil && d.URL != nil && *d.URL == *req.URL {
			return d, nil
		}
	}
	doc := models.SourceDocument{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Publisher:   req.Publisher,
		URL:         req.URL,
		DocType:     req.DocType,
		ExternalRef: req.ExternalRef,
	}
	f.docs = append(f.docs, doc)
	return &doc, nil
}

func (f *fakeDocRepo) GetByID(ctx context.Context, id string) (*models.SourceDocument, error) {
	for i := range f.docs {
		if f.docs[i].ID == id {
			return &f.docs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeDocRepo) ListAll(ctx context.Context) ([]models.SourceDocument, error) {
	return f.docs, nil
}

type fakeEvidenceRepo struct {
	links []models.Evidence
}

func (f *fakeEvidenceRepo) Ensure(ctx context.Context, factType, factID, sourceDocumentID, relationType string) error {
	for _, l := range f.links {
		if l.FactType == factType && l.FactID == factID && l.SourceDocumentID == sourceDocumentID && l.RelationType == relationType {
			return nil
		}
	}
	f.links = append(f.links, models.Evidence{
		ID:               uuid.New().String(),
		FactType:         factType,
		FactID:           factID,
		SourceDocumentID: sourceDocumentID,
		RelationType:     relationType,
	})
	return nil
}

func (f *fakeEvidenceRepo) ListByFact(ctx context.Context, factType, factID string) ([]models.Evidence, error) {
	var out []models.Evidence
	for _, l := range f.links {
		if l.FactType == factType && l.FactID == factID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeEvidenceRepo) ListByFactType(ctx context.Context, factType string) ([]models.Evidence, error) {
	var out []models.Evidence
	for _, l := range f.links {
		if l.FactType == factType {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeRunRepo struct {
	runs []models.IngestRun
}

func (f *fakeRunRepo) StartRun(ctx context.Context, sourceSystem, jobName string) (*models.IngestRun, error) {
	run := models.IngestRun{
		ID:           uuid.New().String(),
		SourceSystem: sourceSystem,
		JobName:      jobName,
		Status:       models.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	f.runs = append(f.runs, run)
	return &run, nil
}

func (f *fakeRunRepo) FinishRun(ctx context.Context, runID, status string, counts models.RunCounts, notes any) error {
	for i := range f.runs {
		if f.runs[i].ID == runID {
			f.runs[i].Status = status
			f.runs[i].RowsSeen = counts.RowsSeen
			f.runs[i].RowsIngested = counts.RowsIngested
			f.runs[i].RowsSkipped = counts.RowsSkipped
			now := time.Now().UTC()
			f.runs[i].FinishedAt = &now
			return nil
		}
	}
	return fmt.Errorf("run %s not found", runID)
}

func (f *fakeRunRepo) GetByID(ctx context.Context, id string) (*models.IngestRun, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRunRepo) ListRecent(ctx context.Context, limit int) ([]models.IngestRun, error) {
	return f.runs, nil
}

type fakeMaintRepo struct {
	truncated int
}

func (f *fakeMaintRepo) TruncateCore(ctx context.Context) error {
	f.truncated++
	return nil
}

type fakeStagingRowRepo struct {
	rows []models.StagingRow
}

func (f *fakeStagingRowRepo) CreateBatch(ctx context.Context, ingestRunID string, reqs []models.CreateStagingRowRequest) (int, error) {
	inserted := 0
	for _, req := range reqs {
		fp, err := fingerprint.GenerateFromJSON(req.RowPayload)
		if err != nil {
			return 0, err
		}
		dup := false
		for _, r := range f.rows {
			if r.IngestRunID == ingestRunID && r.Fingerprint == fp {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		f.rows = append(f.rows, models.StagingRow{
			ID:           uuid.New().String(),
			IngestRunID:  ingestRunID,
			SourceSystem: req.SourceSystem,
			SheetName:    req.SheetName,
			RowIndex:     req.RowIndex,
			RowPayload:   req.RowPayload,
			Fingerprint:  fp,
		})
		inserted++
	}
	return inserted, nil
}

func (f *fakeStagingRowRepo) ListBySheet(ctx context.Context, sourceSystem, sheetName string) ([]models.StagingRow, error) {
	var out []models.StagingRow
	for _, r := range f.rows {
		if r.SourceSystem == sourceSystem && r.SheetName == sheetName {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStagingRowRepo) DeleteBySourceSystem(ctx context.Context, sourceSystem string) (int64, error) {
	var kept []models.StagingRow
	var deleted int64
	for _, r := range f.rows {
		if r.SourceSystem == sourceSystem {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return deleted, nil
}

type fakeIATIStagingRepo struct {
	activities []models.IATIActivity
	txs        []models.IATITransaction
}

func (f *fakeIATIStagingRepo) InsertActivity(ctx context.Context, activity models.IATIActivity) (*models.IATIActivity, error) {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	f.activities = append(f.activities, activity)
	return &activity, nil
}

func (f *fakeIATIStagingRepo) InsertTransactions(ctx context.Context, txs []models.IATITransaction) (int, error) {
	inserted := 0
	for i := range txs {
		dup := false
		for _, existing := range f.txs {
			if existing.IngestRunID == txs[i].IngestRunID && existing.EventKey == txs[i].EventKey {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if txs[i].ID == "" {
			txs[i].ID = uuid.New().String()
		}
		f.txs = append(f.txs, txs[i])
		inserted++
	}
	return inserted, nil
}

func (f *fakeIATIStagingRepo) ListTransactions(ctx context.Context) ([]models.IATITransaction, error) {
	return f.txs, nil
}

func (f *fakeIATIStagingRepo) GetActivity(ctx context.Context, id string) (*models.IATIActivity, error) {
	for i := range f.activities {
		if f.activities[i].ID == id {
			return &f.activities[i], nil
		}
	}
	return nil, nil
}

func (f *fakeIATIStagingRepo) DeleteAll(ctx context.Context) (int64, error) {
	n := int64(len(f.activities))
	f.activities = nil
	f.txs = nil
	return n, nil
}

type fakeKeyRepo struct {
	keys map[string]models.FundingIngestKey
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: map[string]models.FundingIngestKey{}}
}

func (f *fakeKeyRepo) Lookup(ctx context.Context, sourceSystem, eventKey string) (*models.FundingIngestKey, error) {
	if k, ok := f.keys[sourceSystem+"|"+eventKey]; ok {
		return &k, nil
	}
	return nil, nil
}

func (f *fakeKeyRepo) Register(ctx context.Context, sourceSystem, eventKey, fundingFlowID string) (*models.FundingIngestKey, bool, error) {
	mapKey := sourceSystem + "|" + eventKey
	if k, ok := f.keys[mapKey]; ok {
		k.LastSeenAt = time.Now().UTC()
		f.keys[mapKey] = k
		return &k, false, nil
	}
	k := models.FundingIngestKey{
		ID:            uuid.New().String(),
		SourceSystem:  sourceSystem,
		EventKey:      eventKey,
		FundingFlowID: fundingFlowID,
		FirstSeenAt:   time.Now().UTC(),
		LastSeenAt:    time.Now().UTC(),
	}
	f.keys[mapKey] = k
	return &k, true, nil
}

func (f *fakeKeyRepo) CountBySourceSystem(ctx context.Context, sourceSystem string) (int, error) {
	count := 0
	for _, k := range f.keys {
		if k.SourceSystem == sourceSystem {
			count++
		}
	}
	return count, nil
}

func newTestResolver(orgs *fakeOrgRepo, aliases *fakeAliasRepo, persons *fakePersonRepo, personAliases *fakePersonAliasRepo) *resolver.Resolver {
	return resolver.NewResolver(orgs, aliases, persons, personAliases, testLogger())
}
