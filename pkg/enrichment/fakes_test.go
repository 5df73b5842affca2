package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ramsey-B/willow/internal/repositories/fundingflow"
	"github.com/Ramsey-B/willow/pkg/models"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeOrgRepo struct {
	orgs []models.Organization
}

func (f *fakeOrgRepo) Ensure(ctx context.Context, req models.EnsureOrganizationRequest) (*models.Organization, bool, error) {
	org := models.Organization{ID: uuid.NewString(), CanonicalName: req.CanonicalName, CountryCode: req.CountryCode}
	f.orgs = append(f.orgs, org)
	return &org, true, nil
}

func (f *fakeOrgRepo) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	for i := range f.orgs {
		if f.orgs[i].ID == id {
			return &f.orgs[i], nil
		}
	}
	return nil, fmt.Errorf("organization %s not found", id)
}

func (f *fakeOrgRepo) GetByCanonicalName(ctx context.Context, name string) (*models.Organization, error) {
	for i := range f.orgs {
		if f.orgs[i].CanonicalName == name {
			return &f.orgs[i], nil
		}
	}
	return nil, fmt.Errorf("organization %s not found", name)
}

func (f *fakeOrgRepo) List(ctx context.Context, search string, page, pageSize int) ([]models.Organization, int, error) {
	return f.orgs, len(f.orgs), nil
}

func (f *fakeOrgRepo) ListAll(ctx context.Context) ([]models.Organization, error) {
	return f.orgs, nil
}

type fakeFlowRepo struct {
	flows []models.FundingFlow
}

func flowKey(flow models.FundingFlow) string {
	announced := ""
	if flow.AnnouncedOn != nil {
		announced = flow.AnnouncedOn.Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", flow.SourceSystem, strValue(flow.DonorCountryCode), strValue(flow.RecipientOrgID), strValue(flow.FundingChannel), announced)
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (f *fakeFlowRepo) Upsert(ctx context.Context, req models.UpsertFundingFlowRequest) (*models.FundingFlow, bool, error) {
	next := models.FundingFlow{
		ID:               uuid.NewString(),
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
		Confidence:       req.Confidence,
		Notes:            req.Notes,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}

	key := ""
	if req.DonorCountryCode != nil && req.RecipientOrgID != nil && req.FundingChannel != nil {
		key = flowKey(next)
	}
	if key != "" {
		for i := range f.flows {
			if flowKey(f.flows[i]) == key {
				next.ID = f.flows[i].ID
				next.CreatedAt = f.flows[i].CreatedAt
				f.flows[i] = next
				return &f.flows[i], false, nil
			}
		}
	}

	f.flows = append(f.flows, next)
	return &f.flows[len(f.flows)-1], true, nil
}

func (f *fakeFlowRepo) GetByID(ctx context.Context, id string) (*models.FundingFlow, error) {
	for i := range f.flows {
		if f.flows[i].ID == id {
			return &f.flows[i], nil
		}
	}
	return nil, fmt.Errorf("funding flow %s not found", id)
}

func (f *fakeFlowRepo) List(ctx context.Context, filter fundingflow.ListFilter, page, pageSize int) ([]models.FundingFlow, int, error) {
	return f.flows, len(f.flows), nil
}

func (f *fakeFlowRepo) ListAll(ctx context.Context) ([]models.FundingFlow, error) {
	return f.flows, nil
}

func (f *fakeFlowRepo) DeleteBySourceSystem(ctx context.Context, sourceSystem string) (int64, error) {
	kept := f.flows[:0]
	deleted := int64(0)
	for _, flow := range f.flows {
		if flow.SourceSystem == sourceSystem {
			deleted++
			continue
		}
		kept = append(kept, flow)
	}
	f.flows = kept
	return deleted, nil
}

type fakeDocRepo struct {
	docs []models.SourceDocument
}

func (f *fakeDocRepo) Ensure(ctx context.Context, req models.EnsureSourceDocumentRequest) (*models.SourceDocument, error) {
	if req.URL != nil {
		for i := range f.docs {
			if f.docs[i].URL != nil && *f.docs[i].URL == *req.URL {
				return &f.docs[i], nil
			}
		}
	}
	doc := models.SourceDocument{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Publisher:   req.Publisher,
		URL:         req.URL,
		DocType:     req.DocType,
		RetrievedAt: req.RetrievedAt,
		CreatedAt:   time.Now().UTC(),
	}
	f.docs = append(f.docs, doc)
	return &f.docs[len(f.docs)-1], nil
}

func (f *fakeDocRepo) GetByID(ctx context.Context, id string) (*models.SourceDocument, error) {
	for i := range f.docs {
		if f.docs[i].ID == id {
			return &f.docs[i], nil
		}
	}
	return nil, fmt.Errorf("source document %s not found", id)
}

func (f *fakeDocRepo) ListAll(ctx context.Context) ([]models.SourceDocument, error) {
	return f.docs, nil
}

type fakeEvidenceRepo struct {
	links []models.Evidence
}

func (f *fakeEvidenceRepo) Ensure(ctx context.Context, factType, factID, sourceDocumentID, relationType string) error {
	for _, link := range f.links {
		if link.FactType == factType && link.FactID == factID && link.SourceDocumentID == sourceDocumentID && link.RelationType == relationType {
			return nil
		}
	}
	f.links = append(f.links, models.Evidence{
		ID:               uuid.NewString(),
		FactType:         factType,
		FactID:           factID,
		SourceDocumentID: sourceDocumentID,
		RelationType:     relationType,
	})
	return nil
}

func (f *fakeEvidenceRepo) ListByFact(ctx context.Context, factType, factID string) ([]models.Evidence, error) {
	var out []models.Evidence
	for _, link := range f.links {
		if link.FactType == factType && link.FactID == factID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (f *fakeEvidenceRepo) ListByFactType(ctx context.Context, factType string) ([]models.Evidence, error) {
	var out []models.Evidence
	for _, link := range f.links {
		if link.FactType == factType {
			out = append(out, link)
		}
	}
	return out, nil
}

type fakeRunRepo struct {
	runs []models.IngestRun
}

func (f *fakeRunRepo) StartRun(ctx context.Context, sourceSystem, jobName string) (*models.IngestRun, error) {
	run := models.IngestRun{
		ID:           uuid.NewString(),
		SourceSystem: sourceSystem,
		JobName:      jobName,
		Status:       models.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	f.runs = append(f.runs, run)
	return &f.runs[len(f.runs)-1], nil
}

func (f *fakeRunRepo) FinishRun(ctx context.Context, runID, status string, counts models.RunCounts, notes any) error {
	for i := range f.runs {
		if f.runs[i].ID == runID {
			now := time.Now().UTC()
			f.runs[i].Status = status
			f.runs[i].FinishedAt = &now
			f.runs[i].RowsSeen = counts.RowsSeen
			f.runs[i].RowsIngested = counts.RowsIngested
			f.runs[i].RowsSkipped = counts.RowsSkipped
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
	return nil, fmt.Errorf("run %s not found", id)
}

func (f *fakeRunRepo) ListRecent(ctx context.Context, limit int) ([]models.IngestRun, error) {
	return f.runs, nil
}
