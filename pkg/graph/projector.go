package graph

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/willow/internal/repositories/evidence"
	"github.com/Ramsey-B/willow/internal/repositories/fundingflow"
	"github.com/Ramsey-B/willow/internal/repositories/organization"
	"github.com/Ramsey-B/willow/internal/repositories/person"
	"github.com/Ramsey-B/willow/internal/repositories/personlink"
	"github.com/Ramsey-B/willow/internal/repositories/roleevent"
	"github.com/Ramsey-B/willow/internal/repositories/sourcedocument"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Projection scopes.
const (
	ScopeInit = "init"
	ScopeFull = "full"
)

// managedLabels are the node labels the projector owns in the graph.
var managedLabels = []string{
	"Person",
	"Organization",
	"RoleEvent",
	"FundingFlow",
	"SourceDocument",
	"ExternalRecipient",
	"Country",
}

// constraintStatements make the MERGE keys unique per label. Memgraph and
// Neo4j differ in what they accept here, so failures are logged and
// skipped rather than failing initialization.
var constraintStatements = []string{
	"CREATE CONSTRAINT person_pg_id IF NOT EXISTS FOR (n:Person) REQUIRE n.pg_id IS UNIQUE",
	"CREATE CONSTRAINT organization_pg_id IF NOT EXISTS FOR (n:Organization) REQUIRE n.pg_id IS UNIQUE",
	"CREATE CONSTRAINT role_event_pg_id IF NOT EXISTS FOR (n:RoleEvent) REQUIRE n.pg_id IS UNIQUE",
	"CREATE CONSTRAINT funding_flow_pg_id IF NOT EXISTS FOR (n:FundingFlow) REQUIRE n.pg_id IS UNIQUE",
	"CREATE CONSTRAINT source_document_pg_id IF NOT EXISTS FOR (n:SourceDocument) REQUIRE n.pg_id IS UNIQUE",
	"CREATE CONSTRAINT external_recipient_name_key IF NOT EXISTS FOR (n:ExternalRecipient) REQUIRE n.name_key IS UNIQUE",
	"CREATE CONSTRAINT country_code IF NOT EXISTS FOR (n:Country) REQUIRE n.code IS UNIQUE",
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ProjectorConfig holds projection settings
type ProjectorConfig struct {
	BatchSize int
}

// DefaultProjectorConfig returns the default configuration
func DefaultProjectorConfig() ProjectorConfig {
	return ProjectorConfig{BatchSize: 500}
}

// ProjectionResult summarizes one projection pass.
type ProjectionResult struct {
	Scope         string `json:"scope"`
	Nodes         int    `json:"nodes"`
	Relationships int    `json:"relationships"`
	Failures      int    `json:"failures"`
}

// Projector syncs the canonical tables into the graph read model. Nodes
// MERGE on their relational primary key, so projection is idempotent and
// re-running it repairs a drifted graph.
type Projector struct {
	client       *Client
	personRepo   person.PersonRepository
	orgRepo      organization.OrganizationRepository
	roleRepo     roleevent.RoleEventRepository
	flowRepo     fundingflow.FundingFlowRepository
	docRepo      sourcedocument.SourceDocumentRepository
	evidenceRepo evidence.EvidenceRepository
	linkRepo     personlink.PersonLinkRepository
	emitter      *events.Emitter
	config       ProjectorConfig
	logger       ectologger.Logger
}

// NewProjector creates a graph projector
func NewProjector(
	client *Client,
	personRepo person.PersonRepository,
	orgRepo organization.OrganizationRepository,
	roleRepo roleevent.RoleEventRepository,
	flowRepo fundingflow.FundingFlowRepository,
	docRepo sourcedocument.SourceDocumentRepository,
	evidenceRepo evidence.EvidenceRepository,
	linkRepo personlink.PersonLinkRepository,
	emitter *events.Emitter,
	config ProjectorConfig,
	logger ectologger.Logger,
) *Projector {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProjectorConfig().BatchSize
	}
	return &Projector{
		client:       client,
		personRepo:   personRepo,
		orgRepo:      orgRepo,
		roleRepo:     roleRepo,
		flowRepo:     flowRepo,
		docRepo:      docRepo,
		evidenceRepo: evidenceRepo,
		linkRepo:     linkRepo,
		emitter:      emitter,
		config:       config,
		logger:       logger,
	}
}

// Init applies the uniqueness constraints. Statements the graph backend
// rejects are logged and skipped.
func (p *Projector) Init(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Init")
	defer span.End()

	for _, statement := range constraintStatements {
		if _, err := p.client.Run(ctx, statement, nil); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"statement": statement,
			}).Warn("Constraint statement rejected, continuing")
		}
	}

	return nil
}

// Purge detaches and deletes every managed node. Used before a full
// rebuild of the read model.
func (p *Projector) Purge(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Purge")
	defer span.End()

	for _, label := range managedLabels {
		if _, err := p.client.Run(ctx, "MATCH (n:"+label+") DETACH DELETE n", nil); err != nil {
			return err
		}
	}

	p.logger.WithContext(ctx).Info("Purged graph read model")
	return nil
}

// ProjectOptions control one projection pass.
type ProjectOptions struct {
	Scope string
	Purge bool
}

// Project runs one projection pass. Scope "init" only applies
// constraints; scope "full" also syncs every canonical table. Failed
// writes are retried row by row so one bad entity never blocks the rest.
func (p *Projector) Project(ctx context.Context, opts ProjectOptions) (*ProjectionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Project")
	defer span.End()

	scope := opts.Scope
	if scope == "" {
		scope = ScopeFull
	}

	result := &ProjectionResult{Scope: scope}

	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	if scope == ScopeInit {
		return result, nil
	}

	if opts.Purge {
		if err := p.Purge(ctx); err != nil {
			return nil, err
		}
	}

	if err := p.projectNodes(ctx, result); err != nil {
		return nil, err
	}
	if err := p.projectRoleEvents(ctx, result); err != nil {
		return nil, err
	}
	if err := p.projectFundingFlows(ctx, result); err != nil {
		return nil, err
	}
	if err := p.projectEvidence(ctx, result); err != nil {
		return nil, err
	}
	if err := p.projectPersonLinks(ctx, result); err != nil {
		return nil, err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"scope":         result.Scope,
		"nodes":         result.Nodes,
		"relationships": result.Relationships,
		"failures":      result.Failures,
	}).Info("Projected canonical model into graph")

	if p.emitter != nil {
		p.emitter.EmitGraphProjected(ctx, result.Scope, result.Nodes, result.Relationships, result.Failures)
	}

	return result, nil
}

func (p *Projector) projectNodes(ctx context.Context, result *ProjectionResult) error {
	persons, err := p.personRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	personRows := make([]map[string]any, 0, len(persons))
	for _, pe := range persons {
		personRows = append(personRows, map[string]any{
			"id":           pe.ID,
			"name":         pe.CanonicalName,
			"country_code": strOrNil(pe.CountryCode),
		})
	}
	result.Nodes += p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MERGE (p:Person {pg_id: row.id})
		SET p.name = row.name,
		    p.country_code = row.country_code
	`, personRows)

	orgs, err := p.orgRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	orgRows := make([]map[string]any, 0, len(orgs))
	for _, o := range orgs {
		orgRows = append(orgRows, map[string]any{
			"id":           o.ID,
			"name":         o.CanonicalName,
			"org_type":     strOrNil(o.OrgType),
			"country_code": strOrNil(o.CountryCode),
		})
	}
	result.Nodes += p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MERGE (o:Organization {pg_id: row.id})
		SET o.name = row.name,
		    o.org_type = row.org_type,
		    o.country_code = row.country_code
	`, orgRows)

	docs, err := p.docRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	docRows := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		docRows = append(docRows, map[string]any{
			"id":           d.ID,
			"title":        strOrNil(d.Title),
			"publisher":    strOrNil(d.Publisher),
			"url":          strOrNil(d.URL),
			"doc_type":     strOrNil(d.DocType),
			"published_on": dateOrNil(d.PublishedOn),
			"retrieved_at": timeOrNil(d.RetrievedAt),
		})
	}
	result.Nodes += p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MERGE (s:SourceDocument {pg_id: row.id})
		SET s.title = row.title,
		    s.publisher = row.publisher,
		    s.url = row.url,
		    s.doc_type = row.doc_type,
		    s.published_on = row.published_on,
		    s.retrieved_at = row.retrieved_at
	`, docRows)

	return nil
}

func (p *Projector) projectRoleEvents(ctx context.Context, result *ProjectionResult) error {
	roles, err := p.roleRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, 0, len(roles))
	for _, r := range roles {
		rows = append(rows, map[string]any{
			"id":              r.ID,
			"person_id":       r.PersonID,
			"organization_id": r.OrganizationID,
			"role_title":      r.RoleTitle,
			"role_level":      strOrNil(r.RoleLevel),
			"notes":           strOrNil(r.Notes),
			"announced_on":    dateOrNil(r.AnnouncedOn),
			"start_on":        dateOrNil(r.StartOn),
			"end_on":          dateOrNil(r.EndOn),
		})
	}

	written := p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MATCH (p:Person {pg_id: row.person_id})
		MATCH (o:Organization {pg_id: row.organization_id})
		MERGE (r:RoleEvent {pg_id: row.id})
		SET r.role_title = row.role_title,
		    r.role_level = row.role_level,
		    r.notes = row.notes,
		    r.announced_on = row.announced_on,
		    r.start_on = row.start_on,
		    r.end_on = row.end_on
		MERGE (p)-[:HELD_ROLE]->(r)
		MERGE (r)-[:AT_ORGANIZATION]->(o)
	`, rows)
	result.Nodes += written
	result.Relationships += written * 2

	return nil
}

// projectFundingFlows partitions flows by which donor and recipient sides
// are set: each partition anchors the FUNDED edge and the recipient edge
// to a different node pair.
func (p *Projector) projectFundingFlows(ctx context.Context, result *ProjectionResult) error {
	flows, err := p.flowRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	parts := partitionFlows(flows)
	orgToOrg := parts.orgToOrg
	orgToExternal := parts.orgToExternal
	countryToOrg := parts.countryToOrg
	countryToExternal := parts.countryToExternal

	written := p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MATCH (d:Organization {pg_id: row.donor_org_id})
		MATCH (rorg:Organization {pg_id: row.recipient_org_id})
		MERGE (f:FundingFlow {pg_id: row.id})
		SET f += row.props
		MERGE (d)-[:FUNDED]->(f)
		MERGE (f)-[:TO_ORGANIZATION]->(rorg)
	`, orgToOrg)
	result.Nodes += written
	result.Relationships += written * 2

	written = p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MATCH (d:Organization {pg_id: row.donor_org_id})
		MERGE (e:ExternalRecipient {name_key: row.recipient_name_key})
		SET e.name = row.recipient_name_raw
		MERGE (f:FundingFlow {pg_id: row.id})
		SET f += row.props
		MERGE (d)-[:FUNDED]->(f)
		MERGE (f)-[:TO_EXTERNAL_RECIPIENT]->(e)
	`, orgToExternal)
	result.Nodes += written * 2
	result.Relationships += written * 2

	written = p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MERGE (c:Country {code: row.donor_country_code})
		WITH row, c
		MATCH (rorg:Organization {pg_id: row.recipient_org_id})
		MERGE (f:FundingFlow {pg_id: row.id})
		SET f += row.props
		MERGE (c)-[:FUNDED]->(f)
		MERGE (f)-[:TO_ORGANIZATION]->(rorg)
	`, countryToOrg)
	result.Nodes += written * 2
	result.Relationships += written * 2

	written = p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MERGE (c:Country {code: row.donor_country_code})
		MERGE (e:ExternalRecipient {name_key: row.recipient_name_key})
		SET e.name = row.recipient_name_raw
		MERGE (f:FundingFlow {pg_id: row.id})
		SET f += row.props
		MERGE (c)-[:FUNDED]->(f)
		MERGE (f)-[:TO_EXTERNAL_RECIPIENT]->(e)
	`, countryToExternal)
	result.Nodes += written * 3
	result.Relationships += written * 2

	return nil
}

func (p *Projector) projectEvidence(ctx context.Context, result *ProjectionResult) error {
	roleLinks, err := p.evidenceRepo.ListByFactType(ctx, models.FactTypeRoleEvent)
	if err != nil {
		return err
	}
	result.Relationships += p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MATCH (r:RoleEvent {pg_id: row.fact_id})
		MATCH (s:SourceDocument {pg_id: row.source_document_id})
		MERGE (r)-[rel:SUPPORTED_BY {relation_type: row.relation_type}]->(s)
	`, evidenceRows(roleLinks))

	flowLinks, err := p.evidenceRepo.ListByFactType(ctx, models.FactTypeFundingFlow)
	if err != nil {
		return err
	}
	result.Relationships += p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MATCH (f:FundingFlow {pg_id: row.fact_id})
		MATCH (s:SourceDocument {pg_id: row.source_document_id})
		MERGE (f)-[rel:SUPPORTED_BY {relation_type: row.relation_type}]->(s)
	`, evidenceRows(flowLinks))

	return nil
}

func (p *Projector) projectPersonLinks(ctx context.Context, result *ProjectionResult) error {
	links, err := p.linkRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, 0, len(links))
	for _, l := range links {
		rows = append(rows, map[string]any{
			"person_a_id":   l.PersonAID,
			"person_b_id":   l.PersonBID,
			"relation_type": l.RelationType,
			"confidence":    l.Confidence,
		})
	}

	result.Relationships += p.runBatches(ctx, result, `
		UNWIND $rows AS row
		MATCH (a:Person {pg_id: row.person_a_id})
		MATCH (b:Person {pg_id: row.person_b_id})
		MERGE (a)-[rel:LINKED_TO {relation_type: row.relation_type}]->(b)
		SET rel.confidence = row.confidence
	`, rows)

	return nil
}

// runBatches writes rows in batches, falling back to row-by-row writes
// when a batch fails so one bad row only costs itself. Returns the number
// of rows written.
func (p *Projector) runBatches(ctx context.Context, result *ProjectionResult, cypher string, rows []map[string]any) int {
	written := 0
	batchSize := p.config.BatchSize

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		if err := p.runBatch(ctx, cypher, batch); err == nil {
			written += len(batch)
			continue
		}

		for _, row := range batch {
			if err := p.runBatch(ctx, cypher, []map[string]any{row}); err != nil {
				result.Failures++
				p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"row": row["id"],
				}).Error("Failed to project row, continuing")
				continue
			}
			written++
		}
	}

	return written
}

func (p *Projector) runBatch(ctx context.Context, cypher string, rows []map[string]any) error {
	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

// flowPartitions groups flows by which donor and recipient sides are set.
// External partitions require a non-blank raw recipient name; flows
// without one have nothing to anchor the recipient edge to.
type flowPartitions struct {
	orgToOrg          []map[string]any
	orgToExternal     []map[string]any
	countryToOrg      []map[string]any
	countryToExternal []map[string]any
}

func partitionFlows(flows []models.FundingFlow) flowPartitions {
	var parts flowPartitions
	for _, f := range flows {
		row := flowRow(f)

		switch {
		case f.DonorOrgID != nil && f.RecipientOrgID != nil:
			parts.orgToOrg = append(parts.orgToOrg, row)
		case f.DonorOrgID != nil:
			if key, ok := externalNameKey(f.RecipientNameRaw); ok {
				row["recipient_name_key"] = key
				parts.orgToExternal = append(parts.orgToExternal, row)
			}
		case f.DonorCountryCode != nil && f.RecipientOrgID != nil:
			parts.countryToOrg = append(parts.countryToOrg, row)
		case f.DonorCountryCode != nil:
			if key, ok := externalNameKey(f.RecipientNameRaw); ok {
				row["recipient_name_key"] = key
				parts.countryToExternal = append(parts.countryToExternal, row)
			}
		}
	}
	return parts
}

func flowRow(f models.FundingFlow) map[string]any {
	return map[string]any{
		"id":                 f.ID,
		"donor_org_id":       strOrNil(f.DonorOrgID),
		"donor_country_code": strOrNil(f.DonorCountryCode),
		"recipient_org_id":   strOrNil(f.RecipientOrgID),
		"recipient_name_raw": strOrNil(f.RecipientNameRaw),
		"props": map[string]any{
			"funding_channel": strOrNil(f.FundingChannel),
			"amount_nok":      floatOrNil(f.AmountNOK),
			"amount_original": floatOrNil(f.AmountOriginal),
			"currency_code":   strOrNil(f.CurrencyCode),
			"announced_on":    dateOrNil(f.AnnouncedOn),
			"decided_on":      dateOrNil(f.DecidedOn),
			"source_system":   f.SourceSystem,
			"confidence":      f.Confidence,
		},
	}
}

func evidenceRows(links []models.Evidence) []map[string]any {
	rows := make([]map[string]any, 0, len(links))
	for _, l := range links {
		rows = append(rows, map[string]any{
			"fact_id":            l.FactID,
			"source_document_id": l.SourceDocumentID,
			"relation_type":      l.RelationType,
		})
	}
	return rows
}

// externalNameKey collapses whitespace and lowercases a raw recipient
// name into the ExternalRecipient merge key.
func externalNameKey(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	key := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(*raw)), " ")
	if key == "" {
		return "", false
	}
	return key, true
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
