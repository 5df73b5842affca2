package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Incremental statements MERGE their anchor nodes by key instead of
// matching them, so a fact event can land before the full projection has
// written its endpoints. The next full pass fills in node properties.
const (
	syncFlowOrgToOrgCypher = `
		UNWIND $rows AS row
		MERGE (d:Organization {pg_id: row.donor_org_id})
		MERGE (rorg:Organization {pg_id: row.recipient_org_id})
		MERGE (f:FundingFlow {pg_id: row.id})
		SET f += row.props
		MERGE (d)-[:FUNDED]->(f)
		MERGE (f)-[:TO_ORGANIZATION]->(rorg)
	`
	syncFlowOrgToExternalCypher = `
		UNWIND $rows AS row
		MERGE (d:Organization {pg_id: row.donor_org_id})
		MERGE (e:ExternalRecipient {name_key: row.recipient_name_key})
		SET e.name = row.recipient_name_raw
		MERGE (f:FundingFlow {pg_id: row.id})
		SET f += row.props
		MERGE (d)-[:FUNDED]->(f)
		MERGE (f)-[:TO_EXTERNAL_RECIPIENT]->(e)
	`
	syncFlowCountryToOrgCypher = `
		UNWIND $rows AS row
		MERGE (c:Country {code: row.donor_country_code})
		MERGE (rorg:Organization {pg_id: row.recipient_org_id})
		MERGE (f:FundingFlow {pg_id: row.id})
		SET f += row.props
		MERGE (c)-[:FUNDED]->(f)
		MERGE (f)-[:TO_ORGANIZATION]->(rorg)
	`
	syncFlowCountryToExternalCypher = `
		UNWIND $rows AS row
		MERGE (c:Country {code: row.donor_country_code})
		MERGE (e:ExternalRecipient {name_key: row.recipient_name_key})
		SET e.name = row.recipient_name_raw
		MERGE (f:FundingFlow {pg_id: row.id})
		SET f += row.props
		MERGE (c)-[:FUNDED]->(f)
		MERGE (f)-[:TO_EXTERNAL_RECIPIENT]->(e)
	`
	syncRoleEventCypher = `
		UNWIND $rows AS row
		MERGE (p:Person {pg_id: row.person_id})
		MERGE (o:Organization {pg_id: row.organization_id})
		MERGE (r:RoleEvent {pg_id: row.id})
		SET r.role_title = row.role_title,
		    r.role_level = row.role_level,
		    r.notes = row.notes,
		    r.announced_on = row.announced_on,
		    r.start_on = row.start_on,
		    r.end_on = row.end_on
		MERGE (p)-[:HELD_ROLE]->(r)
		MERGE (r)-[:AT_ORGANIZATION]->(o)
	`
)

// ApplyFlow writes a single funding flow into the graph, for incremental
// sync driven by fact events.
func (p *Projector) ApplyFlow(ctx context.Context, flow models.FundingFlow) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ApplyFlow")
	defer span.End()

	parts := partitionFlows([]models.FundingFlow{flow})
	switch {
	case len(parts.orgToOrg) > 0:
		return p.runBatch(ctx, syncFlowOrgToOrgCypher, parts.orgToOrg)
	case len(parts.orgToExternal) > 0:
		return p.runBatch(ctx, syncFlowOrgToExternalCypher, parts.orgToExternal)
	case len(parts.countryToOrg) > 0:
		return p.runBatch(ctx, syncFlowCountryToOrgCypher, parts.countryToOrg)
	case len(parts.countryToExternal) > 0:
		return p.runBatch(ctx, syncFlowCountryToExternalCypher, parts.countryToExternal)
	}

	// No projectable donor/recipient pair. Nothing to anchor.
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"flow_id": flow.ID,
	}).Debug("Skipping flow with no projectable endpoints")
	return nil
}

// ApplyRoleEvent writes a single role event into the graph
func (p *Projector) ApplyRoleEvent(ctx context.Context, role models.RoleEvent) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ApplyRoleEvent")
	defer span.End()

	row := map[string]any{
		"id":              role.ID,
		"person_id":       role.PersonID,
		"organization_id": role.OrganizationID,
		"role_title":      role.RoleTitle,
		"role_level":      strOrNil(role.RoleLevel),
		"notes":           strOrNil(role.Notes),
		"announced_on":    dateOrNil(role.AnnouncedOn),
		"start_on":        dateOrNil(role.StartOn),
		"end_on":          dateOrNil(role.EndOn),
	}
	return p.runBatch(ctx, syncRoleEventCypher, []map[string]any{row})
}

// SyncConsumer applies fact events to the graph as they are emitted, so
// the read model trails consolidation without waiting for a full
// projection pass.
type SyncConsumer struct {
	projector *Projector
	logger    ectologger.Logger
}

// NewSyncConsumer creates a sync consumer around a projector
func NewSyncConsumer(projector *Projector, logger ectologger.Logger) *SyncConsumer {
	return &SyncConsumer{
		projector: projector,
		logger:    logger,
	}
}

// Handle processes one fact event. Returning an error leaves the message
// uncommitted so it is retried.
func (s *SyncConsumer) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "graph.SyncConsumer.Handle")
	defer span.End()

	switch msg.GetFactType() {
	case models.FactTypeFundingFlow:
		var flow models.FundingFlow
		if err := json.Unmarshal(msg.GetData(), &flow); err != nil {
			return fmt.Errorf("failed to parse funding flow event: %w", err)
		}
		if flow.ID == "" {
			return fmt.Errorf("funding flow event missing fact id")
		}
		return s.projector.ApplyFlow(ctx, flow)

	case models.FactTypeRoleEvent:
		var role models.RoleEvent
		if err := json.Unmarshal(msg.GetData(), &role); err != nil {
			return fmt.Errorf("failed to parse role event: %w", err)
		}
		if role.ID == "" {
			return fmt.Errorf("role event missing fact id")
		}
		return s.projector.ApplyRoleEvent(ctx, role)
	}

	// Run summaries and other coordination events need no graph write.
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": msg.GetEventType(),
		"fact_type":  msg.GetFactType(),
	}).Debug("Ignoring event with no graph projection")
	return nil
}
