package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/willow/pkg/tracing"
)

// QueryService answers network questions over the projected graph
type QueryService struct {
	client *Client
	logger ectologger.Logger
}

// NewQueryService creates a new query service
func NewQueryService(client *Client, logger ectologger.Logger) *QueryService {
	return &QueryService{
		client: client,
		logger: logger,
	}
}

// QueryResult represents the result of a graph query
type QueryResult struct {
	Nodes         []NodeResult `json:"nodes,omitempty"`
	Relationships []RelResult  `json:"relationships,omitempty"`
	Rows          []any        `json:"rows,omitempty"`
}

// NodeResult represents a node from query results
type NodeResult struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// RelResult represents a relationship from query results
type RelResult struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// ExecuteQuery runs a read-only Cypher query
func (s *QueryService) ExecuteQuery(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.ExecuteQuery")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		qr := &QueryResult{
			Nodes:         make([]NodeResult, 0),
			Relationships: make([]RelResult, 0),
			Rows:          make([]any, 0),
		}

		seenNodes := make(map[string]bool)

		for result.Next(ctx) {
			record := result.Record()
			row := make(map[string]any)

			for _, key := range record.Keys {
				val, _ := record.Get(key)
				row[key] = extractValue(val, qr, seenNodes)
			}

			qr.Rows = append(qr.Rows, row)
		}

		return qr, nil
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to execute graph query")
		return nil, fmt.Errorf("failed to execute graph query: %w", err)
	}

	return result.(*QueryResult), nil
}

// OrganizationNetwork returns everything connected to an organization
// within N hops: its role holders, the flows funding it, and the
// documents supporting them.
func (s *QueryService) OrganizationNetwork(ctx context.Context, organizationID string, hops int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.OrganizationNetwork")
	defer span.End()

	if hops <= 0 {
		hops = 2
	}

	cypher := fmt.Sprintf(`
		MATCH (start:Organization {pg_id: $id})
		MATCH (start)-[r*1..%d]-(neighbor)
		RETURN DISTINCT neighbor
	`, hops)

	return s.ExecuteQuery(ctx, cypher, map[string]any{"id": organizationID})
}

// PersonNetwork returns a person's roles, linked people, and the
// organizations those roles attach to.
func (s *QueryService) PersonNetwork(ctx context.Context, personID string, hops int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.PersonNetwork")
	defer span.End()

	if hops <= 0 {
		hops = 2
	}

	cypher := fmt.Sprintf(`
		MATCH (start:Person {pg_id: $id})
		MATCH (start)-[r*1..%d]-(neighbor)
		RETURN DISTINCT neighbor
	`, hops)

	return s.ExecuteQuery(ctx, cypher, map[string]any{"id": personID})
}

// FundingPath finds the shortest funding or role chain between two
// organizations.
func (s *QueryService) FundingPath(ctx context.Context, fromOrgID, toOrgID string, maxHops int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.FundingPath")
	defer span.End()

	if maxHops <= 0 {
		maxHops = 10
	}

	cypher := fmt.Sprintf(`
		MATCH (start:Organization {pg_id: $from_id})
		MATCH (end:Organization {pg_id: $to_id})
		MATCH p = shortestPath((start)-[*..%d]-(end))
		RETURN p
	`, maxHops)

	return s.ExecuteQuery(ctx, cypher, map[string]any{
		"from_id": fromOrgID,
		"to_id":   toOrgID,
	})
}

// extractValue converts neo4j types to standard Go types
func extractValue(val any, qr *QueryResult, seenNodes map[string]bool) any {
	if val == nil {
		return nil
	}

	switch v := val.(type) {
	case neo4j.Node:
		id := fmt.Sprintf("%v", nodeKey(v))
		if !seenNodes[id] {
			seenNodes[id] = true
			qr.Nodes = append(qr.Nodes, NodeResult{
				ID:         id,
				Labels:     v.Labels,
				Properties: v.Props,
			})
		}
		return id

	case neo4j.Relationship:
		qr.Relationships = append(qr.Relationships, RelResult{
			Type:       v.Type,
			Properties: v.Props,
		})
		return v.Type

	case neo4j.Path:
		for _, node := range v.Nodes {
			extractValue(node, qr, seenNodes)
		}
		for _, rel := range v.Relationships {
			extractValue(rel, qr, seenNodes)
		}
		return map[string]any{
			"node_count": len(v.Nodes),
			"rel_count":  len(v.Relationships),
		}

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = extractValue(item, qr, seenNodes)
		}
		return result

	default:
		return v
	}
}

// nodeKey prefers the relational key; ExternalRecipient and Country nodes
// have no pg_id and fall back to their own merge keys.
func nodeKey(n neo4j.Node) any {
	if id, ok := n.Props["pg_id"]; ok {
		return id
	}
	if key, ok := n.Props["name_key"]; ok {
		return key
	}
	if code, ok := n.Props["code"]; ok {
		return code
	}
	return n.ElementId
}
