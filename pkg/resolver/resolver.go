package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/internal/repositories/orgalias"
	"github.com/Ramsey-B/willow/internal/repositories/organization"
	"github.com/Ramsey-B/willow/internal/repositories/person"
	"github.com/Ramsey-B/willow/internal/repositories/personalias"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// MatchMode records which key matched an organization.
type MatchMode string

const (
	MatchModeRef  MatchMode = "ref"
	MatchModeName MatchMode = "name"
	MatchModeNone MatchMode = "none"
)

// Resolver resolves organizations and persons by exact normalized-key
// lookups over the canonical names and the alias tables. Load once per
// run; RegisterAlias and RegisterPersonAlias keep the in-memory view in
// step with the alias tables, so resolution within a run only improves.
type Resolver struct {
	orgRepo         organization.OrganizationRepository
	aliasRepo       orgalias.AliasRepository
	personRepo      person.PersonRepository
	personAliasRepo personalias.AliasRepository
	logger          ectologger.Logger

	byNameKey   map[string]string
	byRefKey    map[string]string
	byPersonKey map[string]string
}

// NewResolver creates a resolver over the canonical store
func NewResolver(orgRepo organization.OrganizationRepository, aliasRepo orgalias.AliasRepository, personRepo person.PersonRepository, personAliasRepo personalias.AliasRepository, logger ectologger.Logger) *Resolver {
	return &Resolver{
		orgRepo:         orgRepo,
		aliasRepo:       aliasRepo,
		personRepo:      personRepo,
		personAliasRepo: personAliasRepo,
		logger:          logger,
		byNameKey:       make(map[string]string),
		byRefKey:        make(map[string]string),
		byPersonKey:     make(map[string]string),
	}
}

// Load builds the in-memory lookup from canonical names and aliases.
// First-registered keys win; later duplicates never steal a mapping.
func (r *Resolver) Load(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Load")
	defer span.End()

	r.byNameKey = make(map[string]string)
	r.byRefKey = make(map[string]string)
	r.byPersonKey = make(map[string]string)

	orgs, err := r.orgRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load organizations: %w", err)
	}
	for _, org := range orgs {
		key := NameKey(org.CanonicalName)
		if key != "" {
			if _, exists := r.byNameKey[key]; !exists {
				r.byNameKey[key] = org.ID
			}
		}
	}

	aliases, err := r.aliasRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load aliases: %w", err)
	}
	for _, alias := range aliases {
		nameKey := NameKey(alias.Alias)
		if nameKey != "" {
			if _, exists := r.byNameKey[nameKey]; !exists {
				r.byNameKey[nameKey] = alias.OrganizationID
			}
		}

		// References carry a dash (e.g. "NO-BRC-971277882"); plain names
		// never index the ref map.
		if strings.Contains(alias.Alias, "-") {
			refKey := RefKey(alias.Alias)
			if refKey != "" {
				if _, exists := r.byRefKey[refKey]; !exists {
					r.byRefKey[refKey] = alias.OrganizationID
				}
			}
		}
	}

	persons, err := r.personRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persons: %w", err)
	}
	for _, p := range persons {
		key := NameKey(p.CanonicalName)
		if key != "" {
			if _, exists := r.byPersonKey[key]; !exists {
				r.byPersonKey[key] = p.ID
			}
		}
	}

	personAliases, err := r.personAliasRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load person aliases: %w", err)
	}
	for _, alias := range personAliases {
		key := NameKey(alias.Alias)
		if key != "" {
			if _, exists := r.byPersonKey[key]; !exists {
				r.byPersonKey[key] = alias.PersonID
			}
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"name_keys":   len(r.byNameKey),
		"ref_keys":    len(r.byRefKey),
		"person_keys": len(r.byPersonKey),
	}).Info("Loaded canonical name lookup")

	return nil
}

// ResolveOrganization tries the reference key and then the name key,
// exact matches only. Returns the organization ID ("" when unmatched)
// and the mode that matched.
func (r *Resolver) ResolveOrganization(ctx context.Context, orgName, orgRef string) (string, MatchMode) {
	if ref := CleanText(orgRef); ref != "" {
		if orgID, ok := r.byRefKey[RefKey(ref)]; ok {
			return orgID, MatchModeRef
		}
	}

	if name := CleanText(orgName); name != "" {
		if orgID, ok := r.byNameKey[NameKey(name)]; ok {
			return orgID, MatchModeName
		}
	}

	return "", MatchModeNone
}

// RegisterAlias writes an alias for an organization and indexes it in
// memory. The canonical name itself is registered as a self-alias when an
// organization is created, so every org resolves by its own name.
func (r *Resolver) RegisterAlias(ctx context.Context, organizationID, alias, sourceSystem string) error {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.RegisterAlias")
	defer span.End()

	alias = CleanText(alias)
	if alias == "" {
		return nil
	}

	aliasKey := NameKey(alias)
	if aliasKey == "" {
		aliasKey = RefKey(alias)
	}

	if _, err := r.aliasRepo.Ensure(ctx, organizationID, alias, aliasKey, sourceSystem); err != nil {
		return err
	}

	if nameKey := NameKey(alias); nameKey != "" {
		if _, exists := r.byNameKey[nameKey]; !exists {
			r.byNameKey[nameKey] = organizationID
		}
	}
	if strings.Contains(alias, "-") {
		if refKey := RefKey(alias); refKey != "" {
			if _, exists := r.byRefKey[refKey]; !exists {
				r.byRefKey[refKey] = organizationID
			}
		}
	}

	return nil
}

// EnsureOrganization resolves an organization or creates it, registering
// the canonical name as a self-alias and any reference as a source alias.
func (r *Resolver) EnsureOrganization(ctx context.Context, req models.EnsureOrganizationRequest, orgRef, sourceSystem string) (string, MatchMode, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.EnsureOrganization")
	defer span.End()

	if orgID, mode := r.ResolveOrganization(ctx, req.CanonicalName, orgRef); mode != MatchModeNone {
		// A matched ref becomes a durable alias so the next run matches it
		// without this resolver instance.
		if orgRef != "" {
			if err := r.RegisterAlias(ctx, orgID, orgRef, sourceSystem); err != nil {
				return "", MatchModeNone, err
			}
		}
		return orgID, mode, nil
	}

	org, _, err := r.orgRepo.Ensure(ctx, req)
	if err != nil {
		return "", MatchModeNone, err
	}

	if err := r.RegisterAlias(ctx, org.ID, org.CanonicalName, sourceSystem); err != nil {
		return "", MatchModeNone, err
	}
	if orgRef != "" {
		if err := r.RegisterAlias(ctx, org.ID, orgRef, sourceSystem); err != nil {
			return "", MatchModeNone, err
		}
	}

	return org.ID, MatchModeNone, nil
}

// ResolvePerson looks a person up by the normalized name key, exact
// matches only. Returns the person ID ("" when unmatched) and the mode.
func (r *Resolver) ResolvePerson(ctx context.Context, name string) (string, MatchMode) {
	if name := CleanText(name); name != "" {
		if personID, ok := r.byPersonKey[NameKey(name)]; ok {
			return personID, MatchModeName
		}
	}

	return "", MatchModeNone
}

// RegisterPersonAlias writes an alias for a person and indexes it in
// memory, mirroring RegisterAlias for organizations.
func (r *Resolver) RegisterPersonAlias(ctx context.Context, personID, alias, sourceSystem string) error {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.RegisterPersonAlias")
	defer span.End()

	alias = CleanText(alias)
	if alias == "" {
		return nil
	}

	aliasKey := NameKey(alias)
	if _, err := r.personAliasRepo.Ensure(ctx, personID, alias, aliasKey, sourceSystem); err != nil {
		return err
	}

	if aliasKey != "" {
		if _, exists := r.byPersonKey[aliasKey]; !exists {
			r.byPersonKey[aliasKey] = personID
		}
	}

	return nil
}

// EnsurePerson resolves a person by name key or creates them, registering
// both the raw spelling and the canonical name as aliases. Two spellings
// that normalize to the same key always land on the same person.
func (r *Resolver) EnsurePerson(ctx context.Context, req models.EnsurePersonRequest, sourceSystem string) (string, MatchMode, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.EnsurePerson")
	defer span.End()

	rawName := CleanText(req.CanonicalName)
	if rawName == "" {
		return "", MatchModeNone, fmt.Errorf("person name is required")
	}

	if personID, mode := r.ResolvePerson(ctx, rawName); mode != MatchModeNone {
		// The raw spelling becomes a durable alias so the next run matches
		// it without this resolver instance.
		if err := r.RegisterPersonAlias(ctx, personID, rawName, sourceSystem); err != nil {
			return "", MatchModeNone, err
		}
		return personID, mode, nil
	}

	p, _, err := r.personRepo.Ensure(ctx, req)
	if err != nil {
		return "", MatchModeNone, err
	}

	if err := r.RegisterPersonAlias(ctx, p.ID, p.CanonicalName, sourceSystem); err != nil {
		return "", MatchModeNone, err
	}
	if rawName != p.CanonicalName {
		if err := r.RegisterPersonAlias(ctx, p.ID, rawName, sourceSystem); err != nil {
			return "", MatchModeNone, err
		}
	}

	return p.ID, MatchModeNone, nil
}
