package organization

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/internal/repositories/fundingflow"
	"github.com/Ramsey-B/willow/internal/repositories/organization"
	"github.com/Ramsey-B/willow/internal/repositories/orgalias"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/models"
)

// Register registers organization routes
func Register(g *echo.Group) {
	g.GET("", ListOrganizations)
	g.GET("/:id", GetOrganization)
	g.GET("/:id/network", GetOrganizationNetwork)
}

// ListResponse is a paginated organization listing
type ListResponse struct {
	Organizations []models.Organization `json:"organizations"`
	Total         int                   `json:"total"`
	Page          int                   `json:"page"`
	PageSize      int                   `json:"page_size"`
}

// Profile is an organization with its aliases and funding flows
type Profile struct {
	Organization models.Organization        `json:"organization"`
	Aliases      []models.OrganizationAlias `json:"aliases"`
	FlowsIn      []models.FundingFlow       `json:"flows_in"`
	FlowsOut     []models.FundingFlow       `json:"flows_out"`
}

// ListOrganizations lists organizations with optional name search
func ListOrganizations(c echo.Context) error {
	ctx := c.Request().Context()

	page, pageSize := pagination(c)

	ctx, repo, err := ectoinject.GetContext[organization.OrganizationRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	orgs, total, err := repo.List(ctx, c.QueryParam("search"), page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &ListResponse{
		Organizations: orgs,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
	})
}

// GetOrganization gets an organization profile by ID
func GetOrganization(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[organization.OrganizationRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	org, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if org == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "organization not found")
	}

	profile := &Profile{Organization: *org}

	ctx, aliasRepo, err := ectoinject.GetContext[orgalias.AliasRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if profile.Aliases, err = aliasRepo.ListByOrganization(ctx, id); err != nil {
		return err
	}

	ctx, flowRepo, err := ectoinject.GetContext[fundingflow.FundingFlowRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if profile.FlowsIn, _, err = flowRepo.List(ctx, fundingflow.ListFilter{RecipientOrgID: id}, 1, 200); err != nil {
		return err
	}
	if profile.FlowsOut, _, err = flowRepo.List(ctx, fundingflow.ListFilter{DonorOrgID: id}, 1, 200); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, profile)
}

// GetOrganizationNetwork gets the organization's neighborhood from the
// graph read model
func GetOrganizationNetwork(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	hops := 0
	if raw := c.QueryParam("hops"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "hops must be a positive integer")
		}
		hops = parsed
	}

	ctx, query, err := ectoinject.GetContext[*graph.QueryService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "graph service unavailable")
	}

	network, err := query.OrganizationNetwork(ctx, id, hops)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, network)
}

func pagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return page, pageSize
}
