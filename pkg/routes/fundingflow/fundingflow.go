package fundingflow

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/internal/repositories/evidence"
	"github.com/Ramsey-B/willow/internal/repositories/fundingflow"
	"github.com/Ramsey-B/willow/pkg/models"
)

// Register registers funding flow routes
func Register(g *echo.Group) {
	g.GET("", ListFundingFlows)
	g.GET("/:id", GetFundingFlow)
}

// ListResponse is a paginated funding flow listing
type ListResponse struct {
	Flows    []models.FundingFlow `json:"flows"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// Detail is a funding flow with its evidence links
type Detail struct {
	Flow     models.FundingFlow `json:"flow"`
	Evidence []models.Evidence  `json:"evidence"`
}

// ListFundingFlows lists funding flows with optional filters
func ListFundingFlows(c echo.Context) error {
	ctx := c.Request().Context()

	filter := fundingflow.ListFilter{
		SourceSystem:   c.QueryParam("source_system"),
		DonorOrgID:     c.QueryParam("donor_org_id"),
		RecipientOrgID: c.QueryParam("recipient_org_id"),
	}
	if raw := c.QueryParam("min_confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "min_confidence must be a number")
		}
		filter.MinConfidence = parsed
	}
	if raw := c.QueryParam("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "year must be an integer")
		}
		filter.Year = parsed
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	ctx, repo, err := ectoinject.GetContext[fundingflow.FundingFlowRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	flows, total, err := repo.List(ctx, filter, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &ListResponse{
		Flows:    flows,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// GetFundingFlow gets a funding flow with its evidence by ID
func GetFundingFlow(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[fundingflow.FundingFlowRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	flow, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if flow == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "funding flow not found")
	}

	ctx, evidenceRepo, err := ectoinject.GetContext[evidence.EvidenceRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	links, err := evidenceRepo.ListByFact(ctx, models.FactTypeFundingFlow, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &Detail{Flow: *flow, Evidence: links})
}
