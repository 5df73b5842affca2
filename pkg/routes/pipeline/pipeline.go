package pipeline

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/internal/repositories/ingestrun"
	"github.com/Ramsey-B/willow/pkg/enrichment"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/normalize"
)

var validate = validator.New()

// Register registers pipeline job routes
func Register(g *echo.Group) {
	g.POST("/normalize", Normalize)
	g.POST("/sync", Sync)
	g.POST("/enrich", Enrich)
	g.GET("/runs", ListRuns)
	g.GET("/runs/:id", GetRun)
}

// NormalizeRequest selects which staged sources to consolidate
type NormalizeRequest struct {
	// Sources defaults to every staged source when empty.
	Sources        []string `json:"sources" validate:"dive,oneof=curated_sheet iati"`
	TruncateCore   bool     `json:"truncate_core"`
	RebuildDerived bool     `json:"rebuild_derived"`
}

// NormalizeResponse carries one run summary per consolidated source
type NormalizeResponse struct {
	Results map[string]*normalize.Result `json:"results"`
}

// SyncRequest controls one graph projection pass
type SyncRequest struct {
	Scope string `json:"scope" validate:"omitempty,oneof=init full"`
	Purge bool   `json:"purge"`
}

// Normalize consolidates staged rows into the canonical model
func Normalize(c echo.Context) error {
	ctx := c.Request().Context()

	var req NormalizeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown source in %q", req.Sources)
	}

	sources := req.Sources
	if len(sources) == 0 {
		sources = []string{models.SourceSystemCuratedSheet, models.SourceSystemIATI}
	}

	response := &NormalizeResponse{Results: make(map[string]*normalize.Result)}
	for _, source := range sources {
		switch source {
		case models.SourceSystemCuratedSheet:
			ctx, engine, err := ectoinject.GetContext[*normalize.SheetEngine](ctx)
			if err != nil {
				return httperror.NewHTTPError(http.StatusInternalServerError, "sheet engine unavailable")
			}
			result, err := engine.Normalize(ctx, normalize.NormalizeOptions{TruncateCore: req.TruncateCore})
			if err != nil {
				return err
			}
			response.Results[source] = result
		case models.SourceSystemIATI:
			ctx, engine, err := ectoinject.GetContext[*normalize.IATIEngine](ctx)
			if err != nil {
				return httperror.NewHTTPError(http.StatusInternalServerError, "iati engine unavailable")
			}
			result, err := engine.Normalize(ctx, normalize.IATINormalizeOptions{RebuildDerived: req.RebuildDerived})
			if err != nil {
				return err
			}
			response.Results[source] = result
		default:
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown source %q", source)
		}
	}

	return c.JSON(http.StatusOK, response)
}

// Sync projects the canonical model into the graph read model
func Sync(c echo.Context) error {
	ctx := c.Request().Context()

	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown scope %q", req.Scope)
	}

	ctx, projector, err := ectoinject.GetContext[*graph.Projector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "projector unavailable")
	}

	result, err := projector.Project(ctx, graph.ProjectOptions{Scope: req.Scope, Purge: req.Purge})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Enrich runs the external funding providers over the organizations
func Enrich(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, enricher, err := ectoinject.GetContext[*enrichment.Enricher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "enricher unavailable")
	}

	result, err := enricher.Enrich(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ListRuns lists recent ingest runs
func ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	ctx, repo, err := ectoinject.GetContext[ingestrun.IngestRunRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}

// GetRun gets one ingest run by ID
func GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[ingestrun.IngestRunRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "run not found")
	}

	return c.JSON(http.StatusOK, run)
}
