package person

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/internal/repositories/person"
	"github.com/Ramsey-B/willow/internal/repositories/personlink"
	"github.com/Ramsey-B/willow/internal/repositories/roleevent"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/models"
)

// Register registers person routes
func Register(g *echo.Group) {
	g.GET("", ListPersons)
	g.GET("/:id", GetPerson)
	g.GET("/:id/network", GetPersonNetwork)
}

// ListResponse is a paginated person listing
type ListResponse struct {
	Persons  []models.Person `json:"persons"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// Profile is a person with their role history and links
type Profile struct {
	Person models.Person       `json:"person"`
	Roles  []models.RoleEvent  `json:"roles"`
	Links  []models.PersonLink `json:"links"`
}

// ListPersons lists persons with optional name search
func ListPersons(c echo.Context) error {
	ctx := c.Request().Context()

	page, pageSize := pagination(c)

	ctx, repo, err := ectoinject.GetContext[person.PersonRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	persons, total, err := repo.List(ctx, c.QueryParam("search"), page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &ListResponse{
		Persons:  persons,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// GetPerson gets a person profile by ID
func GetPerson(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[person.PersonRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	p, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "person not found")
	}

	profile := &Profile{Person: *p}

	ctx, roleRepo, err := ectoinject.GetContext[roleevent.RoleEventRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if profile.Roles, err = roleRepo.ListByPerson(ctx, id); err != nil {
		return err
	}

	ctx, linkRepo, err := ectoinject.GetContext[personlink.PersonLinkRepository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if profile.Links, err = linkRepo.ListByPerson(ctx, id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, profile)
}

// GetPersonNetwork gets the person's neighborhood from the graph read model
func GetPersonNetwork(c echo.Context) error {
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

	network, err := query.PersonNetwork(ctx, id, hops)
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
