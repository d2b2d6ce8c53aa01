// Package graph exposes read-only graph queries: raw Cypher, shortest path,
// neighborhoods, and lineage chains.
package graph

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	graphpkg "github.com/khandro-archive/namthar/pkg/graph"
	"github.com/khandro-archive/namthar/pkg/graphmap"
)

// Register registers the graph routes
func Register(g *echo.Group) {
	g.POST("/query", ExecuteQuery)
	g.GET("/path", FindShortestPath)
	g.GET("/neighbors/:entityId", FindNeighbors)
	g.GET("/lineage/:entityId", FindLineage)
}

func requireQueryService(c echo.Context) (*graphpkg.QueryService, error) {
	ctx := c.Request().Context()
	_, svc, err := ectoinject.GetContext[*graphpkg.QueryService](ctx)
	if err != nil || svc == nil {
		// 503 because the graph store is an optional deployment.
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "graph query service unavailable")
	}
	return svc, nil
}

// QueryRequest is the request body for executing a Cypher query
type QueryRequest struct {
	Query  string         `json:"query" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// ExecuteQuery executes a read-only Cypher query against the projection.
func ExecuteQuery(c echo.Context) error {
	ctx := c.Request().Context()

	qs, err := requireQueryService(c)
	if err != nil {
		return err
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	result, err := qs.ExecuteQuery(ctx, req.Query, req.Params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// FindShortestPath finds the shortest path between two entities.
func FindShortestPath(c echo.Context) error {
	ctx := c.Request().Context()

	qs, err := requireQueryService(c)
	if err != nil {
		return err
	}

	fromID := c.QueryParam("from")
	toID := c.QueryParam("to")
	if fromID == "" || toID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "from and to parameters are required")
	}

	maxHops := 10
	if hopsStr := c.QueryParam("max_hops"); hopsStr != "" {
		var parsed int
		if err := echo.QueryParamsBinder(c).Int("max_hops", &parsed).BindError(); err == nil && parsed > 0 {
			maxHops = parsed
		}
	}

	result, err := qs.FindShortestPath(ctx, fromID, toID, maxHops)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// FindNeighbors finds all entities connected to a given entity within N hops.
func FindNeighbors(c echo.Context) error {
	ctx := c.Request().Context()

	qs, err := requireQueryService(c)
	if err != nil {
		return err
	}

	entityID := c.Param("entityId")
	if entityID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity ID is required")
	}

	hops := 1
	if hopsStr := c.QueryParam("hops"); hopsStr != "" {
		var parsed int
		if err := echo.QueryParamsBinder(c).Int("hops", &parsed).BindError(); err == nil && parsed > 0 {
			hops = parsed
		}
	}

	result, err := qs.FindNeighbors(ctx, entityID, hops)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// FindLineage walks a typed predicate chain from an entity: teacher_of
// descendants, incarnation lines, textual transmission.
func FindLineage(c echo.Context) error {
	ctx := c.Request().Context()

	qs, err := requireQueryService(c)
	if err != nil {
		return err
	}

	entityID := c.Param("entityId")
	predicate := c.QueryParam("predicate")
	if entityID == "" || predicate == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity ID and predicate are required")
	}
	if graphmap.RelTypeToPredicate(graphmap.PredicateToRelType(predicate)) != predicate {
		return httperror.NewHTTPError(http.StatusBadRequest, "predicate must be lower_snake_case")
	}

	maxHops := 0 // engine default
	if hopsStr := c.QueryParam("max_hops"); hopsStr != "" {
		var parsed int
		if err := echo.QueryParamsBinder(c).Int("max_hops", &parsed).BindError(); err == nil && parsed > 0 {
			maxHops = parsed
		}
	}

	result, err := qs.FindLineage(ctx, entityID, predicate, maxHops)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
