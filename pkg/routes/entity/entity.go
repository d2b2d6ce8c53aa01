// Package entity exposes the entity read/write surface. Single-record reads
// are served from the graph when it has the node, falling back to the system
// of record.
package entity

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	entityrepo "github.com/khandro-archive/namthar/internal/repositories/entity"
	relationshiprepo "github.com/khandro-archive/namthar/internal/repositories/relationship"
	"github.com/khandro-archive/namthar/pkg/graph"
	"github.com/khandro-archive/namthar/pkg/graphmap"
	"github.com/khandro-archive/namthar/pkg/models"
)

var validate = validator.New()

// Register registers entity routes
func Register(g *echo.Group) {
	g.POST("", CreateEntity)
	g.GET("", ListEntities)
	g.GET("/:id", GetEntity)
	g.GET("/:id/relationships", GetEntityRelationships)
}

// CreateEntity creates a new entity in the system of record.
func CreateEntity(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreateEntityRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*entityrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

// ListEntities lists entities from the system of record, optionally by type.
func ListEntities(c echo.Context) error {
	ctx := c.Request().Context()

	var entityType *models.EntityType
	if raw := c.QueryParam("type"); raw != "" {
		t := models.EntityType(raw)
		if !models.ValidEntityTypes[t] {
			return models.NewValidationError("type", "unknown entity type '%s'", raw).ToHTTPError()
		}
		entityType = &t
	}

	page := intParam(c, "page", 1)
	pageSize := intParam(c, "page_size", 50)

	ctx, repo, err := ectoinject.GetContext[*entityrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := repo.List(ctx, entityType, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// GetEntity gets an entity by id. The graph node is preferred for reads;
// the relational row is authoritative when the node is missing or garbled.
// ?resolve=true follows merge chains to the surviving entity.
func GetEntity(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*entityrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if c.QueryParam("resolve") == "true" {
		resolved, err := repo.ResolveActive(ctx, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resolved)
	}

	ctx, nodes, err := ectoinject.GetContext[*graph.NodeService](ctx)
	if err == nil && nodes != nil {
		if node, err := nodes.Get(ctx, id); err == nil && node != nil {
			if entity, err := graphmap.NodeToEntity(node.Props); err == nil {
				return c.JSON(http.StatusOK, entity)
			}
		}
	}

	entity, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entity)
}

type entityRelationships struct {
	EntityID      string                `json:"entity_id"`
	Relationships []models.Relationship `json:"relationships"`
}

// GetEntityRelationships lists relationships touching the entity. Graph
// first; relational fallback when the graph is unavailable.
func GetEntityRelationships(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, edges, err := ectoinject.GetContext[*graph.EdgeService](ctx)
	if err == nil && edges != nil {
		touching, err := edges.ListTouching(ctx, id)
		if err == nil {
			rels := make([]models.Relationship, 0, len(touching))
			for _, edge := range touching {
				rel, err := graphmap.EdgeToRelationship(edge.Type, edge.Props)
				if err != nil {
					continue
				}
				rels = append(rels, *rel)
			}
			return c.JSON(http.StatusOK, entityRelationships{EntityID: id, Relationships: rels})
		}
	}

	ctx, relRepo, err := ectoinject.GetContext[*relationshiprepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rels, err := relRepo.ListByEntity(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entityRelationships{EntityID: id, Relationships: rels})
}

func intParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
