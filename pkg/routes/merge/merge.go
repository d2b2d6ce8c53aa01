// Package merge exposes merge preview, execution, undo, and history.
package merge

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/khandro-archive/namthar/internal/repositories/mergehistory"
	"github.com/khandro-archive/namthar/pkg/merging"
	"github.com/khandro-archive/namthar/pkg/models"
)

var validate = validator.New()

// Register registers merge routes
func Register(g *echo.Group) {
	g.POST("", ExecuteMerge)
	g.POST("/preview", PreviewMerge)
	g.POST("/:historyId/undo", UndoMerge)
	g.GET("/history/:entityId", GetHistory)
}

// ExecuteMerge merges the duplicate into the primary.
func ExecuteMerge(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := bindMergeRequest(c)
	if err != nil {
		return err
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "merge engine unavailable")
	}

	result, err := engine.Merge(ctx, req.PrimaryID, req.DuplicateID, req.Options())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// PreviewMerge dry-runs a merge. Nothing is persisted.
func PreviewMerge(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := bindMergeRequest(c)
	if err != nil {
		return err
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "merge engine unavailable")
	}

	preview, err := engine.Preview(ctx, req.PrimaryID, req.DuplicateID, req.Options())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, preview)
}

// UndoRequest names the actor performing the rollback.
type UndoRequest struct {
	UndoneBy string `json:"undone_by"`
}

// UndoMerge rolls a soft-delete merge back from its history row.
func UndoMerge(c echo.Context) error {
	ctx := c.Request().Context()

	var req UndoRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "merge engine unavailable")
	}

	history, err := engine.Undo(ctx, c.Param("historyId"), req.UndoneBy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

// GetHistory lists merges an entity participated in, either side.
func GetHistory(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*mergehistory.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	history, err := repo.ListByEntity(ctx, c.Param("entityId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

func bindMergeRequest(c echo.Context) (*models.MergeRequest, error) {
	var req models.MergeRequest
	if err := c.Bind(&req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return &req, nil
}
