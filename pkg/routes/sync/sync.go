// Package sync exposes projection triggers: full, incremental, and
// single-record syncs run inline and return the result.
package sync

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/khandro-archive/namthar/pkg/events"
	"github.com/khandro-archive/namthar/pkg/models"
	gsync "github.com/khandro-archive/namthar/pkg/sync"
)

// Register registers sync routes
func Register(g *echo.Group) {
	g.POST("/full", FullSync)
	g.POST("/incremental", IncrementalSync)
	g.POST("/entity/:id", SyncEntity)
	g.POST("/relationship/:id", SyncRelationship)
}

// FullSyncRequest controls a full projection run.
type FullSyncRequest struct {
	ClearExisting       bool `json:"clear_existing"`
	CreateBidirectional bool `json:"create_bidirectional"`
	ContinueOnError     bool `json:"continue_on_error"`
}

// FullSync projects every active record into the graph.
func FullSync(c echo.Context) error {
	ctx := c.Request().Context()

	var req FullSyncRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, engine, err := ectoinject.GetContext[*gsync.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "sync engine unavailable")
	}

	result, err := engine.FullSync(ctx, gsync.Options{
		ClearExisting:       req.ClearExisting,
		CreateBidirectional: req.CreateBidirectional,
		ContinueOnError:     req.ContinueOnError,
	}, nil)
	if err != nil {
		return err
	}

	emitCompleted(c, result)
	return c.JSON(http.StatusOK, result)
}

// IncrementalSyncRequest restricts the projection to recent updates.
type IncrementalSyncRequest struct {
	Since               time.Time `json:"since"`
	CreateBidirectional bool      `json:"create_bidirectional"`
	ContinueOnError     bool      `json:"continue_on_error"`
}

// IncrementalSync projects records updated at or after the cutoff.
func IncrementalSync(c echo.Context) error {
	ctx := c.Request().Context()

	var req IncrementalSyncRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Since.IsZero() {
		return models.NewValidationError("since", "cutoff timestamp is required").ToHTTPError()
	}

	ctx, engine, err := ectoinject.GetContext[*gsync.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "sync engine unavailable")
	}

	result, err := engine.IncrementalSync(ctx, req.Since, gsync.Options{
		CreateBidirectional: req.CreateBidirectional,
		ContinueOnError:     req.ContinueOnError,
	}, nil)
	if err != nil {
		return err
	}

	emitCompleted(c, result)
	return c.JSON(http.StatusOK, result)
}

// SyncEntity projects one entity.
func SyncEntity(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, engine, err := ectoinject.GetContext[*gsync.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "sync engine unavailable")
	}

	if err := engine.SyncEntity(ctx, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "synced"})
}

// SyncRelationship projects one relationship.
func SyncRelationship(c echo.Context) error {
	ctx := c.Request().Context()

	bidirectional := c.QueryParam("bidirectional") == "true"

	ctx, engine, err := ectoinject.GetContext[*gsync.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "sync engine unavailable")
	}

	if err := engine.SyncRelationship(ctx, c.Param("id"), gsync.Options{CreateBidirectional: bidirectional}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "synced"})
}

// emitCompleted publishes sync.completed when an emitter is wired. Best
// effort; the HTTP response does not depend on it.
func emitCompleted(c echo.Context, result *models.SyncResult) {
	ctx := c.Request().Context()
	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err != nil || emitter == nil {
		return
	}
	_ = emitter.SyncCompleted(ctx, *result)
}
