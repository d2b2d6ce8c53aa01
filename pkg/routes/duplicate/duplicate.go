// Package duplicate exposes the dedup review queue: listing scored pairs,
// reviewing them, and triggering scans.
package duplicate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/khandro-archive/namthar/internal/repositories/duplicatepair"
	"github.com/khandro-archive/namthar/pkg/dedupe"
	"github.com/khandro-archive/namthar/pkg/models"
)

// Register registers duplicate review routes
func Register(g *echo.Group) {
	g.GET("", ListPairs)
	g.GET("/:id", GetPair)
	g.POST("/:id/review", ReviewPair)
	g.POST("/scan", Scan)
	g.POST("/scan/:entityId", ScanEntity)
	g.POST("/compare", Compare)
}

// ListPairs lists the review queue, optionally filtered by status.
func ListPairs(c echo.Context) error {
	ctx := c.Request().Context()

	var status *string
	if raw := c.QueryParam("status"); raw != "" {
		switch raw {
		case models.PairStatusPending, models.PairStatusMerged, models.PairStatusRejected, models.PairStatusFlagged:
			status = &raw
		default:
			return models.NewValidationError("status", "unknown pair status '%s'", raw).ToHTTPError()
		}
	}

	page := intParam(c, "page", 1)
	pageSize := intParam(c, "page_size", 50)

	ctx, repo, err := ectoinject.GetContext[*duplicatepair.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resp, err := repo.List(ctx, status, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// GetPair gets one scored pair by id.
func GetPair(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*duplicatepair.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	pair, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

// ReviewRequest resolves a pending pair.
type ReviewRequest struct {
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewed_by"`
}

// ReviewPair marks a pair rejected or flagged. Merging goes through the
// merge endpoint, which settles the pair itself.
func ReviewPair(c echo.Context) error {
	ctx := c.Request().Context()

	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Status != models.PairStatusRejected && req.Status != models.PairStatusFlagged {
		return models.NewValidationError("status", "review status must be '%s' or '%s'", models.PairStatusRejected, models.PairStatusFlagged).ToHTTPError()
	}

	ctx, repo, err := ectoinject.GetContext[*duplicatepair.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.UpdateStatus(ctx, c.Param("id"), req.Status, req.ReviewedBy); err != nil {
		return err
	}

	pair, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

// Scan runs a full duplicate scan across all entity types.
func Scan(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, svc, err := ectoinject.GetContext[*dedupe.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "scan service unavailable")
	}

	result, err := svc.ScanAll(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ScanEntity scans one entity against its type pool.
func ScanEntity(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, svc, err := ectoinject.GetContext[*dedupe.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "scan service unavailable")
	}

	result, err := svc.ScanEntity(ctx, c.Param("entityId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// CompareRequest scores two entities on demand without recording a pair.
type CompareRequest struct {
	EntityID1 string `json:"entity_id_1"`
	EntityID2 string `json:"entity_id_2"`
}

// Compare scores an ad-hoc pair.
func Compare(c echo.Context) error {
	ctx := c.Request().Context()

	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.EntityID1 == "" || req.EntityID2 == "" {
		return models.NewValidationError("entity_id", "both entity ids are required").ToHTTPError()
	}

	ctx, svc, err := ectoinject.GetContext[*dedupe.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "scan service unavailable")
	}

	score, err := svc.Compare(ctx, req.EntityID1, req.EntityID2)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, score)
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
