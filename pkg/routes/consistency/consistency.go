// Package consistency exposes the drift audit.
package consistency

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	consistencypkg "github.com/khandro-archive/namthar/pkg/consistency"
	"github.com/khandro-archive/namthar/pkg/events"
)

// Register registers consistency routes
func Register(g *echo.Group) {
	g.POST("/check", RunCheck)
}

// RunCheck runs the audit inline and returns the report.
func RunCheck(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, checker, err := ectoinject.GetContext[*consistencypkg.Checker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "consistency checker unavailable")
	}

	report, err := checker.Check(ctx)
	if err != nil {
		return err
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil && emitter != nil {
		_ = emitter.ConsistencyChecked(ctx, *report)
	}

	return c.JSON(http.StatusOK, report)
}
