package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ebwi11/patterncache/internal/dispatch"
	"github.com/ebwi11/patterncache/internal/logging"
)

// newServer builds the thin read-only callable facade SPEC_FULL.md's DOMAIN
// STACK table describes: a GET /metrics endpoint emitting the §6 snapshot
// document and a GET /healthz, mirroring src/api/server.go's echo.New plus
// CORS/Recover middleware stack, minus the auth middleware and the dozens
// of management routes that belong to the teacher's own domain, not this
// one — spec.md §1 explicitly calls the callable facade "mechanical, not
// core."
func newServer(d *dispatch.Dispatcher) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet},
	}))
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/metrics", func(c echo.Context) error {
		snap := d.Snapshot()
		return c.JSON(http.StatusOK, snap)
	})

	return e
}

// startServer runs e on addr until the process shuts down, logging any
// non-graceful exit the way api.ServerStart's goroutine caller does.
func startServer(e *echo.Echo, addr string) {
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		logging.Error("metrics server exited unexpectedly", "error", err)
	}
}
