package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/questy/internal/catalog"
	"github.com/nfrund/questy/internal/middleware"
)

// shutdownTimeout bounds graceful shutdown once the serving context is done.
const shutdownTimeout = 10 * time.Second

// Server exposes a quest catalog over HTTP.
type Server struct {
	E       *echo.Echo
	catalog *catalog.Catalog
}

// New creates a server for cat with all routes registered.
func New(cat *catalog.Catalog) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())
	setupErrorHandling(e)

	s := &Server{E: e, catalog: cat}
	s.RegisterRoutes()
	return s
}

// Start serves on addr until ctx is cancelled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Quest server listening", "addr", addr)
		if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.E.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("Quest server stopped")
	return nil
}

// setupErrorHandling logs unexpected handler errors with a stack trace and
// answers them with a JSON 500. HTTP errors keep their status.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			message := fmt.Sprint(he.Message)
			if he.Code >= http.StatusInternalServerError {
				slog.Error("Internal Server Error", "error", err, "path", c.Path())
			}
			writeError(c, he.Code, statusCode(he.Code), message)
			return
		}

		slog.Error("Internal Server Error (Unhandled)",
			"error", err.Error(),
			"method", c.Request().Method,
			"path", c.Path(),
			"stack_trace", string(debug.Stack()),
		)
		writeError(c, http.StatusInternalServerError, "internal_error", "An unexpected error occurred.")
	}
}

// statusCode turns an HTTP status into an error code such as "not_found".
func statusCode(status int) string {
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}

func writeError(c echo.Context, status int, code, message string) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Code: code, Message: message})
	}
	if err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}
