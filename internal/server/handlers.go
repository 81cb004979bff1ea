package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/questy/internal/catalog"
	"github.com/nfrund/questy/internal/loading"
	"github.com/nfrund/questy/internal/middleware"
	"github.com/nfrund/questy/internal/quest"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FailureResponse describes a quest file that could not be loaded.
type FailureResponse struct {
	Kind      string    `json:"kind"`
	Format    string    `json:"format"`
	Path      string    `json:"path"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewFailureResponse(f *loading.LoadError) FailureResponse {
	return FailureResponse{
		Kind:      string(f.Kind),
		Format:    f.Format,
		Path:      f.Path,
		Message:   f.Error(),
		Timestamp: f.Timestamp,
	}
}

// ReloadResponse summarizes a finished catalog load.
type ReloadResponse struct {
	Dir        string `json:"dir"`
	Quests     int    `json:"quests"`
	Failures   int    `json:"failures"`
	DurationMS int64  `json:"duration_ms"`
}

// listQuests returns every loaded quest, optionally filtered by ?format=.
func (s *Server) listQuests(c echo.Context) error {
	format := c.QueryParam("format")
	quests := make([]*quest.Quest, 0)
	for _, q := range s.catalog.Quests() {
		if format != "" && quest.KeyOf(q.Format) != quest.KeyOf(format) {
			continue
		}
		quests = append(quests, q)
	}
	return c.JSON(http.StatusOK, quests)
}

func (s *Server) getQuest(c echo.Context) error {
	name := c.Param("name")
	q, ok := s.catalog.Quest(name)
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "no quest named " + name})
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) listFormats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.Formats())
}

func (s *Server) listFailures(c echo.Context) error {
	failures := s.catalog.Failures()
	out := make([]FailureResponse, len(failures))
	for i, f := range failures {
		out[i] = NewFailureResponse(f)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) reload(c echo.Context) error {
	logger := middleware.FromContext(c.Request().Context())

	snap, err := s.catalog.Reload(c.Request().Context())
	if errors.Is(err, catalog.ErrNotLoaded) {
		return c.JSON(http.StatusConflict, ErrorResponse{Code: "not_loaded", Message: err.Error()})
	}
	if err != nil {
		return err
	}

	logger.Info("Quest catalog reloaded over HTTP", "quests", snap.Quests.Len(), "failures", len(snap.Failures))
	return c.JSON(http.StatusOK, ReloadResponse{
		Dir:        snap.Dir,
		Quests:     snap.Quests.Len(),
		Failures:   len(snap.Failures),
		DurationMS: snap.Duration.Milliseconds(),
	})
}
