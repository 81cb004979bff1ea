package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/questy/internal/middleware"
)

// reloadRate limits how often a single client may trigger reloads.
const reloadRate = 1

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/quests", s.listQuests)
	s.E.GET("/quests/:name", s.getQuest)
	s.E.GET("/formats", s.listFormats)
	s.E.GET("/failures", s.listFailures)
	s.E.POST("/reload", s.reload, middleware.RateLimiter(reloadRate))

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
