// Package api exposes the practice service over HTTP for the PWA shell.
// The child-facing game uses the attempt and batch routes; the sync and
// resolution routes back the parent dashboard.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/currentsmms-kd/spelling-stars-sub000/internal/practice"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/remote"
)

const defaultBatchLimit = 10

// Server is the HTTP surface over the practice service.
type Server struct {
	echo   *echo.Echo
	svc    *practice.Service
	logger *slog.Logger
}

// NewServer builds the server and registers routes.
func NewServer(svc *practice.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, svc: svc, logger: logger}

	g := e.Group("/api")
	g.POST("/attempts", s.recordAttempt)
	g.GET("/batch", s.nextBatch)
	g.GET("/words/hardest", s.hardestWords)
	g.GET("/words/lapsed", s.mostLapsedWords)
	g.GET("/sync/pending", s.pendingCounts)
	g.POST("/sync/run", s.runSync)
	g.GET("/sync/failed", s.failedItems)
	g.POST("/sync/failed/attempts/:id/reassign", s.reassignAttempt)

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("api listening", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type attemptRequest struct {
	LearnerID   string  `json:"learner_id"`
	WordID      string  `json:"word_id"`
	ListID      *string `json:"list_id"`
	Mode        string  `json:"mode"`
	Correct     bool    `json:"correct"`
	FirstTry    bool    `json:"first_try"`
	UsedHint    bool    `json:"used_hint"`
	TypedAnswer *string `json:"typed_answer"`
	AudioPath   string  `json:"audio_path"`
	StartedAt   string  `json:"started_at"`
}

func (s *Server) recordAttempt(c echo.Context) error {
	var req attemptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed attempt")
	}

	input := practice.AttemptInput{
		LearnerID:   req.LearnerID,
		WordID:      req.WordID,
		ListID:      req.ListID,
		Mode:        req.Mode,
		Correct:     req.Correct,
		FirstTry:    req.FirstTry,
		UsedHint:    req.UsedHint,
		TypedAnswer: req.TypedAnswer,
		AudioPath:   req.AudioPath,
	}
	if req.StartedAt != "" {
		startedAt, err := time.Parse(time.RFC3339, req.StartedAt)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "started_at must be RFC 3339")
		}
		input.StartedAt = startedAt
	}

	if err := s.svc.RecordAttempt(c.Request().Context(), input); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) nextBatch(c echo.Context) error {
	learnerID := c.QueryParam("learner_id")
	if learnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "learner_id is required")
	}
	var listID *string
	if v := c.QueryParam("list_id"); v != "" {
		listID = &v
	}
	limit := intParam(c, "limit", defaultBatchLimit)
	strict := c.QueryParam("strict") == "true"

	batch, err := s.svc.NextBatch(c.Request().Context(), learnerID, listID, limit, strict)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, batch)
}

func (s *Server) hardestWords(c echo.Context) error {
	learnerID := c.QueryParam("learner_id")
	if learnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "learner_id is required")
	}
	words, err := s.svc.HardestWords(c.Request().Context(), learnerID, intParam(c, "limit", defaultBatchLimit))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, words)
}

func (s *Server) mostLapsedWords(c echo.Context) error {
	learnerID := c.QueryParam("learner_id")
	if learnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "learner_id is required")
	}
	words, err := s.svc.MostLapsedWords(c.Request().Context(), learnerID, intParam(c, "limit", defaultBatchLimit))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, words)
}

func (s *Server) pendingCounts(c echo.Context) error {
	counts, err := s.svc.PendingSyncCounts()
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) runSync(c echo.Context) error {
	result, err := s.svc.SyncNow(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) failedItems(c echo.Context) error {
	items, err := s.svc.ListFailedSyncItems()
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

type reassignRequest struct {
	ListID string `json:"list_id"`
}

func (s *Server) reassignAttempt(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid attempt id")
	}
	var req reassignRequest
	if err := c.Bind(&req); err != nil || req.ListID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "list_id is required")
	}
	if err := s.svc.ReassignFailedAttemptList(id, req.ListID); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func intParam(c echo.Context, name string, fallback int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (s *Server) mapError(err error) error {
	if errors.Is(err, remote.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "remote store unreachable")
	}
	s.logger.Error("request failed", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
