package api

import (
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/loom/internal/device"
	"github.com/samcharles93/loom/internal/search"
)

// Server exposes the decoding core over HTTP.
type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

// Register mounts the routes.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/devices", s.handleDevices)
	e.POST("/v1/generate", s.handleGenerate)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDevices(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"available": device.Available(),
		"active":    s.svc.dev.Kind().String(),
	})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "unreadable body")
	}
	var req GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	if req.Stream {
		return s.generateStream(c, &req)
	}

	res, err := s.svc.Generate(c.Request().Context(), &req, nil)
	if err != nil {
		return writeGenerateError(c, err)
	}

	return c.JSON(http.StatusOK, GenerateResponse{
		ID:        "gen_" + uuid.NewString(),
		Sequences: res.Sequences,
		Scores:    res.Scores,
		Steps:     res.Stats.Steps,
		DurationS: res.Stats.Duration.Seconds(),
		TPS:       res.Stats.TPS,
	})
}

func (s *Server) generateStream(c *echo.Context, req *GenerateRequest) error {
	w, err := NewSSEStreamWriter(c)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	res, err := s.svc.Generate(c.Request().Context(), req, func(step int, tokens []int32) {
		w.Step(step, tokens)
	})
	if err != nil {
		w.Fail(err)
		return nil
	}

	w.Done(GenerateResponse{
		ID:        "gen_" + uuid.NewString(),
		Sequences: res.Sequences,
		Scores:    res.Scores,
		Steps:     res.Stats.Steps,
		DurationS: res.Stats.Duration.Seconds(),
		TPS:       res.Stats.TPS,
	})
	return nil
}

func writeGenerateError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, search.ErrParamInvalid), errors.Is(err, search.ErrShapeMismatch):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ErrorBody{Message: msg, Type: errType},
	})
}
