package web

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"spark-assistant/internal/application"
	"spark-assistant/internal/credentials"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/providers"
)

type stateResponse struct {
	State    application.State `json:"state"`
	Playing  bool              `json:"playing"`
	Settings domain.Selection  `json:"settings"`
}

type chatRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	*application.TurnResult
	AudioURL string `json:"audio_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

var uploadExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".webm": true, ".ogg": true, ".m4a": true,
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(stateResponse{
		State:    s.conv.State(),
		Playing:  s.conv.Playing(),
		Settings: s.conv.Settings(),
	})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	return c.JSON(s.conv.Transcript())
}

func (s *Server) handleProviders(c *fiber.Ctx) error {
	return c.JSON(s.catalog)
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.conv.Settings())
}

func (s *Server) handlePutSettings(c *fiber.Ctx) error {
	var sel domain.Selection
	if err := c.BodyParser(&sel); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid settings body")
	}

	if err := s.conv.ApplySettings(sel); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.conv.Settings())
}

func (s *Server) handleGetCredentials(c *fiber.Ctx) error {
	return c.JSON(s.creds.Masked())
}

func (s *Server) handlePutCredentials(c *fiber.Ctx) error {
	var updates map[string]string
	if err := c.BodyParser(&updates); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid credentials body")
	}

	if err := s.creds.Save(updates); err != nil {
		if errors.Is(err, credentials.ErrUnknownProvider) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(s.creds.Masked())
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat body")
	}

	result, err := s.conv.HandleText(c.UserContext(), req.Text)
	return s.writeTurn(c, result, err)
}

func (s *Server) handleAudio(c *fiber.Ctx) error {
	fh, err := c.FormFile("audio")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing audio file")
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !uploadExtensions[ext] {
		ext = ".wav"
		if strings.Contains(fh.Header.Get("Content-Type"), "webm") {
			ext = ".webm"
		}
	}

	// One file per request: a rejected upload must not replace the audio
	// of the turn that is running.
	tmp, err := os.CreateTemp(s.cfg.UploadDir, "upload-*"+ext)
	if err != nil {
		return err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := c.SaveFile(fh, path); err != nil {
		return err
	}

	result, err := s.conv.HandleAudio(c.UserContext(), path)
	return s.writeTurn(c, result, err)
}

func (s *Server) handleRecord(c *fiber.Ctx) error {
	result, err := s.conv.Record(c.UserContext())
	return s.writeTurn(c, result, err)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"stopped": s.conv.Stop()})
}

func (s *Server) handleLatestAudio(c *fiber.Ctx) error {
	latest, ok := s.conv.LatestAudio()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no audio yet")
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderContentType, latest.Format.ContentType())
	return c.SendFile(latest.AudioPath)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	name := c.Params("service")

	err := s.services.Check(c.UserContext(), name)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"service": name, "status": "ok"})
	case errors.Is(err, providers.ErrUnknownService):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"service": name,
			"status":  "down",
			"error":   err.Error(),
		})
	}
}

func (s *Server) handleEvents(conn *websocket.Conn) {
	initial, err := sonic.Marshal(application.Event{Type: application.EventState, State: s.conv.State()})
	if err != nil {
		initial = nil
	}
	s.hub.serve(conn, initial)
}

// writeTurn renders a turn outcome. A turn whose speech failed still
// carries the committed reply, so it is reported with the result.
func (s *Server) writeTurn(c *fiber.Ctx, result *application.TurnResult, err error) error {
	if err == nil {
		return c.JSON(s.turnBody(result, nil))
	}

	if result != nil {
		return c.JSON(s.turnBody(result, err))
	}

	status := fiber.StatusInternalServerError
	var de *domain.DispatchError
	switch {
	case errors.Is(err, application.ErrBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrNoInput):
		status = fiber.StatusUnprocessableEntity
	case errors.As(err, &de):
		status = dispatchStatus(de.Kind)
	}

	body := fiber.Map{"error": domain.Describe(err)}
	if de != nil {
		body["kind"] = de.Kind
		body["capability"] = de.Capability
		body["provider"] = de.Provider
	}
	return c.Status(status).JSON(body)
}

func (s *Server) turnBody(result *application.TurnResult, err error) turnResponse {
	body := turnResponse{TurnResult: result}
	if result.AudioPath != "" {
		body.AudioURL = "/api/audio/latest?turn=" + result.ID
	}
	if err != nil {
		body.Error = domain.Describe(err)
	}
	return body
}

func dispatchStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindUnknownProvider:
		return fiber.StatusBadRequest
	case domain.KindAuth:
		return fiber.StatusUnauthorized
	case domain.KindInvalidAudio:
		return fiber.StatusUnprocessableEntity
	case domain.KindUnsupportedFormat:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusServiceUnavailable
	}
}
