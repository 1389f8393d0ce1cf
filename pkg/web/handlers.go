package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/settings"
)

// describeTimeout bounds a dashboard-triggered capture and description.
const describeTimeout = 60 * time.Second

// handleStatus returns the current session state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

// handleStats returns session counters and the phone's tilt
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.GetStats())
}

// loadSettings reads stored settings over the defaults.
func (s *Server) loadSettings(ctx context.Context) (settings.Configuration, error) {
	cfg, _, err := settings.Load(ctx, s.settings, settings.Defaults())
	return cfg, err
}

// handleGetSettings returns the stored settings with the API key masked
func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	cfg, err := s.loadSettings(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(cfg.Redacted())
}

// handlePutSettings merges a partial settings object into the stored one.
// Changes take effect the next time the assistant gains focus.
func (s *Server) handlePutSettings(c *fiber.Ctx) error {
	var patch settings.Patch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON: " + err.Error()})
	}

	current, err := s.loadSettings(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	merged := current.Merge(patch)
	if issues := merged.Validate(); len(issues) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "issues": issues})
	}

	if err := s.settings.Set(c.UserContext(), merged); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	s.AddLog("info", "settings updated")
	return c.JSON(merged.Redacted())
}

// handleDevices lists connected devices
func (s *Server) handleDevices(c *fiber.Ctx) error {
	if s.devices == nil {
		return c.JSON(fiber.Map{"devices": []any{}, "count": 0})
	}
	infos := s.devices.Infos()
	return c.JSON(fiber.Map{
		"devices": infos,
		"count":   len(infos),
	})
}

// handleDescribe captures a photo and describes it using ?mode=
func (s *Server) handleDescribe(c *fiber.Ctx) error {
	mode, err := describe.ParseMode(c.Query("mode", string(describe.ModeGeneral)))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), describeTimeout)
	defer cancel()

	s.AddLog("question", mode.Question())
	text, err := s.ctrl.Ask(ctx, mode)
	if err != nil {
		s.AddLog("error", err.Error())
		status := fiber.StatusBadGateway
		if errors.Is(err, describe.ErrNoAPIKey) {
			status = fiber.StatusPreconditionFailed
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error(), "text": text})
	}

	s.AddLog("answer", text)
	return c.JSON(fiber.Map{"mode": mode, "text": text})
}

// handleGetLogs returns recent activity entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}
