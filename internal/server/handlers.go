package server

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/pipeline"
)

type startRequest struct {
	Kind      string   `json:"kind"`
	JDID      any      `json:"jd_id"`
	ResumeID  any      `json:"resume_id"`
	ProfileID any      `json:"profile_id"`
	JobTitle  string   `json:"job_title"`
	To        string   `json:"to"`
	CC        []string `json:"cc"`
}

type sendRequest struct {
	To string   `json:"to"`
	CC []string `json:"cc"`
}

// handleStart handles POST /pipelines
func (s *Server) handleStart(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	kind := match.KindJDToResumes
	if req.Kind != "" {
		parsed, err := match.ParseKind(req.Kind)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		kind = parsed
	}

	subject := match.Subject{
		JDID:      match.IDString(req.JDID),
		ResumeID:  match.IDString(req.ResumeID),
		ProfileID: match.IDString(req.ProfileID),
	}
	if err := subject.Validate(kind); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if s.thresholds != nil {
		if _, err := s.thresholds.Refresh(c.UserContext()); err != nil {
			s.logger.Warn("using previous thresholds", zap.Error(err))
		}
	}

	ctrl, err := s.factory(kind, pipeline.Notify{
		Recipients: pipeline.Recipients{To: req.To, CC: req.CC},
		JobTitle:   req.JobTitle,
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.register(ctrl)

	go func() {
		if err := ctrl.Start(s.ctx, subject); err != nil {
			s.logger.Warn("pipeline finished with error", zap.String("pipeline_id", ctrl.ID()), zap.Error(err))
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":    ctrl.ID(),
		"kind":  kind,
		"state": ctrl.State(),
	})
}

// handleList handles GET /pipelines
func (s *Server) handleList(c *fiber.Ctx) error {
	return c.JSON(s.snapshots())
}

// handleGet handles GET /pipelines/:id
func (s *Server) handleGet(c *fiber.Ctx) error {
	ctrl, ok := s.lookup(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Pipeline not found",
		})
	}

	return c.JSON(ctrl.Snapshot())
}

// handleResults handles GET /pipelines/:id/results
func (s *Server) handleResults(c *fiber.Ctx) error {
	ctrl, ok := s.lookup(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Pipeline not found",
		})
	}

	rs, ok := ctrl.Result()
	if !ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Results are not ready",
			"state": ctrl.State(),
		})
	}

	return c.JSON(rs)
}

// handleSend handles POST /pipelines/:id/send
func (s *Server) handleSend(c *fiber.Ctx) error {
	ctrl, ok := s.lookup(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Pipeline not found",
		})
	}

	var req sendRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request payload",
			})
		}
	}

	if err := ctrl.RequestManualSend(c.UserContext(), pipeline.Recipients{To: req.To, CC: req.CC}); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
			"state": ctrl.State(),
		})
	}

	return c.JSON(ctrl.Snapshot())
}

// handleCancel handles DELETE /pipelines/:id
func (s *Server) handleCancel(c *fiber.Ctx) error {
	id := c.Params("id")
	ctrl, ok := s.lookup(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Pipeline not found",
		})
	}

	ctrl.Cancel()
	s.remove(id)

	return c.JSON(ctrl.Snapshot())
}

// handleThresholds handles GET /thresholds
func (s *Server) handleThresholds(c *fiber.Ctx) error {
	if s.thresholds == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Thresholds are not configured",
		})
	}

	if c.QueryBool("refresh") {
		if _, err := s.thresholds.Refresh(c.UserContext()); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	return c.JSON(s.thresholds.Current())
}
