package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/pipeline"
	"github.com/spigell/radar-pilot/internal/policy"
)

// DefaultRetention is how long a finished pipeline stays queryable.
const DefaultRetention = 10 * time.Minute

// Factory builds a fresh controller for one request.
type Factory func(kind match.Kind, notify pipeline.Notify) (*pipeline.Controller, error)

// ThresholdRefresher re-reads the admin thresholds.
type ThresholdRefresher interface {
	Current() policy.Thresholds
	Refresh(ctx context.Context) (policy.Thresholds, error)
}

// Server hosts controllers behind a small HTTP API. Every controller runs on
// the server's context and is cancelled on shutdown.
type Server struct {
	app        *fiber.App
	ctx        context.Context
	logger     *zap.Logger
	factory    Factory
	thresholds ThresholdRefresher
	retention  time.Duration

	mu        sync.RWMutex
	pipelines map[string]*pipeline.Controller
}

func New(ctx context.Context, logger *zap.Logger, factory Factory, thresholds ThresholdRefresher) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		ctx:        ctx,
		logger:     logger,
		factory:    factory,
		thresholds: thresholds,
		retention:  DefaultRetention,
		pipelines:  make(map[string]*pipeline.Controller),
	}

	app := fiber.New(fiber.Config{
		AppName:               "radar-pilot",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/thresholds", s.handleThresholds)
	app.Post("/pipelines", s.handleStart)
	app.Get("/pipelines", s.handleList)
	app.Get("/pipelines/:id", s.handleGet)
	app.Get("/pipelines/:id/results", s.handleResults)
	app.Post("/pipelines/:id/send", s.handleSend)
	app.Delete("/pipelines/:id", s.handleCancel)

	s.app = app

	return s
}

// SetRetention changes how long NOTIFIED, FAILED and cancelled pipelines
// are kept. It applies to pipelines registered afterwards.
func (s *Server) SetRetention(d time.Duration) {
	if d <= 0 {
		d = DefaultRetention
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.retention = d
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("serving pipelines", zap.String("listen", addr))
	return s.app.Listen(addr)
}

// Shutdown cancels every hosted controller and stops the listener.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	controllers := make([]*pipeline.Controller, 0, len(s.pipelines))
	for _, ctrl := range s.pipelines {
		controllers = append(controllers, ctrl)
	}
	s.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.Cancel()
	}

	return s.app.Shutdown()
}

func (s *Server) lookup(id string) (*pipeline.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctrl, ok := s.pipelines[id]
	return ctrl, ok
}

func (s *Server) snapshots() []pipeline.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]pipeline.Snapshot, 0, len(s.pipelines))
	for _, ctrl := range s.pipelines {
		snaps = append(snaps, ctrl.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })

	return snaps
}

func (s *Server) register(ctrl *pipeline.Controller) {
	s.mu.Lock()
	s.pipelines[ctrl.ID()] = ctrl
	retention := s.retention
	s.mu.Unlock()

	go s.evictWhenDone(ctrl, retention)
}

// evictWhenDone drops a controller once it has been finished for retention.
func (s *Server) evictWhenDone(ctrl *pipeline.Controller, retention time.Duration) {
	select {
	case <-ctrl.Done():
	case <-s.ctx.Done():
		return
	}

	timer := time.NewTimer(retention)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.ctx.Done():
		return
	}

	s.remove(ctrl.ID())
	s.logger.Debug("evicted finished pipeline",
		zap.String("pipeline_id", ctrl.ID()),
		zap.String("state", string(ctrl.State())),
	)
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pipelines, id)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrAlreadySent),
		errors.Is(err, pipeline.ErrSendInFlight),
		errors.Is(err, pipeline.ErrNotReady):
		return fiber.StatusConflict
	case errors.Is(err, pipeline.ErrCancelled):
		return fiber.StatusGone
	case errors.Is(err, pipeline.ErrSendFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
