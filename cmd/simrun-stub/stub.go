package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/moogar0880/problems"

	"github.com/quantora/simrun/pkg/run"
)

type Stub struct {
	logger   *slog.Logger
	validate *validator.Validate
	runs     *runTable
	duration time.Duration
}

func NewStub(logger *slog.Logger, duration time.Duration) *Stub {
	if duration <= 0 {
		duration = defaultRunDuration
	}

	return &Stub{
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		runs:     newRunTable(),
		duration: duration,
	}
}

func (s *Stub) App() *fiber.App {
	app := fiber.New()
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Post("/train", s.train)
	app.Post("/predict", s.predict)
	app.Post("/simulate", s.simulate)
	app.Get("/simulate/:id/stream", s.stream)
	app.Get("/simulate/:id/status", s.status)
	app.Get("/simulate/:id/artifact", s.artifact)

	return app
}

type trainRequest struct {
	Symbol       string `json:"symbol"        validate:"required"`
	LookbackDays int    `json:"lookback_days" validate:"min=1"`
}

func (s *Stub) train(c fiber.Ctx) error {
	var req trainRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid train request: "+err.Error())
	}

	if err := s.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	s.logger.Info("Training model", "symbol", req.Symbol, "lookback_days", req.LookbackDays)

	return c.JSON(fiber.Map{"status": "ok", "symbol": req.Symbol})
}

type predictRequest struct {
	Symbol  string `json:"symbol"  validate:"required"`
	Horizon int    `json:"horizon" validate:"min=1,max=365"`
}

func (s *Stub) predict(c fiber.Ctx) error {
	var req predictRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid predict request: "+err.Error())
	}

	if err := s.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	seed := 0.0
	for _, ch := range req.Symbol {
		seed += float64(ch)
	}

	probUp := 0.45 + (seed/float64(len(req.Symbol)))/1000

	return c.JSON(fiber.Map{"symbol": req.Symbol, "prob_up": probUp})
}

type simulateRequest struct {
	Mode    run.Mode `json:"mode"`
	Symbol  string   `json:"symbol"  validate:"required"`
	Horizon int      `json:"horizon" validate:"min=1,max=3650"`
	NPaths  int      `json:"n_paths"`
}

func (s *Stub) simulate(c fiber.Ctx) error {
	var req simulateRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid simulate request: "+err.Error())
	}

	if err := s.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	r := s.runs.create(req.Symbol, req.Horizon, run.ClampPaths(req.NPaths), s.duration)

	s.logger.Info("Run queued", "run_id", r.ID, "symbol", r.Symbol, "horizon", r.Horizon)

	return c.JSON(fiber.Map{"run_id": r.ID})
}

func (s *Stub) stream(c fiber.Ctx) error {
	r, ok := s.runs.get(c.Params("id"))
	if !ok {
		return notFound(c, "unknown run id")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		for {
			now := time.Now()

			payload, _ := json.Marshal(fiber.Map{
				"status":   r.status(now),
				"progress": r.progress(now),
			})

			fmt.Fprintf(w, "data: %s\n\n", payload)

			if err := w.Flush(); err != nil {
				return
			}

			if r.done(now) {
				return
			}

			time.Sleep(200 * time.Millisecond)
		}
	})
}

func (s *Stub) status(c fiber.Ctx) error {
	r, ok := s.runs.get(c.Params("id"))
	if !ok {
		return notFound(c, "unknown run id")
	}

	now := time.Now()

	return c.JSON(fiber.Map{
		"status":   r.status(now),
		"progress": r.progress(now),
		"detail":   fmt.Sprintf("%d of %d paths", int(r.progress(now)/100*float64(r.Paths)), r.Paths),
	})
}

func (s *Stub) artifact(c fiber.Ctx) error {
	r, ok := s.runs.get(c.Params("id"))
	if !ok {
		return notFound(c, "unknown run id")
	}

	if !r.done(time.Now()) {
		return c.SendStatus(fiber.StatusAccepted)
	}

	return c.JSON(synthesize(r))
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}
