package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
)

// RecomputeRequest asks for a profile to be rescored. Omitting To scores
// the single instant From.
type RecomputeRequest struct {
	JobID     string    `json:"job_id"`
	ProfileID string    `json:"profile_id"`
	Entities  []string  `json:"entities"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Step      string    `json:"step"`
	Restart   bool      `json:"restart"`
}

// RecomputeRequestHandler turns recompute messages into batch jobs.
type RecomputeRequestHandler struct {
	topic    string
	batch    *BatchRecompute
	profiles ProfileStore
	defaults []string
	log      *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*RecomputeRequestHandler)(nil)

// NewRecomputeRequestHandler handles topic. Requests without entities use
// defaultEntities.
func NewRecomputeRequestHandler(topic string, batch *BatchRecompute, profiles ProfileStore, defaultEntities []string, log *applogger.Logger) *RecomputeRequestHandler {
	if log == nil {
		log = applogger.Nop()
	}
	return &RecomputeRequestHandler{topic: topic, batch: batch, profiles: profiles, defaults: defaultEntities, log: log}
}

func (h *RecomputeRequestHandler) Topic() string { return h.topic }

// Handle runs the requested job. Malformed requests are permanent failures;
// a job already running elsewhere is dropped.
func (h *RecomputeRequestHandler) Handle(ctx context.Context, payload []byte) error {
	job, err := h.decode(payload)
	if err != nil {
		return pkgkafka.Invalid(err)
	}
	report, err := h.batch.Run(ctx, job)
	if errors.Is(err, models.ErrJobLocked) {
		h.log.Info("recompute already running", applogger.String("job", job.ID))
		return nil
	}
	if err != nil {
		return err
	}
	h.log.Info("recompute done",
		applogger.String("job", job.ID),
		applogger.String("trace_id", pkgkafka.TraceID(ctx)),
		applogger.Int("completed", report.Completed),
		applogger.Int("failed", report.Failed))
	return nil
}

func (h *RecomputeRequestHandler) decode(payload []byte) (Job, error) {
	var req RecomputeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return Job{}, fmt.Errorf("decode recompute request: %w", err)
	}
	if req.ProfileID == "" {
		return Job{}, errors.New("profile_id is required")
	}
	if _, err := h.profiles.Profile(req.ProfileID); err != nil {
		return Job{}, err
	}
	if req.From.IsZero() {
		return Job{}, errors.New("from is required")
	}
	if req.To.IsZero() {
		req.To = req.From
	}
	if req.To.Before(req.From) {
		return Job{}, errors.New("to is before from")
	}
	step := domrepo.Step(req.Step)
	if req.Step == "" {
		step = domrepo.DefaultStep()
	}
	if !domrepo.IsValidStep(step) {
		return Job{}, fmt.Errorf("unsupported step %q", req.Step)
	}
	entities := req.Entities
	if len(entities) == 0 {
		entities = h.defaults
	}
	if len(entities) == 0 {
		return Job{}, errors.New("no entities to recompute")
	}
	id := req.JobID
	if id == "" {
		id = fmt.Sprintf("recompute:%s:%s:%s", req.ProfileID, req.From.UTC().Format(time.RFC3339), req.To.UTC().Format(time.RFC3339))
	}
	return Job{
		ID:        id,
		ProfileID: req.ProfileID,
		Entities:  entities,
		From:      req.From,
		To:        req.To,
		Step:      step,
		Restart:   req.Restart,
	}, nil
}
