package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
)

// Job describes a recompute over entities and a timestamp range. A job with
// To equal to From scores a single instant.
type Job struct {
	ID        string
	ProfileID string
	Entities  []string
	From      time.Time
	To        time.Time
	Step      domrepo.Step
	// Restart ignores a stored checkpoint.
	Restart bool
}

// ItemFailure is one item that could not be scored or stored.
type ItemFailure struct {
	Key   models.ScoreKey
	Stage string
	Err   error
}

// BatchReport summarises a job run.
type BatchReport struct {
	JobID        string
	ProfileID    string
	Total        int
	Skipped      int // at or before a resumed watermark
	Completed    int
	Failed       int
	Insufficient int
	Classes      map[models.Classification]int
	Grades       map[models.Grade]int
	Failures     []ItemFailure
	Watermark    models.ScoreKey
	Resumed      bool
	Duration     time.Duration
}

// BatchConfig tunes BatchRecompute.
type BatchConfig struct {
	Workers         int
	CheckpointEvery int
	LockTTL         time.Duration
}

// BatchRecompute fans a job out over (entity, timestamp) items with bounded
// parallelism, keeping a contiguous watermark so an interrupted job resumes
// where it stopped.
type BatchRecompute struct {
	profiles    ProfileStore
	pipeline    *Pipeline
	regimes     *RegimeResolver
	checkpoints domrepo.CheckpointStore
	cfg         BatchConfig
	log         *applogger.Logger
	metrics     domrepo.Metrics
	now         func() time.Time
}

func NewBatchRecompute(
	profiles ProfileStore,
	pipeline *Pipeline,
	regimes *RegimeResolver,
	checkpoints domrepo.CheckpointStore,
	cfg BatchConfig,
	log *applogger.Logger,
	m domrepo.Metrics,
) *BatchRecompute {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 50
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if log == nil {
		log = applogger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &BatchRecompute{
		profiles:    profiles,
		pipeline:    pipeline,
		regimes:     regimes,
		checkpoints: checkpoints,
		cfg:         cfg,
		log:         log,
		metrics:     m,
		now:         time.Now,
	}
}

// Items lists the job's (entity, timestamp) pairs in processing order:
// entities sorted and deduplicated, then timestamps ascending.
func (j Job) Items() ([]models.ScoreKey, error) {
	if j.To.IsZero() {
		j.To = j.From
	}
	if j.From.IsZero() || j.To.Before(j.From) {
		return nil, fmt.Errorf("invalid range %s..%s", j.From.Format(time.RFC3339), j.To.Format(time.RFC3339))
	}
	step := j.Step
	if step == "" {
		step = domrepo.DefaultStep()
	}
	if !domrepo.IsValidStep(step) {
		return nil, fmt.Errorf("invalid step %q", step)
	}

	ents := append([]string(nil), j.Entities...)
	sort.Strings(ents)
	stamps := step.Timestamps(j.From.UTC(), j.To.UTC())
	out := make([]models.ScoreKey, 0, len(ents)*len(stamps))
	for i, e := range ents {
		if e == "" || (i > 0 && ents[i-1] == e) {
			continue
		}
		for _, ts := range stamps {
			out = append(out, models.ScoreKey{EntityID: e, Timestamp: ts})
		}
	}
	return out, nil
}

// Run executes job. On cancellation no new items are dispatched, in-flight
// items finish, the checkpoint is saved and the partial report is returned
// together with ctx.Err().
func (b *BatchRecompute) Run(ctx context.Context, job Job) (*BatchReport, error) {
	start := time.Now()
	if job.ID == "" {
		return nil, errors.New("job id is required")
	}
	prof, err := b.profiles.Profile(job.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	items, err := job.Items()
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("job %s: no entities", job.ID)
	}

	// Lock bookkeeping must outlive a cancelled ctx.
	bg := context.WithoutCancel(ctx)
	if b.checkpoints != nil {
		ok, err := b.checkpoints.TryLock(ctx, job.ID, b.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("job %s: %w", job.ID, models.ErrJobLocked)
		}
		defer func() {
			if err := b.checkpoints.Unlock(bg, job.ID); err != nil {
				b.log.Warn("unlock job", applogger.String("job", job.ID), applogger.Error(err))
			}
		}()
	}

	report := &BatchReport{
		JobID:     job.ID,
		ProfileID: prof.ID(),
		Total:     len(items),
		Classes:   make(map[models.Classification]int),
		Grades:    make(map[models.Grade]int),
	}
	log := b.log.With(applogger.String("job", job.ID), applogger.String("profile", prof.ID()))

	pending, err := b.resume(ctx, job, items, report)
	if err != nil {
		return nil, err
	}
	log.Info("batch started",
		applogger.Int("items", len(items)),
		applogger.Int("skipped", report.Skipped),
		applogger.Int("workers", b.cfg.Workers))

	t := newTracker(pending, report.Watermark)
	regimes := newRegimeCache(b.regimes)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(b.cfg.Workers)
	for i, key := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := b.pipeline.Process(bg, prof, key.EntityID, key.Timestamp, regimes.at(bg, key.Timestamp))

			mu.Lock()
			defer mu.Unlock()
			b.tally(report, key, res, err)
			if err != nil {
				log.Warn("item failed",
					applogger.String("entity", key.EntityID),
					applogger.Time("at", key.Timestamp),
					applogger.String("stage", stageOf(err)),
					applogger.Error(err))
			}
			if t.done(i) && t.completed-t.saved >= b.cfg.CheckpointEvery {
				b.save(bg, log, job.ID, t, report)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Key.Less(report.Failures[j].Key) })
	report.Watermark = t.watermark
	report.Duration = time.Since(start)
	b.metrics.RecordLatency("batch", report.Duration.Seconds())

	if err := ctx.Err(); err != nil {
		b.save(bg, log, job.ID, t, report)
		log.Warn("batch interrupted",
			applogger.Int("completed", report.Completed),
			applogger.Int("failed", report.Failed),
			applogger.Int("remaining", len(pending)-t.completed))
		return report, err
	}

	if b.checkpoints != nil {
		if err := b.checkpoints.Clear(bg, job.ID); err != nil {
			log.Warn("clear checkpoint", applogger.Error(err))
		}
	}
	b.metrics.RecordCheckpoint(job.ID, report.Skipped+t.completed)
	log.Info("batch finished",
		applogger.Int("completed", report.Completed),
		applogger.Int("failed", report.Failed),
		applogger.Int("insufficient", report.Insufficient),
		applogger.Duration("duration_ms", report.Duration))
	return report, nil
}

// resume drops items covered by a stored watermark.
func (b *BatchRecompute) resume(ctx context.Context, job Job, items []models.ScoreKey, report *BatchReport) ([]models.ScoreKey, error) {
	if b.checkpoints == nil {
		return items, nil
	}
	if job.Restart {
		if err := b.checkpoints.Clear(ctx, job.ID); err != nil {
			return nil, err
		}
		return items, nil
	}
	cp, ok, err := b.checkpoints.Load(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return items, nil
	}
	n := sort.Search(len(items), func(i int) bool { return cp.Watermark.Less(items[i]) })
	report.Resumed = true
	report.Skipped = n
	report.Watermark = cp.Watermark
	return items[n:], nil
}

func (b *BatchRecompute) tally(r *BatchReport, key models.ScoreKey, res Result, err error) {
	if err != nil {
		r.Failed++
		r.Failures = append(r.Failures, ItemFailure{Key: key, Stage: stageOf(err), Err: err})
		return
	}
	r.Completed++
	if res.Insufficient() {
		r.Insufficient++
	}
	if res.Composite != nil {
		r.Classes[res.Composite.Classification]++
	}
	if res.Health != nil {
		r.Grades[res.Health.Grade]++
	}
}

// save must be called with the report mutex held or after all workers exit.
func (b *BatchRecompute) save(ctx context.Context, log *applogger.Logger, jobID string, t *tracker, r *BatchReport) {
	if b.checkpoints == nil || t.watermark.EntityID == "" {
		return
	}
	cp := models.Checkpoint{
		JobID:     jobID,
		Watermark: t.watermark,
		Completed: r.Skipped + t.completed,
		Failed:    r.Failed,
		UpdatedAt: b.now().UTC(),
	}
	if err := b.checkpoints.Save(ctx, cp); err != nil {
		log.Error("save checkpoint", applogger.Error(err))
		return
	}
	t.saved = t.completed
	b.metrics.RecordCheckpoint(jobID, cp.Completed)
	log.Debug("checkpoint saved",
		applogger.String("entity", cp.Watermark.EntityID),
		applogger.Time("at", cp.Watermark.Timestamp),
		applogger.Int("completed", cp.Completed))
}

// tracker advances a watermark over the contiguous prefix of finished items.
type tracker struct {
	items     []models.ScoreKey
	finished  []bool
	next      int
	completed int
	saved     int
	watermark models.ScoreKey
}

func newTracker(items []models.ScoreKey, start models.ScoreKey) *tracker {
	return &tracker{items: items, finished: make([]bool, len(items)), watermark: start}
}

// done marks item i finished and reports whether the watermark moved.
func (t *tracker) done(i int) bool {
	t.finished[i] = true
	moved := false
	for t.next < len(t.items) && t.finished[t.next] {
		t.watermark = t.items[t.next]
		t.next++
		t.completed++
		moved = true
	}
	return moved
}

// regimeCache resolves each timestamp's regime once per job.
type regimeCache struct {
	resolver *RegimeResolver
	group    singleflight.Group
	mu       sync.Mutex
	states   map[int64]models.RegimeState
}

func newRegimeCache(r *RegimeResolver) *regimeCache {
	return &regimeCache{resolver: r, states: make(map[int64]models.RegimeState)}
}

func (c *regimeCache) at(ctx context.Context, ts time.Time) models.RegimeState {
	if c.resolver == nil {
		return models.NormalRegime(ts, "no regime resolver")
	}
	k := ts.UnixNano()
	c.mu.Lock()
	st, ok := c.states[k]
	c.mu.Unlock()
	if ok {
		return st
	}
	v, _, _ := c.group.Do(fmt.Sprint(k), func() (interface{}, error) {
		st := c.resolver.Resolve(ctx, ts)
		c.mu.Lock()
		c.states[k] = st
		c.mu.Unlock()
		return st, nil
	})
	return v.(models.RegimeState)
}
