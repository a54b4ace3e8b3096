package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/util"
)

// Run modes.
const (
	ModeCompute   = "compute"
	ModeBackfill  = "backfill"
	ModeTrend     = "trend"
	ModeCalibrate = "calibrate"
	ModeConsume   = "consume"
)

// Options selects what a Run does. Empty fields fall back to config.
type Options struct {
	Mode     string
	JobID    string
	Profile  string
	Entities []string
	From     time.Time
	To       time.Time
	Step     string
	Restart  bool
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	profiles   usecase.ProfileStore
	batch      *usecase.BatchRecompute
	trends     *usecase.TrendReporter
	calibrator *usecase.Calibrator
	consumer   *pkgkafka.Consumer
	handler    pkgkafka.MessageHandler
	httpServer *xhttp.Server
	out        io.Writer
	now        func() time.Time
}

// New creates a new App instance with all dependencies. consumer and
// httpServer may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	profiles usecase.ProfileStore,
	batch *usecase.BatchRecompute,
	trends *usecase.TrendReporter,
	calibrator *usecase.Calibrator,
	consumer *pkgkafka.Consumer,
	handler pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		profiles:   profiles,
		batch:      batch,
		trends:     trends,
		calibrator: calibrator,
		consumer:   consumer,
		handler:    handler,
		httpServer: httpServer,
		out:        os.Stdout,
		now:        time.Now,
	}
}

// SetOutput redirects report tables.
func (a *App) SetOutput(w io.Writer) { a.out = w }

// Run executes one mode and returns when it is done or ctx is cancelled.
func (a *App) Run(ctx context.Context, opts Options) error {
	opts = a.withDefaults(opts)
	a.log.Info("run",
		applogger.String("mode", opts.Mode),
		applogger.String("profile", opts.Profile),
		applogger.Strings("entities", opts.Entities))

	switch opts.Mode {
	case ModeCompute:
		opts.To = opts.From
		return a.runBatch(ctx, opts)
	case ModeBackfill:
		if opts.From.IsZero() || opts.To.IsZero() {
			return errors.New("backfill needs -from and -to")
		}
		opts.From, opts.To = util.AlignFromTo(opts.From, opts.To, opts.Step)
		return a.runBatch(ctx, opts)
	case ModeTrend:
		return a.runTrend(ctx, opts)
	case ModeCalibrate:
		return a.runCalibrate(ctx, opts)
	case ModeConsume:
		return a.runConsume(ctx)
	default:
		return fmt.Errorf("unknown mode %q", opts.Mode)
	}
}

func (a *App) withDefaults(opts Options) Options {
	if opts.Mode == "" {
		opts.Mode = ModeCompute
	}
	if opts.Profile == "" {
		opts.Profile = a.cfg.Scoring.Profile
	}
	if len(opts.Entities) == 0 {
		opts.Entities = a.cfg.Entities
	}
	if opts.Step == "" {
		opts.Step = a.cfg.Scoring.Step
	}
	today := a.now().UTC().Truncate(24 * time.Hour)
	switch opts.Mode {
	case ModeCompute:
		if opts.From.IsZero() {
			opts.From = today
		}
	case ModeTrend, ModeCalibrate:
		if opts.To.IsZero() {
			opts.To = today
		}
		if opts.From.IsZero() {
			opts.From = opts.To.Add(-a.cfg.Scoring.Lookback)
		}
	}
	return opts
}

func (a *App) runBatch(ctx context.Context, opts Options) error {
	job := usecase.Job{
		ID:        opts.JobID,
		ProfileID: opts.Profile,
		Entities:  opts.Entities,
		From:      opts.From,
		To:        opts.To,
		Step:      domrepo.Step(opts.Step),
		Restart:   opts.Restart,
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("%s:%s:%s:%s:%s", opts.Mode, opts.Profile,
			opts.From.Format(time.DateOnly), opts.To.Format(time.DateOnly), opts.Step)
	}

	report, err := a.batch.Run(ctx, job)
	if report != nil {
		if werr := WriteBatchReport(a.out, report); werr != nil {
			a.log.Warn("write report", applogger.Error(werr))
		}
	}
	if errors.Is(err, context.Canceled) {
		a.log.Warn("batch interrupted; rerun with the same job id to resume", applogger.String("job", job.ID))
	}
	return err
}

func (a *App) runTrend(ctx context.Context, opts Options) error {
	trends := make([]models.Trend, 0, len(opts.Entities))
	for _, e := range opts.Entities {
		t, err := a.trends.Trend(ctx, opts.Profile, e, opts.From, opts.To)
		if err != nil {
			return err
		}
		trends = append(trends, t)
	}
	return WriteTrends(a.out, opts.Profile, trends)
}

func (a *App) runCalibrate(ctx context.Context, opts Options) error {
	p, err := a.profiles.Profile(opts.Profile)
	if err != nil {
		return err
	}
	c, err := a.calibrator.Calibrate(ctx, p, opts.Entities, opts.From, opts.To)
	if err != nil {
		return err
	}
	return WriteCalibration(a.out, c)
}

// runConsume serves recompute requests until ctx is cancelled.
func (a *App) runConsume(ctx context.Context) error {
	if a.consumer == nil || a.handler == nil {
		return errors.New("consume mode requires kafka.enabled")
	}
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return err
		}
	}
	if err := a.consumer.RegisterHandler(a.handler); err != nil {
		return err
	}
	if err := a.consumer.Start(ctx); err != nil {
		return err
	}
	a.log.Info("consuming recompute requests", applogger.String("topic", a.handler.Topic()))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops the consumer and ops server.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.consumer.Stop(ctx); err != nil {
		a.log.Warn("kafka consumer stop error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
