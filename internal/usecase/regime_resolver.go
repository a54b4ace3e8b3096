package usecase

import (
	"context"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	domsvc "FinSignal/internal/domain/service"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
)

// RegimeResolver fetches the volatility series and classifies it. It never
// fails: a missing or broken provider yields the NORMAL fallback.
type RegimeResolver struct {
	provider domrepo.RegimeSignalProvider
	detector domsvc.RegimeClassifier
	series   string
	lookback int
	log      *applogger.Logger
	metrics  domrepo.Metrics
}

func NewRegimeResolver(
	provider domrepo.RegimeSignalProvider,
	detector domsvc.RegimeClassifier,
	series string,
	lookback int,
	log *applogger.Logger,
	m domrepo.Metrics,
) *RegimeResolver {
	if log == nil {
		log = applogger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &RegimeResolver{provider: provider, detector: detector, series: series, lookback: lookback, log: log, metrics: m}
}

// Resolve returns the regime in force at asOf.
func (r *RegimeResolver) Resolve(ctx context.Context, asOf time.Time) models.RegimeState {
	state := r.resolve(ctx, asOf)
	r.metrics.RecordRegime(state.Level, state.ShiftDetected)
	return state
}

func (r *RegimeResolver) resolve(ctx context.Context, asOf time.Time) models.RegimeState {
	if r.provider == nil || r.detector == nil {
		st := models.NormalRegime(asOf, "no regime provider configured")
		st.TriggeringSeries = r.series
		return st
	}
	series, err := r.provider.GetVolatilitySeries(ctx, asOf, r.lookback)
	if err != nil {
		r.log.Warn("regime provider unavailable, using NORMAL",
			applogger.String("series", r.series),
			applogger.Time("as_of", asOf),
			applogger.Error(err))
		st := models.NormalRegime(asOf, err.Error())
		st.TriggeringSeries = r.series
		return st
	}
	return r.detector.Detect(series, asOf, r.series)
}
