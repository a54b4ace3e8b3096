// Package stats computes rolling-window statistics and z-scores.
//
// Two computation modes are provided: Compute recomputes a window from a
// slice, Stream advances a ring buffer one point at a time. Both evaluate the
// window with the same routine over values in chronological order, so they
// return identical results for identical input.
package stats

import (
	"math"
	"time"

	"FinSignal/internal/domain/models"
)

// DefaultWindow is used when no window size is configured.
const DefaultWindow = 20

type config struct {
	window    int
	minPoints int
}

// Option configures window evaluation.
type Option func(*config)

// WithWindow sets the window size W.
func WithWindow(w int) Option {
	return func(c *config) {
		if w > 0 {
			c.window = w
		}
	}
}

// WithMinPoints accepts partial windows holding at least m points. By default
// a window must be full.
func WithMinPoints(m int) Option {
	return func(c *config) {
		if m > 0 {
			c.minPoints = m
		}
	}
}

func newConfig(opts []Option) config {
	c := config{window: DefaultWindow}
	for _, opt := range opts {
		opt(&c)
	}
	if c.minPoints <= 0 || c.minPoints > c.window {
		c.minPoints = c.window
	}
	// sample variance needs two points
	if c.minPoints < 2 {
		c.minPoints = 2
	}
	return c
}

// Window is the evaluated state of one rolling window.
type Window struct {
	Mean    float64
	StdDev  float64
	Count   int
	Size    int
	Status  models.WindowStatus
	Partial bool
}

// Err maps the window status to its domain error, nil when usable.
func (w Window) Err() error {
	switch w.Status {
	case models.WindowInsufficient:
		return models.ErrInsufficientData
	case models.WindowDegenerate:
		return models.ErrDegenerateVariance
	default:
		return nil
	}
}

// Compute evaluates the last W finite values of values.
func Compute(values []float64, opts ...Option) Window {
	cfg := newConfig(opts)
	return evaluate(lastFinite(values, cfg.window), cfg)
}

// Rolling returns one window state per input index, each computed over the
// values up to and including that index.
func Rolling(values []float64, opts ...Option) []Window {
	cfg := newConfig(opts)
	out := make([]Window, len(values))
	for i := range values {
		out[i] = evaluate(lastFinite(values[:i+1], cfg.window), cfg)
	}
	return out
}

// BuildWindowStats evaluates the window over ascending observations.
func BuildWindowStats(seriesID, indicator string, obs []models.Observation, opts ...Option) models.RollingWindowStats {
	w := Compute(models.Values(obs), opts...)
	var last time.Time
	if len(obs) > 0 {
		last = obs[len(obs)-1].Timestamp
	}
	return models.RollingWindowStats{
		SeriesID:      seriesID,
		IndicatorName: indicator,
		WindowSize:    w.Size,
		Mean:          w.Mean,
		StdDev:        w.StdDev,
		Count:         w.Count,
		LastUpdated:   last,
		Status:        w.Status,
		Partial:       w.Partial,
	}
}

// lastFinite returns up to n trailing finite values in chronological order.
func lastFinite(values []float64, n int) []float64 {
	out := make([]float64, 0, n)
	for i := len(values) - 1; i >= 0 && len(out) < n; i-- {
		if isFinite(values[i]) {
			out = append(out, values[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// evaluate is shared by both computation modes. vals must be chronological.
func evaluate(vals []float64, cfg config) Window {
	w := Window{Count: len(vals), Size: cfg.window}
	if w.Count < cfg.minPoints {
		w.Status = models.WindowInsufficient
		return w
	}
	w.Partial = w.Count < cfg.window

	n := float64(w.Count)
	sum := 0.0
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		sum += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	w.Mean = sum / n

	if lo == hi {
		// identical values; rounding in the mean must not leak a tiny variance
		w.Mean = lo
		w.Status = models.WindowDegenerate
		return w
	}

	ss := 0.0
	for _, v := range vals {
		d := v - w.Mean
		ss += d * d
	}
	w.StdDev = math.Sqrt(ss / (n - 1))

	switch {
	case !isFinite(w.Mean) || !isFinite(w.StdDev):
		w.Mean, w.StdDev = 0, 0
		w.Status = models.WindowInsufficient
	case w.StdDev == 0:
		w.Status = models.WindowDegenerate
	default:
		w.Status = models.WindowOK
	}
	return w
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
