package service

import (
	"time"

	"FinSignal/internal/domain/models"
)

// RegimeClassifier derives a volatility regime from a series ending at asOf.
type RegimeClassifier interface {
	Detect(series []float64, asOf time.Time, trigger string) models.RegimeState
}
