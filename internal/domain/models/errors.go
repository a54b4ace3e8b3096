package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData marks a window below its minimum size.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateVariance marks a window whose standard deviation is zero.
	ErrDegenerateVariance = errors.New("degenerate variance")
	// ErrInvalidWeightConfig is matched by every InvalidWeightConfigError.
	ErrInvalidWeightConfig = errors.New("invalid weight config")
	// ErrProviderUnavailable is matched by every ProviderUnavailableError.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNumericInstability marks a non-finite intermediate result.
	ErrNumericInstability = errors.New("numeric instability")
	// ErrProfileNotFound is returned by profile stores for unknown IDs.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidProfile marks a profile rejected for reasons other than weights.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrDuplicateIndicator marks a scoring input naming one indicator twice.
	ErrDuplicateIndicator = errors.New("duplicate indicator")
	// ErrJobLocked is returned when a batch job is already running elsewhere.
	ErrJobLocked = errors.New("job already running")
)

// InvalidWeightConfigError rejects a scoring profile at load time.
type InvalidWeightConfigError struct {
	ProfileID string
	Reason    string
	Sum       float64
}

func (e *InvalidWeightConfigError) Error() string {
	return fmt.Sprintf("profile %q: %s (weight sum %.4f)", e.ProfileID, e.Reason, e.Sum)
}

// Is makes errors.Is(err, ErrInvalidWeightConfig) succeed.
func (e *InvalidWeightConfigError) Is(target error) bool { return target == ErrInvalidWeightConfig }

// ProviderUnavailableError wraps an upstream data failure.
type ProviderUnavailableError struct {
	Provider string
	SeriesID string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	if e.SeriesID == "" {
		return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s unavailable for %s: %v", e.Provider, e.SeriesID, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProviderUnavailable) succeed.
func (e *ProviderUnavailableError) Is(target error) bool { return target == ErrProviderUnavailable }
