package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

const (
	// MaxScore caps the composite score.
	MaxScore = 100.0

	// ActiveWindow is how recently a candidate must have logged in to count as active.
	ActiveWindow = 7 * 24 * time.Hour

	// InterestWindowDays is how far back an accepted interest counts.
	InterestWindowDays = 14
	InterestWindow     = InterestWindowDays * 24 * time.Hour
)

// ErrNegativeWeight is returned when a calibration file sets a negative weight.
var ErrNegativeWeight = errors.New("ranking weights must not be negative")

// Weights defines the points each scoring component contributes.
type Weights struct {
	SuccessRate     float64 `json:"success_rate"`     // Multiplied by the referrer success rate (default: 30)
	Review          float64 `json:"review"`           // Reserved; no review signal is scored yet (default: 0)
	Invited         float64 `json:"invited"`          // Reserved; no invitation signal is scored yet (default: 0)
	CandidateActive float64 `json:"candidate_active"` // Candidate logged in within ActiveWindow (default: 5)
	RecentInterest  float64 `json:"recent_interest"`  // Accepted interest within InterestWindow (default: 10)
	DirectCircle    float64 `json:"direct_circle"`    // Referrer is in the viewer's circle (default: 10)
	IndirectCircle  float64 `json:"indirect_circle"`  // Referrer is two hops from the viewer (default: 5)
	Premium         float64 `json:"premium"`          // Candidate has an active subscription (default: 5)
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"`
	Weights Weights `json:"weights"`
}

// DefaultWeights returns the default response ranking weights.
//
// Formula: score = success_rate*30 + review*0 + invited*0 + active*5 +
// interest*10 + circle(10 direct | 5 indirect) + premium*5
// - Max score under defaults: 60, well under the cap
func DefaultWeights() *Weights {
	return &Weights{
		SuccessRate:     30,
		Review:          0,
		Invited:         0,
		CandidateActive: 5,
		RecentInterest:  10,
		DirectCircle:    10,
		IndirectCircle:  5,
		Premium:         5,
	}
}

// Validate rejects negative weights.
func (w *Weights) Validate() error {
	fields := map[string]float64{
		"success_rate":     w.SuccessRate,
		"review":           w.Review,
		"invited":          w.Invited,
		"candidate_active": w.CandidateActive,
		"recent_interest":  w.RecentInterest,
		"direct_circle":    w.DirectCircle,
		"indirect_circle":  w.IndirectCircle,
		"premium":          w.Premium,
	}
	for name, v := range fields {
		if v < 0 {
			return fmt.Errorf("%w: %s = %.2f", ErrNegativeWeight, name, v)
		}
	}
	return nil
}

// LoadCalibration loads ranking weights from a JSON calibration file.
// An empty path returns the defaults. On any error the defaults are returned
// together with the error so the caller can log and continue.
// Partial configurations are merged with defaults.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	if err := config.Weights.Validate(); err != nil {
		slog.Warn("invalid calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), err
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights with base weights.
// Only non-zero values from the override are applied.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}

	result := *base
	if override == nil {
		return &result
	}

	apply := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	apply(&result.SuccessRate, override.SuccessRate)
	apply(&result.Review, override.Review)
	apply(&result.Invited, override.Invited)
	apply(&result.CandidateActive, override.CandidateActive)
	apply(&result.RecentInterest, override.RecentInterest)
	apply(&result.DirectCircle, override.DirectCircle)
	apply(&result.IndirectCircle, override.IndirectCircle)
	apply(&result.Premium, override.Premium)

	return &result
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	check := func(name string, def, got float64) {
		if got != def {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", name, def, got))
		}
	}
	check("success_rate", defaults.SuccessRate, loaded.SuccessRate)
	check("review", defaults.Review, loaded.Review)
	check("invited", defaults.Invited, loaded.Invited)
	check("candidate_active", defaults.CandidateActive, loaded.CandidateActive)
	check("recent_interest", defaults.RecentInterest, loaded.RecentInterest)
	check("direct_circle", defaults.DirectCircle, loaded.DirectCircle)
	check("indirect_circle", defaults.IndirectCircle, loaded.IndirectCircle)
	check("premium", defaults.Premium, loaded.Premium)

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
