package config

import (
	"errors"
	"fmt"

	"github.com/FerroO2000/ordo/internal/telemetry"
)

// Validator checks the configurations of a component and reports
// the anomalies through its telemetry.
type Validator struct {
	tel *telemetry.Telemetry
	ac  *AnomalyCollector
}

// NewValidator returns a new validator.
func NewValidator(tel *telemetry.Telemetry) *Validator {
	return &Validator{
		tel: tel,
		ac:  newAnomalyCollector(),
	}
}

// Validate validates the given configuration.
// Anomalies with a fallback are logged as warnings and fixed in place,
// while the ones without a fallback are joined in the returned error.
func (v *Validator) Validate(cfg Config) error {
	defer v.ac.reset()

	cfg.Validate(v.ac)

	var errs []error
	for _, an := range v.ac.anomalies {
		if !an.fatal {
			v.tel.LogWarn("config anomaly",
				"field", an.field, "reason", an.reason,
				"actual", an.actual, "fallback", an.fallback)

			continue
		}

		err := an.err()
		v.tel.LogError("invalid config", err, "field", an.field)
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
