// Package config contains utility structs/functions and types
// for validating the configurations across the library.
package config

import "errors"

// ErrInvalid is wrapped by the error returned by the [Validator]
// when a configuration contains a value with no possible fallback.
var ErrInvalid = errors.New("invalid configuration")

// Config defines the minimal interface for a configuration
// in order to be validated.
type Config interface {
	// Validate checks the configuration.
	Validate(ac *AnomalyCollector)
}
