package config

import (
	"fmt"
	"slices"
)

type ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// fallbackTo records the anomaly and replaces the value with the fallback.
func fallbackTo[T any](ac *AnomalyCollector, field, reason string, actual *T, fallback T) {
	ac.add(field, reason, *actual, fallback)
	*actual = fallback
}

///////////////////////
//  FALLBACK CHECKS  //
///////////////////////

// CheckNotNegative replaces a negative value with the fallback.
func CheckNotNegative[T ordered](ac *AnomalyCollector, field string, actual *T, fallback T) {
	if *actual < 0 {
		fallbackTo(ac, field, "cannot be negative", actual, fallback)
	}
}

// CheckNotZero replaces a zero value with the fallback.
func CheckNotZero[T ordered](ac *AnomalyCollector, field string, actual *T, fallback T) {
	if *actual == 0 {
		fallbackTo(ac, field, "cannot be zero", actual, fallback)
	}
}

// CheckGreaterThanZero replaces a negative or zero value with the fallback.
// It is used for sizes, counts and timeouts that have a sensible default.
func CheckGreaterThanZero[T ordered](ac *AnomalyCollector, field string, actual *T, fallback T) {
	if *actual <= 0 {
		fallbackTo(ac, field, "must be greater than zero", actual, fallback)
	}
}

// CheckNotEmpty replaces an empty string with the fallback.
func CheckNotEmpty(ac *AnomalyCollector, field string, actual *string, fallback string) {
	if *actual == "" {
		fallbackTo(ac, field, "cannot be empty", actual, fallback)
	}
}

// CheckLen replaces an empty slice with the fallback.
func CheckLen[T any](ac *AnomalyCollector, field string, actual *[]T, fallback []T) {
	if len(*actual) == 0 {
		fallbackTo(ac, field, "cannot be empty", actual, fallback)
	}
}

// CheckOneOf replaces a value that is not allowed with the fallback.
func CheckOneOf[T comparable](ac *AnomalyCollector, field string, actual *T, allowed []T, fallback T) {
	if !slices.Contains(allowed, *actual) {
		fallbackTo(ac, field, fmt.Sprintf("must be one of %v", allowed), actual, fallback)
	}
}

////////////////////
//  FATAL CHECKS  //
////////////////////

// CheckRequired fails the validation if a value without a sensible default is not set.
func CheckRequired(ac *AnomalyCollector, field string, actual string) {
	if actual == "" {
		ac.addFatal(field, "is required", actual)
	}
}

// CheckPositive fails the validation if a value without a sensible default
// is not greater than zero.
func CheckPositive[T ordered](ac *AnomalyCollector, field string, actual T) {
	if actual <= 0 {
		ac.addFatal(field, "must be greater than zero", actual)
	}
}

// CheckInRange fails the validation if the value is outside [low, high].
func CheckInRange[T ordered](ac *AnomalyCollector, field string, actual, low, high T) {
	if actual < low || actual > high {
		ac.addFatal(field, fmt.Sprintf("must be in the range [%v, %v]", low, high), actual)
	}
}
