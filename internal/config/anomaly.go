package config

import "fmt"

// anomaly is a value of a configuration that breaks a check.
// A fatal anomaly has no fallback and makes the validation fail.
type anomaly struct {
	field    string
	reason   string
	actual   any
	fallback any
	fatal    bool
}

func (an *anomaly) err() error {
	return fmt.Errorf("%s %s (got %v)", an.field, an.reason, an.actual)
}

// AnomalyCollector gathers the anomalies found by the checks
// of a single validation.
type AnomalyCollector struct {
	anomalies []*anomaly
}

func newAnomalyCollector() *AnomalyCollector {
	return &AnomalyCollector{}
}

func (ac *AnomalyCollector) add(field, reason string, actual, fallback any) {
	ac.anomalies = append(ac.anomalies, &anomaly{
		field:    field,
		reason:   reason,
		actual:   actual,
		fallback: fallback,
	})
}

func (ac *AnomalyCollector) addFatal(field, reason string, actual any) {
	ac.anomalies = append(ac.anomalies, &anomaly{
		field:  field,
		reason: reason,
		actual: actual,
		fatal:  true,
	})
}

func (ac *AnomalyCollector) reset() {
	ac.anomalies = ac.anomalies[:0]
}
