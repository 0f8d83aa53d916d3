package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type loadMetrics struct {
	loadTimestamp    prometheus.Gauge
	validationErrors *prometheus.CounterVec
}

var configMetrics = loadMetrics{
	loadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "config_load_timestamp",
		Help: "Unix timestamp of the last successful configuration load",
	}),
	validationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "config_validation_errors_total",
		Help: "Total number of configuration validation errors by field",
	}, []string{"field"}),
}

func (m loadMetrics) recordLoad() {
	m.loadTimestamp.SetToCurrentTime()
}

func (m loadMetrics) recordValidationError(field string) {
	m.validationErrors.WithLabelValues(field).Inc()
}
