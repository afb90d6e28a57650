package nvd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloadsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dependency_check",
			Subsystem: "nvd",
			Name:      "downloads_total",
			Help:      "Total number of feed segments downloaded, by result.",
		},
		[]string{"result"},
	)
	cvesIndexedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dependency_check",
			Subsystem: "nvd",
			Name:      "cves_indexed",
			Help:      "Number of CVEs retained from the last parsed feed.",
		},
	)
)
