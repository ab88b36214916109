package patchserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	// Requests counts file requests by kind: list, archive, missing or
	// rejected.
	Requests *prometheus.CounterVec
	// BytesServed counts response body bytes for file requests.
	BytesServed prometheus.Counter
	Subscribers prometheus.Gauge
	// LatestVersion is the highest version in the patch list.
	LatestVersion prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchd_requests_total",
				Help: "File requests by kind",
			},
			[]string{"kind"},
		),
		BytesServed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "patchd_bytes_served_total",
				Help: "Bytes of patch lists and archives served",
			},
		),
		Subscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "patchd_subscribers",
				Help: "Connected event subscribers",
			},
		),
		LatestVersion: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "patchd_latest_version",
				Help: "Highest version in the patch list",
			},
		),
	}
}
