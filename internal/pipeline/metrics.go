package pipeline

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	itemsTotal      *prometheus.CounterVec
	itemDuration    *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	pixelsProcessed prometheus.Counter
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelconvert_items_total",
			Help: "Total batch items by target format and outcome.",
		}, []string{"format", "outcome"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelconvert_item_duration_seconds",
			Help:    "Decode, resize and encode duration for each batch item.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelconvert_items_in_flight",
			Help: "Current number of batch items being converted.",
		}),
		pixelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelconvert_pixels_processed_total",
			Help: "Total output pixels produced by successful conversions.",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.itemsTotal,
			m.itemDuration,
			m.inFlight,
			m.pixelsProcessed,
		)
	}
	return m
}
