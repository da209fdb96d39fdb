package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// Per-source scrape outcome
	ScrapeSuccess       *prometheus.CounterVec
	ScrapeErrors        *prometheus.CounterVec
	ScrapeDuration      *prometheus.GaugeVec
	LastScrapeTimestamp *prometheus.GaugeVec

	// Record fields that could not be turned into a sample
	SkippedValues *prometheus.CounterVec

	// Store housekeeping
	ExpiredSeries prometheus.Counter
}

const (
	ScrapeSuccessName       = "exporter_scrape_success_total"
	ScrapeErrorsName        = "exporter_scrape_errors_total"
	ScrapeDurationName      = "exporter_scrape_duration_seconds"
	LastScrapeTimestampName = "exporter_last_scrape_timestamp"
	SkippedValuesName       = "exporter_skipped_values_total"
	ExpiredSeriesName       = "exporter_expired_series_total"
	StoreSeriesName         = "exporter_store_series"
)

// ReservedNames lists metric names owned by the exporter itself.
func ReservedNames() []string {
	return []string{
		ScrapeSuccessName,
		ScrapeErrorsName,
		ScrapeDurationName,
		LastScrapeTimestampName,
		SkippedValuesName,
		ExpiredSeriesName,
		StoreSeriesName,
	}
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScrapeSuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ScrapeSuccessName,
				Help: "Total successful scrapes",
			},
			[]string{"source"},
		),
		ScrapeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ScrapeErrorsName,
				Help: "Total scrape errors",
			},
			[]string{"source"},
		),
		ScrapeDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: ScrapeDurationName,
				Help: "Time spent scraping",
			},
			[]string{"source"},
		),
		LastScrapeTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: LastScrapeTimestampName,
				Help: "Timestamp of last successful scrape",
			},
			[]string{"source"},
		),
		SkippedValues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: SkippedValuesName,
				Help: "Record values skipped because they were missing or not numeric",
			},
			[]string{"source", "metric"},
		),
		ExpiredSeries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: ExpiredSeriesName,
				Help: "Total series removed after exceeding the metrics TTL",
			},
		),
	}

	reg.MustRegister(
		m.ScrapeSuccess,
		m.ScrapeErrors,
		m.ScrapeDuration,
		m.LastScrapeTimestamp,
		m.SkippedValues,
		m.ExpiredSeries,
	)

	return m
}

// RegisterStoreSize exposes the current number of stored series.
func RegisterStoreSize(reg prometheus.Registerer, size func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: StoreSeriesName,
			Help: "Number of series currently held in the metrics store",
		},
		func() float64 { return float64(size()) },
	))
}
