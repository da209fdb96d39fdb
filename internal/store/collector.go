package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"
)

// Describe sends nothing: the set of metrics is only known at runtime, which
// makes the store an unchecked collector.
func (s *Store) Describe(chan<- *prometheus.Desc) {}

// Collect renders a snapshot as gauges. Label values follow the order of the
// label names in the definition.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	for _, f := range s.Snapshot() {
		if len(f.Samples) == 0 {
			continue
		}

		desc := prometheus.NewDesc(f.Name, f.Help, f.LabelNames, nil)
		for _, smp := range f.Samples {
			values := make([]string, len(f.LabelNames))
			for i, name := range f.LabelNames {
				values[i] = string(smp.Labels[model.LabelName(name)])
			}

			m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, smp.Value, values...)
			if err != nil {
				ch <- prometheus.NewInvalidMetric(desc, err)
				continue
			}
			ch <- m
		}
	}
}

var _ prometheus.Collector = (*Store)(nil)
