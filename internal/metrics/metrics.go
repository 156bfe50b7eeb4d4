// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics collects run statistics and writes them in the Prometheus
// text format, for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const namespace = "tsup"

// Recorder holds the per-run metric set.
type Recorder struct {
	registry  *prometheus.Registry
	checked   *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	removed   prometheus.Counter
	duration  prometheus.Gauge
	lastRun   prometheus.Gauge
	runFailed prometheus.Gauge
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		checked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_checked_total",
			Help:      "Series checked against their source.",
		}, []string{"source"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_outcomes_total",
			Help:      "Reconciliation outcomes by source.",
		}, []string{"source", "outcome"}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "torrents_removed_total",
			Help:      "Torrents removed and verified gone.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		runFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failed",
			Help:      "1 when the last run aborted before completing.",
		}),
	}

	registry.MustRegister(r.checked, r.outcomes, r.removed, r.duration, r.lastRun, r.runFailed)
	return r
}

func (r *Recorder) Checked(source string) {
	r.checked.WithLabelValues(source).Inc()
}

func (r *Recorder) Outcome(source, outcome string) {
	r.outcomes.WithLabelValues(source, outcome).Inc()
}

func (r *Recorder) Removed(n int) {
	if n > 0 {
		r.removed.Add(float64(n))
	}
}

// Finish stamps the run duration and completion time.
func (r *Recorder) Finish(started, finished time.Time, failed bool) {
	r.duration.Set(finished.Sub(started).Seconds())
	r.lastRun.Set(float64(finished.Unix()))
	if failed {
		r.runFailed.Set(1)
	} else {
		r.runFailed.Set(0)
	}
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "could not write metrics to %s", path)
	}
	log.Debug().Str("path", path).Msg("metrics written")
	return nil
}
