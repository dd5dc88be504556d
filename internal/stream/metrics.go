// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts stream activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Frames    prometheus.Counter
	Deltas    prometheus.Counter
	Malformed prometheus.Counter
	Flushes   prometheus.Counter
	Streams   *prometheus.CounterVec
	Duration  prometheus.Histogram
}

// NewMetrics creates the stream metrics and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visionchat",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Data records read from streaming responses.",
		}),
		Deltas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visionchat",
			Subsystem: "stream",
			Name:      "deltas_total",
			Help:      "Content deltas applied to the accumulator.",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visionchat",
			Subsystem: "stream",
			Name:      "malformed_frames_total",
			Help:      "Data records skipped as invalid JSON or longer than the line limit.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visionchat",
			Subsystem: "stream",
			Name:      "flushes_total",
			Help:      "Coalesced writes of the accumulated text to the transcript.",
		}),
		Streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visionchat",
			Subsystem: "stream",
			Name:      "completed_total",
			Help:      "Streams finished, by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "visionchat",
			Subsystem: "stream",
			Name:      "duration_seconds",
			Help:      "Time from the first read to the end of the response body.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Frames, m.Deltas, m.Malformed, m.Flushes, m.Streams, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register stream metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) incFrames() {
	if m != nil {
		m.Frames.Inc()
	}
}

func (m *Metrics) incDeltas() {
	if m != nil {
		m.Deltas.Inc()
	}
}

func (m *Metrics) incMalformed() {
	if m != nil {
		m.Malformed.Inc()
	}
}

func (m *Metrics) incFlushes() {
	if m != nil {
		m.Flushes.Inc()
	}
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m != nil {
		m.Streams.WithLabelValues(outcome).Inc()
		m.Duration.Observe(seconds)
	}
}
