package lora

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loralert_lines_total",
		Help: "Lines read from the serial link, by classification",
	}, []string{"kind"})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loralert_dispatch_total",
		Help: "Alert dispatch results, by outcome",
	}, []string{"outcome"})

	playbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loralert_playback_duration_seconds",
		Help:    "Time from starting an alert until the audio output was idle again",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loralert_dispatch_queue_depth",
		Help: "Alerts waiting for the audio output",
	})

	ingestState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loralert_ingest_state",
		Help: "Ingest loop state (0 idle, 1 polling, 2 dispatching, 3 draining, 4 terminated)",
	})
)
