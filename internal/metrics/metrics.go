package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Answer outcomes used as the "outcome" label.
const (
	OutcomeCorrect    = "correct"
	OutcomePartial    = "partial"
	OutcomeWrong      = "wrong"
	OutcomeUnanswered = "unanswered"
	OutcomeDuplicate  = "duplicate"
	OutcomeLate       = "late"
)

// Metrics holds the Prometheus collectors of the game service.
type Metrics struct {
	Answers    *prometheus.CounterVec
	ScoreDelta prometheus.Histogram
	Rounds     *prometheus.CounterVec
	Sessions   prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Answers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tugwar",
				Name:      "answers_total",
				Help:      "Submitted answers by outcome",
			},
			[]string{"outcome"},
		),
		ScoreDelta: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tugwar",
				Name:      "score_delta",
				Help:      "Signed score delta applied per accepted answer",
				Buckets:   []float64{-30, -20, -10, -5, 0, 5, 10, 20, 40, 60, 80, 100},
			},
		),
		Rounds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tugwar",
				Name:      "rounds_total",
				Help:      "Round transitions by event",
			},
			[]string{"event"},
		),
		Sessions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tugwar",
				Name:      "sessions_started_total",
				Help:      "Game sessions started",
			},
		),
	}
}
