package progression

import "github.com/prometheus/client_golang/prometheus"

// completion triggers
const (
	triggerVideo = "video"
	triggerDwell = "dwell"
)

var (
	CompletionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lesson_completions_total",
			Help: "Total number of lessons completed",
		},
		[]string{"trigger"},
	)

	CompletionFailureCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lesson_completion_failures_total",
			Help: "Total number of failed completion writes",
		},
		[]string{"trigger"},
	)

	UnlockFailureCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lesson_unlock_failures_total",
			Help: "Total number of failed unlock-next writes",
		},
	)

	DwellTimerCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lesson_dwell_timers_total",
			Help: "Dwell timers by outcome",
		},
		[]string{"outcome"},
	)
)

// RegisterMetrics register progression collectors with reg
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		CompletionCounter,
		CompletionFailureCounter,
		UnlockFailureCounter,
		DwellTimerCounter,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
