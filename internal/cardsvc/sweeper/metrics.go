package sweeper

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_sweep_runs_total",
			Help: "Total number of expiration sweeps by result",
		},
		[]string{"result"},
	)
	cardsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cards_expired_total",
			Help: "Total number of cards moved to EXPIRED by the sweeper",
		},
	)
	remindersSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "card_reminders_sent_total",
			Help: "Total number of expiring-soon reminders published",
		},
	)
)

// RegisterMetrics registers the sweeper metrics. Call it once from main.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(sweepRunsTotal, cardsExpiredTotal, remindersSentTotal)
}
