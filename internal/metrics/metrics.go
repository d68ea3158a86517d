package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "setgw_commands_total",
			Help: "Settings-change lifecycle counter by stage",
		},
		[]string{"stage"}, // accepted|published|retried|failed|confirmed
	)

	PublishedStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "setgw_published_stale",
			Help: "Published entries older than the confirmation window, still unconfirmed",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		CommandsTotal,
		PublishedStale,
	)
}
