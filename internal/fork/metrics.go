package fork

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var forksDetected = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "tezosindexor_forks_detected_total",
		Help: "Total number of forks detected while syncing",
	},
)
