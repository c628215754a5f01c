package chainsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var blocksFetched = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "tezosindexor_blocks_fetched_total",
		Help: "Total number of blocks fetched from the node",
	},
)
