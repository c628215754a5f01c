package db

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tezosindexor_blocks_written_total",
			Help: "Total number of block actions applied to the store",
		},
	)

	blocksRevalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tezosindexor_blocks_revalidated_total",
			Help: "Total number of stored blocks whose invalidated flag was cleared",
		},
	)

	// LastIndexedLevel tracks the level of the most recently applied block.
	LastIndexedLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tezosindexor_last_indexed_level",
			Help: "The chain level most recently applied to the store",
		},
	)
)
