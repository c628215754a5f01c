package michelson

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var michelsonParseFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "tezosindexor_michelson_parse_failures_total",
		Help: "Total number of embedded Michelson expressions replaced by the unparsable sentinel",
	},
)
