// Package api provides the REST surface over the indexed chain data
// @title TezosIndexor API
// @version 1.0
// @description REST API for querying Tezos chain data indexed by TezosIndexor
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
