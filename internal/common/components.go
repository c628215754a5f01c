package common

const (
	ComponentSyncEngine   = "sync-engine"
	ComponentDataFetcher  = "data-fetcher"
	ComponentForkFollower = "fork-follower"
	ComponentRPC          = "rpc"
	ComponentStore        = "store"
	ComponentMichelson    = "michelson"
	ComponentIndexer      = "indexer"
	ComponentAPI          = "api"
)

var AllComponents = map[string]struct{}{
	ComponentSyncEngine:   {},
	ComponentDataFetcher:  {},
	ComponentForkFollower: {},
	ComponentRPC:          {},
	ComponentStore:        {},
	ComponentMichelson:    {},
	ComponentIndexer:      {},
	ComponentAPI:          {},
}
