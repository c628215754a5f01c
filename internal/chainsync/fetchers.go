package chainsync

import (
	"github.com/goran-ethernal/TezosIndexor/internal/decoding"
	"github.com/goran-ethernal/TezosIndexor/internal/fetcher"
	"github.com/goran-ethernal/TezosIndexor/internal/rpc"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// blockFetcher fetches block data by offset below a reference hash. The
// node addresses historical blocks only by offset from a known hash, not by
// absolute level.
func blockFetcher(ref types.BlockHash) fetcher.Fetcher[int64, types.BlockData] {
	return fetcher.Fetcher[int64, types.BlockData]{
		Command: func(offset int64) string {
			return rpc.BlockOffsetCommand(ref, offset)
		},
		Decode: decoding.Block,
	}
}

// operationsFetcher fetches a block's flattened operation groups.
var operationsFetcher = fetcher.Fetcher[types.BlockHash, []types.OperationsGroup]{
	Command: func(hash types.BlockHash) string {
		return rpc.OperationsCommand(hash)
	},
	Decode: decoding.Operations,
}

// accountIDsFetcher fetches the account ids listed at a block.
var accountIDsFetcher = fetcher.Fetcher[types.BlockHash, []types.AccountID]{
	Command: func(hash types.BlockHash) string {
		return rpc.ContractsCommand(hash)
	},
	Decode: decoding.AccountIDs,
}

// quorumFetcher fetches the current expected quorum at a block.
var quorumFetcher = fetcher.Fetcher[types.BlockHash, *int]{
	Command: func(hash types.BlockHash) string {
		return rpc.QuorumCommand(hash, 0)
	},
	Decode: decoding.Quorum,
}

// proposalFetcher fetches the currently active proposal at a block.
var proposalFetcher = fetcher.Fetcher[types.BlockHash, *types.ProtocolID]{
	Command: func(hash types.BlockHash) string {
		return rpc.ProposalCommand(hash, 0)
	},
	Decode: decoding.Proposal,
}

// accountFetcher fetches account snapshots at a block.
func accountFetcher(ref types.BlockHash) fetcher.Fetcher[types.AccountID, types.Account] {
	return fetcher.Fetcher[types.AccountID, types.Account]{
		Command: func(id types.AccountID) string {
			return rpc.ContractCommand(ref, id)
		},
		Decode: decoding.Account,
	}
}

// operationsWithAccounts pairs a block's operation groups with the account
// ids listed at that block.
type operationsWithAccounts struct {
	Groups   []types.OperationsGroup
	Accounts []types.AccountID
}
