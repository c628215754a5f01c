package rpc

import (
	"fmt"

	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// Command builders for the chains/main/ paths the indexer uses. The node
// addresses historical blocks only by offset from a known hash; an offset of
// zero serializes as an empty string, so blocks/H~ stays a valid path.

// BlockCommand addresses a block by hash.
func BlockCommand(hash types.BlockHash) string {
	return fmt.Sprintf("blocks/%s", hash)
}

// BlockOffsetCommand addresses the offset-th ancestor of hash.
func BlockOffsetCommand(hash types.BlockHash, offset int64) string {
	return fmt.Sprintf("blocks/%s~%s", hash, offsetString(offset))
}

// OperationsCommand addresses a block's operations listing.
func OperationsCommand(hash types.BlockHash) string {
	return fmt.Sprintf("blocks/%s/operations", hash)
}

// ContractsCommand addresses a block's account id listing.
func ContractsCommand(hash types.BlockHash) string {
	return fmt.Sprintf("blocks/%s/context/contracts", hash)
}

// ContractCommand addresses one account snapshot at a block.
func ContractCommand(hash types.BlockHash, id types.AccountID) string {
	return fmt.Sprintf("blocks/%s/context/contracts/%s", hash, id)
}

// ManagerKeyCommand addresses an account's manager key at a block.
func ManagerKeyCommand(hash types.BlockHash, id types.AccountID) string {
	return fmt.Sprintf("blocks/%s/context/contracts/%s/manager_key", hash, id)
}

// QuorumCommand addresses the current expected quorum at a block.
func QuorumCommand(hash types.BlockHash, offset int64) string {
	return fmt.Sprintf("blocks/%s~%s/votes/current_quorum", hash, offsetString(offset))
}

// ProposalCommand addresses the currently active proposal at a block.
func ProposalCommand(hash types.BlockHash, offset int64) string {
	return fmt.Sprintf("blocks/%s~%s/votes/current_proposal", hash, offsetString(offset))
}

// BakingRightsCommand addresses the baking rights listing at a block.
func BakingRightsCommand(hash types.BlockHash) string {
	return fmt.Sprintf("blocks/%s/helpers/baking_rights", hash)
}

// EndorsingRightsCommand addresses the endorsing rights listing at a block.
func EndorsingRightsCommand(hash types.BlockHash) string {
	return fmt.Sprintf("blocks/%s/helpers/endorsing_rights", hash)
}

func offsetString(offset int64) string {
	if offset == 0 {
		return ""
	}
	return fmt.Sprintf("%d", offset)
}
