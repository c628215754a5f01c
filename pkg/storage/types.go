// Package storage declares the persistence contracts the sync core depends
// on. The core reads four predicates from the store and emits block actions
// towards a single write sink; the store serializes its own writes.
package storage

import (
	"context"
	"time"

	"github.com/goran-ethernal/TezosIndexor/pkg/types"
	"github.com/shopspring/decimal"
)

// StoredBlock is the store's view of an indexed block.
type StoredBlock struct {
	Hash        types.BlockHash `meddler:"hash,hash" json:"hash"`
	Level       int64           `meddler:"level" json:"level"`
	Predecessor types.BlockHash `meddler:"predecessor,hash" json:"predecessor"`
	Timestamp   time.Time       `meddler:"timestamp,utctime" json:"timestamp"`
	Protocol    string          `meddler:"protocol" json:"protocol"`
	ChainID     string          `meddler:"chain_id" json:"chain_id"`
	Invalidated bool            `meddler:"invalidated" json:"invalidated"`
}

// StoredAccount is the store's view of the latest snapshot of an account.
type StoredAccount struct {
	AccountID       string          `meddler:"account_id" json:"account_id"`
	BlockHash       types.BlockHash `meddler:"block_hash,hash" json:"block_hash"`
	BlockLevel      int64           `meddler:"block_level" json:"block_level"`
	Manager         string          `meddler:"manager" json:"manager"`
	Balance         decimal.Decimal `meddler:"balance,decimal" json:"balance"`
	Spendable       bool            `meddler:"spendable" json:"spendable"`
	DelegateSetable bool            `meddler:"delegate_setable" json:"delegate_setable"`
	DelegateValue   *string         `meddler:"delegate_value" json:"delegate_value,omitempty"`
	Counter         int64           `meddler:"counter" json:"counter"`
	ScriptCode      *string         `meddler:"script_code" json:"script,omitempty"`
	ScriptStorage   *string         `meddler:"script_storage" json:"storage,omitempty"`
}

// ChainReader is the read side the sync engine and fork follower consume.
// Implementations must reflect committed state, not pending writes; the
// fork classifier emits incorrect actions otherwise.
type ChainReader interface {
	// FetchMaxLevel returns the highest indexed level, -1 for an empty store.
	FetchMaxLevel(ctx context.Context) (int64, error)

	// FetchLatestBlock returns the stored block at the highest level, nil
	// when the store is empty.
	FetchLatestBlock(ctx context.Context) (*StoredBlock, error)

	// BlockExists reports whether a block with the given hash is stored.
	BlockExists(ctx context.Context, hash types.BlockHash) (bool, error)

	// BlockIsInInvalidatedState reports whether the stored block is flagged
	// invalidated. False for unknown hashes.
	BlockIsInInvalidatedState(ctx context.Context, hash types.BlockHash) (bool, error)
}

// Sink receives the results of one page and persists them. The caller
// drives pages sequentially; the sink is the sole writer to the database.
type Sink interface {
	Apply(ctx context.Context, results []types.BlockFetchingResult) error
}
