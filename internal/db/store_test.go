package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/goran-ethernal/TezosIndexor/internal/db"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/internal/migrations"
	"github.com/goran-ethernal/TezosIndexor/pkg/config"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *db.Store {
	t.Helper()

	dbPath := t.TempDir() + "/test_store.db"

	err := migrations.RunMigrations(dbPath)
	require.NoError(t, err)

	dbConfig := config.DatabaseConfig{Path: dbPath}
	dbConfig.ApplyDefaults()

	database, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)

	store, err := db.NewStore(database, logger.NewNopLogger())
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func testBlock(level int64, hash types.BlockHash) types.Block {
	signature := "sigabc"
	source := types.AccountID("tz1source")
	destination := types.AccountID("tz1dest")
	amount := decimal.NewFromInt(1000)
	fee := decimal.NewFromInt(50)
	quorum := 7291

	return types.Block{
		Data: types.BlockData{
			Protocol: "PsddFKi3",
			ChainID:  "NetXdQprcVkpaWU",
			Hash:     hash,
			Header: types.BlockHeader{
				Level:       level,
				Predecessor: types.BlockHash("pred"),
				Timestamp:   time.Date(2018, 8, 1, 10, 15, 30, 0, time.UTC),
				Fitness:     []string{"00", "01"},
			},
			Metadata: types.BlockMetadata{Baker: "tz1baker"},
		},
		Operations: []types.OperationsGroup{
			{
				Protocol:  "PsddFKi3",
				ChainID:   "NetXdQprcVkpaWU",
				Hash:      types.OperationGroupHash("oog" + string(hash)),
				Branch:    "pred",
				Signature: &signature,
				Contents: []types.Operation{
					{
						Kind:        types.KindTransaction,
						Source:      &source,
						Destination: &destination,
						Amount:      &amount,
						Fee:         &fee,
					},
				},
			},
		},
		Votes: types.CurrentVotes{Quorum: &quorum},
	}
}

func writeResult(block types.Block, touched ...types.AccountID) types.BlockFetchingResult {
	return types.BlockFetchingResult{
		Action:          types.WriteBlock(block),
		TouchedAccounts: touched,
	}
}

func TestStore_EmptyState(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	maxLevel, err := store.FetchMaxLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), maxLevel)

	latest, err := store.FetchLatestBlock(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	exists, err := store.BlockExists(ctx, "BLnothing")
	require.NoError(t, err)
	assert.False(t, exists)

	invalidated, err := store.BlockIsInInvalidatedState(ctx, "BLnothing")
	require.NoError(t, err)
	assert.False(t, invalidated)

	count, err := store.CountBlocks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_ApplyWriteBlocks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	results := []types.BlockFetchingResult{
		writeResult(testBlock(1, "BL1"), "tz1a"),
		writeResult(testBlock(2, "BL2"), "tz1a", "tz1b"),
		writeResult(testBlock(3, "BL3")),
	}

	require.NoError(t, store.Apply(ctx, results))

	maxLevel, err := store.FetchMaxLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxLevel)

	latest, err := store.FetchLatestBlock(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, types.BlockHash("BL3"), latest.Hash)
	assert.Equal(t, int64(3), latest.Level)
	assert.False(t, latest.Invalidated)
	assert.Equal(t, time.Date(2018, 8, 1, 10, 15, 30, 0, time.UTC), latest.Timestamp.UTC())

	for _, hash := range []types.BlockHash{"BL1", "BL2", "BL3"} {
		exists, err := store.BlockExists(ctx, hash)
		require.NoError(t, err)
		assert.True(t, exists, "block %s", hash)

		invalidated, err := store.BlockIsInInvalidatedState(ctx, hash)
		require.NoError(t, err)
		assert.False(t, invalidated, "block %s", hash)
	}

	// Operation rows landed with their group.
	var opCount int
	err = store.DB().QueryRow(`SELECT COUNT(1) FROM operations WHERE block_hash = ?`, "BL2").Scan(&opCount)
	require.NoError(t, err)
	assert.Equal(t, 1, opCount)

	var refCount int
	err = store.DB().QueryRow(`SELECT COUNT(1) FROM account_refs WHERE block_hash = ?`, "BL2").Scan(&refCount)
	require.NoError(t, err)
	assert.Equal(t, 2, refCount)
}

func TestStore_ApplyIsAtomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// A result with an unknown action kind fails the whole batch.
	bad := types.BlockFetchingResult{Action: types.BlockAction{Kind: types.ActionKind(99)}}

	err := store.Apply(ctx, []types.BlockFetchingResult{
		writeResult(testBlock(1, "BL1")),
		bad,
	})
	require.Error(t, err)

	exists, err := store.BlockExists(ctx, "BL1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_RevalidateClearsFlag(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	block := testBlock(5, "BL5")
	require.NoError(t, store.Apply(ctx, []types.BlockFetchingResult{writeResult(block)}))

	require.NoError(t, store.InvalidateBlocksFromLevel(ctx, 5))

	invalidated, err := store.BlockIsInInvalidatedState(ctx, "BL5")
	require.NoError(t, err)
	assert.True(t, invalidated)

	require.NoError(t, store.Apply(ctx, []types.BlockFetchingResult{
		{Action: types.RevalidateBlock(block)},
	}))

	invalidated, err = store.BlockIsInInvalidatedState(ctx, "BL5")
	require.NoError(t, err)
	assert.False(t, invalidated)
}

func TestStore_WriteAndMakeValidReplaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	block := testBlock(7, "BL7")
	require.NoError(t, store.Apply(ctx, []types.BlockFetchingResult{writeResult(block, "tz1a")}))
	require.NoError(t, store.InvalidateBlocksFromLevel(ctx, 7))

	require.NoError(t, store.Apply(ctx, []types.BlockFetchingResult{
		{Action: types.WriteAndMakeValidBlock(block), TouchedAccounts: []types.AccountID{"tz1a"}},
	}))

	invalidated, err := store.BlockIsInInvalidatedState(ctx, "BL7")
	require.NoError(t, err)
	assert.False(t, invalidated)

	count, err := store.CountBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_WriteAccounts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	code := `"parameter unit;"`
	storageText := `"42"`
	delegate := types.AccountID("tz1delegate")

	account := types.Account{
		Manager:         "tz1manager",
		Balance:         decimal.RequireFromString("4000000"),
		Spendable:       true,
		DelegateSetable: true,
		DelegateValue:   &delegate,
		Counter:         5,
		Script: &types.ScriptedContract{
			Code:    []byte(code),
			Storage: []byte(storageText),
		},
		BlockID:    "BL9",
		BlockLevel: 9,
	}

	require.NoError(t, store.WriteAccounts(ctx, []types.Account{account}, []types.AccountID{"KT1abc"}))

	stored, err := store.GetAccount(ctx, "KT1abc")
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, "KT1abc", stored.AccountID)
	assert.Equal(t, types.BlockHash("BL9"), stored.BlockHash)
	assert.Equal(t, int64(9), stored.BlockLevel)
	assert.Equal(t, "tz1manager", stored.Manager)
	assert.True(t, stored.Balance.Equal(decimal.RequireFromString("4000000")))
	assert.True(t, stored.Spendable)
	require.NotNil(t, stored.DelegateValue)
	assert.Equal(t, "tz1delegate", *stored.DelegateValue)
	require.NotNil(t, stored.ScriptCode)
	assert.Equal(t, "parameter unit;", *stored.ScriptCode)
	require.NotNil(t, stored.ScriptStorage)
	assert.Equal(t, "42", *stored.ScriptStorage)

	// Re-writing the same account replaces the snapshot.
	account.BlockLevel = 12
	account.BlockID = "BL12"
	require.NoError(t, store.WriteAccounts(ctx, []types.Account{account}, []types.AccountID{"KT1abc"}))

	stored, err = store.GetAccount(ctx, "KT1abc")
	require.NoError(t, err)
	assert.Equal(t, int64(12), stored.BlockLevel)

	missing, err := store.GetAccount(ctx, "KT1missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_ListAndGetBlocks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, []types.BlockFetchingResult{
		writeResult(testBlock(1, "BL1")),
		writeResult(testBlock(2, "BL2")),
		writeResult(testBlock(3, "BL3")),
	}))

	blocks, err := store.ListBlocks(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, int64(3), blocks[0].Level)
	assert.Equal(t, int64(2), blocks[1].Level)

	blocks, err = store.ListBlocks(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, int64(1), blocks[0].Level)

	block, err := store.GetBlock(ctx, "BL2")
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, int64(2), block.Level)

	missing, err := store.GetBlock(ctx, "BLmissing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	dbPath := t.TempDir() + "/test_migrations.db"

	require.NoError(t, migrations.RunMigrations(dbPath))
	require.NoError(t, migrations.RunMigrations(dbPath))

	database, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	defer database.Close()

	var name string
	err = database.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='blocks'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "blocks", name)
}
