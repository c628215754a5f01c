package chainsync

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goran-ethernal/TezosIndexor/internal/fork"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/pkg/config"
	"github.com/goran-ethernal/TezosIndexor/pkg/storage"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode serves canned responses keyed by command and records every call.
type fakeNode struct {
	mu        sync.Mutex
	responses map[string]string
	calls     map[string]int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		responses: make(map[string]string),
		calls:     make(map[string]int),
	}
}

func (n *fakeNode) Get(ctx context.Context, command string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls[command]++

	body, ok := n.responses[command]
	if !ok {
		return nil, fmt.Errorf("unexpected command %q", command)
	}
	return []byte(body), nil
}

func (n *fakeNode) callCount(command string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[command]
}

func hashAt(level int64) types.BlockHash {
	return types.BlockHash(fmt.Sprintf("BL%d", level))
}

func blockJSON(level int64, hash types.BlockHash) string {
	predecessor := hashAt(level - 1)
	if level == 0 {
		predecessor = hash
	}
	return fmt.Sprintf(`{
		"protocol": "PsddFKi3",
		"chain_id": "NetXdQprcVkpaWU",
		"hash": %q,
		"header": {
			"level": %d,
			"predecessor": %q,
			"timestamp": "2018-08-01T10:15:30Z",
			"validation_pass": 4,
			"fitness": ["00"]
		},
		"metadata": {"baker": "tz1baker"}
	}`, hash, level, predecessor)
}

// serveBlock registers a block's sub-resources under its own hash.
func (n *fakeNode) serveBlock(level int64, hash types.BlockHash) {
	if level > 0 {
		n.responses[fmt.Sprintf("blocks/%s/operations", hash)] = `[[]]`
		n.responses[fmt.Sprintf("blocks/%s/context/contracts", hash)] = fmt.Sprintf(`["tz1touched%d"]`, level)
		n.responses[fmt.Sprintf("blocks/%s~/votes/current_quorum", hash)] = `7291`
		n.responses[fmt.Sprintf("blocks/%s~/votes/current_proposal", hash)] = `null`
	}
}

// newFakeChain builds a node serving a chain up to head, addressable by
// offset below both the literal head and the head block's hash, and by hash.
func newFakeChain(head int64) *fakeNode {
	node := newFakeNode()

	node.responses["blocks/head"] = blockJSON(head, hashAt(head))
	for level := int64(0); level <= head; level++ {
		hash := hashAt(level)
		offset := head - level

		for _, ref := range []types.BlockHash{types.HeadReference, hashAt(head)} {
			if offset == 0 {
				node.responses[fmt.Sprintf("blocks/%s~", ref)] = blockJSON(level, hash)
			} else {
				node.responses[fmt.Sprintf("blocks/%s~%d", ref, offset)] = blockJSON(level, hash)
			}
		}
		node.responses[fmt.Sprintf("blocks/%s", hash)] = blockJSON(level, hash)
		node.serveBlock(level, hash)
	}

	return node
}

// emptyStore is a ChainReader over nothing.
type emptyStore struct {
	maxLevel int64
}

func (s *emptyStore) FetchMaxLevel(ctx context.Context) (int64, error) { return s.maxLevel, nil }
func (s *emptyStore) FetchLatestBlock(ctx context.Context) (*storage.StoredBlock, error) {
	return nil, nil
}
func (s *emptyStore) BlockExists(ctx context.Context, hash types.BlockHash) (bool, error) {
	return false, nil
}
func (s *emptyStore) BlockIsInInvalidatedState(ctx context.Context, hash types.BlockHash) (bool, error) {
	return false, nil
}

func newTestEngine(t *testing.T, client *fakeNode, store storage.ChainReader, pageSize int64) *Engine {
	t.Helper()

	cfg := config.SyncConfig{
		BlockPageSize:                   pageSize,
		BlockOperationsConcurrencyLevel: 4,
		AccountConcurrencyLevel:         2,
	}

	engine, err := New(cfg, client, store, logger.NewNopLogger())
	require.NoError(t, err)
	return engine
}

// Bootstrapping: empty store, head at 3. One page covering 1..3, three
// write actions in level-ascending order, genesis omitted.
func TestSyncFromLastIndexed_Bootstrapping(t *testing.T) {
	node := newFakeChain(3)
	engine := newTestEngine(t, node, &emptyStore{maxLevel: -1}, 500)

	pages, total, err := engine.SyncFromLastIndexed(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, pages, 1)
	assert.Equal(t, types.NewRange(1, 3), pages[0].Range)

	results, err := pages[0].Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, result := range results {
		assert.Equal(t, types.ActionWrite, result.Action.Kind)
		assert.Equal(t, int64(i+1), result.Action.Block.Data.Level())
		assert.Equal(t, []types.AccountID{types.AccountID(fmt.Sprintf("tz1touched%d", i+1))}, result.TouchedAccounts)
	}
}

// Nominal catch-up: storedMax 100, head 103, page size 2. Two pages and
// total 3.
func TestSyncFromLastIndexed_NominalCatchUp(t *testing.T) {
	node := newFakeChain(103)
	engine := newTestEngine(t, node, &emptyStore{maxLevel: 100}, 2)

	pages, total, err := engine.SyncFromLastIndexed(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, pages, 2)
	assert.Equal(t, types.NewRange(101, 102), pages[0].Range)
	assert.Equal(t, types.NewRange(103, 103), pages[1].Range)

	for _, page := range pages {
		results, err := page.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, results, int(page.Range.Size()))
		for _, result := range results {
			assert.Equal(t, types.ActionWrite, result.Action.Kind)
		}
	}
}

// No work: the store is already at the head.
func TestSyncFromLastIndexed_NoWork(t *testing.T) {
	node := newFakeChain(500)
	engine := newTestEngine(t, node, &emptyStore{maxLevel: 500}, 100)

	pages, total, err := engine.SyncFromLastIndexed(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, pages)
}

// Genesis in the range gets empty operations and votes; the node is never
// asked for its sub-resources.
func TestGetBlocks_GenesisSubstitution(t *testing.T) {
	node := newFakeChain(2)
	engine := newTestEngine(t, node, &emptyStore{maxLevel: -1}, 500)

	ref := types.BlockReference{Hash: types.HeadReference, Level: 2}
	results, err := engine.GetBlocks(context.Background(), ref, types.NewRange(0, 2), false)
	require.NoError(t, err)
	require.Len(t, results, 3)

	genesis := results[0]
	assert.True(t, genesis.Action.Block.Data.IsGenesis())
	assert.Empty(t, genesis.Action.Block.Operations)
	assert.Nil(t, genesis.Action.Block.Votes.Quorum)
	assert.Nil(t, genesis.Action.Block.Votes.ActiveProposal)
	assert.Empty(t, genesis.TouchedAccounts)

	assert.Zero(t, node.callCount("blocks/BL0/operations"))
	assert.Zero(t, node.callCount("blocks/BL0/context/contracts"))

	// Non-genesis levels carry their votes.
	require.NotNil(t, results[1].Action.Block.Votes.Quorum)
	assert.Equal(t, 7291, *results[1].Action.Block.Votes.Quorum)
}

// Round-trip: the hash the engine reports for a level is the hash the node
// serves at that level's offset.
func TestGetBlocks_OrderingAndRoundTrip(t *testing.T) {
	node := newFakeChain(10)
	engine := newTestEngine(t, node, &emptyStore{maxLevel: -1}, 500)

	ref := types.BlockReference{Hash: types.HeadReference, Level: 10}
	results, err := engine.GetBlocks(context.Background(), ref, types.NewRange(4, 8), false)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, result := range results {
		level := int64(4 + i)
		assert.Equal(t, level, result.Action.Block.Data.Level())
		assert.Equal(t, hashAt(level), result.Action.Block.Data.Hash)
	}
}

func TestGetBlocks_RangeOutOfBounds(t *testing.T) {
	node := newFakeChain(5)
	engine := newTestEngine(t, node, &emptyStore{maxLevel: -1}, 500)

	ref := types.BlockReference{Hash: types.HeadReference, Level: 5}

	_, err := engine.GetBlocks(context.Background(), ref, types.NewRange(3, 6), false)
	require.Error(t, err)

	_, err = engine.GetBlocks(context.Background(), ref, types.NewRange(-1, 3), false)
	require.Error(t, err)
}

// forkStore reports a stored top whose hash disagrees with the node.
type forkStore struct {
	latest      *storage.StoredBlock
	existing    map[types.BlockHash]bool
	invalidated map[types.BlockHash]bool
}

func (s *forkStore) FetchMaxLevel(ctx context.Context) (int64, error) { return s.latest.Level, nil }
func (s *forkStore) FetchLatestBlock(ctx context.Context) (*storage.StoredBlock, error) {
	return s.latest, nil
}
func (s *forkStore) BlockExists(ctx context.Context, hash types.BlockHash) (bool, error) {
	return s.existing[hash], nil
}
func (s *forkStore) BlockIsInInvalidatedState(ctx context.Context, hash types.BlockHash) (bool, error) {
	return s.invalidated[hash], nil
}

// A fork below the page boundary produces recovery actions appended after
// the page, and revalidations carry no touched accounts.
func TestGetBlocks_FollowForkAppendsRecovery(t *testing.T) {
	node := newFakeChain(5)

	store := &forkStore{
		// The store's top is level 2 under a stale hash; the node's block
		// at that level is BL2.
		latest:      &storage.StoredBlock{Hash: "STALE2", Level: 2},
		existing:    map[types.BlockHash]bool{"BL1": true, "BL0": true},
		invalidated: map[types.BlockHash]bool{"BL1": true},
	}

	engine := newTestEngine(t, node, store, 500)

	ref := types.BlockReference{Hash: types.HeadReference, Level: 5}
	results, err := engine.GetBlocks(context.Background(), ref, types.NewRange(3, 5), true)
	require.NoError(t, err)

	// Three page writes, then the disagreeing block at level 2 and the
	// revalidation of level 1.
	require.Len(t, results, 5)

	for i := 0; i < 3; i++ {
		assert.Equal(t, types.ActionWrite, results[i].Action.Kind)
	}

	recovered := results[3]
	assert.Equal(t, types.ActionWriteAndMakeValid, recovered.Action.Kind)
	assert.Equal(t, types.BlockHash("BL2"), recovered.Action.Block.Data.Hash)
	assert.Equal(t, []types.AccountID{"tz1touched2"}, recovered.TouchedAccounts)

	revalidated := results[4]
	assert.Equal(t, types.ActionRevalidate, revalidated.Action.Kind)
	assert.Equal(t, types.BlockHash("BL1"), revalidated.Action.Block.Data.Hash)
	assert.Empty(t, revalidated.TouchedAccounts)
}

// A level mismatch between store and node fails the page without emitting
// anything.
func TestGetBlocks_ForkLevelMismatch(t *testing.T) {
	node := newFakeChain(5)

	store := &forkStore{
		latest: &storage.StoredBlock{Hash: "STALE", Level: 7},
	}

	engine := newTestEngine(t, node, store, 500)

	ref := types.BlockReference{Hash: types.HeadReference, Level: 5}
	results, err := engine.GetBlocks(context.Background(), ref, types.NewRange(3, 5), true)
	require.Error(t, err)
	assert.Empty(t, results)

	var inconsistency *fork.InconsistencyError
	assert.ErrorAs(t, err, &inconsistency)
}

// The fork follower is suppressed for ranges that start at genesis.
func TestGetBlocks_ForkSuppressedAtGenesis(t *testing.T) {
	node := newFakeChain(2)

	store := &forkStore{
		latest: &storage.StoredBlock{Hash: "STALE", Level: 7},
	}

	engine := newTestEngine(t, node, store, 500)

	ref := types.BlockReference{Hash: types.HeadReference, Level: 2}
	results, err := engine.GetBlocks(context.Background(), ref, types.NewRange(0, 2), true)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSyncLatest_DepthAndStartHash(t *testing.T) {
	node := newFakeChain(10)
	engine := newTestEngine(t, node, &emptyStore{maxLevel: -1}, 500)

	depth := int64(4)
	pages, total, err := engine.SyncLatest(context.Background(), &depth, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, pages, 1)
	assert.Equal(t, types.NewRange(7, 10), pages[0].Range)

	// Depth larger than the chain clamps to level 1.
	depth = 100
	pages, total, err = engine.SyncLatest(context.Background(), &depth, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	assert.Equal(t, types.NewRange(1, 10), pages[0].Range)

	// An explicit start hash overrides the head.
	start := hashAt(6)
	depth = 2
	pages, total, err = engine.SyncLatest(context.Background(), &depth, &start, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, types.NewRange(5, 6), pages[0].Range)
	assert.Equal(t, start, pages[0].ref.Hash)
}

func TestAccountRefs(t *testing.T) {
	node := newFakeChain(3)
	engine := newTestEngine(t, node, &emptyStore{maxLevel: -1}, 500)

	block := types.Block{Data: types.BlockData{
		Hash:   hashAt(2),
		Header: types.BlockHeader{Level: 2},
	}}

	// Revalidations never touch the node.
	ids, err := engine.AccountRefs(context.Background(), types.RevalidateBlock(block))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, node.callCount("blocks/BL2/context/contracts"))

	// Writes list the accounts at the block.
	ids, err = engine.AccountRefs(context.Background(), types.WriteBlock(block))
	require.NoError(t, err)
	assert.Equal(t, []types.AccountID{"tz1touched2"}, ids)

	// Genesis lists nothing.
	genesis := types.Block{Data: types.BlockData{Hash: hashAt(0)}}
	ids, err = engine.AccountRefs(context.Background(), types.WriteBlock(genesis))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFetchAccounts(t *testing.T) {
	node := newFakeChain(3)
	node.responses["blocks/BL3/context/contracts/KT1abc"] = `{
		"manager": "tz1manager",
		"balance": "1000",
		"counter": "1",
		"script": {
			"code": [{"prim": "parameter", "args": [{"prim": "unit"}]}],
			"storage": {"int": "0"}
		}
	}`

	engine := newTestEngine(t, node, &emptyStore{maxLevel: -1}, 500)

	ref := types.BlockReference{Hash: hashAt(3), Level: 3}
	accounts, err := engine.FetchAccounts(context.Background(), ref, []types.AccountID{"KT1abc"})
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	account := accounts[0]
	assert.Equal(t, hashAt(3), account.BlockID)
	assert.Equal(t, int64(3), account.BlockLevel)
	require.NotNil(t, account.Script)

	// Script fields are rewritten to textual Michelson.
	assert.Equal(t, `"parameter unit;"`, string(account.Script.Code))
	assert.Equal(t, `"0"`, string(account.Script.Storage))
}
