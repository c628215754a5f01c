// Package chainsync drives the synchronization of the local store with the
// node's canonical chain: it partitions the gap between the highest indexed
// level and the node's head into pages, fetches each page's blocks together
// with their operations, accounts and voting state, decodes embedded
// Michelson, and hands fork recovery to the follower.
package chainsync

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/TezosIndexor/internal/common"
	"github.com/goran-ethernal/TezosIndexor/internal/decoding"
	"github.com/goran-ethernal/TezosIndexor/internal/fetcher"
	"github.com/goran-ethernal/TezosIndexor/internal/fork"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/internal/michelson"
	"github.com/goran-ethernal/TezosIndexor/internal/rpc"
	"github.com/goran-ethernal/TezosIndexor/pkg/config"
	"github.com/goran-ethernal/TezosIndexor/pkg/storage"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// Engine orchestrates chain synchronization cycles.
type Engine struct {
	cfg         config.SyncConfig
	client      fetcher.Getter
	store       storage.ChainReader
	transformer *michelson.Transformer
	follower    *fork.Follower
	log         *logger.Logger
}

// New creates an Engine. The fork follower is wired against the engine
// itself, which implements fork.BlockLoader.
func New(
	cfg config.SyncConfig,
	client fetcher.Getter,
	store storage.ChainReader,
	log *logger.Logger,
) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("node client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("chain reader is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := &Engine{
		cfg:         cfg,
		client:      client,
		store:       store,
		transformer: michelson.NewTransformer(log),
		log:         log.WithComponent(common.ComponentSyncEngine),
	}
	e.follower = fork.NewFollower(e, store, log)

	e.log.Info("sync engine initialized")

	return e, nil
}

// Page is a lazy task fetching one level range. The consumer drives pages
// sequentially to maintain database-write ordering; the engine does not
// serialize writes internally.
type Page struct {
	Range types.Range

	engine     *Engine
	ref        types.BlockReference
	followFork bool
}

// Fetch runs the page.
func (p Page) Fetch(ctx context.Context) ([]types.BlockFetchingResult, error) {
	return p.engine.GetBlocks(ctx, p.ref, p.Range, p.followFork)
}

// GetHead fetches the node's current head block.
func (e *Engine) GetHead(ctx context.Context) (types.BlockData, error) {
	command := rpc.BlockCommand(types.HeadReference)

	body, err := e.client.Get(ctx, command)
	if err != nil {
		return types.BlockData{}, err
	}
	return decoding.Block(command, body)
}

// SyncFromLastIndexed computes the page plan covering everything between
// the highest indexed level and the node's head. The returned total is the
// number of levels to be fetched; zero with no pages means the store is
// caught up.
func (e *Engine) SyncFromLastIndexed(ctx context.Context, followFork bool) ([]Page, int64, error) {
	storedMax, err := e.store.FetchMaxLevel(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read max indexed level: %w", err)
	}

	head, err := e.GetHead(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch head: %w", err)
	}
	headLevel := head.Level()

	if storedMax >= headLevel {
		e.log.Debugw("store is caught up", "stored_max", storedMax, "head_level", headLevel)
		return nil, 0, nil
	}

	bootstrapping := storedMax < 0
	start := storedMax + 1
	if bootstrapping {
		// Genesis is never fetched through level ranges.
		start = 1
	}

	ref := types.BlockReference{Hash: head.Hash, Level: headLevel}
	pages := e.pagePlan(ref, types.NewRange(start, headLevel), followFork)

	total := headLevel - max(storedMax, 0)

	e.log.Infow("sync planned",
		"stored_max", storedMax,
		"head_level", headLevel,
		"levels", total,
		"pages", len(pages),
		"follow_fork", followFork,
	)

	return pages, total, nil
}

// SyncLatest computes a page plan for the newest depth levels, anchored at
// startHash when given, at the node's head otherwise. A nil depth means
// everything down to level 1.
func (e *Engine) SyncLatest(ctx context.Context, depth *int64, startHash *types.BlockHash, followFork bool) ([]Page, int64, error) {
	refHash := types.HeadReference
	if startHash != nil {
		refHash = *startHash
	}

	command := rpc.BlockCommand(refHash)
	body, err := e.client.Get(ctx, command)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reference block: %w", err)
	}
	refData, err := decoding.Block(command, body)
	if err != nil {
		return nil, 0, err
	}
	refLevel := refData.Level()

	start := int64(1)
	if depth != nil {
		start = max(int64(1), refLevel-*depth+1)
	}

	ref := types.BlockReference{Hash: refData.Hash, Level: refLevel}
	levelRange := types.NewRange(start, refLevel)
	pages := e.pagePlan(ref, levelRange, followFork)

	return pages, levelRange.Size(), nil
}

func (e *Engine) pagePlan(ref types.BlockReference, levelRange types.Range, followFork bool) []Page {
	parts := types.PartitionRanges(e.cfg.BlockPageSize, levelRange)

	pages := make([]Page, 0, len(parts))
	for _, part := range parts {
		pages = append(pages, Page{
			Range:      part,
			engine:     e,
			ref:        ref,
			followFork: followFork,
		})
	}
	return pages
}

// GetBlocks fetches the blocks of one level range below the reference,
// joined with their operations, touched accounts and voting state, in
// level-ascending order. With followFork set and a range that does not
// touch genesis, fork recovery actions are appended after the page.
func (e *Engine) GetBlocks(
	ctx context.Context,
	ref types.BlockReference,
	levelRange types.Range,
	followFork bool,
) ([]types.BlockFetchingResult, error) {
	if levelRange.Start < 0 || levelRange.End > ref.Level {
		return nil, fmt.Errorf("level range %d..%d out of bounds for reference level %d",
			levelRange.Start, levelRange.End, ref.Level)
	}

	// Offsets descend as levels ascend, so input-order preservation yields
	// level-ascending results.
	levels := levelRange.Levels()
	offsets := make([]int64, len(levels))
	for i, lvl := range levels {
		offsets[i] = ref.Level - lvl
	}

	blocks, err := fetcher.Fetch(ctx, e.client, blockFetcher(ref.Hash), offsets, e.cfg.BlockOperationsConcurrencyLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block data: %w", err)
	}

	hashes := make([]types.BlockHash, 0, len(blocks))
	for _, res := range blocks {
		if !res.Output.IsGenesis() {
			hashes = append(hashes, res.Output.Hash)
		}
	}

	opsByHash, err := e.fetchOperations(ctx, hashes)
	if err != nil {
		return nil, err
	}

	votesByHash, err := e.fetchVotes(ctx, hashes)
	if err != nil {
		return nil, err
	}

	results := make([]types.BlockFetchingResult, 0, len(blocks)+1)
	for _, res := range blocks {
		data := res.Output

		block := types.Block{Data: data, Votes: types.EmptyVotes()}
		var touched []types.AccountID

		if !data.IsGenesis() {
			ops := opsByHash[data.Hash]
			block.Operations = ops.Groups
			block.Votes = votesByHash[data.Hash]
			touched = ops.Accounts
		}

		block = e.transformer.TransformBlock(block)

		results = append(results, types.BlockFetchingResult{
			Action:          types.WriteBlock(block),
			TouchedAccounts: touched,
		})
	}

	blocksFetched.Add(float64(len(results)))

	if followFork && levelRange.Start > 0 {
		forkResults, err := e.followFork(ctx, ref.Hash, levelRange.Size())
		if err != nil {
			return nil, err
		}
		results = append(results, forkResults...)
	}

	return results, nil
}

// fetchOperations fetches operation groups merged with the account ids
// listed at each block.
func (e *Engine) fetchOperations(ctx context.Context, hashes []types.BlockHash) (map[types.BlockHash]operationsWithAccounts, error) {
	merged, err := fetcher.FetchMerged(
		ctx, e.client,
		operationsFetcher, accountIDsFetcher,
		func(groups []types.OperationsGroup, accounts []types.AccountID) operationsWithAccounts {
			return operationsWithAccounts{Groups: groups, Accounts: accounts}
		},
		hashes, e.cfg.BlockOperationsConcurrencyLevel,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch operations: %w", err)
	}

	byHash := make(map[types.BlockHash]operationsWithAccounts, len(merged))
	for _, res := range merged {
		byHash[res.Input] = res.Output
	}
	return byHash, nil
}

// fetchVotes fetches the quorum and active proposal for each block.
func (e *Engine) fetchVotes(ctx context.Context, hashes []types.BlockHash) (map[types.BlockHash]types.CurrentVotes, error) {
	merged, err := fetcher.FetchMerged(
		ctx, e.client,
		quorumFetcher, proposalFetcher,
		func(quorum *int, proposal *types.ProtocolID) types.CurrentVotes {
			return types.CurrentVotes{Quorum: quorum, ActiveProposal: proposal}
		},
		hashes, e.cfg.BlockOperationsConcurrencyLevel,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch votes: %w", err)
	}

	byHash := make(map[types.BlockHash]types.CurrentVotes, len(merged))
	for _, res := range merged {
		byHash[res.Input] = res.Output
	}
	return byHash, nil
}

// followFork runs the fork follower below the syncing range and attaches
// touched accounts to every recovered block.
func (e *Engine) followFork(ctx context.Context, ref types.BlockHash, maxOffset int64) ([]types.BlockFetchingResult, error) {
	actions, err := e.follower.Follow(ctx, ref, maxOffset)
	if err != nil {
		return nil, err
	}

	results := make([]types.BlockFetchingResult, 0, len(actions))
	for _, action := range actions {
		touched, err := e.AccountRefs(ctx, action)
		if err != nil {
			return nil, err
		}
		results = append(results, types.BlockFetchingResult{
			Action:          action,
			TouchedAccounts: touched,
		})
	}
	return results, nil
}

// LoadBlock assembles the fully joined block at an offset below the
// reference hash. Implements fork.BlockLoader.
func (e *Engine) LoadBlock(ctx context.Context, ref types.BlockHash, offset int64) (types.Block, error) {
	command := rpc.BlockOffsetCommand(ref, offset)

	body, err := e.client.Get(ctx, command)
	if err != nil {
		return types.Block{}, err
	}
	data, err := decoding.Block(command, body)
	if err != nil {
		return types.Block{}, err
	}

	block := types.Block{Data: data, Votes: types.EmptyVotes()}
	if data.IsGenesis() {
		return block, nil
	}

	ops, err := e.fetchOperations(ctx, []types.BlockHash{data.Hash})
	if err != nil {
		return types.Block{}, err
	}
	votes, err := e.fetchVotes(ctx, []types.BlockHash{data.Hash})
	if err != nil {
		return types.Block{}, err
	}

	block.Operations = ops[data.Hash].Groups
	block.Votes = votes[data.Hash]

	return e.transformer.TransformBlock(block), nil
}

// AccountRefs extracts the account ids touched by a block action. A
// revalidation needs no call since the accounts already exist in the store;
// genesis lists no accounts.
func (e *Engine) AccountRefs(ctx context.Context, action types.BlockAction) ([]types.AccountID, error) {
	if action.Kind == types.ActionRevalidate {
		return nil, nil
	}
	if action.Block.Data.IsGenesis() {
		return nil, nil
	}

	command := rpc.ContractsCommand(action.Block.Data.Hash)

	body, err := e.client.Get(ctx, command)
	if err != nil {
		return nil, err
	}
	return decoding.AccountIDs(command, body)
}

// FetchAccounts loads the account snapshots for the given ids at a block,
// in pages of at most BlockPageSize ids with bounded concurrency, and
// rewrites their embedded Michelson.
func (e *Engine) FetchAccounts(ctx context.Context, ref types.BlockReference, ids []types.AccountID) ([]types.Account, error) {
	accounts := make([]types.Account, 0, len(ids))

	idRange := types.NewRange(0, int64(len(ids))-1)
	for _, part := range types.PartitionRanges(e.cfg.BlockPageSize, idRange) {
		batch := ids[part.Start : part.End+1]

		fetched, err := fetcher.Fetch(ctx, e.client, accountFetcher(ref.Hash), batch, e.cfg.AccountConcurrencyLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch accounts: %w", err)
		}

		for _, res := range fetched {
			account := res.Output
			account.BlockID = ref.Hash
			account.BlockLevel = ref.Level
			accounts = append(accounts, e.transformer.TransformAccount(account))
		}
	}

	return accounts, nil
}
