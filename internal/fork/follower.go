// Package fork repairs divergences between the locally indexed chain and
// the node's canonical chain. It walks backward from the disagreeing block
// by increasing offset, classifying each ancestor against the store, and
// terminates at the first ancestor that is both present and not
// invalidated.
package fork

import (
	"context"

	"github.com/goran-ethernal/TezosIndexor/internal/common"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/pkg/storage"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// BlockLoader assembles the fully joined block at an offset below a
// reference hash. The sync engine provides the implementation.
type BlockLoader interface {
	LoadBlock(ctx context.Context, ref types.BlockHash, offset int64) (types.Block, error)
}

// Follower walks the node's ancestry to classify forked blocks.
type Follower struct {
	loader BlockLoader
	store  storage.ChainReader
	log    *logger.Logger
}

// NewFollower creates a Follower.
func NewFollower(loader BlockLoader, store storage.ChainReader, log *logger.Logger) *Follower {
	return &Follower{
		loader: loader,
		store:  store,
		log:    log.WithComponent(common.ComponentForkFollower),
	}
}

// Follow checks the block at maxOffset below ref against the store's latest
// block and, on a hash mismatch, walks further back classifying each
// ancestor. The returned actions are in reverse-chronological order, oldest
// last, with the originally-disagreeing block first. An empty result means
// no fork work is needed.
//
// Invariant on success: for every level covered by the run, the stored
// block at that level is the one the node currently reports there, and its
// invalidated flag is clear once the actions are applied.
func (f *Follower) Follow(ctx context.Context, ref types.BlockHash, maxOffset int64) ([]types.BlockAction, error) {
	disagreeing, err := f.loader.LoadBlock(ctx, ref, maxOffset)
	if err != nil {
		return nil, err
	}

	latest, err := f.store.FetchLatestBlock(ctx)
	if err != nil {
		return nil, err
	}

	if latest == nil {
		f.log.Warnw("no latest block in store, following fork without pre-check",
			"node_level", disagreeing.Data.Level(),
		)
	} else {
		if latest.Level != disagreeing.Data.Level() {
			return nil, &InconsistencyError{
				StoredLevel: latest.Level,
				NodeLevel:   disagreeing.Data.Level(),
			}
		}
		if latest.Hash == disagreeing.Data.Hash {
			return nil, nil
		}
	}

	f.log.Warnw("fork detected, following",
		"level", disagreeing.Data.Level(),
		"node_hash", disagreeing.Data.Hash,
	)
	forksDetected.Inc()

	actions := []types.BlockAction{types.WriteAndMakeValidBlock(disagreeing)}

	if disagreeing.Data.IsGenesis() {
		return actions, nil
	}

	for offset := int64(1); ; offset++ {
		block, err := f.loader.LoadBlock(ctx, ref, maxOffset+offset)
		if err != nil {
			return nil, err
		}

		exists, err := f.store.BlockExists(ctx, block.Data.Hash)
		if err != nil {
			return nil, err
		}
		invalidated, err := f.store.BlockIsInInvalidatedState(ctx, block.Data.Hash)
		if err != nil {
			return nil, err
		}

		switch {
		case exists && !invalidated:
			// Reached a valid common ancestor.
			f.log.Infow("fork follow complete",
				"valid_ancestor", block.Data.Hash,
				"level", block.Data.Level(),
				"actions", len(actions),
			)
			return actions, nil

		case exists && invalidated:
			actions = append(actions, types.RevalidateBlock(block))

		case !exists && !invalidated:
			actions = append(actions, types.WriteAndMakeValidBlock(block))

		default:
			f.log.Errorw("impossible fork state, stopping",
				"error", &ImpossibleStateError{Hash: block.Data.Hash},
				"level", block.Data.Level(),
			)
			return actions, nil
		}

		if block.Data.IsGenesis() {
			// Nothing further below genesis.
			return actions, nil
		}
	}
}
