// Package indexer drives the top-level indexing loop: run a sync cycle,
// stream pages sequentially into the store, fetch the touched account
// snapshots, sleep, repeat. It is a catch-up indexer with periodic head
// polls, not a low-latency tail follower.
package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/goran-ethernal/TezosIndexor/internal/chainsync"
	"github.com/goran-ethernal/TezosIndexor/internal/common"
	"github.com/goran-ethernal/TezosIndexor/internal/db"
	"github.com/goran-ethernal/TezosIndexor/internal/fork"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/internal/rpc"
	"github.com/goran-ethernal/TezosIndexor/pkg/config"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// Runner owns the indexing loop.
type Runner struct {
	cfg    config.SyncConfig
	engine *chainsync.Engine
	store  *db.Store
	log    *logger.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg config.SyncConfig, engine *chainsync.Engine, store *db.Store, log *logger.Logger) (*Runner, error) {
	if engine == nil {
		return nil, errors.New("sync engine is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	return &Runner{
		cfg:    cfg,
		engine: engine,
		store:  store,
		log:    log.WithComponent(common.ComponentIndexer),
	}, nil
}

// Run loops sync cycles until the context is cancelled or a fatal error
// occurs. Transient cycle failures are logged and retried on the next poll;
// a store/node level inconsistency aborts, and shutdown stops cleanly.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Infow("indexing loop started",
		"poll_interval", r.cfg.PollInterval.Duration,
		"follow_fork", r.cfg.FollowFork,
	)

	for {
		err := r.syncCycle(ctx)

		switch {
		case err == nil:
			// Caught up, wait for new blocks.
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			r.log.Info("indexing loop cancelled")
			return ctx.Err()
		case errors.Is(err, rpc.ErrShutdown):
			r.log.Info("rpc handler shut down, stopping indexing loop")
			return nil
		default:
			var inconsistency *fork.InconsistencyError
			if errors.As(err, &inconsistency) {
				r.log.Errorw("store and node disagree on chain shape, aborting", "error", err)
				return err
			}
			r.log.Errorw("sync cycle failed, retrying on next poll", "error", err)
		}

		select {
		case <-ctx.Done():
			r.log.Info("indexing loop cancelled")
			return ctx.Err()
		case <-time.After(r.cfg.PollInterval.Duration):
		}
	}
}

// syncCycle fetches everything between the stored max level and the node's
// head, page by page. Pages are driven sequentially to preserve the store's
// write ordering.
func (r *Runner) syncCycle(ctx context.Context) error {
	pages, total, err := r.engine.SyncFromLastIndexed(ctx, r.cfg.FollowFork)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	r.log.Infow("sync cycle started", "levels", total, "pages", len(pages))
	start := time.Now()

	for _, page := range pages {
		results, err := page.Fetch(ctx)
		if err != nil {
			return err
		}

		if err := r.store.Apply(ctx, results); err != nil {
			return err
		}

		if err := r.storeAccounts(ctx, results); err != nil {
			return err
		}

		r.log.Debugw("page applied", "from", page.Range.Start, "to", page.Range.End, "results", len(results))
	}

	r.log.Infow("sync cycle complete", "levels", total, "elapsed", time.Since(start))

	return nil
}

// storeAccounts fetches and persists the snapshots of every account touched
// by a page, tagged with the block that observed them.
func (r *Runner) storeAccounts(ctx context.Context, results []types.BlockFetchingResult) error {
	for _, result := range results {
		if len(result.TouchedAccounts) == 0 {
			continue
		}

		data := result.Action.Block.Data
		ref := types.BlockReference{Hash: data.Hash, Level: data.Level()}

		accounts, err := r.engine.FetchAccounts(ctx, ref, result.TouchedAccounts)
		if err != nil {
			return err
		}

		if err := r.store.WriteAccounts(ctx, accounts, result.TouchedAccounts); err != nil {
			return err
		}
	}
	return nil
}
