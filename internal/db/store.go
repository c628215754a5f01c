// Package db implements the SQLite persistence layer: the read predicates
// the sync core depends on, the write sink applying block actions, and the
// queries backing the HTTP API.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goran-ethernal/TezosIndexor/internal/common"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/pkg/storage"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
	"github.com/russross/meddler"
	"github.com/shopspring/decimal"
)

// Compile-time checks for the contracts the sync core consumes.
var (
	_ storage.ChainReader = (*Store)(nil)
	_ storage.Sink        = (*Store)(nil)
)

// Store is the SQLite-backed chain store. It is the sole writer to the
// database; reads reflect committed state only.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB, log *logger.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}

	s := &Store{
		db:  db,
		log: log.WithComponent(common.ComponentStore),
	}

	s.log.Info("store initialized")

	return s, nil
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchMaxLevel returns the highest indexed level, -1 for an empty store.
func (s *Store) FetchMaxLevel(ctx context.Context) (int64, error) {
	var level int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(level), -1) FROM blocks`).Scan(&level)
	if err != nil {
		return 0, fmt.Errorf("failed to read max level: %w", err)
	}
	return level, nil
}

// FetchLatestBlock returns the stored block at the highest level, nil when
// the store is empty.
func (s *Store) FetchLatestBlock(ctx context.Context) (*storage.StoredBlock, error) {
	var block storage.StoredBlock
	err := meddler.QueryRow(s.db, &block, `
		SELECT hash, level, predecessor, timestamp, protocol, chain_id, invalidated
		FROM blocks ORDER BY level DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest block: %w", err)
	}
	return &block, nil
}

// BlockExists reports whether a block with the given hash is stored.
func (s *Store) BlockExists(ctx context.Context, hash types.BlockHash) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM blocks WHERE hash = ?`, string(hash)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check block existence: %w", err)
	}
	return count > 0, nil
}

// BlockIsInInvalidatedState reports whether the stored block is flagged
// invalidated. Unknown hashes are not invalidated.
func (s *Store) BlockIsInInvalidatedState(ctx context.Context, hash types.BlockHash) (bool, error) {
	var invalidated bool
	err := s.db.QueryRowContext(ctx, `SELECT invalidated FROM blocks WHERE hash = ?`, string(hash)).Scan(&invalidated)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check invalidated state: %w", err)
	}
	return invalidated, nil
}

// InvalidateBlocksFromLevel flags every stored block at or above the level
// as invalidated. Used when an operator forces a resync.
func (s *Store) InvalidateBlocksFromLevel(ctx context.Context, level int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE blocks SET invalidated = 1 WHERE level >= ?`, level)
	if err != nil {
		return fmt.Errorf("failed to invalidate blocks: %w", err)
	}
	return nil
}

// Apply persists the results of one page atomically. Write and
// write-and-make-valid actions replace any stored row for the hash with the
// invalidated flag clear; revalidations clear the flag only.
func (s *Store) Apply(ctx context.Context, results []types.BlockFetchingResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	for _, result := range results {
		action := result.Action

		switch action.Kind {
		case types.ActionWrite, types.ActionWriteAndMakeValid:
			if err := s.writeBlockTx(tx, action.Block, result.TouchedAccounts); err != nil {
				return err
			}
		case types.ActionRevalidate:
			if err := s.revalidateBlockTx(tx, action.Block.Data.Hash); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown block action kind %v", action.Kind)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	last := results[len(results)-1].Action.Block.Data
	blocksWritten.Add(float64(len(results)))
	LastIndexedLevel.Set(float64(last.Level()))

	s.log.Debugw("applied block actions", "count", len(results), "top_level", last.Level())

	return nil
}

func (s *Store) writeBlockTx(tx *sql.Tx, block types.Block, touched []types.AccountID) error {
	hash := block.Data.Hash

	// Replace any previous row for this hash. Clearing before re-inserting
	// keeps write and write-and-make-valid on the same path: both leave the
	// block valid.
	cleanup := []string{
		`DELETE FROM operations WHERE block_hash = ?`,
		`DELETE FROM operation_groups WHERE block_hash = ?`,
		`DELETE FROM account_refs WHERE block_hash = ?`,
		`DELETE FROM blocks WHERE hash = ?`,
	}
	for _, stmt := range cleanup {
		if _, err := tx.Exec(stmt, string(hash)); err != nil {
			return fmt.Errorf("failed to clear block %s: %w", hash, err)
		}
	}

	if err := meddler.Insert(tx, "blocks", newBlockRow(block)); err != nil {
		return fmt.Errorf("failed to insert block %s: %w", hash, err)
	}

	for _, group := range block.Operations {
		if err := meddler.Insert(tx, "operation_groups", newOperationGroupRow(block.Data, group)); err != nil {
			return fmt.Errorf("failed to insert operation group %s: %w", group.Hash, err)
		}

		for _, op := range group.Contents {
			if err := meddler.Insert(tx, "operations", newOperationRow(block.Data, group, op)); err != nil {
				return fmt.Errorf("failed to insert operation in group %s: %w", group.Hash, err)
			}
		}
	}

	for _, id := range touched {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO account_refs (block_hash, account_id) VALUES (?, ?)`,
			string(hash), string(id),
		)
		if err != nil {
			return fmt.Errorf("failed to insert account ref %s: %w", id, err)
		}
	}

	return nil
}

func (s *Store) revalidateBlockTx(tx *sql.Tx, hash types.BlockHash) error {
	result, err := tx.Exec(`UPDATE blocks SET invalidated = 0 WHERE hash = ?`, string(hash))
	if err != nil {
		return fmt.Errorf("failed to revalidate block %s: %w", hash, err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		s.log.Warnw("revalidation target not found in store", "hash", hash)
	}

	blocksRevalidated.Inc()

	return nil
}

// WriteAccounts upserts account snapshots.
func (s *Store) WriteAccounts(ctx context.Context, accounts []types.Account, ids []types.AccountID) error {
	if len(accounts) != len(ids) {
		return fmt.Errorf("accounts and ids length mismatch: %d vs %d", len(accounts), len(ids))
	}
	if len(accounts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	for i, account := range accounts {
		if _, err := tx.Exec(`DELETE FROM accounts WHERE account_id = ?`, string(ids[i])); err != nil {
			return fmt.Errorf("failed to clear account %s: %w", ids[i], err)
		}
		if err := meddler.Insert(tx, "accounts", newAccountRow(ids[i], account)); err != nil {
			return fmt.Errorf("failed to insert account %s: %w", ids[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListBlocks returns stored blocks ordered by level descending.
func (s *Store) ListBlocks(ctx context.Context, limit, offset int) ([]*storage.StoredBlock, error) {
	var blocks []*storage.StoredBlock
	err := meddler.QueryAll(s.db, &blocks, `
		SELECT hash, level, predecessor, timestamp, protocol, chain_id, invalidated
		FROM blocks ORDER BY level DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return blocks, nil
}

// GetBlock returns the stored block with the given hash, nil when unknown.
func (s *Store) GetBlock(ctx context.Context, hash types.BlockHash) (*storage.StoredBlock, error) {
	var block storage.StoredBlock
	err := meddler.QueryRow(s.db, &block, `
		SELECT hash, level, predecessor, timestamp, protocol, chain_id, invalidated
		FROM blocks WHERE hash = ?`, string(hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read block %s: %w", hash, err)
	}
	return &block, nil
}

// GetAccount returns the latest stored snapshot of an account, nil when
// unknown.
func (s *Store) GetAccount(ctx context.Context, id types.AccountID) (*storage.StoredAccount, error) {
	var account storage.StoredAccount
	err := meddler.QueryRow(s.db, &account, `
		SELECT account_id, block_hash, block_level, manager, balance, spendable,
		       delegate_setable, delegate_value, counter, script_code, script_storage
		FROM accounts WHERE account_id = ?`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s: %w", id, err)
	}
	return &account, nil
}

// CountBlocks returns the number of stored blocks.
func (s *Store) CountBlocks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM blocks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return count, nil
}

// blockRow is the database shape of one block.
type blockRow struct {
	Hash                  types.BlockHash  `meddler:"hash,hash"`
	Level                 int64            `meddler:"level"`
	Predecessor           types.BlockHash  `meddler:"predecessor,hash"`
	Timestamp             time.Time        `meddler:"timestamp,utctime"`
	Protocol              string           `meddler:"protocol"`
	ChainID               string           `meddler:"chain_id"`
	OperationsHash        string           `meddler:"operations_hash"`
	Fitness               string           `meddler:"fitness"`
	Context               string           `meddler:"context"`
	Signature             string           `meddler:"signature"`
	ValidationPass        int              `meddler:"validation_pass"`
	Priority              int              `meddler:"priority"`
	Baker                 string           `meddler:"baker"`
	ConsumedGas           *string          `meddler:"consumed_gas"`
	Cycle                 *int64           `meddler:"cycle"`
	CyclePosition         *int64           `meddler:"cycle_position"`
	VotingPeriod          *int64           `meddler:"voting_period"`
	VotingPeriodPosition  *int64           `meddler:"voting_period_position"`
	PeriodKind            *string          `meddler:"period_kind"`
	CurrentExpectedQuorum *int             `meddler:"current_expected_quorum"`
	ActiveProposal        *string          `meddler:"active_proposal"`
	Quorum                *int             `meddler:"quorum"`
	Invalidated           bool             `meddler:"invalidated"`
}

func newBlockRow(block types.Block) *blockRow {
	data := block.Data

	row := &blockRow{
		Hash:                  data.Hash,
		Level:                 data.Header.Level,
		Predecessor:           data.Header.Predecessor,
		Timestamp:             data.Header.Timestamp,
		Protocol:              data.Protocol,
		ChainID:               data.ChainID,
		OperationsHash:        data.Header.OperationsHash,
		Fitness:               strings.Join(data.Header.Fitness, ","),
		Context:               data.Header.Context,
		Signature:             data.Header.Signature,
		ValidationPass:        data.Header.ValidationPass,
		Priority:              data.Header.Priority,
		Baker:                 string(data.Metadata.Baker),
		ConsumedGas:           data.Metadata.ConsumedGas,
		Cycle:                 data.Metadata.Cycle,
		CyclePosition:         data.Metadata.CyclePosition,
		VotingPeriod:          data.Metadata.VotingPeriod,
		VotingPeriodPosition:  data.Metadata.VotingPeriodPosition,
		PeriodKind:            data.Metadata.PeriodKind,
		CurrentExpectedQuorum: data.Metadata.CurrentExpectedQuorum,
		Quorum:                block.Votes.Quorum,
	}

	if proposal := block.Votes.ActiveProposal; proposal != nil {
		value := string(*proposal)
		row.ActiveProposal = &value
	} else if proposal := data.Metadata.ActiveProposal; proposal != nil {
		value := string(*proposal)
		row.ActiveProposal = &value
	}

	return row
}

// operationGroupRow is the database shape of one operation group.
type operationGroupRow struct {
	Hash       string          `meddler:"hash"`
	BlockHash  types.BlockHash `meddler:"block_hash,hash"`
	BlockLevel int64           `meddler:"block_level"`
	Protocol   string          `meddler:"protocol"`
	ChainID    string          `meddler:"chain_id"`
	Branch     types.BlockHash `meddler:"branch,hash"`
	Signature  *string         `meddler:"signature"`
}

func newOperationGroupRow(data types.BlockData, group types.OperationsGroup) *operationGroupRow {
	return &operationGroupRow{
		Hash:       string(group.Hash),
		BlockHash:  data.Hash,
		BlockLevel: data.Header.Level,
		Protocol:   group.Protocol,
		ChainID:    group.ChainID,
		Branch:     group.Branch,
		Signature:  group.Signature,
	}
}

// operationRow is the database shape of one operation.
type operationRow struct {
	ID               int64            `meddler:"id,pk"`
	GroupHash        string           `meddler:"group_hash"`
	BlockHash        types.BlockHash  `meddler:"block_hash,hash"`
	BlockLevel       int64            `meddler:"block_level"`
	Kind             string           `meddler:"kind"`
	Source           *string          `meddler:"source"`
	Destination      *string          `meddler:"destination"`
	Delegate         *string          `meddler:"delegate"`
	Amount           *decimal.Decimal `meddler:"amount,decimal"`
	Fee              *decimal.Decimal `meddler:"fee,decimal"`
	Balance          *decimal.Decimal `meddler:"balance,decimal"`
	Counter          *int64           `meddler:"counter"`
	GasLimit         *int64           `meddler:"gas_limit"`
	StorageLimit     *int64           `meddler:"storage_limit"`
	PublicKey        *string          `meddler:"public_key"`
	Pkh              *string          `meddler:"pkh"`
	Secret           *string          `meddler:"secret"`
	Ballot           *string          `meddler:"ballot"`
	Proposal         *string          `meddler:"proposal"`
	Period           *int64           `meddler:"period"`
	Nonce            *string          `meddler:"nonce"`
	ManagerPubkey    *string          `meddler:"manager_pubkey"`
	Spendable        *bool            `meddler:"spendable"`
	Delegatable      *bool            `meddler:"delegatable"`
	Parameters       *string          `meddler:"parameters"`
	ScriptCode       *string          `meddler:"script_code"`
	ScriptStorage    *string          `meddler:"script_storage"`
	EndorsementLevel *int64           `meddler:"endorsement_level"`
	Slots            *string          `meddler:"slots"`
}

func newOperationRow(data types.BlockData, group types.OperationsGroup, op types.Operation) *operationRow {
	row := &operationRow{
		GroupHash:        string(group.Hash),
		BlockHash:        data.Hash,
		BlockLevel:       data.Header.Level,
		Kind:             string(op.Kind),
		Source:           accountIDString(op.Source),
		Destination:      accountIDString(op.Destination),
		Delegate:         accountIDString(op.Delegate),
		Amount:           op.Amount,
		Fee:              op.Fee,
		Balance:          op.Balance,
		Counter:          op.Counter,
		GasLimit:         op.GasLimit,
		StorageLimit:     op.StorageLimit,
		PublicKey:        op.PublicKey,
		Pkh:              accountIDString(op.Pkh),
		Secret:           op.Secret,
		Ballot:           op.Ballot,
		Period:           op.Period,
		Nonce:            op.Nonce,
		ManagerPubkey:    op.ManagerPubkey,
		Spendable:        op.Spendable,
		Delegatable:      op.Delegatable,
		EndorsementLevel: op.Level,
	}

	if op.Proposal != nil {
		value := string(*op.Proposal)
		row.Proposal = &value
	}
	if op.Parameters != nil {
		row.Parameters = michelsonText(op.Parameters.Value)
	}
	if op.Script != nil {
		row.ScriptCode = michelsonText(op.Script.Code)
		row.ScriptStorage = michelsonText(op.Script.Storage)
	}
	if len(op.Slots) > 0 {
		if encoded, err := json.Marshal(op.Slots); err == nil {
			value := string(encoded)
			row.Slots = &value
		}
	}

	return row
}

// accountRow is the database shape of one account snapshot.
type accountRow struct {
	AccountID       string           `meddler:"account_id"`
	BlockHash       types.BlockHash  `meddler:"block_hash,hash"`
	BlockLevel      int64            `meddler:"block_level"`
	Manager         string           `meddler:"manager"`
	Balance         decimal.Decimal  `meddler:"balance,decimal"`
	Spendable       bool             `meddler:"spendable"`
	DelegateSetable bool             `meddler:"delegate_setable"`
	DelegateValue   *string          `meddler:"delegate_value"`
	Counter         int64            `meddler:"counter"`
	ScriptCode      *string          `meddler:"script_code"`
	ScriptStorage   *string          `meddler:"script_storage"`
}

func newAccountRow(id types.AccountID, account types.Account) *accountRow {
	row := &accountRow{
		AccountID:       string(id),
		BlockHash:       account.BlockID,
		BlockLevel:      account.BlockLevel,
		Manager:         string(account.Manager),
		Balance:         account.Balance,
		Spendable:       account.Spendable,
		DelegateSetable: account.DelegateSetable,
		DelegateValue:   accountIDString(account.DelegateValue),
		Counter:         account.Counter,
	}

	if account.Script != nil {
		row.ScriptCode = michelsonText(account.Script.Code)
		row.ScriptStorage = michelsonText(account.Script.Storage)
	}

	return row
}

func accountIDString(id *types.AccountID) *string {
	if id == nil {
		return nil
	}
	value := string(*id)
	return &value
}

// michelsonText extracts the textual form of a transformed Michelson field.
// Transformed fields are JSON strings; anything else is stored verbatim.
func michelsonText(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &text
	}

	value := string(raw)
	return &value
}
