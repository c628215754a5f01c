// Package types contains the domain model shared by the fetching, fork
// handling and storage layers: chain identifiers, block and operation
// shapes, voting state, accounts and the block action sum emitted towards
// the persistence sink.
package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BlockHash identifies a block on the chain.
type BlockHash string

// HeadReference is the distinguished hash the node resolves to the current
// tip of the canonical chain.
const HeadReference BlockHash = "head"

// AccountID identifies an implicit or originated account (tz1/KT1 address).
type AccountID string

// ProtocolID identifies a protocol amendment proposal.
type ProtocolID string

// OperationGroupHash identifies a signed operation group.
type OperationGroupHash string

// BlockHeader carries the header-level fields of a block as returned by the
// node under blocks/{hash}/header.
type BlockHeader struct {
	Level          int64      `json:"level"`
	Proto          int        `json:"proto"`
	Predecessor    BlockHash  `json:"predecessor"`
	Timestamp      time.Time  `json:"timestamp"`
	ValidationPass int        `json:"validation_pass"`
	OperationsHash string     `json:"operations_hash"`
	Fitness        []string   `json:"fitness"`
	Context        string     `json:"context"`
	Priority       int        `json:"priority"`
	Signature      string     `json:"signature"`
	NonceHash      *string    `json:"nonce_hash"`
	ExpectedCommitment *bool  `json:"expected_commitment"`
}

// BlockMetadata carries the cycle and voting position fields from the
// block's metadata section.
type BlockMetadata struct {
	Baker                 AccountID   `json:"baker"`
	ConsumedGas           *string     `json:"consumed_gas"`
	Cycle                 *int64      `json:"cycle"`
	CyclePosition         *int64      `json:"cycle_position"`
	VotingPeriod          *int64      `json:"voting_period"`
	VotingPeriodPosition  *int64      `json:"voting_period_position"`
	PeriodKind            *string     `json:"period_kind"`
	CurrentExpectedQuorum *int        `json:"current_expected_quorum"`
	ActiveProposal        *ProtocolID `json:"active_proposal"`
}

// BlockData is the decoded, immutable representation of one block response.
type BlockData struct {
	Protocol string        `json:"protocol"`
	ChainID  string        `json:"chain_id"`
	Hash     BlockHash     `json:"hash"`
	Header   BlockHeader   `json:"header"`
	Metadata BlockMetadata `json:"metadata"`
}

// Level returns the block's chain level.
func (b *BlockData) Level() int64 {
	return b.Header.Level
}

// IsGenesis reports whether the block is the level-0 block. Genesis exposes
// no operations or accounts sub-resources on the node, so every consumer
// gates those calls on this predicate instead of relying on the node's 404.
func (b *BlockData) IsGenesis() bool {
	return b.Header.Level == 0
}

// CurrentVotes is the voting state observed alongside a block. Both fields
// legitimately yield absence; genesis defaults to neither being set.
type CurrentVotes struct {
	Quorum         *int        `json:"quorum"`
	ActiveProposal *ProtocolID `json:"active_proposal"`
}

// EmptyVotes is the votes tuple substituted for genesis.
func EmptyVotes() CurrentVotes {
	return CurrentVotes{}
}

// OperationKind enumerates the closed set of operation kinds a block can
// contain.
type OperationKind string

const (
	KindTransaction              OperationKind = "transaction"
	KindOrigination              OperationKind = "origination"
	KindDelegation               OperationKind = "delegation"
	KindReveal                   OperationKind = "reveal"
	KindEndorsement              OperationKind = "endorsement"
	KindBallot                   OperationKind = "ballot"
	KindProposals                OperationKind = "proposals"
	KindSeedNonceRevelation      OperationKind = "seed_nonce_revelation"
	KindActivateAccount          OperationKind = "activate_account"
	KindDoubleBakingEvidence     OperationKind = "double_baking_evidence"
	KindDoubleEndorsementEvidence OperationKind = "double_endorsement_evidence"
)

// ScriptedContract is the script attached to an origination or fetched with
// an account: Michelson code plus its current storage, received as JSON and
// rewritten to textual Michelson on ingestion.
type ScriptedContract struct {
	Code    json.RawMessage `json:"code,omitempty"`
	Storage json.RawMessage `json:"storage,omitempty"`
}

// TransactionParameters is the optional invocation payload of a transaction.
type TransactionParameters struct {
	Entrypoint string          `json:"entrypoint,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// Operation is a single operation inside a group. Fields beyond Kind are
// kind-dependent and left unset for kinds that do not carry them.
type Operation struct {
	Kind         OperationKind          `json:"kind"`
	Source       *AccountID             `json:"source,omitempty"`
	Fee          *decimal.Decimal       `json:"fee,omitempty"`
	Counter      *int64                 `json:"counter,omitempty,string"`
	GasLimit     *int64                 `json:"gas_limit,omitempty,string"`
	StorageLimit *int64                 `json:"storage_limit,omitempty,string"`
	Amount       *decimal.Decimal       `json:"amount,omitempty"`
	Destination  *AccountID             `json:"destination,omitempty"`
	Parameters   *TransactionParameters `json:"parameters,omitempty"`
	ManagerPubkey *string               `json:"managerPubkey,omitempty"`
	Balance      *decimal.Decimal       `json:"balance,omitempty"`
	Spendable    *bool                  `json:"spendable,omitempty"`
	Delegatable  *bool                  `json:"delegatable,omitempty"`
	Delegate     *AccountID             `json:"delegate,omitempty"`
	Script       *ScriptedContract      `json:"script,omitempty"`
	PublicKey    *string                `json:"public_key,omitempty"`
	Level        *int64                 `json:"level,omitempty"`
	Slots        []int                  `json:"slots,omitempty"`
	Nonce        *string                `json:"nonce,omitempty"`
	Pkh          *AccountID             `json:"pkh,omitempty"`
	Secret       *string                `json:"secret,omitempty"`
	Proposal     *ProtocolID            `json:"proposal,omitempty"`
	Proposals    []ProtocolID           `json:"proposals,omitempty"`
	Ballot       *string                `json:"ballot,omitempty"`
	Period       *int64                 `json:"period,omitempty"`
}

// OperationsGroup is a batch of operations sharing a branch and signature,
// the unit of inclusion in a block.
type OperationsGroup struct {
	Protocol  string             `json:"protocol"`
	ChainID   string             `json:"chain_id"`
	Hash      OperationGroupHash `json:"hash"`
	Branch    BlockHash          `json:"branch"`
	Signature *string            `json:"signature"`
	Contents  []Operation        `json:"contents"`
}

// Block is the fully assembled unit emitted by the sync engine: header data
// joined with the block's operation groups and the voting state observed at
// that block.
type Block struct {
	Data       BlockData
	Operations []OperationsGroup
	Votes      CurrentVotes
}

// Account is a contract snapshot fetched under context/contracts/{id},
// tagged with the block that observed it. Script and Storage hold textual
// Michelson after ingestion.
type Account struct {
	Manager         AccountID       `json:"manager"`
	Balance         decimal.Decimal `json:"balance"`
	Spendable       bool            `json:"spendable"`
	DelegateSetable bool            `json:"delegate_setable"`
	DelegateValue   *AccountID      `json:"delegate_value"`
	Counter         int64           `json:"counter,string"`
	Script          *ScriptedContract `json:"script,omitempty"`
	BlockID         BlockHash       `json:"-"`
	BlockLevel      int64           `json:"-"`
}

// ManagerKey is the manager_key sub-resource of a contract.
type ManagerKey struct {
	Manager AccountID `json:"manager"`
	Key     *string   `json:"key,omitempty"`
}

// BlockReference pairs a hash with its level, used to tag snapshots and to
// anchor offset-addressed fetches.
type BlockReference struct {
	Hash  BlockHash
	Level int64
}

// BakingRights is one priority slot for a delegate at a level.
type BakingRights struct {
	Level         int64     `json:"level"`
	Delegate      AccountID `json:"delegate"`
	Priority      int       `json:"priority"`
	EstimatedTime time.Time `json:"estimated_time"`
}

// EndorsingRights is the endorsement slot set of a delegate at a level.
type EndorsingRights struct {
	Level         int64     `json:"level"`
	Delegate      AccountID `json:"delegate"`
	Slots         []int     `json:"slots"`
	EstimatedTime time.Time `json:"estimated_time"`
}
