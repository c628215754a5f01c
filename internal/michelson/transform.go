package michelson

import (
	"encoding/json"
	"strings"

	"github.com/goran-ethernal/TezosIndexor/internal/common"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// UnparsablePrefix marks a field whose embedded Michelson could not be
// parsed. One malformed script never aborts a page; the field is replaced
// with the sentinel and the failure is logged.
const UnparsablePrefix = "Unparsable code: "

// Transformer rewrites the Michelson payloads embedded in blocks and
// accounts from JSON to textual form. Transformation is applied per field
// at the payloads' known positions: operation script, storage and
// parameters, and account script and storage.
type Transformer struct {
	log *logger.Logger
}

// NewTransformer creates a Transformer.
func NewTransformer(log *logger.Logger) *Transformer {
	return &Transformer{log: log.WithComponent(common.ComponentMichelson)}
}

// expression rewrites one embedded field. Already-textual input (a plain
// JSON string, including the sentinel produced by an earlier pass) is
// returned unchanged, which makes the transformation idempotent.
func (t *Transformer) expression(raw json.RawMessage, render func(Node) string) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}

	var already string
	if err := json.Unmarshal(raw, &already); err == nil {
		return raw
	}

	node, err := Parse(raw)
	if err != nil {
		t.log.Errorw("unparsable michelson expression", "error", err)
		michelsonParseFailures.Inc()
		return textual(UnparsablePrefix + strings.TrimSpace(string(raw)))
	}

	return textual(render(node))
}

// Instruction rewrites a storage or parameters expression.
func (t *Transformer) Instruction(raw json.RawMessage) json.RawMessage {
	return t.expression(raw, Render)
}

// Schema rewrites a full script code triple.
func (t *Transformer) Schema(raw json.RawMessage) json.RawMessage {
	return t.expression(raw, RenderSchema)
}

// TransformBlock returns a copy of the block with every operation's script,
// storage and parameters rewritten to textual Michelson.
func (t *Transformer) TransformBlock(block types.Block) types.Block {
	groups := make([]types.OperationsGroup, len(block.Operations))
	for i, group := range block.Operations {
		contents := make([]types.Operation, len(group.Contents))
		for j, op := range group.Contents {
			contents[j] = t.transformOperation(op)
		}
		group.Contents = contents
		groups[i] = group
	}
	block.Operations = groups
	return block
}

// TransformAccount returns a copy of the account with its script and storage
// rewritten to textual Michelson.
func (t *Transformer) TransformAccount(account types.Account) types.Account {
	if account.Script != nil {
		script := *account.Script
		script.Code = t.Schema(script.Code)
		script.Storage = t.Instruction(script.Storage)
		account.Script = &script
	}
	return account
}

func (t *Transformer) transformOperation(op types.Operation) types.Operation {
	if op.Script != nil {
		script := *op.Script
		script.Code = t.Schema(script.Code)
		script.Storage = t.Instruction(script.Storage)
		op.Script = &script
	}
	if op.Parameters != nil {
		params := *op.Parameters
		params.Value = t.Instruction(params.Value)
		op.Parameters = &params
	}
	return op
}

func textual(s string) json.RawMessage {
	quoted, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return quoted
}
