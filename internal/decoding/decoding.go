// Package decoding turns sanitized node responses into domain values. Every
// decoder fails with a DecodeError carrying the command whose response did
// not match the expected schema; the enclosing batch fails fast on the first
// such error.
package decoding

import (
	"encoding/json"
	"fmt"

	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// DecodeError reports a response that did not match the expected schema.
type DecodeError struct {
	Command string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode response of %q: %v", e.Command, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(command string, err error) error {
	return &DecodeError{Command: command, Err: err}
}

// Block decodes a blocks/{hash} response.
func Block(command string, body []byte) (types.BlockData, error) {
	var data types.BlockData
	if err := json.Unmarshal(body, &data); err != nil {
		return types.BlockData{}, decodeErr(command, err)
	}
	if data.Hash == "" {
		return types.BlockData{}, decodeErr(command, fmt.Errorf("missing block hash"))
	}
	return data, nil
}

// Operations decodes a blocks/{hash}/operations response. The node nests the
// groups by validation pass; the indexer flattens them client-side.
func Operations(command string, body []byte) ([]types.OperationsGroup, error) {
	var nested [][]types.OperationsGroup
	if err := json.Unmarshal(body, &nested); err != nil {
		return nil, decodeErr(command, err)
	}

	flattened := make([]types.OperationsGroup, 0)
	for _, pass := range nested {
		flattened = append(flattened, pass...)
	}
	return flattened, nil
}

// AccountIDs decodes a blocks/{hash}/context/contracts response.
func AccountIDs(command string, body []byte) ([]types.AccountID, error) {
	var ids []types.AccountID
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, decodeErr(command, err)
	}
	return ids, nil
}

// Account decodes a blocks/{hash}/context/contracts/{id} response.
func Account(command string, body []byte) (types.Account, error) {
	var account types.Account
	if err := json.Unmarshal(body, &account); err != nil {
		return types.Account{}, decodeErr(command, err)
	}
	return account, nil
}

// ManagerKey decodes a contract's manager_key response.
func ManagerKey(command string, body []byte) (types.ManagerKey, error) {
	var key types.ManagerKey
	if err := json.Unmarshal(body, &key); err != nil {
		return types.ManagerKey{}, decodeErr(command, err)
	}
	return key, nil
}
