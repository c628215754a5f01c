package decoding

import (
	"bytes"
	"encoding/json"

	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

var jsonNull = []byte("null")

// Quorum decodes a votes/current_quorum response. The node answers a bare
// integer, or null outside a voting period.
func Quorum(command string, body []byte) (*int, error) {
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), jsonNull) {
		return nil, nil
	}

	var quorum int
	if err := json.Unmarshal(body, &quorum); err != nil {
		return nil, decodeErr(command, err)
	}
	return &quorum, nil
}

// Proposal decodes a votes/current_proposal response: a quoted protocol
// hash, or null when no proposal is active.
func Proposal(command string, body []byte) (*types.ProtocolID, error) {
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), jsonNull) {
		return nil, nil
	}

	var proposal types.ProtocolID
	if err := json.Unmarshal(body, &proposal); err != nil {
		return nil, decodeErr(command, err)
	}
	return &proposal, nil
}
