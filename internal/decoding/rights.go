package decoding

import (
	"encoding/json"

	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// BakingRights decodes a helpers/baking_rights listing.
func BakingRights(command string, body []byte) ([]types.BakingRights, error) {
	var rights []types.BakingRights
	if err := json.Unmarshal(body, &rights); err != nil {
		return nil, decodeErr(command, err)
	}
	return rights, nil
}

// EndorsingRights decodes a helpers/endorsing_rights listing.
func EndorsingRights(command string, body []byte) ([]types.EndorsingRights, error) {
	var rights []types.EndorsingRights
	if err := json.Unmarshal(body, &rights); err != nil {
		return nil, decodeErr(command, err)
	}
	return rights, nil
}
