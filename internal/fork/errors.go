package fork

import (
	"fmt"

	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

// InconsistencyError is returned when the store's latest block and the
// node's block at the matching offset disagree on level. Continuing would
// corrupt the store, so the sync cycle aborts before writing anything.
type InconsistencyError struct {
	StoredLevel int64
	NodeLevel   int64
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("mismatched levels between store (%d) and node (%d)", e.StoredLevel, e.NodeLevel)
}

// ImpossibleStateError marks a block that is absent locally yet flagged
// invalidated. The follower logs it and stops cleanly.
type ImpossibleStateError struct {
	Hash types.BlockHash
}

func (e *ImpossibleStateError) Error() string {
	return fmt.Sprintf("block %s is absent from the store yet marked invalidated", e.Hash)
}
