package db

import (
	"database/sql"
	"fmt"

	"github.com/goran-ethernal/TezosIndexor/pkg/types"
	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for types.BlockHash
	meddler.Register("hash", HashMeddler{})
}

// HashMeddler handles conversion between types.BlockHash and its database
// string representation, including NULL columns mapped to pointer fields.
type HashMeddler struct{}

func (h HashMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	// Use sql.NullString to handle NULL values
	return new(sql.NullString), nil
}

func (h HashMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **types.BlockHash:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		hash := types.BlockHash(ns.String)
		*ptr = &hash
		return nil
	case *types.BlockHash:
		if !ns.Valid {
			*ptr = ""
			return nil
		}
		*ptr = types.BlockHash(ns.String)
		return nil
	default:
		return fmt.Errorf("expected *types.BlockHash or **types.BlockHash, got %T", fieldAddr)
	}
}

func (h HashMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	switch hash := field.(type) {
	case *types.BlockHash:
		if hash == nil {
			return nil, nil
		}
		return string(*hash), nil
	case types.BlockHash:
		return string(hash), nil
	default:
		return nil, fmt.Errorf("expected types.BlockHash, got %T", field)
	}
}
