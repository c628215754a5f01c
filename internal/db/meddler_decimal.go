package db

import (
	"database/sql"
	"fmt"

	"github.com/russross/meddler"
	"github.com/shopspring/decimal"
)

func init() {
	// Register custom meddler converter for decimal.Decimal
	meddler.Register("decimal", DecimalMeddler{})
}

// DecimalMeddler stores decimal.Decimal amounts as exact decimal strings.
type DecimalMeddler struct{}

func (d DecimalMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	// Use sql.NullString to handle NULL values
	return new(sql.NullString), nil
}

func (d DecimalMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **decimal.Decimal:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		parsed, err := decimal.NewFromString(ns.String)
		if err != nil {
			return fmt.Errorf("invalid decimal column value %q: %w", ns.String, err)
		}
		*ptr = &parsed
		return nil
	case *decimal.Decimal:
		if !ns.Valid {
			*ptr = decimal.Zero
			return nil
		}
		parsed, err := decimal.NewFromString(ns.String)
		if err != nil {
			return fmt.Errorf("invalid decimal column value %q: %w", ns.String, err)
		}
		*ptr = parsed
		return nil
	default:
		return fmt.Errorf("expected *decimal.Decimal or **decimal.Decimal, got %T", fieldAddr)
	}
}

func (d DecimalMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	switch value := field.(type) {
	case *decimal.Decimal:
		if value == nil {
			return nil, nil
		}
		return value.String(), nil
	case decimal.Decimal:
		return value.String(), nil
	default:
		return nil, fmt.Errorf("expected decimal.Decimal, got %T", field)
	}
}
