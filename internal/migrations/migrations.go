package migrations

import (
	_ "embed"

	"github.com/goran-ethernal/TezosIndexor/internal/db"
)

//go:embed 001_store.sql
var mig001 string

func RunMigrations(dbPath string) error {
	migrations := []db.Migration{
		{
			ID:  "001_store.sql",
			SQL: mig001,
		},
	}

	return db.RunMigrations(dbPath, migrations)
}
