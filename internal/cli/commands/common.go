package commands

import (
	"fmt"

	"github.com/hanzoai/dbosgo/internal/config"
)

// systemDatabaseDSN builds the Postgres DSN for the system database (SDB)
// from the loaded configuration (§6 database.*).
func systemDatabaseDSN(cfg *config.Config) string {
	return dsn(cfg, cfg.Database.SystemDatabase)
}

// userDatabaseDSN builds the DSN for the application's own database (UDB).
func userDatabaseDSN(cfg *config.Config) string {
	return dsn(cfg, cfg.Database.UserDatabase)
}

func dsn(cfg *config.Config, dbName string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Hostname, cfg.Database.Port, cfg.Database.Username, cfg.Database.Password, dbName,
	)
}
