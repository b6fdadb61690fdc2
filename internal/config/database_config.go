package config

import "fmt"

type DatabaseConfig interface {
	GetDatabaseDSN() string
}

type Database struct{}

var _ DatabaseConfig = Database{}

// GetDatabaseDSN returns the Postgres DSN, preferring DATABASE_URL over the
// individual POSTGRES_* variables.
func (Database) GetDatabaseDSN() string {
	if dsn := GetEnv("DATABASE_URL", ""); dsn != "" {
		return dsn
	}

	host := GetEnv("POSTGRES_HOST", "localhost")
	port := GetEnv("POSTGRES_PORT", "5432")
	user := GetEnv("POSTGRES_USER", "postgres")
	pass := GetEnv("POSTGRES_PASSWORD", "postgres")
	name := GetEnv("POSTGRES_DB", "oauth")
	ssl := GetEnv("POSTGRES_SSLMODE", "disable")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, pass, name, ssl,
	)
}
