// Package storage is the relational persistence layer. Every conditional
// state transition (code redemption, token revocation, key deactivation) is a
// guarded UPDATE whose RowsAffected decides the outcome, so correctness does
// not depend on row locks taken by the caller.
package storage

import (
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to Postgres and returns the gorm handle.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[storage.Open] gorm.Open")
	}
	return db, nil
}

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&ClientModel{},
		&UserModel{},
		&CodeModel{},
		&ConsentModel{},
		&AccessTokenModel{},
		&RefreshTokenModel{},
		&SigningKeyModel{},
		&SecretModel{},
	)
	return errors.Wrap(err, "[storage.Migrate] AutoMigrate")
}
