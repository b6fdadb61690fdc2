package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/radiantplatform/oauth-core/token"
)

// Store implements token.Atomic over gorm. InTx rebuilds the repositories on
// the transaction handle so every statement inside fn joins the same
// transaction. Errors pass through untouched: protocol errors must reach the
// endpoint unmodified for mapping.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ token.Atomic = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(tx token.Stores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(storesFor(tx))
	})
}

func (s *Store) Stores() token.Stores {
	return storesFor(s.db)
}

func storesFor(db *gorm.DB) token.Stores {
	return token.Stores{
		Codes:         NewCodeRepo(db),
		AccessTokens:  NewAccessTokenRepo(db),
		RefreshTokens: NewRefreshTokenRepo(db),
	}
}
