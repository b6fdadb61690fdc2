package repofakes

import (
	"context"

	"github.com/radiantplatform/oauth-core/token"

	authcodefakes "github.com/radiantplatform/oauth-core/authcode/repofakes"
	refreshfakes "github.com/radiantplatform/oauth-core/token/refresh/repofakes"
)

// FakeStore implements token.Atomic over in-memory fakes. InTx is a
// pass-through: the fakes have no rollback, which is acceptable for tests
// exercising the happy and conditional-failure paths.
type FakeStore struct {
	Codes         *authcodefakes.FakeCodeRepo
	Consents      *authcodefakes.FakeConsentRepo
	AccessTokens  *FakeAccessTokenRepo
	RefreshTokens *refreshfakes.FakeRefreshTokenRepo
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		Codes:         authcodefakes.NewFakeCodeRepo(),
		Consents:      authcodefakes.NewFakeConsentRepo(),
		AccessTokens:  NewFakeAccessTokenRepo(),
		RefreshTokens: refreshfakes.NewFakeRefreshTokenRepo(),
	}
}

func (s *FakeStore) InTx(_ context.Context, fn func(tx token.Stores) error) error {
	return fn(s.Stores())
}

func (s *FakeStore) Stores() token.Stores {
	return token.Stores{
		Codes:         s.Codes,
		AccessTokens:  s.AccessTokens,
		RefreshTokens: s.RefreshTokens,
	}
}
