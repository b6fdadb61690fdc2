package token

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/radiantplatform/oauth-core/token/refresh"
)

// Revoke invalidates a presented token. Unknown and already-revoked tokens
// succeed silently per RFC 7009: the caller only learns that the token is no
// longer usable.
func (m *Manager) Revoke(ctx context.Context, rawToken, hint string) error {
	if rawToken == "" {
		return nil
	}

	if hint == HintRefreshToken {
		if done, err := m.revokeRefreshToken(ctx, rawToken); err != nil || done {
			return err
		}
		_, err := m.revokeAccessToken(ctx, rawToken)
		return err
	}

	if done, err := m.revokeAccessToken(ctx, rawToken); err != nil || done {
		return err
	}
	_, err := m.revokeRefreshToken(ctx, rawToken)
	return err
}

func (m *Manager) revokeAccessToken(ctx context.Context, rawToken string) (bool, error) {
	stores := m.store.Stores()
	record, err := stores.AccessTokens.GetByHash(ctx, refresh.Hash(rawToken))
	if err != nil {
		if errors.Is(err, ErrAccessTokenNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[revokeAccessToken] GetByHash")
	}
	revoked, err := stores.AccessTokens.Revoke(ctx, record.ID, refresh.ReasonRevoked, m.nowTime())
	if err != nil {
		return false, errors.Wrap(err, "[revokeAccessToken] Revoke")
	}
	if revoked {
		m.metrics.CountRevocation(ctx, HintAccessToken)
		log.Debug().Str("tokenPrefix", record.TokenPrefix).Msg("access token revoked")
	}
	return true, nil
}

func (m *Manager) revokeRefreshToken(ctx context.Context, rawToken string) (bool, error) {
	stores := m.store.Stores()
	rt, err := stores.RefreshTokens.GetByHash(ctx, refresh.Hash(rawToken))
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[revokeRefreshToken] GetByHash")
	}
	revoked, err := stores.RefreshTokens.Revoke(ctx, rt.ID, refresh.ReasonRevoked, m.nowTime())
	if err != nil {
		return false, errors.Wrap(err, "[revokeRefreshToken] Revoke")
	}
	if revoked {
		m.metrics.CountRevocation(ctx, HintRefreshToken)
		log.Debug().Str("tokenPrefix", rt.TokenPrefix).Msg("refresh token revoked")
	}
	return true, nil
}
