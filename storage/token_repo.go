package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/radiantplatform/oauth-core/token"
	"github.com/radiantplatform/oauth-core/token/refresh"
)

// AccessTokenRepo is the gorm-backed access token record store.
type AccessTokenRepo struct {
	db *gorm.DB
}

func NewAccessTokenRepo(db *gorm.DB) *AccessTokenRepo {
	return &AccessTokenRepo{db: db}
}

func (r *AccessTokenRepo) Create(ctx context.Context, t *token.AccessToken) error {
	err := r.db.WithContext(ctx).Create(accessTokenModelFrom(t)).Error
	return errors.Wrap(err, "[AccessTokenRepo.Create] Create")
}

func (r *AccessTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*token.AccessToken, error) {
	var m AccessTokenModel
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, token.ErrAccessTokenNotFound
		}
		return nil, errors.Wrap(err, "[AccessTokenRepo.GetByHash] First")
	}
	return m.toDomain(), nil
}

func (r *AccessTokenRepo) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&AccessTokenModel{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]any{
			"revoked":        true,
			"revoked_reason": reason,
			"revoked_at":     at,
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "[AccessTokenRepo.Revoke] Updates")
	}
	return result.RowsAffected > 0, nil
}

// DeleteExpired removes access token records past their expiry. Intended to
// run on a sweep.
func (r *AccessTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&AccessTokenModel{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "[AccessTokenRepo.DeleteExpired] Delete")
	}
	return result.RowsAffected, nil
}

// RefreshTokenRepo is the gorm-backed refresh token store.
type RefreshTokenRepo struct {
	db *gorm.DB
}

func NewRefreshTokenRepo(db *gorm.DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

func (r *RefreshTokenRepo) Create(ctx context.Context, t *refresh.Token) error {
	err := r.db.WithContext(ctx).Create(refreshTokenModelFrom(t)).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "[RefreshTokenRepo.Create] Create")
}

func (r *RefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*refresh.Token, error) {
	var m RefreshTokenModel
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, refresh.ErrNotFound
		}
		return nil, errors.Wrap(err, "[RefreshTokenRepo.GetByHash] First")
	}
	return m.toDomain(), nil
}

// Revoke is the conditional write rotation and reuse containment depend on:
// of two concurrent revocations exactly one sees RowsAffected=1.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]any{
			"revoked":        true,
			"revoked_reason": reason,
			"revoked_at":     at,
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "[RefreshTokenRepo.Revoke] Updates")
	}
	return result.RowsAffected > 0, nil
}

// Descendants walks previous_token_id links forward from id. Lineages are
// short (one live token plus revoked ancestors), so a query per hop is fine.
func (r *RefreshTokenRepo) Descendants(ctx context.Context, id string) ([]*refresh.Token, error) {
	var out []*refresh.Token
	current := id
	for {
		var m RefreshTokenModel
		err := r.db.WithContext(ctx).Where("previous_token_id = ?", current).First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return out, nil
			}
			return nil, errors.Wrap(err, "[RefreshTokenRepo.Descendants] First")
		}
		out = append(out, m.toDomain())
		current = m.ID
	}
}

// DeleteExpired removes refresh tokens past their expiry. Intended to run on
// a sweep.
func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&RefreshTokenModel{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "[RefreshTokenRepo.DeleteExpired] Delete")
	}
	return result.RowsAffected, nil
}
