package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/radiantplatform/oauth-core/token/keys"
)

// KeyRepo is the gorm-backed signing key metadata store.
type KeyRepo struct {
	db *gorm.DB
}

func NewKeyRepo(db *gorm.DB) *KeyRepo {
	return &KeyRepo{db: db}
}

func (r *KeyRepo) Create(ctx context.Context, key *keys.SigningKey) error {
	err := r.db.WithContext(ctx).Create(signingKeyModelFrom(key)).Error
	return errors.Wrap(err, "[KeyRepo.Create] Create")
}

// ActiveKey returns the tenant's active key, newest first so a raced rotation
// resolves to the most recently created key.
func (r *KeyRepo) ActiveKey(ctx context.Context, tenantID string) (*keys.SigningKey, error) {
	var m SigningKeyModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, keys.ErrNoActiveKey
		}
		return nil, errors.Wrap(err, "[KeyRepo.ActiveKey] First")
	}
	return m.toDomain(), nil
}

func (r *KeyRepo) DeactivateOthers(ctx context.Context, tenantID, keepID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&SigningKeyModel{}).
		Where("tenant_id = ? AND id <> ? AND active = ?", tenantID, keepID, true).
		Updates(map[string]any{
			"active":         false,
			"deactivated_at": at,
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "[KeyRepo.DeactivateOthers] Updates")
	}
	return result.RowsAffected, nil
}

func (r *KeyRepo) VerificationSet(ctx context.Context, tenantID string, cutoff time.Time) ([]*keys.SigningKey, error) {
	var models []SigningKeyModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND (active = ? OR deactivated_at > ?)", tenantID, true, cutoff).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "[KeyRepo.VerificationSet] Find")
	}
	out := make([]*keys.SigningKey, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}

func (r *KeyRepo) ExpiredRetired(ctx context.Context, before time.Time) ([]*keys.SigningKey, error) {
	var models []SigningKeyModel
	err := r.db.WithContext(ctx).
		Where("active = ? AND expires_at < ?", false, before).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "[KeyRepo.ExpiredRetired] Find")
	}
	out := make([]*keys.SigningKey, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}

func (r *KeyRepo) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&SigningKeyModel{}).Error
	return errors.Wrap(err, "[KeyRepo.Delete] Delete")
}
