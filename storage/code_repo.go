package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/radiantplatform/oauth-core/authcode"
)

// CodeRepo is the gorm-backed authorization code store.
type CodeRepo struct {
	db *gorm.DB
}

func NewCodeRepo(db *gorm.DB) *CodeRepo {
	return &CodeRepo{db: db}
}

func (r *CodeRepo) Create(ctx context.Context, code *authcode.Code) error {
	err := r.db.WithContext(ctx).Create(codeModelFrom(code)).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "[CodeRepo.Create] Create")
}

// Redeem flips used=false to used=true with a guarded UPDATE. RowsAffected=0
// means the code is unknown, owned by another client, or already redeemed;
// all three collapse into ErrCodeNotFound.
func (r *CodeRepo) Redeem(ctx context.Context, codeHash, clientID string, at time.Time) (*authcode.Code, error) {
	result := r.db.WithContext(ctx).
		Model(&CodeModel{}).
		Where("code_hash = ? AND client_id = ? AND used = ?", codeHash, clientID, false).
		Update("used", true)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "[CodeRepo.Redeem] Update")
	}
	if result.RowsAffected == 0 {
		return nil, authcode.ErrCodeNotFound
	}

	var m CodeModel
	if err := r.db.WithContext(ctx).Where("code_hash = ?", codeHash).First(&m).Error; err != nil {
		return nil, errors.Wrap(err, "[CodeRepo.Redeem] First")
	}
	return m.toDomain(), nil
}

func (r *CodeRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&CodeModel{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "[CodeRepo.DeleteExpired] Delete")
	}
	return result.RowsAffected, nil
}

// ConsentRepo is the gorm-backed user_authorizations store.
type ConsentRepo struct {
	db *gorm.DB
}

func NewConsentRepo(db *gorm.DB) *ConsentRepo {
	return &ConsentRepo{db: db}
}

// Upsert replaces the consent row for the (user, client, tenant) triple. The
// scope set is overwritten, not merged.
func (r *ConsentRepo) Upsert(ctx context.Context, consent *authcode.Consent) error {
	m := &ConsentModel{
		UserID:    consent.UserID,
		ClientID:  consent.ClientID,
		TenantID:  consent.TenantID,
		Scopes:    joinScopes(consent.Scopes),
		Active:    consent.Active,
		GrantedAt: consent.GrantedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "client_id"}, {Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"scopes", "active", "granted_at"}),
		}).
		Create(m).Error
	return errors.Wrap(err, "[ConsentRepo.Upsert] Create")
}

func (r *ConsentRepo) Get(ctx context.Context, userID, clientID, tenantID string) (*authcode.Consent, error) {
	var m ConsentModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND client_id = ? AND tenant_id = ?", userID, clientID, tenantID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[ConsentRepo.Get] First")
	}
	return m.toDomain(), nil
}
