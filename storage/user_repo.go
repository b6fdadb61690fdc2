package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/radiantplatform/oauth-core/users"
)

// UserRepo is the gorm-backed user directory.
type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*users.User, error) {
	var m UserModel
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, users.ErrNotFound
		}
		return nil, errors.Wrap(err, "[UserRepo.GetByID] First")
	}
	return m.toDomain(), nil
}

// Save inserts or replaces a user record. Exists for seeding and tests.
func (r *UserRepo) Save(ctx context.Context, user *users.User) error {
	m := &UserModel{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Picture:       user.Picture,
		TenantIDs:     strings.Join(user.TenantIDs, " "),
	}
	err := r.db.WithContext(ctx).Save(m).Error
	return errors.Wrap(err, "[UserRepo.Save] Save")
}
