package storage

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/radiantplatform/oauth-core/clients"
)

// ClientRepo is the gorm-backed client registry.
type ClientRepo struct {
	db *gorm.DB
}

func NewClientRepo(db *gorm.DB) *ClientRepo {
	return &ClientRepo{db: db}
}

func (r *ClientRepo) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	var m ClientModel
	err := r.db.WithContext(ctx).Where("id = ?", clientID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, clients.ErrNotFound
		}
		return nil, errors.Wrap(err, "[ClientRepo.Get] First")
	}
	return m.toDomain(), nil
}

// Save inserts or replaces a client registration. Registration workflows live
// outside the core; this exists for seeding and tests.
func (r *ClientRepo) Save(ctx context.Context, client *clients.Client) error {
	err := r.db.WithContext(ctx).Save(clientModelFrom(client)).Error
	return errors.Wrap(err, "[ClientRepo.Save] Save")
}
