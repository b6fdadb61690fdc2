package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/radiantplatform/oauth-core/token/keys"
)

// EncryptedSecretStore keeps private key material in the secrets table,
// sealed with AES-256-GCM under a key held outside the database. The nonce is
// prepended to each ciphertext.
type EncryptedSecretStore struct {
	db   *gorm.DB
	aead cipher.AEAD
}

// NewEncryptedSecretStore builds a store from a hex-encoded 32-byte cipher
// key.
func NewEncryptedSecretStore(db *gorm.DB, cipherKeyHex string) (*EncryptedSecretStore, error) {
	key, err := hex.DecodeString(cipherKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "[NewEncryptedSecretStore] hex.DecodeString")
	}
	if len(key) != 32 {
		return nil, errors.New("[NewEncryptedSecretStore] cipher key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "[NewEncryptedSecretStore] aes.NewCipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "[NewEncryptedSecretStore] cipher.NewGCM")
	}
	return &EncryptedSecretStore{db: db, aead: aead}, nil
}

func (s *EncryptedSecretStore) Put(ctx context.Context, ref, value string) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[EncryptedSecretStore.Put] rand.Read")
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(value), []byte(ref))

	err := s.db.WithContext(ctx).Save(&SecretModel{Ref: ref, Ciphertext: ciphertext}).Error
	return errors.Wrap(err, "[EncryptedSecretStore.Put] Save")
}

func (s *EncryptedSecretStore) Get(ctx context.Context, ref string) (string, error) {
	var m SecretModel
	err := s.db.WithContext(ctx).Where("ref = ?", ref).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", keys.ErrSecretNotFound
		}
		return "", errors.Wrap(err, "[EncryptedSecretStore.Get] First")
	}

	nonceSize := s.aead.NonceSize()
	if len(m.Ciphertext) < nonceSize {
		return "", errors.New("[EncryptedSecretStore.Get] ciphertext too short")
	}
	plaintext, err := s.aead.Open(nil, m.Ciphertext[:nonceSize], m.Ciphertext[nonceSize:], []byte(ref))
	if err != nil {
		return "", errors.Wrap(err, "[EncryptedSecretStore.Get] aead.Open")
	}
	return string(plaintext), nil
}

func (s *EncryptedSecretStore) Delete(ctx context.Context, ref string) error {
	err := s.db.WithContext(ctx).Where("ref = ?", ref).Delete(&SecretModel{}).Error
	return errors.Wrap(err, "[EncryptedSecretStore.Delete] Delete")
}
