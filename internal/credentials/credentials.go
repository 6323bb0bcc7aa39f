// Package credentials stores exchange API keys encrypted at rest.
//
// Plaintext keys exist only in memory while building connector
// transports; the database only ever sees fernet tokens.
package credentials

import (
	"fmt"

	"github.com/fernet/fernet-go"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/connector"
	"github.com/coinfolio/taxledger-backend/internal/repository"
)

// Vault encrypts and decrypts credential values with a fernet key.
type Vault struct {
	key  *fernet.Key
	repo *repository.CredentialRepository
}

// NewVault creates a vault from a base64-encoded fernet key.
func NewVault(encodedKey string, repo *repository.CredentialRepository) (*Vault, error) {
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidFernetKey, err)
	}
	return &Vault{key: key, repo: repo}, nil
}

// Store encrypts and persists the API key pair for a location.
func (v *Vault) Store(location, apiKey, apiSecret string) error {
	encKey, err := fernet.EncryptAndSign([]byte(apiKey), v.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt API key: %w", err)
	}
	encSecret, err := fernet.EncryptAndSign([]byte(apiSecret), v.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt API secret: %w", err)
	}

	return v.repo.Upsert(repository.StoredCredential{
		Location:        location,
		EncryptedKey:    string(encKey),
		EncryptedSecret: string(encSecret),
	})
}

// Load decrypts the stored API key pair for a location.
func (v *Vault) Load(location string) (connector.Credentials, error) {
	stored, err := v.repo.Get(location)
	if err != nil {
		return connector.Credentials{}, err
	}

	// TTL 0: fernet tokens here never expire, the key rotates instead.
	apiKey := fernet.VerifyAndDecrypt([]byte(stored.EncryptedKey), 0, []*fernet.Key{v.key})
	if apiKey == nil {
		return connector.Credentials{}, fmt.Errorf("%w: API key for %s", apperrors.ErrDecryptFailed, location)
	}
	apiSecret := fernet.VerifyAndDecrypt([]byte(stored.EncryptedSecret), 0, []*fernet.Key{v.key})
	if apiSecret == nil {
		return connector.Credentials{}, fmt.Errorf("%w: API secret for %s", apperrors.ErrDecryptFailed, location)
	}

	return connector.Credentials{
		APIKey:    string(apiKey),
		APISecret: string(apiSecret),
	}, nil
}

// Locations returns the locations with stored credentials.
func (v *Vault) Locations() ([]string, error) {
	return v.repo.ListLocations()
}

// Remove deletes the stored credentials for a location.
func (v *Vault) Remove(location string) error {
	return v.repo.Delete(location)
}
