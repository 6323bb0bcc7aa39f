package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
)

// StoredCredential is one encrypted exchange API key pair as it sits in
// the database. The key and secret columns hold fernet tokens, never
// plaintext.
type StoredCredential struct {
	Location        string
	EncryptedKey    string
	EncryptedSecret string
}

// CredentialRepository persists encrypted exchange API credentials.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert stores or replaces the credentials for a location.
func (r *CredentialRepository) Upsert(cred StoredCredential) error {
	_, err := r.db.Exec(`
		INSERT INTO exchange_credential (location, api_key, api_secret)
		VALUES (?, ?, ?)
		ON CONFLICT(location) DO UPDATE SET api_key = excluded.api_key, api_secret = excluded.api_secret
	`, cred.Location, cred.EncryptedKey, cred.EncryptedSecret)
	if err != nil {
		return fmt.Errorf("failed to store credentials for %s: %w", cred.Location, err)
	}
	return nil
}

// Get returns the stored credentials for a location.
func (r *CredentialRepository) Get(location string) (StoredCredential, error) {
	var cred StoredCredential
	err := r.db.QueryRow(`
		SELECT location, api_key, api_secret
		FROM exchange_credential
		WHERE location = ?
	`, location).Scan(&cred.Location, &cred.EncryptedKey, &cred.EncryptedSecret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredCredential{}, apperrors.ErrCredentialNotFound
		}
		return StoredCredential{}, fmt.Errorf("failed to query credentials: %w", err)
	}
	return cred, nil
}

// ListLocations returns the locations with stored credentials, sorted.
func (r *CredentialRepository) ListLocations() ([]string, error) {
	rows, err := r.db.Query(`SELECT location FROM exchange_credential ORDER BY location ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query credential locations: %w", err)
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var location string
		if err := rows.Scan(&location); err != nil {
			return nil, fmt.Errorf("failed to scan credential location: %w", err)
		}
		locations = append(locations, location)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credential locations: %w", err)
	}

	return locations, nil
}

// Delete removes the credentials for a location.
func (r *CredentialRepository) Delete(location string) error {
	result, err := r.db.Exec(`DELETE FROM exchange_credential WHERE location = ?`, location)
	if err != nil {
		return fmt.Errorf("failed to delete credentials for %s: %w", location, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted credentials: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrCredentialNotFound
	}
	return nil
}
