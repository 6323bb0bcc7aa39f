package credentials

import (
	"errors"
	"testing"

	"github.com/fernet/fernet-go"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/repository"
	"github.com/coinfolio/taxledger-backend/internal/testutil"
)

func newTestVault(t *testing.T) (*Vault, *repository.CredentialRepository) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	repo := repository.NewCredentialRepository(db)

	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatalf("Failed to generate fernet key: %v", err)
	}
	vault, err := NewVault(key.Encode(), repo)
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	return vault, repo
}

func TestVault_StoreAndLoad(t *testing.T) {
	vault, repo := newTestVault(t)

	if err := vault.Store("poloniex", "my-api-key", "my-api-secret"); err != nil {
		t.Fatalf("Failed to store credentials: %v", err)
	}

	creds, err := vault.Load("poloniex")
	if err != nil {
		t.Fatalf("Failed to load credentials: %v", err)
	}
	if creds.APIKey != "my-api-key" {
		t.Errorf("Expected API key my-api-key, got %s", creds.APIKey)
	}
	if creds.APISecret != "my-api-secret" {
		t.Errorf("Expected API secret my-api-secret, got %s", creds.APISecret)
	}

	// The database row must hold fernet tokens, not plaintext.
	stored, err := repo.Get("poloniex")
	if err != nil {
		t.Fatalf("Failed to read stored credentials: %v", err)
	}
	if stored.EncryptedKey == "my-api-key" || stored.EncryptedSecret == "my-api-secret" {
		t.Error("Expected credentials encrypted at rest, found plaintext")
	}
}

func TestVault_InvalidKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewCredentialRepository(db)

	_, err := NewVault("not-a-fernet-key", repo)
	if !errors.Is(err, apperrors.ErrInvalidFernetKey) {
		t.Errorf("Expected ErrInvalidFernetKey, got %v", err)
	}
}

func TestVault_LoadMissing(t *testing.T) {
	vault, _ := newTestVault(t)

	_, err := vault.Load("bitmex")
	if !errors.Is(err, apperrors.ErrCredentialNotFound) {
		t.Errorf("Expected ErrCredentialNotFound, got %v", err)
	}
}

func TestVault_WrongKeyFailsDecryption(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewCredentialRepository(db)

	var storeKey, loadKey fernet.Key
	if err := storeKey.Generate(); err != nil {
		t.Fatalf("Failed to generate fernet key: %v", err)
	}
	if err := loadKey.Generate(); err != nil {
		t.Fatalf("Failed to generate fernet key: %v", err)
	}

	writer, err := NewVault(storeKey.Encode(), repo)
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	if err := writer.Store("bittrex", "key", "secret"); err != nil {
		t.Fatalf("Failed to store credentials: %v", err)
	}

	reader, err := NewVault(loadKey.Encode(), repo)
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	_, err = reader.Load("bittrex")
	if !errors.Is(err, apperrors.ErrDecryptFailed) {
		t.Errorf("Expected ErrDecryptFailed, got %v", err)
	}
}

func TestVault_TamperedCiphertext(t *testing.T) {
	vault, repo := newTestVault(t)

	if err := vault.Store("poloniex", "key", "secret"); err != nil {
		t.Fatalf("Failed to store credentials: %v", err)
	}
	if err := repo.Upsert(repository.StoredCredential{
		Location:        "poloniex",
		EncryptedKey:    "gAAAAABtampered",
		EncryptedSecret: "gAAAAABtampered",
	}); err != nil {
		t.Fatalf("Failed to overwrite stored credentials: %v", err)
	}

	_, err := vault.Load("poloniex")
	if !errors.Is(err, apperrors.ErrDecryptFailed) {
		t.Errorf("Expected ErrDecryptFailed, got %v", err)
	}
}

func TestVault_LocationsAndRemove(t *testing.T) {
	vault, _ := newTestVault(t)

	if err := vault.Store("poloniex", "k", "s"); err != nil {
		t.Fatalf("Failed to store credentials: %v", err)
	}
	if err := vault.Store("bitmex", "k", "s"); err != nil {
		t.Fatalf("Failed to store credentials: %v", err)
	}

	locations, err := vault.Locations()
	if err != nil {
		t.Fatalf("Failed to list locations: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("Expected 2 locations, got %d", len(locations))
	}

	if err := vault.Remove("poloniex"); err != nil {
		t.Fatalf("Failed to remove credentials: %v", err)
	}
	locations, err = vault.Locations()
	if err != nil {
		t.Fatalf("Failed to list locations: %v", err)
	}
	if len(locations) != 1 || locations[0] != "bitmex" {
		t.Errorf("Expected only bitmex remaining, got %v", locations)
	}

	if err := vault.Remove("poloniex"); !errors.Is(err, apperrors.ErrCredentialNotFound) {
		t.Errorf("Expected ErrCredentialNotFound, got %v", err)
	}
}
