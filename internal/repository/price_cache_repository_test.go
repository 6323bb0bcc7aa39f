package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/testutil"
)

func TestPriceCacheRepository_PutAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPriceCacheRepository(db)
	bucket := testutil.Day(10)

	if err := repo.Put("BTC", "EUR", bucket, testutil.Dec("612.45")); err != nil {
		t.Fatalf("Failed to store price: %v", err)
	}

	price, err := repo.Get("BTC", "EUR", bucket)
	if err != nil {
		t.Fatalf("Failed to get price: %v", err)
	}
	if !price.Equal(testutil.Dec("612.45")) {
		t.Errorf("Expected price 612.45, got %s", price)
	}
}

func TestPriceCacheRepository_GetMissing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPriceCacheRepository(db)

	_, err := repo.Get("BTC", "EUR", testutil.Day(0))
	if !errors.Is(err, apperrors.ErrPriceUnavailable) {
		t.Errorf("Expected ErrPriceUnavailable, got %v", err)
	}
}

func TestPriceCacheRepository_PutReplaces(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPriceCacheRepository(db)
	bucket := testutil.Day(10)

	if err := repo.Put("ETH", "EUR", bucket, testutil.Dec("11")); err != nil {
		t.Fatalf("Failed to store price: %v", err)
	}
	if err := repo.Put("ETH", "EUR", bucket, testutil.Dec("12")); err != nil {
		t.Fatalf("Failed to replace price: %v", err)
	}

	price, err := repo.Get("ETH", "EUR", bucket)
	if err != nil {
		t.Fatalf("Failed to get price: %v", err)
	}
	if !price.Equal(testutil.Dec("12")) {
		t.Errorf("Expected replaced price 12, got %s", price)
	}
	testutil.AssertRowCount(t, db, "price_cache", 1)
}

func TestPriceCacheRepository_DistinctBuckets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPriceCacheRepository(db)

	if err := repo.Put("BTC", "EUR", testutil.Day(10), testutil.Dec("600")); err != nil {
		t.Fatalf("Failed to store price: %v", err)
	}
	if err := repo.Put("BTC", "EUR", testutil.Day(10).Add(time.Hour), testutil.Dec("601")); err != nil {
		t.Fatalf("Failed to store price: %v", err)
	}

	testutil.AssertRowCount(t, db, "price_cache", 2)
}

func TestPriceCacheRepository_Prune(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPriceCacheRepository(db)

	if err := repo.Put("BTC", "EUR", testutil.Day(0), testutil.Dec("600")); err != nil {
		t.Fatalf("Failed to store price: %v", err)
	}
	if err := repo.Put("ETH", "EUR", testutil.Day(0), testutil.Dec("11")); err != nil {
		t.Fatalf("Failed to store price: %v", err)
	}

	// Entries were just created, so a cutoff in the past removes nothing.
	pruned, err := repo.Prune(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Failed to prune price cache: %v", err)
	}
	if pruned != 0 {
		t.Errorf("Expected 0 pruned entries, got %d", pruned)
	}

	// A cutoff in the future removes everything.
	pruned, err = repo.Prune(time.Now().Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("Failed to prune price cache: %v", err)
	}
	if pruned != 2 {
		t.Errorf("Expected 2 pruned entries, got %d", pruned)
	}
	testutil.AssertRowCount(t, db, "price_cache", 0)
}
