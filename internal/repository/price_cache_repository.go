package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
)

// PriceCacheRepository persists resolved historical prices so repeated
// runs over the same range skip the external price API. Satisfies
// pricing.CacheStore.
type PriceCacheRepository struct {
	db *sql.DB
}

// NewPriceCacheRepository creates a new PriceCacheRepository.
func NewPriceCacheRepository(db *sql.DB) *PriceCacheRepository {
	return &PriceCacheRepository{db: db}
}

// Get returns the cached price for the pair and time bucket, or
// apperrors.ErrPriceUnavailable on a miss.
func (r *PriceCacheRepository) Get(fromAsset, toAsset string, bucket time.Time) (decimal.Decimal, error) {
	var price string
	err := r.db.QueryRow(`
		SELECT price FROM price_cache
		WHERE from_asset = ? AND to_asset = ? AND bucket = ?
	`, fromAsset, toAsset, bucket.UTC().Format(time.RFC3339)).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, apperrors.ErrPriceUnavailable
		}
		return decimal.Zero, fmt.Errorf("failed to query price cache: %w", err)
	}
	return ParseDecimal(price)
}

// Put stores a resolved price, replacing any previous value for the
// same pair and bucket.
func (r *PriceCacheRepository) Put(fromAsset, toAsset string, bucket time.Time, price decimal.Decimal) error {
	// created_at is written explicitly so Prune compares timestamps in
	// one format.
	_, err := r.db.Exec(`
		INSERT INTO price_cache (from_asset, to_asset, bucket, price, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_asset, to_asset, bucket) DO UPDATE SET price = excluded.price, created_at = excluded.created_at
	`, fromAsset, toAsset, bucket.UTC().Format(time.RFC3339), price.String(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store cached price: %w", err)
	}
	return nil
}

// Prune deletes cached prices older than the retention cutoff. Run by
// the maintenance scheduler.
func (r *PriceCacheRepository) Prune(olderThan time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM price_cache WHERE created_at < ?`,
		olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune price cache: %w", err)
	}
	return result.RowsAffected()
}
