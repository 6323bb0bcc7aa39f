// Package pricing resolves historical asset prices for report valuation.
//
// A Resolver wraps the external price Source with alias substitution for
// renamed assets and a per-run in-memory cache. An optional persistent
// CacheStore is consulted before the external source, so repeated runs
// over the same range do not re-query the API.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
)

// priceBucket is the cache granularity. Prices within the same hour are
// treated as identical, matching the hourly resolution of the source.
const priceBucket = time.Hour

// CacheStore persists resolved prices across runs. Get returns
// apperrors.ErrPriceUnavailable on a miss.
type CacheStore interface {
	Get(fromAsset, toAsset string, bucket time.Time) (decimal.Decimal, error)
	Put(fromAsset, toAsset string, bucket time.Time, price decimal.Decimal) error
}

type cacheKey struct {
	from   string
	to     string
	bucket int64
}

// Resolver answers valuation queries for one report run. It is owned by
// the run's goroutine and requires no locking.
type Resolver struct {
	source  Source
	aliases map[string]string
	store   CacheStore // optional
	cache   map[cacheKey]decimal.Decimal
}

// NewResolver creates a resolver over the given source. aliases maps
// rebranded tickers to the symbol the source knows; store may be nil.
func NewResolver(source Source, aliases map[string]string, store CacheStore) *Resolver {
	return &Resolver{
		source:  source,
		aliases: aliases,
		store:   store,
		cache:   make(map[cacheKey]decimal.Decimal),
	}
}

// Resolve returns the price of one unit of fromAsset in toAsset at ts.
// Identical assets resolve to 1 without a query. On
// apperrors.ErrPriceUnavailable the caller must skip valuation with a
// warning rather than abort the run.
func (r *Resolver) Resolve(ctx context.Context, fromAsset, toAsset string, ts time.Time) (decimal.Decimal, error) {
	from := r.substitute(fromAsset)
	to := r.substitute(toAsset)

	if from == to {
		return decimal.NewFromInt(1), nil
	}

	bucket := ts.UTC().Truncate(priceBucket)
	key := cacheKey{from: from, to: to, bucket: bucket.Unix()}
	if price, ok := r.cache[key]; ok {
		return price, nil
	}

	if r.store != nil {
		price, err := r.store.Get(from, to, bucket)
		if err == nil {
			r.cache[key] = price
			return price, nil
		}
		if !errors.Is(err, apperrors.ErrPriceUnavailable) {
			return decimal.Zero, err
		}
	}

	price, err := r.source.GetPrice(ctx, from, to, ts)
	if err != nil {
		return decimal.Zero, err
	}

	r.cache[key] = price
	if r.store != nil {
		// A failed cache write is not worth failing the valuation for.
		_ = r.store.Put(from, to, bucket, price)
	}

	return price, nil
}

// substitute applies the alias table to a symbol the price source no
// longer (or never) knew under its current name.
func (r *Resolver) substitute(asset string) string {
	if alias, ok := r.aliases[asset]; ok {
		return alias
	}
	return asset
}
