package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
)

// Source provides historical prices. Implementations must return
// apperrors.ErrPriceUnavailable when no price exists for the pair and
// timestamp; any other error is a transport fault.
type Source interface {
	GetPrice(ctx context.Context, fromAsset, toAsset string, ts time.Time) (decimal.Decimal, error)
}

// Client fetches historical prices from a cryptocompare-compatible API.
// It wraps an HTTP client and retries transient failures with fibonacci
// backoff, honoring the request context.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a price API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// historicalResponse mirrors the pricehistorical payload:
// {"BTC": {"EUR": 612.45}} or {"Response": "Error", "Message": "..."}.
type historicalResponse map[string]map[string]decimal.Decimal

type apiError struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
}

// GetPrice queries the price of fromAsset expressed in toAsset at the
// given timestamp. A pair the API does not track maps to
// apperrors.ErrPriceUnavailable; rate limiting (429) and server errors
// are retried before giving up.
func (c *Client) GetPrice(ctx context.Context, fromAsset, toAsset string, ts time.Time) (decimal.Decimal, error) {
	url := fmt.Sprintf(
		"%s/data/pricehistorical?fsym=%s&tsyms=%s&ts=%d",
		c.baseURL, fromAsset, toAsset, ts.Unix(),
	)

	var body []byte
	backoff := retry.WithMaxRetries(4, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("price API returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("price API returned status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query price API: %w", err)
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Response == "Error" {
		return decimal.Zero, fmt.Errorf("%w: %s/%s at %s: %s",
			apperrors.ErrPriceUnavailable, fromAsset, toAsset, ts.UTC().Format(time.RFC3339), apiErr.Message)
	}

	var result historicalResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price API response: %w", err)
	}

	price, ok := result[fromAsset][toAsset]
	if !ok || price.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s/%s at %s",
			apperrors.ErrPriceUnavailable, fromAsset, toAsset, ts.UTC().Format(time.RFC3339))
	}

	return price, nil
}
