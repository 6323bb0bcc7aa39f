package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/testutil"
)

func TestClient_GetPrice(t *testing.T) {
	ts := testutil.Day(10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/pricehistorical" {
			t.Errorf("Expected path /data/pricehistorical, got %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("fsym") != "BTC" || query.Get("tsyms") != "EUR" {
			t.Errorf("Expected fsym=BTC tsyms=EUR, got fsym=%s tsyms=%s", query.Get("fsym"), query.Get("tsyms"))
		}
		if query.Get("ts") != fmt.Sprintf("%d", ts.Unix()) {
			t.Errorf("Expected ts=%d, got %s", ts.Unix(), query.Get("ts"))
		}
		fmt.Fprint(w, `{"BTC":{"EUR":612.45}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	price, err := client.GetPrice(context.Background(), "BTC", "EUR", ts)
	if err != nil {
		t.Fatalf("Failed to get price: %v", err)
	}
	if !price.Equal(testutil.Dec("612.45")) {
		t.Errorf("Expected price 612.45, got %s", price)
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Response":"Error","Message":"There is no data for the symbol OBSCURE"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GetPrice(context.Background(), "OBSCURE", "EUR", testutil.Day(0))
	if !errors.Is(err, apperrors.ErrPriceUnavailable) {
		t.Errorf("Expected ErrPriceUnavailable, got %v", err)
	}
}

func TestClient_ZeroPriceIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"GNO":{"EUR":0}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GetPrice(context.Background(), "GNO", "EUR", testutil.Day(0))
	if !errors.Is(err, apperrors.ErrPriceUnavailable) {
		t.Errorf("Expected ErrPriceUnavailable for zero price, got %v", err)
	}
}

func TestClient_RetriesServerError(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"BTC":{"EUR":500}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	price, err := client.GetPrice(context.Background(), "BTC", "EUR", testutil.Day(0))
	if err != nil {
		t.Fatalf("Failed to get price after retry: %v", err)
	}
	if !price.Equal(testutil.Dec("500")) {
		t.Errorf("Expected price 500, got %s", price)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GetPrice(context.Background(), "BTC", "EUR", testutil.Day(0))
	if err == nil {
		t.Fatal("Expected error for 400 response, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for client error, got %d", attempts)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL)
	_, err := client.GetPrice(ctx, "BTC", "EUR", testutil.Day(0))
	if err == nil {
		t.Fatal("Expected error when context expires during retries, got nil")
	}
}
