package connector

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Credentials is the API key pair a signed transport authenticates with.
type Credentials struct {
	APIKey    string
	APISecret string
}

// PoloniexTransport fetches trade, lending and movement history from the
// poloniex trading API. Private endpoints are form-POSTs signed with
// HMAC-SHA512 over the request body.
type PoloniexTransport struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	nonce      func() int64
}

// NewPoloniexTransport creates a transport for the given API base URL
// (e.g. "https://poloniex.com") and credentials.
func NewPoloniexTransport(baseURL string, creds Credentials) *PoloniexTransport {
	return &PoloniexTransport{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		nonce:      func() int64 { return time.Now().UnixNano() },
	}
}

// Records implements Transport.
func (t *PoloniexTransport) Records(ctx context.Context, kind RecordKind, start, end time.Time) ([]json.RawMessage, error) {
	switch kind {
	case KindTrade:
		body, err := t.query(ctx, "returnTradeHistory", start, end)
		if err != nil {
			return nil, err
		}
		return flattenPoloniexTrades(body)
	case KindLoan:
		body, err := t.query(ctx, "returnLendingHistory", start, end)
		if err != nil {
			return nil, err
		}
		var loans []json.RawMessage
		if err := json.Unmarshal(body, &loans); err != nil {
			return nil, fmt.Errorf("failed to decode poloniex lending history: %w", err)
		}
		return loans, nil
	case KindMovement:
		body, err := t.query(ctx, "returnDepositsWithdrawals", start, end)
		if err != nil {
			return nil, err
		}
		return flattenPoloniexMovements(body)
	default:
		return nil, fmt.Errorf("poloniex transport does not serve %q records", kind)
	}
}

// query POSTs one signed trading API command.
func (t *PoloniexTransport) query(ctx context.Context, command string, start, end time.Time) ([]byte, error) {
	form := url.Values{}
	form.Set("command", command)
	form.Set("start", strconv.FormatInt(start.Unix(), 10))
	form.Set("end", strconv.FormatInt(end.Unix(), 10))
	form.Set("nonce", strconv.FormatInt(t.nonce(), 10))
	if command == "returnTradeHistory" {
		form.Set("currencyPair", "all")
	}
	payload := form.Encode()

	mac := hmac.New(sha512.New, []byte(t.creds.APISecret))
	mac.Write([]byte(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tradingApi", strings.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", t.creds.APIKey)
	req.Header.Set("Sign", hex.EncodeToString(mac.Sum(nil)))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poloniex returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// flattenPoloniexTrades turns the pair-keyed trade history map into a
// flat record list with the pair injected into each trade. Pairs are
// visited in sorted order so record indexes are reproducible.
func flattenPoloniexTrades(body []byte) ([]json.RawMessage, error) {
	var byPair map[string][]map[string]json.RawMessage
	if err := json.Unmarshal(body, &byPair); err != nil {
		return nil, fmt.Errorf("failed to decode poloniex trade history: %w", err)
	}

	pairs := make([]string, 0, len(byPair))
	for pair := range byPair {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	var out []json.RawMessage
	for _, pair := range pairs {
		for _, trade := range byPair[pair] {
			trade["pair"] = json.RawMessage(strconv.Quote(pair))
			data, err := json.Marshal(trade)
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
	}
	return out, nil
}

// flattenPoloniexMovements merges the deposits and withdrawals arrays
// into one record list with the category injected.
func flattenPoloniexMovements(body []byte) ([]json.RawMessage, error) {
	var movements struct {
		Deposits    []map[string]json.RawMessage `json:"deposits"`
		Withdrawals []map[string]json.RawMessage `json:"withdrawals"`
	}
	if err := json.Unmarshal(body, &movements); err != nil {
		return nil, fmt.Errorf("failed to decode poloniex movements: %w", err)
	}

	tag := func(rows []map[string]json.RawMessage, category string) ([]json.RawMessage, error) {
		var out []json.RawMessage
		for _, row := range rows {
			row["category"] = json.RawMessage(strconv.Quote(category))
			data, err := json.Marshal(row)
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
		return out, nil
	}

	deposits, err := tag(movements.Deposits, "deposit")
	if err != nil {
		return nil, err
	}
	withdrawals, err := tag(movements.Withdrawals, "withdrawal")
	if err != nil {
		return nil, err
	}
	return append(deposits, withdrawals...), nil
}

// BitmexTransport fetches the realized P&L wallet history from bitmex.
// Requests are signed with HMAC-SHA256 over verb, path and expiry.
type BitmexTransport struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
}

// NewBitmexTransport creates a transport for the given API base URL
// (e.g. "https://www.bitmex.com") and credentials.
func NewBitmexTransport(baseURL string, creds Credentials) *BitmexTransport {
	return &BitmexTransport{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Records implements Transport. Bitmex reports realized P&L entries as
// transactType "RealisedPNL" in its wallet history; other entries are
// filtered out here. Range filtering also happens here because the
// endpoint has no range parameters.
func (t *BitmexTransport) Records(ctx context.Context, kind RecordKind, start, end time.Time) ([]json.RawMessage, error) {
	if kind != KindMargin {
		return nil, fmt.Errorf("bitmex transport does not serve %q records", kind)
	}

	path := "/api/v1/user/walletHistory"
	expires := time.Now().Add(10 * time.Second).Unix()

	mac := hmac.New(sha256.New, []byte(t.creds.APISecret))
	fmt.Fprintf(mac, "GET%s%d", path, expires)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", t.creds.APIKey)
	req.Header.Set("api-expires", strconv.FormatInt(expires, 10))
	req.Header.Set("api-signature", hex.EncodeToString(mac.Sum(nil)))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bitmex returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		TransactType string `json:"transactType"`
		TransactTime string `json:"transactTime"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode bitmex wallet history: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode bitmex wallet history: %w", err)
	}

	var out []json.RawMessage
	for i, e := range entries {
		if e.TransactType != "RealisedPNL" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, e.TransactTime)
		if err != nil || !inRange(ts.UTC(), start, end) {
			continue
		}
		out = append(out, raw[i])
	}
	return out, nil
}

// BittrexTransport fetches order history from bittrex. Requests carry an
// apisign header with HMAC-SHA512 over the full URI.
type BittrexTransport struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	nonce      func() int64
}

// NewBittrexTransport creates a transport for the given API base URL
// (e.g. "https://bittrex.com") and credentials.
func NewBittrexTransport(baseURL string, creds Credentials) *BittrexTransport {
	return &BittrexTransport{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		nonce:      func() int64 { return time.Now().UnixNano() },
	}
}

// Records implements Transport. The endpoint has no range parameters, so
// range filtering happens here on the reported timestamps.
func (t *BittrexTransport) Records(ctx context.Context, kind RecordKind, start, end time.Time) ([]json.RawMessage, error) {
	if kind != KindTrade {
		return nil, fmt.Errorf("bittrex transport does not serve %q records", kind)
	}

	uri := fmt.Sprintf("%s/api/v1.1/account/getorderhistory?apikey=%s&nonce=%d",
		t.baseURL, url.QueryEscape(t.creds.APIKey), t.nonce())

	mac := hmac.New(sha512.New, []byte(t.creds.APISecret))
	mac.Write([]byte(uri))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apisign", hex.EncodeToString(mac.Sum(nil)))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bittrex returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Result  []json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode bittrex order history: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("bittrex error: %s", result.Message)
	}

	var out []json.RawMessage
	for _, row := range result.Result {
		var meta struct {
			TimeStamp string `json:"TimeStamp"`
		}
		if err := json.Unmarshal(row, &meta); err != nil {
			continue
		}
		ts, err := time.ParseInLocation(bittrexTimeLayout, meta.TimeStamp, time.UTC)
		if err != nil || !inRange(ts, start, end) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}
