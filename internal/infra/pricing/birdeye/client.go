// Package birdeye implements pricing.Provider over the Birdeye public API.
package birdeye

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gabapcia/walletsync/internal/pkg/logger"
	httptransport "github.com/gabapcia/walletsync/internal/pkg/transport/http"
	"github.com/gabapcia/walletsync/internal/pricing"
)

const (
	defaultBaseURL = "https://public-api.birdeye.so"
	chain          = "solana"

	metadataPath = "/defi/v3/token/meta-data/single"
	historyPath  = "/defi/history_price"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// client implements pricing.Provider.
type client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	window     time.Duration
}

var _ pricing.Provider = (*client)(nil)

type config struct {
	baseURL    string
	httpClient *http.Client
	window     time.Duration
}

// Option configures the client.
type Option func(*config)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *config) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLookupWindow sets how far before a timestamp price points are searched.
// Default: 15 minutes.
func WithLookupWindow(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.window = d
		}
	}
}

// NewClient returns a provider authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *client {
	cfg := config{
		baseURL:    defaultBaseURL,
		httpClient: httptransport.NewClient().StandardClient(),
		window:     15 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &client{
		baseURL:    cfg.baseURL,
		apiKey:     apiKey,
		httpClient: cfg.httpClient,
		window:     cfg.window,
	}
}

// envelope is the common response wrapper.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

// get issues a GET against path and decodes the envelope's data into out.
// A missing or unsuccessful payload is reported as pricing.ErrAssetNotFound.
func get[T any](ctx context.Context, c *client, path string, query url.Values) (T, error) {
	var zero T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return zero, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("x-chain", chain)

	res, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %w", pricing.ErrTransient, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		return zero, fmt.Errorf("%w: %s returned %d", pricing.ErrTransient, path, res.StatusCode)
	case res.StatusCode == http.StatusNotFound:
		return zero, pricing.ErrAssetNotFound
	case res.StatusCode != http.StatusOK:
		head, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return zero, fmt.Errorf("%s returned %d: %s", path, res.StatusCode, head)
	}

	var body envelope[T]
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return zero, fmt.Errorf("decode %s: %w", path, err)
	}

	if !body.Success || body.Data == nil {
		logger.Debug(ctx, "pricing provider returned no data", "pricing.path", path, "pricing.message", body.Message)
		return zero, pricing.ErrAssetNotFound
	}

	return *body.Data, nil
}

type tokenMetadata struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	LogoURI string `json:"logo_uri"`
}

// AssetInfo implements pricing.Provider.
func (c *client) AssetInfo(ctx context.Context, mint string) (pricing.AssetInfo, error) {
	meta, err := get[tokenMetadata](ctx, c, metadataPath, url.Values{"address": {mint}})
	if err != nil {
		return pricing.AssetInfo{}, err
	}

	return pricing.AssetInfo{
		Mint:    mint,
		Symbol:  meta.Symbol,
		LogoURI: meta.LogoURI,
	}, nil
}

type pricePoint struct {
	UnixTime int64           `json:"unixTime"`
	Value    decimal.Decimal `json:"value"`
}

type priceHistory struct {
	Items []pricePoint `json:"items"`
}

// UnitPriceAt implements pricing.Provider. The quote is the last minute
// point at or before ts inside the lookup window, or the earliest point when
// the history only starts after ts.
func (c *client) UnitPriceAt(ctx context.Context, mint string, ts time.Time) (decimal.Decimal, error) {
	from := ts.Add(-c.window).Unix()
	to := ts.Add(time.Minute).Unix()

	history, err := get[priceHistory](ctx, c, historyPath, url.Values{
		"address":      {mint},
		"address_type": {"token"},
		"type":         {"1m"},
		"time_from":    {strconv.FormatInt(from, 10)},
		"time_to":      {strconv.FormatInt(to, 10)},
	})
	if err != nil {
		return decimal.Zero, err
	}

	if len(history.Items) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no price points for %s", pricing.ErrValuationUnavailable, mint)
	}

	var (
		before   *pricePoint
		earliest = history.Items[0]
	)
	for i, p := range history.Items {
		if p.UnixTime < earliest.UnixTime {
			earliest = p
		}
		if p.UnixTime <= ts.Unix() && (before == nil || p.UnixTime >= before.UnixTime) {
			before = &history.Items[i]
		}
	}

	if before != nil {
		return before.Value, nil
	}
	return earliest.Value, nil
}
