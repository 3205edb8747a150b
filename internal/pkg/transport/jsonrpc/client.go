// Package jsonrpc provides a generic JSON-RPC 2.0 client over HTTP.
//
// Failures are reported with typed errors so callers can tell a node-side
// error object (ProviderError) from a transport-level status (StatusError)
// and decide what is worth retrying.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	httptransport "github.com/gabapcia/walletsync/internal/pkg/transport/http"
)

var (
	// ErrProviderReturnedError indicates that the remote server answered with a JSON-RPC error object.
	ErrProviderReturnedError = errors.New("provider error")

	// ErrUnexpectedStatus indicates that the remote server answered with a non-200 HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

// ProviderError is the JSON-RPC error object returned by the server.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: [%d] - %s", ErrProviderReturnedError, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return ErrProviderReturnedError
}

// StatusError carries the HTTP status of a failed exchange and the head of its body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// response represents a standard JSON-RPC 2.0 response.
type response struct {
	JsonRPC string          `json:"jsonrpc"`
	Error   *ProviderError  `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// Err returns the embedded error object, if any.
func (r response) Err() error {
	if r.Error == nil {
		return nil
	}

	return r.Error
}

// Client sends JSON-RPC requests.
type Client interface {
	// Fetch calls method with params and returns the raw result.
	// A null result is returned as the JSON literal null.
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// maxErrorBody bounds how much of a failed response body is kept in a StatusError.
const maxErrorBody = 512

// config holds internal settings for the client.
type config struct {
	httpClient *http.Client
}

// Option configures the client.
type Option func(*config)

// WithHTTPClient replaces the default retrying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.httpClient = c
		}
	}
}

type client struct {
	providerEndpoint string
	httpClient       *http.Client
}

var _ Client = (*client)(nil)

// Fetch implements Client. The request id is a random UUID.
func (c *client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      uuid.NewString(),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.providerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		head, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: res.StatusCode, Body: string(head)}
	}

	var data response
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, err
	}

	if err := data.Err(); err != nil {
		return nil, err
	}

	if len(data.Result) == 0 {
		return json.RawMessage("null"), nil
	}

	return data.Result, nil
}

// NewClient returns a Client posting to providerEndpoint.
func NewClient(providerEndpoint string, opts ...Option) *client {
	cfg := config{
		httpClient: httptransport.NewClient().StandardClient(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &client{
		providerEndpoint: providerEndpoint,
		httpClient:       cfg.httpClient,
	}
}
