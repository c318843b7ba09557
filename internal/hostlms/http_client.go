package hostlms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HTTPClient is the reference adapter: a host system fronted by a plain
// JSON API. Vendor-specific adapters implement the same Client interface.
type HTTPClient struct {
	code    string
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// HTTPConfig holds HTTP adapter configuration
type HTTPConfig struct {
	Code    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPClient creates a new HTTP host lms adapter
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		code:    cfg.Code,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Code returns the host system code this client serves
func (c *HTTPClient) Code() string {
	return c.code
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Host lms call failed",
			zap.String("code", c.code),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("host lms %s: %w", c.code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("host lms %s %s: %w", c.code, path, ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("host lms %s %s: status %d: %s", c.code, path, resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// PlaceHoldRequest places a hold
func (c *HTTPClient) PlaceHoldRequest(ctx context.Context, hold HoldRequest) (*Hold, error) {
	var out Hold
	if err := c.do(ctx, http.MethodPost, "/holds", hold, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelHoldRequest cancels a hold
func (c *HTTPClient) CancelHoldRequest(ctx context.Context, localHoldID string) error {
	return c.do(ctx, http.MethodDelete, "/holds/"+url.PathEscape(localHoldID), nil, nil)
}

// GetRequest fetches the remote view of a hold
func (c *HTTPClient) GetRequest(ctx context.Context, localHoldID string) (*Hold, error) {
	var out Hold
	if err := c.do(ctx, http.MethodGet, "/holds/"+url.PathEscape(localHoldID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Renew renews a loan
func (c *HTTPClient) Renew(ctx context.Context, patronLocalID, itemLocalID string) error {
	body := map[string]string{"patron_local_id": patronLocalID, "item_local_id": itemLocalID}
	return c.do(ctx, http.MethodPost, "/loans/renew", body, nil)
}

// CheckOutItemToPatron checks an item out to a patron
func (c *HTTPClient) CheckOutItemToPatron(ctx context.Context, itemLocalID, patronLocalID string) error {
	body := map[string]string{"item_local_id": itemLocalID, "patron_local_id": patronLocalID}
	return c.do(ctx, http.MethodPost, "/loans/checkout", body, nil)
}

// GetItem fetches an item record
func (c *HTTPClient) GetItem(ctx context.Context, itemLocalID string) (*Item, error) {
	var out Item
	if err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(itemLocalID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateItemStatus sets an item's status
func (c *HTTPClient) UpdateItemStatus(ctx context.Context, itemLocalID, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPut, "/items/"+url.PathEscape(itemLocalID)+"/status", body, nil)
}

// CreateBib creates a bibliographic record
func (c *HTTPClient) CreateBib(ctx context.Context, bib Bib) (*Bib, error) {
	var out Bib
	if err := c.do(ctx, http.MethodPost, "/bibs", bib, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateItem creates an item record
func (c *HTTPClient) CreateItem(ctx context.Context, item Item) (*Item, error) {
	var out Item
	if err := c.do(ctx, http.MethodPost, "/items", item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBib deletes a bibliographic record
func (c *HTTPClient) DeleteBib(ctx context.Context, localID string) error {
	return c.do(ctx, http.MethodDelete, "/bibs/"+url.PathEscape(localID), nil, nil)
}

// DeleteItem deletes an item record
func (c *HTTPClient) DeleteItem(ctx context.Context, localID string) error {
	return c.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(localID), nil, nil)
}

// CreatePatron creates a patron record
func (c *HTTPClient) CreatePatron(ctx context.Context, patron Patron) (*Patron, error) {
	var out Patron
	if err := c.do(ctx, http.MethodPost, "/patrons", patron, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePatron updates a patron record
func (c *HTTPClient) UpdatePatron(ctx context.Context, patron Patron) (*Patron, error) {
	var out Patron
	if err := c.do(ctx, http.MethodPut, "/patrons/"+url.PathEscape(patron.LocalID), patron, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPatronByLocalID fetches a patron record
func (c *HTTPClient) GetPatronByLocalID(ctx context.Context, localID string) (*Patron, error) {
	var out Patron
	if err := c.do(ctx, http.MethodGet, "/patrons/"+url.PathEscape(localID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindVirtualPatron looks up a previously created virtual patron by barcode
func (c *HTTPClient) FindVirtualPatron(ctx context.Context, barcode string) (*Patron, error) {
	var out Patron
	if err := c.do(ctx, http.MethodGet, "/patrons?barcode="+url.QueryEscape(barcode), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePatron deletes a patron record
func (c *HTTPClient) DeletePatron(ctx context.Context, localID string) error {
	return c.do(ctx, http.MethodDelete, "/patrons/"+url.PathEscape(localID), nil, nil)
}

// Ping checks reachability of the host system
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
