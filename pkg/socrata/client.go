package socrata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	// BaseURL overrides https://<Domain>, used by tests.
	BaseURL    string
	Domain     string
	ResourceID string
	AppToken   string
	KeyID      string
	KeySecret  string
	Timeout    time.Duration
}

// UpsertResult is the SODA 2.x summary returned by a resource upsert.
type UpsertResult struct {
	Created int `json:"Rows Created"`
	Updated int `json:"Rows Updated"`
	Deleted int `json:"Rows Deleted"`
	Errors  int `json:"Errors"`
	ByRowID int `json:"By RowIdentifier"`
	BySID   int `json:"By SID"`
}

type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal status %d: %s", e.Status, e.Body)
}

// Client upserts rows into one portal dataset.
type Client struct {
	cfg  Config
	base string
	http *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://" + strings.TrimSpace(cfg.Domain)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{cfg: cfg, base: base, http: &http.Client{Timeout: timeout}}
}

// ResourceID names the target dataset.
func (c *Client) ResourceID() string { return c.cfg.ResourceID }

// Upsert writes rows with insert-or-update semantics. A 2xx answer that still
// reports row errors is returned as an error too.
func (c *Client) Upsert(ctx context.Context, rows any) (UpsertResult, error) {
	var res UpsertResult
	body, err := json.Marshal(rows)
	if err != nil {
		return res, fmt.Errorf("encode rows: %w", err)
	}

	url := fmt.Sprintf("%s/resource/%s.json", c.base, c.cfg.ResourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Token", c.cfg.AppToken)
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("portal upsert: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return res, fmt.Errorf("portal result decode: %w", err)
		}
	}
	if res.Errors > 0 {
		return res, fmt.Errorf("portal reported %d row errors", res.Errors)
	}
	return res, nil
}
