// Package inventory lists road sensors from the Knack asset database.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoBeccarini/road-conditions/internal/config"
	"github.com/LeonardoBeccarini/road-conditions/internal/model"
)

const rowsPerPage = 1000

// StatusError is a non-2xx answer from Knack.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("knack status %d: %s", e.Status, e.Body)
}

type Client struct {
	cfg  config.InventoryConfig
	http *http.Client
	log  *logrus.Entry

	backoffInitial time.Duration
}

func New(cfg config.InventoryConfig, log *logrus.Logger) *Client {
	return &Client{
		cfg:            cfg,
		http:           &http.Client{Timeout: cfg.Timeout},
		log:            log.WithField("component", "inventory"),
		backoffInitial: 500 * time.Millisecond,
	}
}

type page struct {
	TotalPages  int              `json:"total_pages"`
	CurrentPage int              `json:"current_page"`
	Records     []map[string]any `json:"records"`
}

// Sensors returns every inventory record whose IP and sensor ID are filled in.
// Records are converted as-is; the caller decides what is pollable.
func (c *Client) Sensors(ctx context.Context) ([]model.Sensor, error) {
	var out []model.Sensor
	for n := 1; ; n++ {
		p, err := c.fetchPage(ctx, n)
		if err != nil {
			return nil, err
		}
		for _, rec := range p.Records {
			out = append(out, c.toSensor(rec))
		}
		if len(p.Records) == 0 || n >= p.TotalPages {
			break
		}
	}
	c.log.WithField("sensors", len(out)).Info("inventory loaded")
	return out, nil
}

func (c *Client) filters() string {
	type rule struct {
		Field    string `json:"field"`
		Operator string `json:"operator"`
	}
	f := struct {
		Match string `json:"match"`
		Rules []rule `json:"rules"`
	}{
		Match: "and",
		Rules: []rule{
			{Field: c.cfg.IPField, Operator: "is not blank"},
			{Field: c.cfg.SensorIDField, Operator: "is not blank"},
		},
	}
	b, _ := json.Marshal(f)
	return string(b)
}

func (c *Client) pageURL(n int) string {
	q := url.Values{}
	q.Set("filters", c.filters())
	q.Set("page", strconv.Itoa(n))
	q.Set("rows_per_page", strconv.Itoa(rowsPerPage))
	return fmt.Sprintf("%s/v1/objects/%s/records?%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.Object, q.Encode())
}

func (c *Client) fetchPage(ctx context.Context, n int) (page, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffInitial
	bo.MaxElapsedTime = 0
	bo.Reset()
	attempts := c.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var p page
	err := backoff.RetryNotify(func() error {
		var err error
		p, err = c.getPage(ctx, n)
		var se *StatusError
		if errors.As(err, &se) && se.Status < 500 && se.Status != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx),
		func(err error, next time.Duration) {
			c.log.WithError(err).WithFields(logrus.Fields{"page": n, "retry_in": next}).Warn("inventory request failed")
		})
	if err != nil {
		return page{}, fmt.Errorf("knack %s page %d: %w", c.cfg.Object, n, err)
	}
	return p, nil
}

func (c *Client) getPage(ctx context.Context, n int) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(n), nil)
	if err != nil {
		return page{}, backoff.Permanent(err)
	}
	req.Header.Set("X-Knack-Application-Id", c.cfg.AppID)
	req.Header.Set("X-Knack-REST-API-KEY", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return page{}, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var p page
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return page{}, fmt.Errorf("decode page: %w", err)
	}
	return p, nil
}

func (c *Client) toSensor(rec map[string]any) model.Sensor {
	s := model.Sensor{
		ID: text(field(rec, c.cfg.SensorIDField)),
		IP: text(field(rec, c.cfg.IPField)),
	}
	if c.cfg.LatField != "" {
		s.Latitude = coord(field(rec, c.cfg.LatField), "latitude")
	}
	if c.cfg.LonField != "" {
		s.Longitude = coord(field(rec, c.cfg.LonField), "longitude")
	}
	if c.cfg.LocationField != "" {
		s.LocationName = text(field(rec, c.cfg.LocationField))
	}
	return s
}

// field prefers Knack's unformatted "<field>_raw" value.
func field(rec map[string]any, name string) any {
	if v, ok := rec[name+"_raw"]; ok && v != nil {
		return v
	}
	return rec[name]
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case []any:
		if len(t) > 0 {
			return text(t[0])
		}
	case map[string]any:
		if id, ok := t["identifier"]; ok {
			return text(id)
		}
	}
	return ""
}

// coord reads a number, a numeric string or one key of a Knack address object.
func coord(v any, key string) *float64 {
	var f float64
	var err error
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case map[string]any:
		return coord(t[key], key)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &f
}
