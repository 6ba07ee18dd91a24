package postgrest

import (
	"bytes"
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

	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned without touching the network while the sink is tripped.
var ErrBreakerOpen = errors.New("sink breaker open")

// StatusError is a non-2xx answer from the sink.
type StatusError struct {
	Method string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("sink %s status %d: %s", e.Method, e.Status, e.Body)
	}
	return fmt.Sprintf("sink %s status %d", e.Method, e.Status)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

type Config struct {
	Endpoint string
	Token    string

	// BreakerFailures consecutive failures open the breaker for BreakerOpenFor.
	// Zero disables the breaker.
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// Client talks to the PostgREST endpoint that stores sensor records.
// It is safe for concurrent use.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// New builds a client on top of hc, which is shared with the caller.
func New(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		token:    cfg.Token,
		http:     hc,
	}
	if cfg.BreakerFailures > 0 {
		fails := uint32(cfg.BreakerFailures)
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "sink",
			Timeout: cfg.BreakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= fails
			},
			// a rejected row says nothing about sink availability
			IsSuccessful: func(err error) bool {
				if err == nil || errors.Is(err, context.Canceled) {
					return true
				}
				var se *StatusError
				if errors.As(err, &se) {
					return !se.Temporary()
				}
				return false
			},
		})
	}
	return c
}

// State reports the breaker state, StateClosed when no breaker is configured.
func (c *Client) State() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

// Insert posts v as a JSON body.
func (c *Client) Insert(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	return c.guard(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.headers(req)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(http.MethodPost, resp)
	})
}

// Query selects one page of rows.
type Query struct {
	Offset int
	Limit  int    // 0 leaves the server-side default in place
	Order  string // e.g. "timestamp.asc"
	// Filters maps a column to a PostgREST operator expression, e.g. "gte.2024-03-01T00:00:00Z".
	Filters map[string]string
}

func (q Query) values() url.Values {
	v := url.Values{}
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	for col, expr := range q.Filters {
		v.Set(col, expr)
	}
	return v
}

// Read fetches one page and decodes the JSON array into out.
func (c *Client) Read(ctx context.Context, q Query, out any) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("sink endpoint: %w", err)
	}
	u.RawQuery = q.values().Encode()

	return c.guard(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		c.headers(req)
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(http.MethodGet, resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("sink decode: %w", err)
		}
		return nil
	})
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	return err
}

func checkStatus(method string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Method: method, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
