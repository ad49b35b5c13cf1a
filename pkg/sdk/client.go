// Package sdk provides the client-side library for the Celerix lead service.
// It supports both remote access over HTTP and local embedded mode.
package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-leads/internal/export"
	"github.com/celerix-dev/celerix-leads/internal/report"
	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("celerix-leads: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Client is a remote client for the lead service.
// It implements the LeadStore interface.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets how often idempotent reads are attempted and the base delay.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.backoff = backoff
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Connect creates a client for addr (host:port or a full URL) and checks that
// the service answers its health endpoint.
// A bare host:port is dialed over HTTPS only when CELERIX_DISABLE_TLS is
// explicitly false, matching the daemon's default of plain HTTP.
func Connect(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if !strings.Contains(addr, "://") {
		scheme := "http://"
		if tlsEnabled() {
			scheme = "https://"
		}
		addr = scheme + addr
	}
	c := &Client{
		baseURL:  strings.TrimRight(addr, "/"),
		http:     newHTTPClient(),
		attempts: 3,
		backoff:  200 * time.Millisecond,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func tlsEnabled() bool {
	disabled, err := strconv.ParseBool(os.Getenv("CELERIX_DISABLE_TLS"))
	return err == nil && !disabled
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		// The daemon serves a self-signed certificate generated at startup.
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}
	return &http.Client{Timeout: 30 * time.Second, Transport: transport}
}

// get performs an idempotent request, retrying transport errors and 5xx
// answers with linear backoff. Writes are never retried: the webhook is not
// idempotent.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if err == nil {
			lastErr = decodeError(resp)
		} else {
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("request failed", "path", path, "attempt", i+1, "error", lastErr)
	}
	return nil, fmt.Errorf("failed after %d attempts. last error: %w", c.attempts, lastErr)
}

// decodeError turns an error response into an APIError and closes the body.
func decodeError(resp *http.Response) error {
	defer resp.Body.Close()
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ping checks the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var health struct {
		Status string `json:"status"`
	}
	return c.getJSON(ctx, "/healthz", &health)
}

func (c *Client) Create(ctx context.Context, in schema.LeadInput) (schema.Lead, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return schema.Lead{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/webhook/lead", bytes.NewReader(body))
	if err != nil {
		return schema.Lead{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return schema.Lead{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return schema.Lead{}, decodeError(resp)
	}
	defer resp.Body.Close()

	var out struct {
		Success bool        `json:"success"`
		Lead    schema.Lead `json:"lead"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return schema.Lead{}, fmt.Errorf("decode webhook response: %w", err)
	}
	return out.Lead, nil
}

func (c *Client) ListAll(ctx context.Context) ([]schema.Lead, error) {
	var leads []schema.Lead
	if err := c.getJSON(ctx, "/api/leads", &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

func (c *Client) GetByID(ctx context.Context, id string) (schema.Lead, error) {
	var lead schema.Lead
	err := c.getJSON(ctx, "/api/leads/"+url.PathEscape(id), &lead)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return schema.Lead{}, ErrLeadNotFound
	}
	return lead, err
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var health struct {
		Leads int `json:"leads"`
	}
	if err := c.getJSON(ctx, "/healthz", &health); err != nil {
		return 0, err
	}
	return health.Leads, nil
}

// Stats fetches the dashboard summary.
func (c *Client) Stats(ctx context.Context) (report.Stats, error) {
	var s report.Stats
	err := c.getJSON(ctx, "/api/leads/stats", &s)
	return s, err
}

// Export downloads the given format into w and returns the server's filename.
func (c *Client) Export(ctx context.Context, format export.Format, w io.Writer) (string, error) {
	path := "/api/export/csv"
	if format == export.FormatXLSX {
		path = "/api/export/excel"
	}
	resp, err := c.get(ctx, path)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("download export: %w", err)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil {
		return "", nil
	}
	return params["filename"], nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
