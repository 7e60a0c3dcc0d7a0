// Package client talks to the control API of a resident pasys daemon.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrUnreachable wraps transport failures, so callers can fall back to
// driving the unit locally.
var ErrUnreachable = errors.New("daemon unreachable")

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client provides HTTP client functionality to communicate with pasys daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string // e.g. http://127.0.0.1:9911, plus the router base path if any
	// Starts wait for readiness probes, so the timeout must cover the
	// longest probe schedule of the units being driven.
	Timeout time.Duration
	Logger  *slog.Logger
	TLS     *TLSClientConfig
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	CACert     string // CA certificate file path
	ServerName string
	SkipVerify bool
}

const (
	defaultBaseURL = "http://127.0.0.1:9911"
	defaultTimeout = 2 * time.Minute
)

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: defaultBaseURL, Timeout: defaultTimeout}
}

// New creates a new pasys API client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := &http.Transport{}
	if config.TLS != nil {
		tc, err := setupClientTLS(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("tls setup: %w", err)
		}
		transport.TLSClientConfig = tc
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}, nil
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Units(ctx)
	if err != nil {
		c.logger.Debug("daemon reachability check failed", "err", err)
	}
	return err == nil
}

// Units lists the status of every configured unit.
func (c *Client) Units(ctx context.Context) ([]UnitStatus, error) {
	var out []UnitStatus
	if err := c.do(ctx, http.MethodGet, "/api/units", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Unit returns the status of one unit.
func (c *Client) Unit(ctx context.Context, name string) (UnitStatus, error) {
	var out UnitStatus
	err := c.do(ctx, http.MethodGet, "/api/units/"+url.PathEscape(name), &out)
	return out, err
}

// Do applies verb (start|on|load|stop|off|unload) to the named unit.
func (c *Client) Do(ctx context.Context, name, verb string) (VerbResponse, error) {
	c.logger.Debug("remote verb", "unit", name, "verb", verb)
	var out VerbResponse
	p := "/api/units/" + url.PathEscape(name) + "/" + url.PathEscape(verb)
	err := c.do(ctx, http.MethodPost, p, &out)
	return out, err
}

// History returns up to limit recent events of the named unit, newest first.
func (c *Client) History(ctx context.Context, name string, limit int) ([]Event, error) {
	p := "/api/units/" + url.PathEscape(name) + "/history"
	if limit > 0 {
		p += "?limit=" + strconv.Itoa(limit)
	}
	var out []Event
	if err := c.do(ctx, http.MethodGet, p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		er.Error = strings.TrimSpace(string(body))
	}
	c.logger.Debug("API request failed", "status", resp.StatusCode, "err", er.Error)
	return &APIError{StatusCode: resp.StatusCode, Message: er.Error}
}

func setupClientTLS(cfg *TLSClientConfig) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: cfg.ServerName,
		// #nosec G402 -- opt-in for self-signed development daemons
		InsecureSkipVerify: cfg.SkipVerify,
	}
	if cfg.CACert != "" {
		if err := loadCACert(tc, cfg.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}
	return tc, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	// #nosec G304 -- operator supplied path
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return errors.New("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}
