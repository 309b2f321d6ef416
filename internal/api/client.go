// Package api is the typed REST client for the scanning platform
// (base path /api/v1). It attaches the persisted bearer credential to every
// request and performs a single transparent refresh-and-retry on HTTP 401.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/scanwatch/scanwatch/internal/scan"
)

// TokenPair is the persisted bearer credential.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// CredentialStore persists the token pair between runs. Implementations must
// tolerate concurrent access; semantics are last-write-wins.
type CredentialStore interface {
	// Credentials returns the stored token pair, or (nil, nil) when no
	// credential is stored.
	Credentials() (*TokenPair, error)

	// SetCredentials replaces the stored token pair.
	SetCredentials(*TokenPair) error

	// ClearCredentials removes the stored token pair.
	ClearCredentials() error
}

// Sentinel errors surfaced to callers.
var (
	// ErrNotFound maps HTTP 404: the scan or report does not exist.
	ErrNotFound = errors.New("api: not found")

	// ErrUnauthenticated indicates there is no usable credential: none
	// stored, or the refresh attempt failed and credentials were cleared.
	ErrUnauthenticated = errors.New("api: not authenticated")
)

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api: unexpected status %d", e.StatusCode)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the platform origin, e.g. "http://localhost:8000". The
	// /api/v1 prefix is appended by the client.
	BaseURL string

	// Credentials is the persisted token store. Optional: without it the
	// client operates unauthenticated.
	Credentials CredentialStore

	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration

	// MaxRPS throttles requests (status polling in particular).
	// 0 = unlimited.
	MaxRPS float64

	// HTTPClient overrides the underlying client (tests).
	HTTPClient *http.Client

	// Logger receives request diagnostics.
	Logger *logrus.Logger
}

// Client is the REST client. All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialStore
	limiter    *rate.Limiter
	log        *logrus.Logger

	// refreshMu makes credential refresh single-flight: concurrent 401s
	// serialize here and all but the first reuse the refreshed pair.
	refreshMu sync.Mutex
}

// NewClient creates a Client for the given options.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		creds:      opts.Credentials,
		log:        logger,
	}
	if opts.MaxRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}
	return c, nil
}

// ----------------------------------------------------------------------------
// Auth
// ----------------------------------------------------------------------------

// Login authenticates with email and password and persists the returned token
// pair.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	var pair TokenPair
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &pair, false); err != nil {
		return nil, err
	}
	if c.creds != nil {
		if err := c.creds.SetCredentials(&pair); err != nil {
			return nil, fmt.Errorf("api: store credentials: %w", err)
		}
	}
	return &pair, nil
}

// Logout revokes the server-side refresh tokens and clears the stored
// credential. The local credential is cleared even if the revoke call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, true)
	if c.creds != nil {
		if clearErr := c.creds.ClearCredentials(); clearErr != nil && err == nil {
			err = fmt.Errorf("api: clear credentials: %w", clearErr)
		}
	}
	return err
}

// refresh exchanges the stored refresh token for a new pair. It is
// single-flight: the caller passes the access token that was rejected, and if
// the stored token already differs, another request has refreshed in the
// meantime and the new pair is used as-is. Refresh failure clears the stored
// credential, forcing re-authentication.
func (c *Client) refresh(ctx context.Context, rejectedAccess string) error {
	if c.creds == nil {
		return ErrUnauthenticated
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	pair, err := c.creds.Credentials()
	if err != nil {
		return fmt.Errorf("api: load credentials: %w", err)
	}
	if pair == nil || pair.RefreshToken == "" {
		return ErrUnauthenticated
	}
	if pair.AccessToken != rejectedAccess {
		// Someone else already refreshed while we waited for the lock.
		return nil
	}

	var renewed TokenPair
	in := map[string]string{"refresh_token": pair.RefreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", in, &renewed, false); err != nil {
		if clearErr := c.creds.ClearCredentials(); clearErr != nil {
			c.log.WithError(clearErr).Warn("failed to clear credentials after refresh failure")
		}
		return fmt.Errorf("%w: refresh failed: %v", ErrUnauthenticated, err)
	}
	if err := c.creds.SetCredentials(&renewed); err != nil {
		return fmt.Errorf("api: store refreshed credentials: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Scans
// ----------------------------------------------------------------------------

// StartScan submits a URL for scanning and returns the created scan record.
func (c *Client) StartScan(ctx context.Context, url string) (*scan.Scan, error) {
	var out scan.Scan
	in := map[string]string{"url": url}
	if err := c.do(ctx, http.MethodPost, "/scans", in, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetScan fetches a scan by id.
func (c *Client) GetScan(ctx context.Context, id string) (*scan.Scan, error) {
	var out scan.Scan
	if err := c.do(ctx, http.MethodGet, "/scans/"+id, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListScans fetches the caller's scans, most recent first.
func (c *Client) ListScans(ctx context.Context) ([]scan.Scan, error) {
	var out []scan.Scan
	if err := c.do(ctx, http.MethodGet, "/scans", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteScan removes a scan and its results.
func (c *Client) DeleteScan(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/scans/"+id, nil, nil, true)
}

// ----------------------------------------------------------------------------
// Reports
// ----------------------------------------------------------------------------

// GetReport fetches the finalized report for a scan.
func (c *Client) GetReport(ctx context.Context, scanID string) (*scan.Report, error) {
	var out scan.Report
	if err := c.do(ctx, http.MethodGet, "/reports/"+scanID, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadPDF streams the PDF rendition of a report into w.
func (c *Client) DownloadPDF(ctx context.Context, scanID string, w io.Writer) error {
	resp, err := c.roundTrip(ctx, http.MethodGet, "/reports/"+scanID+"/pdf", nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("api: download pdf: %w", err)
	}
	return nil
}

// EmailReport asks the platform to email the report to the given address.
func (c *Client) EmailReport(ctx context.Context, scanID, email string) error {
	in := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, "/reports/"+scanID+"/email", in, nil, true)
}

// ----------------------------------------------------------------------------
// Plumbing
// ----------------------------------------------------------------------------

// do performs a JSON request/response round trip. When authed is true the
// stored bearer credential is attached and a 401 triggers one refresh-and-
// retry for this request.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, authed bool) error {
	resp, err := c.roundTrip(ctx, method, path, in, authed)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// roundTrip sends the request, handling rate limiting, bearer attachment and
// the single 401 retry. The caller owns the response body.
func (c *Client) roundTrip(ctx context.Context, method, path string, in interface{}, authed bool) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("api: rate limiter: %w", err)
		}
	}

	access := ""
	if authed && c.creds != nil {
		pair, err := c.creds.Credentials()
		if err != nil {
			return nil, fmt.Errorf("api: load credentials: %w", err)
		}
		if pair != nil {
			access = pair.AccessToken
		}
	}

	resp, err := c.send(ctx, method, path, in, access)
	if err != nil {
		return nil, err
	}

	// One transparent refresh-and-retry per original request. The retried
	// request re-reads the stored pair, which the single-flight refresh has
	// just replaced.
	if resp.StatusCode == http.StatusUnauthorized && authed && access != "" {
		resp.Body.Close()
		if err := c.refresh(ctx, access); err != nil {
			return nil, err
		}
		pair, err := c.creds.Credentials()
		if err != nil {
			return nil, fmt.Errorf("api: load credentials: %w", err)
		}
		if pair == nil {
			return nil, ErrUnauthenticated
		}
		return c.send(ctx, method, path, in, pair.AccessToken)
	}

	return resp, nil
}

// send builds and executes a single HTTP request.
func (c *Client) send(ctx context.Context, method, path string, in interface{}, access string) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("api: marshal %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, body)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("api request")
	return resp, nil
}

// checkStatus converts non-2xx responses into typed errors, decoding the
// platform's {"detail": ...} body when present.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Detail string `json:"detail"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(data, &body) == nil {
			apiErr.Detail = body.Detail
		}
	}
	return apiErr
}
