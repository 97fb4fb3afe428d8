package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/logging"
)

const (
	DeviceIDHeader   = "X-Device-ID"
	DefaultProbePath = "check-db-access.php"
	DefaultTimeout   = 15 * time.Second

	maxBody    = 32 << 20
	snippetLen = 120
)

// Options configures an HTTPClient.
type Options struct {
	// BaseURL is the API root, e.g. https://example.org/api.
	BaseURL string
	// Timeout bounds every request. Zero means DefaultTimeout.
	Timeout time.Duration
	// ProbePath is requested by Probe, relative to BaseURL.
	ProbePath string
	// BodyKeys overrides the JSON key holding the records of a table. Tables
	// not listed use their own name.
	BodyKeys map[string]string
	DeviceID string
	// HTTP is the underlying client; nil means a fresh http.Client.
	HTTP   *http.Client
	Logger logging.Logger
}

type HTTPClient struct {
	base      *url.URL
	timeout   time.Duration
	probePath string
	bodyKeys  map[string]string
	http      *http.Client
	log       logging.Logger

	mu       sync.RWMutex
	deviceID string
}

func NewHTTPClient(opts Options) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q: scheme must be http or https", opts.BaseURL)
	}

	c := &HTTPClient{
		base:      u,
		timeout:   opts.Timeout,
		probePath: opts.ProbePath,
		bodyKeys:  opts.BodyKeys,
		http:      opts.HTTP,
		log:       opts.Logger,
		deviceID:  opts.DeviceID,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.probePath == "" {
		c.probePath = DefaultProbePath
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	return c, nil
}

// SetDeviceID changes the id sent in DeviceIDHeader.
func (c *HTTPClient) SetDeviceID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = id
}

func (c *HTTPClient) bodyKey(table string) string {
	if k, ok := c.bodyKeys[table]; ok && k != "" {
		return k
	}
	return table
}

func (c *HTTPClient) endpoint(name string, query url.Values) string {
	u := c.base.JoinPath(name)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *HTTPClient) SyncTable(ctx context.Context, table, userID string, items any) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"userId":         userID,
		c.bodyKey(table): items,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode %s payload: %w", table, err)
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, c.endpoint(table+"-sync.php", nil), body, &env); err != nil {
		return Result{}, err
	}

	res := Result{Success: env.success(), Message: env.Message}
	if !res.Success {
		return res, &ResponseError{Err: ErrRejected, StatusCode: http.StatusOK, Message: env.Message}
	}
	return res, nil
}

func (c *HTTPClient) LoadTable(ctx context.Context, table, userID string) ([]json.RawMessage, error) {
	var env envelope
	q := url.Values{"userId": {userID}}
	if err := c.do(ctx, http.MethodGet, c.endpoint(table+"-load.php", q), nil, &env); err != nil {
		return nil, err
	}
	if !env.success() {
		return nil, &ResponseError{Err: ErrRejected, StatusCode: http.StatusOK, Message: env.Message}
	}

	for _, key := range []string{c.bodyKey(table), table, "data", "items"} {
		raw, ok := env.Fields[key]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return []json.RawMessage{}, nil
		}
		var records []json.RawMessage
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, &ResponseError{Err: ErrMalformedResponse, StatusCode: http.StatusOK, Snippet: snippet(raw)}
		}
		return records, nil
	}
	// A success without records would wipe the local copy.
	return nil, &ResponseError{Err: ErrMalformedResponse, StatusCode: http.StatusOK, Message: "no records in response", Snippet: snippet(env.raw)}
}

func (c *HTTPClient) Diagnostic(ctx context.Context, action, userID, table string) (DiagnosticResult, error) {
	q := url.Values{"action": {action}}
	if userID != "" {
		q.Set("userId", userID)
	}
	if table != "" {
		q.Set("table", table)
	}

	var env envelope
	if err := c.do(ctx, http.MethodGet, c.endpoint("sync-debug.php", q), nil, &env); err != nil {
		return DiagnosticResult{}, err
	}

	res := DiagnosticResult{Success: env.success(), Message: env.Message, Raw: env.raw}
	if !res.Success {
		return res, &ResponseError{Err: ErrRejected, StatusCode: http.StatusOK, Message: env.Message}
	}
	return res, nil
}

func (c *HTTPClient) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.probePath, nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.mapError(ctx, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	_ = resp.Body.Close()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body []byte, out *envelope) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.deviceID != "" {
		req.Header.Set(DeviceIDHeader, c.deviceID)
	}
	c.mu.RUnlock()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.mapError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return c.mapError(ctx, err)
	}
	c.log.Debug(ctx, "api request", "method", method, "url", endpoint, "status", resp.StatusCode, "bytes", len(raw), "took", time.Since(start))

	return decode(resp.StatusCode, raw, out)
}

// mapError turns transport failures into ErrTimeout or ErrOffline. A
// cancelled parent context is returned as is.
func (c *HTTPClient) mapError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrOffline, err)
}

// decode refuses markup and non-2xx answers before touching JSON.
func decode(status int, raw []byte, out *envelope) error {
	trimmed := bytes.TrimSpace(raw)

	if looksLikeMarkup(trimmed) {
		return &ResponseError{Err: ErrMalformedResponse, StatusCode: status, Snippet: snippet(trimmed)}
	}
	if status < 200 || status > 299 {
		re := &ResponseError{Err: ErrHTTPStatus, StatusCode: status, Snippet: snippet(trimmed)}
		var env envelope
		if json.Unmarshal(trimmed, &env) == nil {
			re.Message = env.Message
		}
		return re
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &ResponseError{Err: ErrMalformedResponse, StatusCode: status, Snippet: snippet(trimmed)}
	}
	if out.Success == nil {
		return &ResponseError{Err: ErrMalformedResponse, StatusCode: status, Snippet: snippet(trimmed), Message: "missing success flag"}
	}
	return nil
}

func looksLikeMarkup(b []byte) bool {
	lower := bytes.ToLower(b[:min(len(b), 16)])
	for _, p := range [][]byte{[]byte("<?php"), []byte("<!doctype"), []byte("<html")} {
		if bytes.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func snippet(b []byte) string {
	s := string(b)
	if len(s) > snippetLen {
		s = s[:snippetLen] + "..."
	}
	return s
}
