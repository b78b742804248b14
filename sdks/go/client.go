package statguard

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client is the statguard SDK client. It communicates with the statguard
// admission API to check request parameters before execution.
type Client struct {
	serverAddr string
	clientID   string
	failMode   string
	timeout    time.Duration
	httpClient *http.Client

	// Cache fields. Only allow verdicts are cached: a denial must be
	// re-evaluated every time so rate limit windows stay accurate.
	cache        sync.Map
	cacheTTL     time.Duration
	cacheMaxSize int
	cacheCount   int64
	cacheMu      sync.Mutex

	logger *slog.Logger
}

// cacheEntry is a cached allow verdict with expiry.
type cacheEntry struct {
	response  *CheckResponse
	expiresAt time.Time
	createdAt time.Time
}

// NewClient creates a new statguard SDK client.
// It reads configuration from STATGUARD_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr:   os.Getenv("STATGUARD_SERVER_ADDR"),
		clientID:     os.Getenv("STATGUARD_CLIENT_ID"),
		failMode:     envOrDefault("STATGUARD_FAIL_MODE", "open"),
		timeout:      parseDurationEnv("STATGUARD_TIMEOUT", 5*time.Second),
		cacheTTL:     parseDurationEnv("STATGUARD_CACHE_TTL", 5*time.Second),
		cacheMaxSize: parseIntEnv("STATGUARD_CACHE_MAX_SIZE", 1000),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Check sends an admission check to the statguard server and returns the
// verdict. On denial it returns a *RequestDeniedError or *RateLimitedError.
// On server unreachable with fail_mode=open, it returns an allow response.
func (c *Client) Check(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	if req.ClientID == "" {
		req.ClientID = c.clientID
	}

	cacheKey := c.buildCacheKey(req)
	if resp, ok := c.getFromCache(cacheKey); ok {
		return resp, nil
	}

	resp, err := c.doCheck(ctx, req)
	if err != nil {
		if isConnectionError(err) {
			if c.failMode == "closed" {
				return nil, &ServerUnreachableError{Cause: err}
			}
			// Fail open: return allow.
			c.logger.Warn("statguard server unreachable, failing open",
				"server_addr", c.serverAddr,
				"error", err,
			)
			return &CheckResponse{Allowed: true}, nil
		}
		return nil, err
	}

	if resp.Allowed {
		c.putInCache(cacheKey, resp)
		return resp, nil
	}

	if resp.Reason == ReasonRateLimited {
		return nil, &RateLimitedError{
			RetryAfter: time.Duration(resp.RetryAfterSeconds) * time.Second,
			RequestID:  resp.RequestID,
		}
	}
	return nil, &RequestDeniedError{
		Reason:    resp.Reason,
		Rule:      resp.Rule,
		RequestID: resp.RequestID,
	}
}

// Allowed is a convenience method that checks a request and returns a
// boolean. Unlike Check, it does not return an error on denial.
func (c *Client) Allowed(ctx context.Context, req CheckRequest) (bool, error) {
	_, err := c.Check(ctx, req)
	if err != nil {
		if errors.Is(err, ErrRequestDenied) || errors.Is(err, ErrRateLimited) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// doCheck performs the HTTP request to the admission endpoint.
// Denial statuses (400, 429, 504) carry a decodable verdict body and are
// not treated as transport errors.
func (c *Client) doCheck(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	url := strings.TrimRight(c.serverAddr, "/") + "/v1/check"

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch httpResp.StatusCode {
	case http.StatusOK,
		http.StatusBadRequest,
		http.StatusTooManyRequests,
		http.StatusGatewayTimeout:
		var resp CheckResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		resp.RequestID = httpResp.Header.Get("X-Request-ID")
		return &resp, nil

	default:
		return nil, &StatguardError{
			Code: fmt.Sprintf("HTTP_%d", httpResp.StatusCode),
			Err:  fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}
}

// buildCacheKey creates a cache key from the client ID and a hash of the
// parameters.
func (c *Client) buildCacheKey(req CheckRequest) string {
	h := sha256.New()
	if req.Params != nil {
		paramBytes, _ := json.Marshal(req.Params)
		h.Write(paramBytes)
	}
	paramsHash := hex.EncodeToString(h.Sum(nil))[:16]
	return fmt.Sprintf("%s:%s", req.ClientID, paramsHash)
}

// getFromCache retrieves a cached response if it exists and hasn't expired.
func (c *Client) getFromCache(key string) (*CheckResponse, bool) {
	val, ok := c.cache.Load(key)
	if !ok {
		return nil, false
	}
	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Delete(key)
		c.cacheMu.Lock()
		c.cacheCount--
		c.cacheMu.Unlock()
		return nil, false
	}
	return entry.response, true
}

// putInCache stores a response in the cache.
func (c *Client) putInCache(key string, resp *CheckResponse) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	// Best-effort eviction: if over max size, delete some expired entries.
	if c.cacheCount >= int64(c.cacheMaxSize) {
		now := time.Now()
		evicted := 0
		c.cache.Range(func(k, v any) bool {
			entry := v.(*cacheEntry)
			if now.After(entry.expiresAt) {
				c.cache.Delete(k)
				evicted++
			}
			return evicted < 100
		})
		c.cacheCount -= int64(evicted)

		// If still over limit, evict the oldest entry.
		if c.cacheCount >= int64(c.cacheMaxSize) {
			var oldest time.Time
			var oldestKey any
			c.cache.Range(func(k, v any) bool {
				entry := v.(*cacheEntry)
				if oldest.IsZero() || entry.createdAt.Before(oldest) {
					oldest = entry.createdAt
					oldestKey = k
				}
				return true
			})
			if oldestKey != nil {
				c.cache.Delete(oldestKey)
				c.cacheCount--
			}
		}
	}

	c.cache.Store(key, &cacheEntry{
		response:  resp,
		expiresAt: time.Now().Add(c.cacheTTL),
		createdAt: time.Now(),
	})
	c.cacheCount++
}

// isConnectionError determines if an error is a connection-level error
// (server unreachable, connection refused, timeout, etc.).
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// HTTP-level errors carry a StatguardError and are not connection errors.
	var sgErr *StatguardError
	if errors.As(err, &sgErr) {
		return false
	}
	if strings.Contains(err.Error(), "failed to marshal") ||
		strings.Contains(err.Error(), "failed to create request") ||
		strings.Contains(err.Error(), "failed to unmarshal") {
		return false
	}

	// All other errors from http.Client.Do are connection errors
	// (DNS resolution, connection refused, TLS handshake, timeouts).
	return true
}

// Helper functions for env var parsing.

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Try parsing as seconds (integer).
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	// Try parsing as duration string.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

func parseIntEnv(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return defaultVal
}
