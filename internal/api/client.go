// Package api implements the HTTP client for the remote sync authority.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/oybekdev/pos-sync/internal/models"
)

const (
	syncPath   = "/pos/sync/product-stocks"
	healthPath = "/health"

	requestTimeout = 30 * time.Second
	probeTimeout   = 3 * time.Second
)

// Client pushes bundles to the remote authority and exposes a cached
// connectivity probe used by the engine as its offline gate.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	logger        *slog.Logger
	probeInterval time.Duration
	healthy       atomic.Bool
	lastProbe     atomic.Int64 // unix nanos of the last probe
}

func NewClient(baseURL, token string, probeInterval time.Duration, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:       baseURL,
		token:         token,
		httpClient:    &http.Client{Timeout: requestTimeout},
		logger:        logger,
		probeInterval: probeInterval,
	}
	return c
}

// syncResponse tolerates both the bare verdict shape and the data-enveloped
// variant some server versions return.
type syncResponse struct {
	Success []string               `json:"success"`
	Failed  []models.BundleFailure `json:"failed"`
	Data    *models.SyncResult     `json:"data"`
}

// PushBundles sends one cycle's bundles and returns the per-bundle verdict.
// Any connection error, non-2xx status, or undecodable body is a whole-cycle
// transport failure: the caller must treat it as "nothing happened".
func (c *Client) PushBundles(ctx context.Context, bundles []models.BundlePayload) (*models.SyncResult, error) {
	body, err := json.Marshal(models.SyncRequest{Bundles: bundles})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+syncPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.healthy.Store(false)
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync request rejected with status %d: %s", resp.StatusCode, raw)
	}

	var decoded syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("malformed sync response: %w", err)
	}

	if decoded.Data != nil {
		return decoded.Data, nil
	}
	return &models.SyncResult{Success: decoded.Success, Failed: decoded.Failed}, nil
}

// IsHealthy reports whether the authority is reachable. The probe result is
// cached for probeInterval so ticking the engine does not hammer the server.
func (c *Client) IsHealthy() bool {
	now := time.Now().UnixNano()
	last := c.lastProbe.Load()
	if now-last < c.probeInterval.Nanoseconds() {
		return c.healthy.Load()
	}
	if !c.lastProbe.CompareAndSwap(last, now) {
		// Another goroutine won the probe; use its cached verdict.
		return c.healthy.Load()
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		c.healthy.Store(false)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.healthy.Swap(false) {
			c.logger.Warn("Sync authority unreachable", "error", err)
		}
		return false
	}
	resp.Body.Close()

	ok := resp.StatusCode < 500
	if ok && !c.healthy.Swap(true) {
		c.logger.Info("Sync authority reachable again")
	} else if !ok {
		c.healthy.Store(false)
	}
	return ok
}
