// Package assets re-hosts item images through the relocation service, so
// notification messages never point at storefront CDN URLs that may expire.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"shopwatch/internal/catalog"
	logx "shopwatch/pkg/logx"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20
)

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, errors.New("assets endpoint is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	// Plain http.Client on purpose: the upload POST is not idempotent, so
	// transport-level auto-retry stays off and the orchestrator's bounded
	// retry wrapper owns re-attempts.
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, log: log}, nil
}

// RelocateSnapshot rewrites every item's image reference in place with its
// re-hosted URL. All image URLs go out in a single batched call; items
// without an image are skipped. Returns how many images were relocated.
func (c *Client) RelocateSnapshot(ctx context.Context, snap catalog.Snapshot) (int, error) {
	positions := make([]int, 0, len(snap))
	urls := make([]string, 0, len(snap))
	for i := range snap {
		u := strings.TrimSpace(snap[i].ImageURL)
		if u == "" {
			continue
		}
		positions = append(positions, i)
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return 0, nil
	}

	relocated, err := c.Relocate(ctx, urls)
	if err != nil {
		return 0, err
	}
	for k, i := range positions {
		snap[i].ImageURL = relocated[k]
	}
	return len(urls), nil
}

// Relocate performs the single batched relocation call. The response must
// contain exactly one result per input URL, in the same order.
func (c *Client) Relocate(ctx context.Context, urls []string) ([]string, error) {
	payload, err := json.Marshal(struct {
		URLs []string `json:"urls"`
	}{URLs: urls})
	if err != nil {
		return nil, fmt.Errorf("assets: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("assets: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assets: relocate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("assets: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("assets: relocate failed (status %d): %s", resp.StatusCode, excerpt(body))
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.New("assets: response is not valid JSON")
	}
	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return nil, errors.New("assets: response missing results array")
	}
	arr := results.Array()
	if len(arr) != len(urls) {
		return nil, fmt.Errorf("assets: relocate returned %d results for %d urls", len(arr), len(urls))
	}

	out := make([]string, len(arr))
	for i, v := range arr {
		u := strings.TrimSpace(v.Get("url").String())
		if u == "" {
			return nil, fmt.Errorf("assets: result %d has no url", i)
		}
		out[i] = u
	}
	return out, nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
