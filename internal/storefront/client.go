// Package storefront fetches the catalog from the shop's item API.
//
// The client owns transport-level concerns (auth header, timeouts,
// retried GETs, pagination, JSON parsing, schema validation); the run
// orchestrator adds the outer retry budget on top.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"shopwatch/internal/catalog"
	logx "shopwatch/pkg/logx"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultRetryMax = 2

	// maxPages bounds pagination so a misbehaving next_page loop cannot
	// spin forever.
	maxPages     = 200
	maxBodyBytes = 8 << 20
)

type Config struct {
	BaseURL    string
	Credential string

	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

type Client struct {
	cfg  Config
	http *retryablehttp.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("storefront base url is empty")
	}
	if strings.TrimSpace(cfg.Credential) == "" {
		return nil, errors.New("storefront credential is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	rc := retryablehttp.NewClient()
	rc.Logger = stdlog.New(io.Discard, "", 0)
	rc.RetryMax = defaultRetryMax
	if cfg.RetryMax > 0 {
		rc.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc.HTTPClient.Timeout = timeout

	return &Client{cfg: cfg, http: rc, log: log}, nil
}

// FetchCatalog retrieves every catalog page and returns the validated
// snapshot. Any network, auth, parse or schema failure is a descriptive
// error; no partial snapshot is ever returned.
func (c *Client) FetchCatalog(ctx context.Context) (catalog.Snapshot, error) {
	items := catalog.Snapshot{}
	page := 1
	for fetched := 0; ; fetched++ {
		if fetched >= maxPages {
			return nil, fmt.Errorf("storefront: pagination exceeded %d pages", maxPages)
		}
		pageItems, next, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		items = append(items, pageItems...)
		if next <= 0 || next == page {
			break
		}
		page = next
	}

	if err := items.Validate(); err != nil {
		return nil, fmt.Errorf("storefront: invalid catalog: %w", err)
	}
	c.log.Debug("catalog fetched", logx.Int("items", len(items)), logx.Int("pages", page))
	return items, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) (catalog.Snapshot, int, error) {
	url := fmt.Sprintf("%s/api/items?page=%d", c.cfg.BaseURL, page)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("storefront: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("storefront: fetch page %d: %w", page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("storefront: read page %d: %w", page, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, fmt.Errorf("storefront: credential rejected (status %d): %s", resp.StatusCode, excerpt(body))
	case resp.StatusCode != http.StatusOK:
		return nil, 0, fmt.Errorf("storefront: page %d: unexpected status %d: %s", page, resp.StatusCode, excerpt(body))
	}

	if !gjson.ValidBytes(body) {
		return nil, 0, fmt.Errorf("storefront: page %d: response is not valid JSON", page)
	}
	root := gjson.ParseBytes(body)
	arr := root.Get("items")
	if !arr.IsArray() {
		return nil, 0, fmt.Errorf("storefront: page %d: missing items array", page)
	}

	out := make(catalog.Snapshot, 0, len(arr.Array()))
	for _, v := range arr.Array() {
		out = append(out, itemFromJSON(v))
	}
	next := int(root.Get("next_page").Int())
	return out, next, nil
}

func itemFromJSON(v gjson.Result) catalog.Item {
	it := catalog.Item{
		ID:          strings.TrimSpace(v.Get("id").String()),
		Title:       v.Get("title").String(),
		Description: v.Get("description").String(),
		Price:       v.Get("price").Int(),
		ImageURL:    strings.TrimSpace(v.Get("image_url").String()),
		PageURL:     strings.TrimSpace(v.Get("page_url").String()),
	}
	if sv := v.Get("stock"); sv.Exists() && sv.Type == gjson.Number {
		s := sv.Int()
		it.Stock = &s
	}
	for _, vv := range v.Get("variants").Array() {
		variant := catalog.Variant{
			Name:  vv.Get("name").String(),
			Price: vv.Get("price").Int(),
		}
		if sv := vv.Get("stock"); sv.Exists() && sv.Type == gjson.Number {
			s := sv.Int()
			variant.Stock = &s
		}
		it.Variants = append(it.Variants, variant)
	}
	return it
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
