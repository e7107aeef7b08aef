package sefaria

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/mordechaipotash/talmudic-study-app/config"
	"github.com/mordechaipotash/talmudic-study-app/internal/telemetry"
	"github.com/mordechaipotash/talmudic-study-app/models"
)

// Client fetches texts and links from the Sefaria API. Raw responses are held
// in two bounded TTL pools so repeated requests for the same reference stay off
// the network. The client never retries; retry policy belongs to callers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	texts      *ttlCache
	links      *ttlCache
	logger     *log.Logger
}

func New(cfg config.SefariaConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		texts:      newTTLCache(cfg.TextCacheSize, cfg.TextCacheTTL),
		links:      newTTLCache(cfg.LinkCacheSize, cfg.LinkCacheTTL),
		logger:     log.New(log.Writer(), "[SEFARIA] ", log.LstdFlags),
	}
}

// GetText returns the source text for a reference. The cache key includes the
// commentary flag because the upstream response differs with it.
func (c *Client) GetText(ctx context.Context, ref string, includeCommentary bool) (*models.SefariaText, error) {
	cacheKey := fmt.Sprintf("%s|%t", ref, includeCommentary)
	if v, ok := c.texts.get(cacheKey); ok {
		telemetry.SefariaCacheEvents.WithLabelValues("text", "hit").Inc()
		return v.(*models.SefariaText), nil
	}
	telemetry.SefariaCacheEvents.WithLabelValues("text", "miss").Inc()

	params := url.Values{"context": {"0"}}
	if includeCommentary {
		params.Set("commentary", "1")
	}
	endpoint := fmt.Sprintf("%s/texts/%s?%s", c.baseURL, url.PathEscape(ref), params.Encode())

	var text models.SefariaText
	if err := c.getJSON(ctx, endpoint, &text); err != nil {
		return nil, err
	}
	normalizeText(&text)

	c.texts.set(cacheKey, &text)
	return &text, nil
}

// GetLinks returns the raw link list for a reference.
func (c *Client) GetLinks(ctx context.Context, ref string) ([]models.Link, error) {
	if v, ok := c.links.get(ref); ok {
		telemetry.SefariaCacheEvents.WithLabelValues("links", "hit").Inc()
		return v.([]models.Link), nil
	}
	telemetry.SefariaCacheEvents.WithLabelValues("links", "miss").Inc()

	endpoint := fmt.Sprintf("%s/links/%s", c.baseURL, url.PathEscape(ref))
	var links []models.Link
	if err := c.getJSON(ctx, endpoint, &links); err != nil {
		return nil, err
	}

	c.links.set(ref, links)
	return links, nil
}

// Search proxies a full-text search to the upstream service. Results are passed
// through opaquely; this service has no local corpus to index.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string) (json.RawMessage, error) {
	params := url.Values{"q": {query}}
	for k, v := range filters {
		params.Set(k, v)
	}
	endpoint := fmt.Sprintf("%s/search/%s?%s", c.baseURL, url.PathEscape(query), params.Encode())

	var raw json.RawMessage
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.Printf("upstream %s returned %d (%s)", endpoint, resp.StatusCode, time.Since(start))
		return &models.UpstreamError{Service: "sefaria", StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// normalizeText decodes HTML entities in both language bodies while preserving
// the string-vs-array section structure of the upstream response.
func normalizeText(t *models.SefariaText) {
	t.He = decodeValue(t.He)
	t.Text = decodeValue(t.Text)
}

func decodeValue(v models.TextValue) models.TextValue {
	if v.IsSectioned() {
		sections := make([]string, len(v.Sections))
		for i, s := range v.Sections {
			sections[i] = html.UnescapeString(s)
		}
		return models.NewSectionedText(sections)
	}
	return models.NewSingleText(html.UnescapeString(v.Single))
}
