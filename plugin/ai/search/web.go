package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/chatturn/plugin/ai/timeout"
)

// WebResult is one web page hit.
type WebResult struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearch queries the web.
type WebSearch interface {
	Search(ctx context.Context, query string) ([]WebResult, error)
}

// WebConfig configures a WebClient.
type WebConfig struct {
	Endpoint string
	Key      string
	// Count is the number of results requested. Zero means 5.
	Count int
	// RequestsPerSecond limits outbound calls. Zero means 3/s.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// WebClient calls a web search endpoint returning webPages.value[{name, url, snippet}].
type WebClient struct {
	cfg     WebConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWebClient(cfg WebConfig) (*WebClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("web search endpoint is required")
	}
	if cfg.Count <= 0 {
		cfg.Count = 5
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 3
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout.SearchTimeout}
	}
	return &WebClient{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

type webResponse struct {
	WebPages struct {
		Value []WebResult `json:"value"`
	} `json:"webPages"`
}

func (c *WebClient) Search(ctx context.Context, query string) ([]WebResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "web search rate limit wait")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(c.cfg.Count))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create web search request")
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "web search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("web search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out webResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode web search response")
	}
	return out.WebPages.Value, nil
}
