// Package safety screens text through a content-safety analysis endpoint.
package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/chatturn/plugin/ai/timeout"
	"github.com/hrygo/chatturn/store"
)

// DefaultAPIVersion is the analyze API version sent when none is configured.
const DefaultAPIVersion = "2024-09-01"

// Analysis is the verdict for one text.
type Analysis struct {
	Categories       []store.CategorySeverity
	BlocklistMatches []store.BlocklistMatch
}

// MaxSeverity returns the highest category severity, zero when none.
func (a *Analysis) MaxSeverity() int {
	maxSeverity := 0
	for _, c := range a.Categories {
		if c.Severity > maxSeverity {
			maxSeverity = c.Severity
		}
	}
	return maxSeverity
}

// Checker classifies text.
type Checker interface {
	Analyze(ctx context.Context, text string) (*Analysis, error)
}

// Config configures an HTTPChecker.
type Config struct {
	Endpoint   string
	Key        string
	APIVersion string
	// Blocklists are the names of blocklists to match against.
	Blocklists []string
	// RequestsPerSecond limits outbound calls. Zero means 5/s.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// HTTPChecker calls a text:analyze style endpoint.
type HTTPChecker struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPChecker(cfg Config) (*HTTPChecker, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("content safety endpoint is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout.SafetyTimeout}
	}
	return &HTTPChecker{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

type analyzeRequest struct {
	Text               string   `json:"text"`
	BlocklistNames     []string `json:"blocklistNames,omitempty"`
	HaltOnBlocklistHit bool     `json:"haltOnBlocklistHit"`
}

type analyzeResponse struct {
	CategoriesAnalysis []store.CategorySeverity `json:"categoriesAnalysis"`
	BlocklistsMatch    []store.BlocklistMatch   `json:"blocklistsMatch"`
}

func (c *HTTPChecker) Analyze(ctx context.Context, text string) (*Analysis, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "content safety rate limit wait")
	}

	body, err := json.Marshal(analyzeRequest{Text: text, BlocklistNames: c.cfg.Blocklists})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode analyze request")
	}

	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/contentsafety/text:analyze?api-version=" + c.cfg.APIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create analyze request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "content safety request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("content safety returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode analyze response")
	}
	return &Analysis{Categories: out.CategoriesAnalysis, BlocklistMatches: out.BlocklistsMatch}, nil
}
