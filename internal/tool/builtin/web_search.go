package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sentinelworks/sentinel/internal/config"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

const (
	defaultWebSearchMaxResults = 5
	maxWebSearchResultsHardCap = 10
	userAgent                  = "Sentinel/1.0 (+https://example.invalid)"
)

var (
	bingResultRe = regexp.MustCompile(`(?is)<li[^>]*class="[^"]*\bb_algo\b[^"]*"[^>]*>.*?<h2[^>]*>\s*<a[^>]*href="([^"]+)"[^>]*>(.*?)</a>`)
	htmlTagRe    = regexp.MustCompile(`(?is)<[^>]+>`)
)

// WebSearchTool searches the web and returns top result links.
type WebSearchTool struct {
	client     *http.Client
	baseURL    string
	maxResults int
}

func NewWebSearchTool(cfg config.WebToolConfig) (*WebSearchTool, error) {
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultWebToolTimeout)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = config.DefaultWebToolBaseURL
	}

	return &WebSearchTool{
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		maxResults: defaultWebSearchMaxResults,
	}, nil
}

func (t *WebSearchTool) Name() string {
	return "web_search"
}

func (t *WebSearchTool) Description() string {
	return "Search the web and return top result links."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query text",
			},
			"domains": map[string]interface{}{
				"type":        "array",
				"description": "Optional domain filters (e.g. [\"example.com\"])",
				"items": map[string]interface{}{
					"type": "string",
				},
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of links to return (default 5, max 10)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, _ toolcore.Invocation, input json.RawMessage) (toolcore.Result, error) {
	var args struct {
		Query      string   `json:"query"`
		Domains    []string `json:"domains"`
		MaxResults int      `json:"max_results"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolcore.Result{}, fmt.Errorf("invalid input: %w", err)
	}

	query := strings.TrimSpace(args.Query)
	if query == "" {
		return toolcore.Result{}, fmt.Errorf("query is required")
	}

	parsed, err := url.Parse(t.baseURL)
	if err != nil {
		return toolcore.Result{}, fmt.Errorf("invalid search endpoint: %w", err)
	}

	finalQuery := query
	for _, domain := range args.Domains {
		d := strings.TrimSpace(domain)
		if d == "" {
			continue
		}
		finalQuery += " site:" + d
	}

	q := parsed.Query()
	q.Set("q", finalQuery)
	parsed.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return toolcore.Result{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return toolcore.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return toolcore.Result{}, fmt.Errorf("search request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return toolcore.Result{}, err
	}

	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = t.maxResults
	}
	if maxResults > maxWebSearchResultsHardCap {
		maxResults = maxWebSearchResultsHardCap
	}

	results := parseBingSearchResults(string(body), maxResults)
	return toolcore.StructuredResult(map[string]interface{}{
		"query":           query,
		"effective_query": finalQuery,
		"results":         results,
	}), nil
}

func parseBingSearchResults(doc string, maxResults int) []map[string]string {
	if maxResults <= 0 {
		maxResults = defaultWebSearchMaxResults
	}

	matches := bingResultRe.FindAllStringSubmatch(doc, maxResults)
	out := make([]map[string]string, 0, len(matches))
	for _, m := range matches {
		if len(m) < 3 {
			continue
		}
		link := html.UnescapeString(strings.TrimSpace(m[1]))
		title := html.UnescapeString(strings.TrimSpace(htmlTagRe.ReplaceAllString(m[2], "")))
		if link == "" || title == "" {
			continue
		}
		out = append(out, map[string]string{
			"title": title,
			"url":   link,
		})
	}
	return out
}
