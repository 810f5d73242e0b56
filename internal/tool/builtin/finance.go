package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sentinelworks/sentinel/internal/config"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol                   string  `json:"symbol"`
	RegularMarketPrice       float64 `json:"regularMarketPrice"`
	RegularMarketChange      float64 `json:"regularMarketChange"`
	RegularMarketChangePct   float64 `json:"regularMarketChangePercent"`
	Currency                 string  `json:"currency"`
	RegularMarketTime        int64   `json:"regularMarketTime"`
	MarketState              string  `json:"marketState"`
	RegularMarketPreviousClo float64 `json:"regularMarketPreviousClose"`
}

// FinanceTool retrieves market quote data by ticker symbol. It belongs to
// the finance tool group and only enters the active set when the latest
// user message matches the configured finance keywords.
type FinanceTool struct {
	client  *http.Client
	baseURL string
}

func NewFinanceTool(cfg config.FinanceToolConfig) (*FinanceTool, error) {
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultFinanceToolTimeout)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = config.DefaultFinanceToolBaseURL
	}

	return &FinanceTool{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}, nil
}

func (t *FinanceTool) Name() string { return "finance" }

func (t *FinanceTool) Group() string { return toolcore.GroupFinance }

func (t *FinanceTool) Description() string {
	return "Look up market quote data for stocks, funds, crypto, and indexes."
}

func (t *FinanceTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"ticker": map[string]interface{}{
				"type":        "string",
				"description": "Ticker symbol (for example: AMD, BTC)",
			},
			"type": map[string]interface{}{
				"type":        "string",
				"description": "Asset type: equity, fund, crypto, or index",
			},
			"amount": map[string]interface{}{
				"type":        "number",
				"description": "Optional quantity of the asset to value",
			},
		},
		"required": []string{"ticker"},
	}
}

func (t *FinanceTool) Execute(ctx context.Context, _ toolcore.Invocation, input json.RawMessage) (toolcore.Result, error) {
	var args struct {
		Ticker string  `json:"ticker"`
		Type   string  `json:"type"`
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolcore.Result{}, fmt.Errorf("invalid input: %w", err)
	}

	symbol, err := resolveFinanceSymbol(args.Ticker, args.Type)
	if err != nil {
		return toolcore.Result{}, err
	}

	quote, found, err := t.fetchQuote(ctx, symbol)
	if err != nil {
		return toolcore.Result{}, err
	}

	entry := map[string]interface{}{
		"ticker":          strings.ToUpper(strings.TrimSpace(args.Ticker)),
		"resolved_symbol": symbol,
		"found":           found,
	}
	if found {
		entry["symbol"] = quote.Symbol
		entry["price"] = quote.RegularMarketPrice
		entry["change"] = quote.RegularMarketChange
		entry["change_percent"] = quote.RegularMarketChangePct
		entry["currency"] = strings.TrimSpace(quote.Currency)
		entry["market_state"] = strings.TrimSpace(quote.MarketState)
		if quote.RegularMarketTime > 0 {
			entry["timestamp"] = time.Unix(quote.RegularMarketTime, 0).UTC().Format(time.RFC3339)
		}
		if quote.RegularMarketPreviousClo != 0 {
			entry["previous_close"] = quote.RegularMarketPreviousClo
		}
		if args.Amount > 0 {
			entry["amount"] = args.Amount
			entry["value"] = args.Amount * quote.RegularMarketPrice
		}
	}

	return toolcore.StructuredResult(entry), nil
}

func (t *FinanceTool) fetchQuote(ctx context.Context, symbol string) (yahooQuote, bool, error) {
	parsed, err := url.Parse(t.baseURL)
	if err != nil {
		return yahooQuote{}, false, fmt.Errorf("invalid finance endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return yahooQuote{}, false, fmt.Errorf("invalid finance endpoint")
	}

	q := parsed.Query()
	q.Set("symbols", symbol)
	parsed.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return yahooQuote{}, false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return yahooQuote{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return yahooQuote{}, false, fmt.Errorf("finance request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return yahooQuote{}, false, err
	}

	var payload yahooQuoteResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return yahooQuote{}, false, fmt.Errorf("decode finance response: %w", err)
	}

	for _, quote := range payload.QuoteResponse.Result {
		if strings.EqualFold(strings.TrimSpace(quote.Symbol), symbol) {
			return quote, true, nil
		}
	}
	return yahooQuote{}, false, nil
}

func resolveFinanceSymbol(ticker, assetType string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if symbol == "" {
		return "", fmt.Errorf("ticker is required")
	}

	normalized := strings.ToLower(strings.TrimSpace(assetType))
	switch normalized {
	case "", "equity", "fund", "index":
		return symbol, nil
	case "crypto":
		symbol = strings.ReplaceAll(symbol, "/", "-")
		if strings.Contains(symbol, "-") {
			return symbol, nil
		}
		return symbol + "-USD", nil
	default:
		return "", fmt.Errorf("unsupported finance type: %s", strconv.Quote(normalized))
	}
}
