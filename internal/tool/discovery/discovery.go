package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/model/contract"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

// Client discovers tools from external endpoints and mirrors them into
// the registry as executable remote tools. Initialization is safe: an
// unreachable endpoint logs a warning and contributes nothing, it never
// fails startup.
type Client struct {
	registry   *toolcore.Registry
	endpoints  []string
	httpClient *http.Client
	policy     string
	cacheTTL   time.Duration

	mu        sync.Mutex
	lastFetch time.Time

	scheduler *cron.Cron
}

func NewClient(registry *toolcore.Registry, cfg config.DiscoveryConfig) (*Client, error) {
	fetchTimeout, err := config.DurationOrDefault(cfg.FetchTimeout, config.DefaultDiscoveryFetchTimeout)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := config.DurationOrDefault(cfg.CacheTTL, config.DefaultDiscoveryCacheTTL)
	if err != nil {
		return nil, err
	}

	policy := strings.TrimSpace(strings.ToLower(cfg.RefreshPolicy))
	switch policy {
	case config.RefreshPolicyCache, config.RefreshPolicyAlways:
	case "":
		policy = config.RefreshPolicyCache
	default:
		return nil, fmt.Errorf("unknown discovery refresh policy: %q", cfg.RefreshPolicy)
	}

	c := &Client{
		registry:   registry,
		endpoints:  cfg.Endpoints,
		httpClient: &http.Client{Timeout: fetchTimeout},
		policy:     policy,
		cacheTTL:   cacheTTL,
	}

	if spec := strings.TrimSpace(cfg.RefreshCron); spec != "" {
		c.scheduler = cron.New()
		if _, err := c.scheduler.AddFunc(spec, func() {
			if err := c.Refresh(context.Background()); err != nil {
				slog.Warn("Scheduled tool discovery refresh failed", "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("invalid discovery refresh cron: %w", err)
		}
	}

	return c, nil
}

// Start performs the initial discovery and begins any scheduled refresh.
// Discovery failures are logged and leave the dynamic tool set empty.
func (c *Client) Start(ctx context.Context) {
	if len(c.endpoints) == 0 {
		return
	}

	if err := c.Refresh(ctx); err != nil {
		slog.Warn("Initial tool discovery failed, continuing without dynamic tools", "error", err)
	}
	if c.scheduler != nil {
		c.scheduler.Start()
	}
}

func (c *Client) Stop() {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
}

// EnsureFresh refreshes the dynamic tool set according to the configured
// policy: "always" re-fetches on every call, "cache" re-fetches only once
// the TTL has expired. Refresh failures keep the last known set.
func (c *Client) EnsureFresh(ctx context.Context) {
	if len(c.endpoints) == 0 {
		return
	}

	if c.policy == config.RefreshPolicyCache {
		c.mu.Lock()
		fresh := !c.lastFetch.IsZero() && time.Since(c.lastFetch) < c.cacheTTL
		c.mu.Unlock()
		if fresh {
			return
		}
	}

	if err := c.Refresh(ctx); err != nil {
		slog.Warn("Tool discovery refresh failed, keeping previous set", "error", err)
	}
}

// Refresh fetches descriptors from every endpoint and swaps the dynamic
// tool set in the registry.
func (c *Client) Refresh(ctx context.Context) error {
	var tools []toolcore.Tool
	var firstErr error

	for _, endpoint := range c.endpoints {
		defs, err := c.fetchDefinitions(ctx, endpoint)
		if err != nil {
			slog.Warn("Tool discovery endpoint unreachable", "endpoint", endpoint, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, def := range defs {
			tools = append(tools, &remoteTool{
				def:      def,
				endpoint: endpoint,
				client:   c.httpClient,
			})
		}
	}

	if firstErr != nil && len(tools) == 0 {
		return firstErr
	}

	c.registry.ReplaceDiscovered(tools)

	c.mu.Lock()
	c.lastFetch = time.Now()
	c.mu.Unlock()

	slog.Info("Discovered tools refreshed", "count", len(tools))
	return nil
}

func (c *Client) fetchDefinitions(ctx context.Context, endpoint string) ([]contract.ToolDef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(endpoint, "/")+"/tools", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var defs []contract.ToolDef
	if err := json.Unmarshal(body, &defs); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}
	return defs, nil
}

// remoteTool proxies execution back to the discovery endpoint.
type remoteTool struct {
	def      contract.ToolDef
	endpoint string
	client   *http.Client
}

func (t *remoteTool) Name() string        { return t.def.Name }
func (t *remoteTool) Description() string { return t.def.Description }

func (t *remoteTool) Parameters() map[string]interface{} {
	return t.def.Parameters
}

func (t *remoteTool) Execute(ctx context.Context, inv toolcore.Invocation, input json.RawMessage) (toolcore.Result, error) {
	url := strings.TrimSuffix(t.endpoint, "/") + "/tools/" + t.def.Name
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(input)))
	if err != nil {
		return toolcore.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if inv.ThreadID != "" {
		req.Header.Set("X-Thread-ID", inv.ThreadID)
	}
	if inv.UserID != "" {
		req.Header.Set("X-User-ID", inv.UserID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return toolcore.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return toolcore.Result{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return toolcore.Result{}, fmt.Errorf("remote tool %s failed: %s", t.def.Name, resp.Status)
	}

	var value interface{}
	if err := json.Unmarshal(body, &value); err != nil {
		return toolcore.TextResult(string(body)), nil
	}
	return toolcore.StructuredResult(value), nil
}
