package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sentinelworks/sentinel/internal/config"
	toolcore "github.com/sentinelworks/sentinel/internal/tool"
)

const (
	defaultWeatherDurationDays = 7
	maxWeatherDurationDays     = 14
)

type wttrNamedValue struct {
	Value string `json:"value"`
}

type wttrCurrentCondition struct {
	TempC           string           `json:"temp_C"`
	FeelsLikeC      string           `json:"FeelsLikeC"`
	WeatherDesc     []wttrNamedValue `json:"weatherDesc"`
	Humidity        string           `json:"humidity"`
	WindspeedKmph   string           `json:"windspeedKmph"`
	ObservationTime string           `json:"observation_time"`
}

type wttrNearestArea struct {
	AreaName []wttrNamedValue `json:"areaName"`
	Region   []wttrNamedValue `json:"region"`
	Country  []wttrNamedValue `json:"country"`
}

type wttrHourly struct {
	WeatherDesc []wttrNamedValue `json:"weatherDesc"`
}

type wttrWeatherDay struct {
	Date     string       `json:"date"`
	MaxTempC string       `json:"maxtempC"`
	MinTempC string       `json:"mintempC"`
	AvgTempC string       `json:"avgtempC"`
	Hourly   []wttrHourly `json:"hourly"`
}

type wttrResponse struct {
	CurrentCondition []wttrCurrentCondition `json:"current_condition"`
	NearestArea      []wttrNearestArea      `json:"nearest_area"`
	Weather          []wttrWeatherDay       `json:"weather"`
}

// WeatherTool fetches weather data by location.
type WeatherTool struct {
	client  *http.Client
	baseURL string
}

func NewWeatherTool(cfg config.WeatherToolConfig) (*WeatherTool, error) {
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultWeatherToolTimeout)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = config.DefaultWeatherToolBaseURL
	}

	return &WeatherTool{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}, nil
}

func (t *WeatherTool) Name() string { return "weather" }

func (t *WeatherTool) Description() string {
	return "Get weather forecast by location."
}

func (t *WeatherTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"location": map[string]interface{}{
				"type":        "string",
				"description": "Location in text format (for example: San Francisco, CA)",
			},
			"start_date": map[string]interface{}{
				"type":        "string",
				"format":      "date",
				"description": "Optional start date in YYYY-MM-DD format; \"today\" is accepted",
			},
			"duration": map[string]interface{}{
				"type":        "integer",
				"description": "Optional number of days to include (default 7)",
			},
		},
		"required": []string{"location"},
	}
}

func (t *WeatherTool) Execute(ctx context.Context, _ toolcore.Invocation, input json.RawMessage) (toolcore.Result, error) {
	var args struct {
		Location  string `json:"location"`
		StartDate string `json:"start_date"`
		Duration  int    `json:"duration"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolcore.Result{}, fmt.Errorf("invalid input: %w", err)
	}

	location := strings.TrimSpace(args.Location)
	if location == "" {
		return toolcore.Result{}, fmt.Errorf("location is required")
	}

	endpoint, err := weatherEndpoint(t.baseURL, location)
	if err != nil {
		return toolcore.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
		return toolcore.Result{}, fmt.Errorf("weather request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return toolcore.Result{}, err
	}

	var payload wttrResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return toolcore.Result{}, fmt.Errorf("decode weather response: %w", err)
	}
	if len(payload.CurrentCondition) == 0 {
		return toolcore.Result{}, fmt.Errorf("weather response missing current condition")
	}

	selectedDays, effectiveStart, err := selectForecastDays(payload.Weather, args.StartDate, args.Duration)
	if err != nil {
		return toolcore.Result{}, err
	}

	forecast := make([]map[string]string, 0, len(selectedDays))
	for _, day := range selectedDays {
		forecast = append(forecast, map[string]string{
			"date":       strings.TrimSpace(day.Date),
			"min_temp_c": strings.TrimSpace(day.MinTempC),
			"max_temp_c": strings.TrimSpace(day.MaxTempC),
			"avg_temp_c": strings.TrimSpace(day.AvgTempC),
			"condition":  firstHourlyWeatherDescription(day.Hourly),
		})
	}

	current := payload.CurrentCondition[0]
	return toolcore.StructuredResult(map[string]interface{}{
		"query_location": location,
		"location":       resolveWeatherLocation(payload.NearestArea, location),
		"start":          effectiveStart,
		"duration":       normalizeWeatherDuration(args.Duration),
		"current": map[string]string{
			"temperature_c":        strings.TrimSpace(current.TempC),
			"feels_like_c":         strings.TrimSpace(current.FeelsLikeC),
			"condition":            firstNamedValue(current.WeatherDesc),
			"humidity_pct":         strings.TrimSpace(current.Humidity),
			"wind_kmph":            strings.TrimSpace(current.WindspeedKmph),
			"observation_time_utc": strings.TrimSpace(current.ObservationTime),
		},
		"forecast": forecast,
	}), nil
}

func weatherEndpoint(baseURL string, location string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid weather endpoint: %w", err)
	}
	if strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return "", fmt.Errorf("invalid weather endpoint")
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/" + url.PathEscape(location)
	q := parsed.Query()
	q.Set("format", "j1")
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

func normalizeWeatherDuration(duration int) int {
	if duration <= 0 {
		return defaultWeatherDurationDays
	}
	if duration > maxWeatherDurationDays {
		return maxWeatherDurationDays
	}
	return duration
}

func selectForecastDays(days []wttrWeatherDay, start string, duration int) ([]wttrWeatherDay, string, error) {
	if len(days) == 0 {
		return []wttrWeatherDay{}, "", nil
	}

	effectiveDuration := normalizeWeatherDuration(duration)
	effectiveStart := strings.TrimSpace(days[0].Date)
	startDateStr := strings.TrimSpace(start)

	startIdx := 0
	if startDateStr != "" {
		startDate, err := time.Parse("2006-01-02", startDateStr)
		if err != nil {
			return nil, "", fmt.Errorf("start_date must use YYYY-MM-DD format")
		}

		found := false
		for i, day := range days {
			dayDate, err := time.Parse("2006-01-02", strings.TrimSpace(day.Date))
			if err != nil {
				continue
			}
			if !dayDate.Before(startDate) {
				startIdx = i
				effectiveStart = strings.TrimSpace(day.Date)
				found = true
				break
			}
		}

		if !found {
			return []wttrWeatherDay{}, startDateStr, nil
		}
	}

	endIdx := startIdx + effectiveDuration
	if endIdx > len(days) {
		endIdx = len(days)
	}

	selected := days[startIdx:endIdx]
	if len(selected) > 0 {
		effectiveStart = strings.TrimSpace(selected[0].Date)
	}

	return selected, effectiveStart, nil
}

func resolveWeatherLocation(nearest []wttrNearestArea, fallback string) string {
	if len(nearest) == 0 {
		return strings.TrimSpace(fallback)
	}

	parts := []string{
		firstNamedValue(nearest[0].AreaName),
		firstNamedValue(nearest[0].Region),
		firstNamedValue(nearest[0].Country),
	}

	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		nonEmpty = append(nonEmpty, part)
	}
	if len(nonEmpty) == 0 {
		return strings.TrimSpace(fallback)
	}
	return strings.Join(nonEmpty, ", ")
}

func firstNamedValue(values []wttrNamedValue) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func firstHourlyWeatherDescription(hourly []wttrHourly) string {
	if len(hourly) == 0 {
		return ""
	}
	return firstNamedValue(hourly[0].WeatherDesc)
}
