package gql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// Current is the part of the weather API answer the schema exposes.
type Current struct {
	TempC     float64 `json:"temp_c"`
	Condition struct {
		Icon string `json:"icon"`
	} `json:"condition"`
}

// WeatherClient reads current conditions from a weatherapi.com-compatible API.
type WeatherClient struct {
	baseURL string
	key     string
	http    *http.Client
	logger  logging.Logger
}

// NewWeatherClient returns a client for baseURL. A nil httpClient uses http.DefaultClient.
func NewWeatherClient(baseURL, key string, httpClient *http.Client, logger logging.Logger) *WeatherClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WeatherClient{baseURL: strings.TrimRight(baseURL, "/"), key: key, http: httpClient, logger: logging.OrNop(logger)}
}

// Current fetches current conditions for city.
func (c *WeatherClient) Current(ctx context.Context, city string) (Current, error) {
	q := url.Values{}
	q.Set("key", c.key)
	q.Set("q", city)
	q.Set("aqi", "no")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/current.json?"+q.Encode(), nil)
	if err != nil {
		return Current{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Current{}, fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Current{}, fmt.Errorf("weather: HTTP %d", resp.StatusCode)
	}
	var body struct {
		Current *Current `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Current{}, fmt.Errorf("weather: decode: %w", err)
	}
	if body.Current == nil {
		return Current{}, fmt.Errorf("weather: response has no current block")
	}
	return *body.Current, nil
}
