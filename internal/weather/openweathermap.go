package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// OpenWeatherMap API endpoints. Overridable for tests.
const (
	owmForecastURL = "https://api.openweathermap.org/data/2.5/forecast"
	owmHistoryURL  = "https://api.openweathermap.org/data/3.0/onecall/timemachine"
	owmCurrentURL  = "https://api.openweathermap.org/data/2.5/weather"
)

// OpenWeatherMap fetches forecast and recent rainfall from the
// OpenWeatherMap API.
//
// Forecast data comes from the 5-day/3-hour forecast endpoint; the
// look-back uses the One Call timemachine endpoint with a fallback to
// current conditions when the history plan is not available.
type OpenWeatherMap struct {
	opts   Options
	client *http.Client

	forecastURL string
	historyURL  string
	currentURL  string
}

// NewOpenWeatherMap creates an OpenWeatherMap provider.
func NewOpenWeatherMap(opts Options) *OpenWeatherMap {
	return &OpenWeatherMap{
		opts:        opts,
		client:      opts.httpClient(),
		forecastURL: owmForecastURL,
		historyURL:  owmHistoryURL,
		currentURL:  owmCurrentURL,
	}
}

// Name returns the provider identifier.
func (p *OpenWeatherMap) Name() string { return "openweathermap" }

// owmForecastResponse is the subset of the 3-hour forecast payload we use.
type owmForecastResponse struct {
	List []struct {
		Dt   int64   `json:"dt"`
		Pop  float64 `json:"pop"` // probability 0-1
		Rain struct {
			ThreeHour float64 `json:"3h"`
		} `json:"rain"`
	} `json:"list"`
}

// owmHistoryResponse is the subset of the timemachine payload we use.
type owmHistoryResponse struct {
	Data []struct {
		Rain struct {
			OneHour float64 `json:"1h"`
		} `json:"rain"`
	} `json:"data"`
}

// owmCurrentResponse is the subset of the current weather payload we use.
type owmCurrentResponse struct {
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

// Fetch returns forecast and recent rainfall for the configured location.
func (p *OpenWeatherMap) Fetch(ctx context.Context) (*Snapshot, error) {
	if p.opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	forecastMM, chance, err := p.fetchForecast(ctx)
	if err != nil {
		return nil, err
	}

	recentMM, err := p.fetchRecent(ctx)
	if err != nil {
		return nil, err
	}

	if p.opts.imperial() {
		forecastMM *= mmToInches
		recentMM *= mmToInches
	}

	return &Snapshot{
		ForecastRainMM: forecastMM,
		ForecastChance: chance,
		RecentRainMM:   recentMM,
		Provider:       p.Name(),
		FetchedAt:      time.Now(),
	}, nil
}

// fetchForecast sums expected rain over the look-ahead window and takes
// the peak precipitation probability.
func (p *OpenWeatherMap) fetchForecast(ctx context.Context) (totalMM, chance float64, err error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", p.opts.Latitude))
	q.Set("lon", fmt.Sprintf("%f", p.opts.Longitude))
	q.Set("appid", p.opts.APIKey)
	q.Set("units", "metric")

	var out owmForecastResponse
	if err := p.getJSON(ctx, p.forecastURL, q, &out); err != nil {
		return 0, 0, err
	}

	end := time.Now().Add(time.Duration(p.opts.ForecastHours) * time.Hour)
	for _, item := range out.List {
		t := time.Unix(item.Dt, 0)
		if t.After(end) {
			continue
		}
		totalMM += item.Rain.ThreeHour
		if pop := item.Pop * 100; pop > chance {
			chance = pop
		}
	}

	return totalMM, chance, nil
}

// fetchRecent returns rainfall over the look-back window. The
// timemachine endpoint needs a paid plan on some accounts, so a 4xx
// there falls back to current conditions rather than failing the fetch.
func (p *OpenWeatherMap) fetchRecent(ctx context.Context) (float64, error) {
	ts := time.Now().Add(-time.Duration(p.opts.RecentHours) * time.Hour).Unix()

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", p.opts.Latitude))
	q.Set("lon", fmt.Sprintf("%f", p.opts.Longitude))
	q.Set("dt", fmt.Sprintf("%d", ts))
	q.Set("appid", p.opts.APIKey)
	q.Set("units", "metric")

	var out owmHistoryResponse
	err := p.getJSON(ctx, p.historyURL, q, &out)
	if err == nil && len(out.Data) > 0 {
		return out.Data[0].Rain.OneHour, nil
	}
	if err != nil && ctx.Err() != nil {
		return 0, err
	}

	// Fallback to current conditions
	q.Del("dt")
	var current owmCurrentResponse
	if err := p.getJSON(ctx, p.currentURL, q, &current); err != nil {
		return 0, err
	}
	return current.Rain.OneHour, nil
}

// getJSON performs a GET request and decodes the JSON response.
func (p *OpenWeatherMap) getJSON(ctx context.Context, baseURL string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: openweathermap status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrUnavailable, err)
	}
	return nil
}
