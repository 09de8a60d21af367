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

// WeatherAPI endpoints. Overridable for tests.
const (
	wapiForecastURL = "https://api.weatherapi.com/v1/forecast.json"
	wapiHistoryURL  = "https://api.weatherapi.com/v1/history.json"

	// wapiMaxForecastDays is the free-tier forecast horizon.
	wapiMaxForecastDays = 3
)

// WeatherAPI fetches forecast and recent rainfall from weatherapi.com.
type WeatherAPI struct {
	opts   Options
	client *http.Client

	forecastURL string
	historyURL  string
}

// NewWeatherAPI creates a WeatherAPI provider.
func NewWeatherAPI(opts Options) *WeatherAPI {
	return &WeatherAPI{
		opts:        opts,
		client:      opts.httpClient(),
		forecastURL: wapiForecastURL,
		historyURL:  wapiHistoryURL,
	}
}

// Name returns the provider identifier.
func (p *WeatherAPI) Name() string { return "weatherapi" }

// wapiResponse is the subset of the forecast/history payload we use.
// Both endpoints share the forecastday structure.
type wapiResponse struct {
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				TotalPrecipMM float64 `json:"totalprecip_mm"`
				TotalPrecipIn float64 `json:"totalprecip_in"`
			} `json:"day"`
			Hour []struct {
				Time         string  `json:"time"`
				ChanceOfRain float64 `json:"chance_of_rain"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// Fetch returns forecast and recent rainfall for the configured location.
func (p *WeatherAPI) Fetch(ctx context.Context) (*Snapshot, error) {
	if p.opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	forecast, chance, err := p.fetchForecast(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := p.fetchRecent(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ForecastRainMM: forecast,
		ForecastChance: chance,
		RecentRainMM:   recent,
		Provider:       p.Name(),
		FetchedAt:      time.Now(),
	}, nil
}

// fetchForecast sums daily precipitation for days inside the look-ahead
// window and takes the peak hourly rain chance.
func (p *WeatherAPI) fetchForecast(ctx context.Context) (total, chance float64, err error) {
	days := (p.opts.ForecastHours / 24) + 1
	if days > wapiMaxForecastDays {
		days = wapiMaxForecastDays
	}

	q := url.Values{}
	q.Set("key", p.opts.APIKey)
	q.Set("q", fmt.Sprintf("%f,%f", p.opts.Latitude, p.opts.Longitude))
	q.Set("days", fmt.Sprintf("%d", days))

	var out wapiResponse
	if err := p.getJSON(ctx, p.forecastURL, q, &out); err != nil {
		return 0, 0, err
	}

	end := time.Now().Add(time.Duration(p.opts.ForecastHours) * time.Hour)
	for _, day := range out.Forecast.ForecastDay {
		date, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			continue
		}
		if date.After(end) {
			continue
		}

		if p.opts.imperial() {
			total += day.Day.TotalPrecipIn
		} else {
			total += day.Day.TotalPrecipMM
		}

		for _, hour := range day.Hour {
			t, err := time.Parse("2006-01-02 15:04", hour.Time)
			if err != nil {
				continue
			}
			if t.After(end) {
				continue
			}
			if hour.ChanceOfRain > chance {
				chance = hour.ChanceOfRain
			}
		}
	}

	return total, chance, nil
}

// fetchRecent returns the precipitation total for the day the look-back
// window starts in.
func (p *WeatherAPI) fetchRecent(ctx context.Context) (float64, error) {
	date := time.Now().Add(-time.Duration(p.opts.RecentHours) * time.Hour).Format("2006-01-02")

	q := url.Values{}
	q.Set("key", p.opts.APIKey)
	q.Set("q", fmt.Sprintf("%f,%f", p.opts.Latitude, p.opts.Longitude))
	q.Set("dt", date)

	var out wapiResponse
	if err := p.getJSON(ctx, p.historyURL, q, &out); err != nil {
		return 0, err
	}
	if len(out.Forecast.ForecastDay) == 0 {
		return 0, fmt.Errorf("%w: weatherapi history returned no days", ErrUnavailable)
	}

	day := out.Forecast.ForecastDay[0].Day
	if p.opts.imperial() {
		return day.TotalPrecipIn, nil
	}
	return day.TotalPrecipMM, nil
}

// getJSON performs a GET request and decodes the JSON response.
func (p *WeatherAPI) getJSON(ctx context.Context, baseURL string, q url.Values, out any) error {
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
		return fmt.Errorf("%w: weatherapi status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrUnavailable, err)
	}
	return nil
}
