package weather

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Sentinel errors for weather operations.
var (
	// ErrMissingAPIKey indicates the provider was constructed without credentials.
	ErrMissingAPIKey = errors.New("weather: missing API key")

	// ErrUnavailable indicates the provider could not supply data.
	// Callers treat this as "weather unknown" and fail open.
	ErrUnavailable = errors.New("weather: data unavailable")

	// ErrUnsupportedProvider indicates an unknown provider name.
	ErrUnsupportedProvider = errors.New("weather: unsupported provider")
)

// mmPerInch converts millimetres to inches for imperial output.
const mmToInches = 0.0393701

// Snapshot is a point-in-time view of the weather conditions the
// irrigation engine decides on. Rain amounts are in the configured
// units (mm for metric, inches for imperial).
type Snapshot struct {
	// ForecastRainMM is the total expected rainfall over the
	// look-ahead window.
	ForecastRainMM float64

	// ForecastChance is the peak precipitation probability (0-100)
	// seen anywhere in the look-ahead window.
	ForecastChance float64

	// RecentRainMM is the rainfall observed over the look-back window.
	RecentRainMM float64

	// Provider names the API that produced this snapshot.
	Provider string

	// FetchedAt is when the snapshot was taken.
	FetchedAt time.Time
}

// Provider fetches weather conditions from an external API.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Fetch returns the current snapshot for the configured location.
	// A nil snapshot with a non-nil error means weather is unknown;
	// the caller decides whether to fail open.
	Fetch(ctx context.Context) (*Snapshot, error)

	// Name returns the provider identifier (e.g. "openweathermap").
	Name() string
}

// Options configures a weather provider.
type Options struct {
	// APIKey authenticates against the provider.
	APIKey string

	// Latitude and Longitude locate the site.
	Latitude  float64
	Longitude float64

	// Units is "metric" (mm) or "imperial" (inches).
	Units string

	// ForecastHours is the look-ahead window for forecast rain.
	ForecastHours int

	// RecentHours is the look-back window for recent rainfall.
	RecentHours int

	// HTTPClient overrides the default client (used in tests).
	HTTPClient *http.Client
}

// httpClient returns the configured client or a default with a sane timeout.
func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// imperial reports whether amounts should be converted to inches.
func (o Options) imperial() bool {
	return o.Units == "imperial"
}

// NewProvider constructs the named provider.
//
// Parameters:
//   - name: "openweathermap" or "weatherapi"
//   - opts: Location, credentials, and window configuration
//
// Returns:
//   - Provider: Ready-to-use provider
//   - error: ErrUnsupportedProvider for unknown names, ErrMissingAPIKey without credentials
func NewProvider(name string, opts Options) (Provider, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	switch name {
	case "openweathermap":
		return NewOpenWeatherMap(opts), nil
	case "weatherapi":
		return NewWeatherAPI(opts), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
