// Package weather fetches current conditions for the weather overlay
// and keeps a display-ready view the HTTP handlers serve. A failed
// fetch degrades to the last good view, never a blank one.
package weather

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/errors"
	"github.com/featherfront/feather-front/internal/logging"
	"github.com/featherfront/feather-front/internal/observability/metrics"
	"github.com/featherfront/feather-front/internal/pipeline"
	"github.com/featherfront/feather-front/internal/suncalc"
)

// Package-level logger for weather service
var (
	weatherLogger   *slog.Logger
	weatherLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	weatherLevelVar.Set(slog.LevelDebug)

	weatherLogger, _, err = logging.NewFileLogger("logs/weather.log", "weather", weatherLevelVar)
	if err != nil {
		logging.Error("Failed to initialize weather file logger", "error", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: weatherLevelVar})
		weatherLogger = slog.New(fbHandler).With("service", "weather")
	}
}

// Provider represents a weather data provider interface
type Provider interface {
	FetchWeather(settings *conf.Settings) (*WeatherData, error)
}

// SettingsSource provides the pipeline-owned weather overlay settings
// (display location and unit). *pipeline.Client satisfies it.
type SettingsSource interface {
	WeatherSettings(ctx context.Context) (*pipeline.WeatherSettings, error)
}

// WeatherData represents the common structure for weather data across providers
type WeatherData struct {
	Time        time.Time
	Location    Location
	Temperature Temperature
	Wind        Wind
	Clouds      int
	Pressure    int
	Humidity    int
	Description string
	Icon        string
}

type Location struct {
	Latitude  float64
	Longitude float64
	Country   string
	City      string
}

type Temperature struct {
	Current   float64
	FeelsLike float64
	Min       float64
	Max       float64
}

type Wind struct {
	Speed float64
	Deg   int
	Gust  float64
}

// View is the display-ready weather state served to the overlay page.
type View struct {
	Temperature string    `json:"temperature"` // formatted with unit, e.g. "14°C"
	FeelsLike   string    `json:"feels_like"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Humidity    int       `json:"humidity"`
	WindSpeed   string    `json:"wind_speed"`
	Location    string    `json:"location"`
	Sunrise     string    `json:"sunrise,omitempty"`
	Sunset      string    `json:"sunset,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	Stale       bool      `json:"stale"` // last fetch failed, view carried over
}

// Service polls the configured provider and maintains the current view.
type Service struct {
	provider Provider
	source   SettingsSource
	settings *conf.Settings
	sun      *suncalc.SunCalc
	metrics  *metrics.WeatherMetrics

	mu   sync.RWMutex
	view View
	ok   bool // at least one successful fetch
}

// NewService creates a new weather service with the configured provider.
func NewService(settings *conf.Settings, source SettingsSource, sun *suncalc.SunCalc, weatherMetrics *metrics.WeatherMetrics) (*Service, error) {
	var provider Provider

	switch settings.Weather.Provider {
	case "openweather":
		provider = NewOpenWeatherProvider()
	default:
		return nil, errors.New(fmt.Errorf("invalid weather provider: %s", settings.Weather.Provider)).
			Component("weather").
			Category(errors.CategoryConfiguration).
			Context("provider", settings.Weather.Provider).
			Build()
	}

	return &Service{
		provider: provider,
		source:   source,
		settings: settings,
		sun:      sun,
		metrics:  weatherMetrics,
	}, nil
}

// Run polls the provider until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	interval := s.settings.Weather.PollInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	weatherLogger.Info("weather service started",
		"provider", s.settings.Weather.Provider, "poll_interval", interval)

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			weatherLogger.Info("weather service stopped")
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh performs one fetch cycle. Failures mark the current view
// stale and otherwise leave it untouched.
func (s *Service) Refresh(ctx context.Context) {
	start := time.Now()
	data, err := s.provider.FetchWeather(s.settings)
	if s.metrics != nil {
		s.metrics.RecordFetchDuration(s.settings.Weather.Provider, time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordFetch(s.settings.Weather.Provider, "error")
		}
		weatherLogger.Warn("weather fetch failed, keeping previous view", "error", err)
		s.markStale()
		return
	}
	if s.metrics != nil {
		s.metrics.RecordFetch(s.settings.Weather.Provider, "success")
		s.metrics.UpdateGauges(data.Temperature.Current, float64(data.Humidity), data.Wind.Speed)
	}

	unit := "celsius"
	location := ""
	if s.source != nil {
		if ws, err := s.source.WeatherSettings(ctx); err == nil {
			if ws.Unit != "" {
				unit = ws.Unit
			}
			location = ws.Location
		} else {
			weatherLogger.Debug("pipeline weather settings unavailable", "error", err)
		}
	}
	if location == "" {
		location = data.Location.City
	}

	view := s.buildView(data, unit, location)

	s.mu.Lock()
	s.view = view
	s.ok = true
	s.mu.Unlock()
}

func (s *Service) markStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ok {
		s.view.Stale = true
	}
}

func (s *Service) buildView(data *WeatherData, unit, location string) View {
	view := View{
		Temperature: formatTemperature(data.Temperature.Current, unit),
		FeelsLike:   formatTemperature(data.Temperature.FeelsLike, unit),
		Description: data.Description,
		Icon:        data.Icon,
		Humidity:    data.Humidity,
		WindSpeed:   fmt.Sprintf("%.1f m/s", data.Wind.Speed),
		Location:    location,
		UpdatedAt:   data.Time,
	}
	if s.sun != nil {
		if times, err := s.sun.GetSunEventTimes(data.Time); err == nil {
			view.Sunrise = times.Sunrise.Format("15:04")
			view.Sunset = times.Sunset.Format("15:04")
		} else {
			weatherLogger.Debug("sun event calculation failed", "error", err)
		}
	}
	return view
}

// View returns the current display-ready weather view and whether any
// fetch has succeeded yet.
func (s *Service) View() (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view, s.ok
}

// formatTemperature renders a Celsius value in the requested unit.
func formatTemperature(celsius float64, unit string) string {
	if unit == "fahrenheit" {
		return fmt.Sprintf("%.0f°F", CelsiusToFahrenheit(celsius))
	}
	return fmt.Sprintf("%.0f°C", celsius)
}
