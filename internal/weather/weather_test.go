package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/pipeline"
)

type fakeProvider struct {
	data *WeatherData
	err  error
}

func (f *fakeProvider) FetchWeather(*conf.Settings) (*WeatherData, error) {
	return f.data, f.err
}

type fakeSettingsSource struct {
	settings *pipeline.WeatherSettings
	err      error
}

func (f *fakeSettingsSource) WeatherSettings(context.Context) (*pipeline.WeatherSettings, error) {
	return f.settings, f.err
}

func testWeatherData() *WeatherData {
	return &WeatherData{
		Time:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Location:    Location{City: "Helsinki", Country: "FI"},
		Temperature: Temperature{Current: 14.55, FeelsLike: 13.88},
		Wind:        Wind{Speed: 4.12},
		Humidity:    72,
		Description: "broken clouds",
		Icon:        "04d",
	}
}

func newTestService(t *testing.T, provider Provider, source SettingsSource) *Service {
	t.Helper()
	settings := &conf.Settings{}
	settings.Weather.Provider = "openweather"
	svc, err := NewService(settings, source, nil, nil)
	require.NoError(t, err)
	svc.provider = provider
	return svc
}

func TestNewServiceUnknownProvider(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Weather.Provider = "met-office"

	svc, err := NewService(settings, nil, nil, nil)
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "invalid weather provider")
}

func TestRefreshBuildsView(t *testing.T) {
	t.Parallel()

	source := &fakeSettingsSource{settings: &pipeline.WeatherSettings{Location: "Backyard", Unit: "celsius"}}
	svc := newTestService(t, &fakeProvider{data: testWeatherData()}, source)

	svc.Refresh(context.Background())

	view, ok := svc.View()
	require.True(t, ok)
	assert.Equal(t, "15°C", view.Temperature)
	assert.Equal(t, "broken clouds", view.Description)
	assert.Equal(t, "Backyard", view.Location, "pipeline display location should win over the API city")
	assert.Equal(t, 72, view.Humidity)
	assert.False(t, view.Stale)
}

func TestRefreshFahrenheitUnit(t *testing.T) {
	t.Parallel()

	source := &fakeSettingsSource{settings: &pipeline.WeatherSettings{Unit: "fahrenheit"}}
	svc := newTestService(t, &fakeProvider{data: testWeatherData()}, source)

	svc.Refresh(context.Background())

	view, ok := svc.View()
	require.True(t, ok)
	assert.Equal(t, "58°F", view.Temperature)
	assert.Equal(t, "Helsinki", view.Location, "API city is the fallback display location")
}

func TestRefreshFailureKeepsPreviousView(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{data: testWeatherData()}
	svc := newTestService(t, provider, &fakeSettingsSource{err: errors.New("unreachable")})

	svc.Refresh(context.Background())
	before, ok := svc.View()
	require.True(t, ok)

	provider.data = nil
	provider.err = errors.New("connection refused")
	svc.Refresh(context.Background())

	after, ok := svc.View()
	require.True(t, ok)
	assert.Equal(t, before.Temperature, after.Temperature)
	assert.Equal(t, before.Description, after.Description)
	assert.True(t, after.Stale, "a failed refresh should mark the carried-over view stale")
}

func TestRefreshFailureBeforeFirstFetch(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeProvider{err: errors.New("connection refused")}, nil)

	svc.Refresh(context.Background())

	_, ok := svc.View()
	assert.False(t, ok, "no view should be reported before the first successful fetch")
}

func TestTemperatureConversions(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 32.0, CelsiusToFahrenheit(0), 1e-9)
	assert.InDelta(t, 212.0, CelsiusToFahrenheit(100), 1e-9)
	assert.InDelta(t, 0.0, FahrenheitToCelsius(32), 1e-9)
	assert.InDelta(t, 100.0, FahrenheitToCelsius(212), 1e-9)
}
