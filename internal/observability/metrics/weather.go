package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WeatherMetrics contains Prometheus metrics for weather service operations
type WeatherMetrics struct {
	registry *prometheus.Registry

	fetchesTotal     *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	temperatureGauge prometheus.Gauge
	humidityGauge    prometheus.Gauge
	windSpeedGauge   prometheus.Gauge
}

// NewWeatherMetrics creates and registers new weather metrics
func NewWeatherMetrics(registry *prometheus.Registry) (*WeatherMetrics, error) {
	m := &WeatherMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *WeatherMetrics) initMetrics() error {
	m.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_fetches_total",
			Help: "Total number of weather data fetch operations",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	m.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weather_fetch_duration_seconds",
			Help:    "Time taken to fetch weather data",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"provider"},
	)

	m.temperatureGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weather_temperature_celsius",
		Help: "Last observed temperature in Celsius",
	})

	m.humidityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weather_humidity_percent",
		Help: "Last observed relative humidity",
	})

	m.windSpeedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weather_wind_speed_mps",
		Help: "Last observed wind speed in meters per second",
	})

	return nil
}

// Describe implements the prometheus.Collector interface
func (m *WeatherMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.fetchesTotal.Describe(ch)
	m.fetchDuration.Describe(ch)
	m.temperatureGauge.Describe(ch)
	m.humidityGauge.Describe(ch)
	m.windSpeedGauge.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *WeatherMetrics) Collect(ch chan<- prometheus.Metric) {
	m.fetchesTotal.Collect(ch)
	m.fetchDuration.Collect(ch)
	m.temperatureGauge.Collect(ch)
	m.humidityGauge.Collect(ch)
	m.windSpeedGauge.Collect(ch)
}

// RecordFetch records the outcome of one weather fetch.
func (m *WeatherMetrics) RecordFetch(provider, status string) {
	m.fetchesTotal.WithLabelValues(provider, status).Inc()
}

// RecordFetchDuration records how long a weather fetch took.
func (m *WeatherMetrics) RecordFetchDuration(provider string, seconds float64) {
	m.fetchDuration.WithLabelValues(provider).Observe(seconds)
}

// UpdateGauges sets the last observed conditions.
func (m *WeatherMetrics) UpdateGauges(temperature, humidity, windSpeed float64) {
	m.temperatureGauge.Set(temperature)
	m.humidityGauge.Set(humidity)
	m.windSpeedGauge.Set(windSpeed)
}
