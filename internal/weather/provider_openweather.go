package weather

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/errors"
)

// OpenWeatherProvider fetches current conditions from the OpenWeather API.
type OpenWeatherProvider struct{}

// NewOpenWeatherProvider creates a new OpenWeather provider.
func NewOpenWeatherProvider() *OpenWeatherProvider {
	return &OpenWeatherProvider{}
}

// OpenWeatherResponse represents the structure of weather data returned by the OpenWeather API
type OpenWeatherResponse struct {
	Coord struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	} `json:"coord"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  int     `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
		Gust  float64 `json:"gust"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Dt  int64 `json:"dt"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Name string `json:"name"`
}

// FetchWeather implements the Provider interface for OpenWeatherProvider.
// Values are requested in metric units; unit conversion for display is
// the service's concern.
func (p *OpenWeatherProvider) FetchWeather(settings *conf.Settings) (*WeatherData, error) {
	if settings.Weather.OpenWeather.APIKey == "" {
		return nil, newWeatherError(fmt.Errorf("OpenWeather API key not configured"),
			errors.CategoryConfiguration, "fetch_weather", "openweather")
	}

	url := fmt.Sprintf("%s?lat=%.3f&lon=%.3f&appid=%s&units=metric&lang=en",
		settings.Weather.OpenWeather.Endpoint,
		settings.Weather.Latitude,
		settings.Weather.Longitude,
		settings.Weather.OpenWeather.APIKey,
	)

	client := &http.Client{
		Timeout: RequestTimeout,
	}

	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, newWeatherError(err, errors.CategoryNetwork, "create_request", "openweather")
	}
	req.Header.Set("User-Agent", UserAgent)

	var weatherData OpenWeatherResponse
	for i := 0; i < MaxRetries; i++ {
		resp, err := client.Do(req)
		if err != nil {
			if i == MaxRetries-1 {
				return nil, newWeatherError(fmt.Errorf("error fetching weather data: %w", err),
					errors.CategoryWeatherFetch, "fetch_weather", "openweather")
			}
			time.Sleep(RetryDelay)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if i == MaxRetries-1 {
				return nil, newWeatherError(fmt.Errorf("received non-200 response: %d", resp.StatusCode),
					errors.CategoryWeatherFetch, "fetch_weather", "openweather")
			}
			time.Sleep(RetryDelay)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, newWeatherError(err, errors.CategoryNetwork, "read_response", "openweather")
		}

		if err := json.Unmarshal(body, &weatherData); err != nil {
			return nil, newWeatherError(err, errors.CategoryWeatherFetch, "unmarshal_response", "openweather")
		}

		break
	}

	if len(weatherData.Weather) == 0 {
		return nil, newWeatherError(fmt.Errorf("no weather conditions returned from API"),
			errors.CategoryWeatherFetch, "fetch_weather", "openweather")
	}

	return &WeatherData{
		Time: time.Unix(weatherData.Dt, 0),
		Location: Location{
			Latitude:  weatherData.Coord.Lat,
			Longitude: weatherData.Coord.Lon,
			Country:   weatherData.Sys.Country,
			City:      weatherData.Name,
		},
		Temperature: Temperature{
			Current:   weatherData.Main.Temp,
			FeelsLike: weatherData.Main.FeelsLike,
			Min:       weatherData.Main.TempMin,
			Max:       weatherData.Main.TempMax,
		},
		Wind: Wind{
			Speed: weatherData.Wind.Speed,
			Deg:   weatherData.Wind.Deg,
			Gust:  weatherData.Wind.Gust,
		},
		Clouds:      weatherData.Clouds.All,
		Pressure:    weatherData.Main.Pressure,
		Humidity:    weatherData.Main.Humidity,
		Description: weatherData.Weather[0].Description,
		Icon:        weatherData.Weather[0].Icon,
	}, nil
}
