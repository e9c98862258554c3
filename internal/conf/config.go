// Package conf loads and persists the application configuration using viper,
// with defaults, YAML config file discovery and environment overrides.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings is the root configuration for feather-front.
type Settings struct {
	Debug bool `yaml:"debug"` // true enables debug logging

	Main struct {
		Name string    `yaml:"name"` // node name, included in published messages
		Log  LogConfig `yaml:"log"`
	} `yaml:"main"`

	Pipeline PipelineSettings `yaml:"pipeline"`
	Overlay  OverlaySettings  `yaml:"overlay"`
	UI       UISettings       `yaml:"ui"`
	Weather  WeatherSettings  `yaml:"weather"`
	Publish  PublishSettings  `yaml:"publish"`
	Notify   NotifySettings   `yaml:"notify"`
}

// LogConfig controls the rotating file log.
type LogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxsizemb"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAgeDays int    `yaml:"maxagedays"`
}

// PipelineSettings locates the external detection pipeline server.
type PipelineSettings struct {
	BaseURL  string        `yaml:"baseurl"`  // e.g. http://127.0.0.1:8002
	Username string        `yaml:"username"` // HTTP Basic user, forwarded as-is
	Password string        `yaml:"password"` // HTTP Basic password, forwarded as-is
	Timeout  time.Duration `yaml:"timeout"`  // per-request timeout
}

// OverlaySettings controls the detection display scheduler.
type OverlaySettings struct {
	PollInterval    time.Duration `yaml:"pollinterval"`    // status poll cadence
	RefreshInterval time.Duration `yaml:"refreshinterval"` // time-derived display refresh
	HoldSeconds     float64       `yaml:"holdseconds"`     // fallback hold when the pipeline sends none
	SlideshowHold   float64       `yaml:"slideshowhold"`   // fallback hold for the slideshow variant
	ExitAnimation   time.Duration `yaml:"exitanimation"`   // exit-animation window after a close
	InterItemGap    time.Duration `yaml:"interitemgap"`    // gap before the next dequeue
	DataDir         string        `yaml:"datadir"`         // holds the persisted last-shown cache
}

// UISettings controls the embedded HTTP server.
type UISettings struct {
	Listen          string        `yaml:"listen"`          // host:port
	SummaryCacheTTL time.Duration `yaml:"summarycachettl"` // safety TTL on the revision-keyed summary cache
	Metrics         bool          `yaml:"metrics"`         // expose /metrics
}

// WeatherSettings controls the weather overlay service.
type WeatherSettings struct {
	Enabled      bool          `yaml:"enabled"`
	Provider     string        `yaml:"provider"` // "openweather"
	PollInterval time.Duration `yaml:"pollinterval"`
	Latitude     float64       `yaml:"latitude"`  // used when the pipeline has no coordinates
	Longitude    float64       `yaml:"longitude"` // used when the pipeline has no coordinates
	OpenWeather  struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"apikey"`
	} `yaml:"openweather"`
}

// PublishSettings controls MQTT publishing of display transitions.
type PublishSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Retain   bool   `yaml:"retain"`
}

// NotifySettings controls new-species push notifications.
type NotifySettings struct {
	Enabled bool     `yaml:"enabled"`
	URLs    []string `yaml:"urls"` // shoutrrr service URLs
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a
// Settings instance and validates it.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// GetSettings returns the most recently loaded settings instance, or nil
// if Load has not been called.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper initializes viper with defaults and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("featherfront")
	viper.AutomaticEnv()

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Missing config file is fine, defaults plus env cover first run
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the config file search path: current working
// directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(configDir, "feather-front"))
	}
	return paths, nil
}

// Save writes the settings to the given path as YAML.
func Save(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// ValidateSettings checks invariants that would otherwise surface as
// confusing runtime behavior.
func ValidateSettings(settings *Settings) error {
	if settings.Pipeline.BaseURL == "" {
		return fmt.Errorf("pipeline.baseurl must be set")
	}
	if settings.Overlay.PollInterval <= 0 {
		return fmt.Errorf("overlay.pollinterval must be positive, got %v", settings.Overlay.PollInterval)
	}
	if settings.Overlay.RefreshInterval <= 0 {
		return fmt.Errorf("overlay.refreshinterval must be positive, got %v", settings.Overlay.RefreshInterval)
	}
	if settings.Overlay.HoldSeconds <= 0 {
		return fmt.Errorf("overlay.holdseconds must be positive, got %v", settings.Overlay.HoldSeconds)
	}
	if settings.UI.Listen == "" {
		return fmt.Errorf("ui.listen must be set")
	}
	if settings.Weather.Enabled {
		switch settings.Weather.Provider {
		case "openweather":
		default:
			return fmt.Errorf("invalid weather provider: %s", settings.Weather.Provider)
		}
	}
	if settings.Publish.Enabled && settings.Publish.Broker == "" {
		return fmt.Errorf("publish.broker must be set when publishing is enabled")
	}
	if settings.Notify.Enabled && len(settings.Notify.URLs) == 0 {
		return fmt.Errorf("notify.urls must be set when notifications are enabled")
	}
	return nil
}
