// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "Feather-Front")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/feather-front.log")
	viper.SetDefault("main.log.maxsizemb", 10)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	viper.SetDefault("pipeline.baseurl", "http://127.0.0.1:8002")
	viper.SetDefault("pipeline.username", "")
	viper.SetDefault("pipeline.password", "")
	viper.SetDefault("pipeline.timeout", 10*time.Second)

	viper.SetDefault("overlay.pollinterval", 2*time.Second)
	viper.SetDefault("overlay.refreshinterval", 1*time.Second)
	viper.SetDefault("overlay.holdseconds", 60.0)
	viper.SetDefault("overlay.slideshowhold", 60.0)
	viper.SetDefault("overlay.exitanimation", 600*time.Millisecond)
	viper.SetDefault("overlay.interitemgap", 400*time.Millisecond)
	viper.SetDefault("overlay.datadir", "data/")

	viper.SetDefault("ui.listen", "0.0.0.0:8080")
	viper.SetDefault("ui.summarycachettl", 5*time.Minute)
	viper.SetDefault("ui.metrics", true)

	viper.SetDefault("weather.enabled", false)
	viper.SetDefault("weather.provider", "openweather")
	viper.SetDefault("weather.pollinterval", 10*time.Minute)
	viper.SetDefault("weather.latitude", 0.000)
	viper.SetDefault("weather.longitude", 0.000)
	viper.SetDefault("weather.openweather.endpoint", "https://api.openweathermap.org/data/2.5/weather")
	viper.SetDefault("weather.openweather.apikey", "")

	viper.SetDefault("publish.enabled", false)
	viper.SetDefault("publish.broker", "")
	viper.SetDefault("publish.topic", "featherfront/overlay")
	viper.SetDefault("publish.retain", false)

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.urls", []string{})
}
