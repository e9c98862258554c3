// Package serve implements the serve command.
package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/frontend"
)

// Command creates the serve command, the main entry point of the service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the overlay front-end service",
		Long:  "Poll the detection pipeline, run the display schedulers and serve the overlay view endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return frontend.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.UI.Listen, "listen", viper.GetString("ui.listen"), "Listen address and port of the view endpoints")
	cmd.Flags().DurationVar(&settings.Overlay.PollInterval, "pollinterval", viper.GetDuration("overlay.pollinterval"), "Status poll cadence")
	cmd.Flags().Float64Var(&settings.Overlay.HoldSeconds, "hold", viper.GetFloat64("overlay.holdseconds"), "Fallback display hold in seconds")
	cmd.Flags().StringVar(&settings.Overlay.DataDir, "datadir", viper.GetString("overlay.datadir"), "Directory for the persisted last-shown cache")
	cmd.Flags().BoolVar(&settings.Weather.Enabled, "weather", viper.GetBool("weather.enabled"), "Enable the weather overlay service")
	cmd.Flags().BoolVar(&settings.UI.Metrics, "metrics", viper.GetBool("ui.metrics"), "Expose Prometheus metrics on /metrics")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
