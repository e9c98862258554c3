// Package frontend wires the pipeline client, schedulers, weather
// service and HTTP server together and runs them until shutdown.
package frontend

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/featherfront/feather-front/internal/cache"
	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/errors"
	"github.com/featherfront/feather-front/internal/logging"
	"github.com/featherfront/feather-front/internal/notify"
	"github.com/featherfront/feather-front/internal/observability"
	"github.com/featherfront/feather-front/internal/observability/metrics"
	"github.com/featherfront/feather-front/internal/overlay"
	"github.com/featherfront/feather-front/internal/pipeline"
	"github.com/featherfront/feather-front/internal/publish"
	"github.com/featherfront/feather-front/internal/scheduler"
	"github.com/featherfront/feather-front/internal/suncalc"
	"github.com/featherfront/feather-front/internal/ui"
	"github.com/featherfront/feather-front/internal/weather"
)

const shutdownTimeout = 10 * time.Second

func secondsToDuration(secs float64) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// Run starts all services and blocks until SIGINT/SIGTERM or a fatal
// server error.
func Run(settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *observability.Metrics
	if settings.UI.Metrics {
		var err error
		m, err = observability.NewMetrics()
		if err != nil {
			return errors.New(err).
				Component("frontend").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	pc := pipeline.New(&settings.Pipeline, logging.ForService("pipeline"))
	defer pc.Close()
	if m != nil {
		pipelineMetrics := m.Pipeline
		pc.HTTPClient().SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error) {
			if err != nil {
				pipelineMetrics.RecordError(req.URL.Path)
				return
			}
			pipelineMetrics.RecordRequest(req.URL.Path, resp.StatusCode)
		})
	}

	store := cache.NewLastShownStore(settings.Overlay.DataDir, logging.ForService("cache"))
	overlaySurface := overlay.NewStateSurface()
	slideshowSurface := overlay.NewStateSurface()

	schedOpts := scheduler.Options{
		Name:            "overlay",
		PollInterval:    settings.Overlay.PollInterval,
		RefreshInterval: settings.Overlay.RefreshInterval,
		HoldFallback:    secondsToDuration(settings.Overlay.HoldSeconds),
		ExitAnimation:   settings.Overlay.ExitAnimation,
		InterItemGap:    settings.Overlay.InterItemGap,
	}
	if m != nil {
		schedOpts.Metrics = m.Scheduler
	}
	overlaySched := scheduler.New(pc, overlaySurface, store, schedOpts)

	slideshowOpts := schedOpts
	slideshowOpts.Name = "slideshow"
	slideshowOpts.HoldFallback = secondsToDuration(settings.Overlay.SlideshowHold)
	slideshowSched := scheduler.New(pc, slideshowSurface, nil, slideshowOpts)

	var pub *publish.Publisher
	if settings.Publish.Enabled {
		pub = publish.New(&settings.Publish, settings.Main.Name, nil)
		if err := pub.Connect(ctx); err != nil {
			// The paho client retries on its own once connected; a dead
			// broker at startup only loses events until it comes up.
			logging.Warn("MQTT broker unavailable, transitions will be dropped until it connects", "error", err)
		}
		defer pub.Close()
		overlaySched.AddListener(pub)
	}

	if settings.Notify.Enabled {
		notifier, err := notify.New(&settings.Notify, nil)
		if err != nil {
			return err
		}
		defer notifier.Close()
		seedNotifier(ctx, notifier, pc)
		overlaySched.AddListener(notifier)
	}

	var weatherSvc *weather.Service
	if settings.Weather.Enabled {
		sun := suncalc.NewSunCalc(settings.Weather.Latitude, settings.Weather.Longitude)
		var wm *metrics.WeatherMetrics
		if m != nil {
			wm = m.Weather
		}
		var err error
		weatherSvc, err = weather.NewService(settings, pc, sun, wm)
		if err != nil {
			return err
		}
	}

	controller := ui.New(settings, pc, ui.Deps{
		Overlay:   overlaySurface,
		Slideshow: slideshowSurface,
		Weather:   weatherSvc,
		Scheduler: overlaySched,
		Metrics:   m,
	})
	overlaySched.AddListener(controller)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		overlaySched.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		slideshowSched.Run(ctx)
	}()
	if weatherSvc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			weatherSvc.Run(ctx)
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- controller.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			runErr = errors.New(err).
				Component("frontend").
				Category(errors.CategoryNetwork).
				Context("listen", settings.UI.Listen).
				Build()
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := controller.Shutdown(shutdownCtx); err != nil {
		logging.Warn("ui server shutdown failed", "error", err)
	}
	wg.Wait()
	return runErr
}

// seedNotifier marks every species the pipeline already logged as
// seen, so a restart does not re-announce the backlog.
func seedNotifier(ctx context.Context, notifier *notify.Notifier, pc *pipeline.Client) {
	summary, err := pc.Summary(ctx)
	if err != nil {
		logging.Warn("could not seed notifier from summary, known species may re-announce", "error", err)
		return
	}
	species := make([]string, 0, len(summary.Entries))
	for _, entry := range summary.Entries {
		species = append(species, entry.Species)
	}
	notifier.Seed(species)
}
