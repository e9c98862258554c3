// Package ui is the embedded HTTP server the overlay pages poll. It
// serves display-ready view models and proxies the auxiliary panel
// endpoints to the pipeline server.
package ui

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gocache "github.com/patrickmn/go-cache"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/logging"
	"github.com/featherfront/feather-front/internal/observability"
	"github.com/featherfront/feather-front/internal/overlay"
	"github.com/featherfront/feather-front/internal/pipeline"
	"github.com/featherfront/feather-front/internal/scheduler"
	"github.com/featherfront/feather-front/internal/weather"
)

// Deps holds the collaborators the controller serves. Weather,
// Scheduler and Metrics may be nil when the feature is disabled.
type Deps struct {
	Overlay   *overlay.StateSurface
	Slideshow *overlay.StateSurface
	Weather   *weather.Service
	Scheduler *scheduler.Scheduler
	Metrics   *observability.Metrics
}

// Controller manages the HTTP routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Settings *conf.Settings
	Pipeline *pipeline.Client

	overlay   *overlay.StateSurface
	slideshow *overlay.StateSurface
	weather   *weather.Service
	scheduler *scheduler.Scheduler
	metrics   *observability.Metrics

	summaryCache *gocache.Cache
	logger       *slog.Logger
	startTime    time.Time
}

// New creates the controller and registers its routes.
func New(settings *conf.Settings, pipelineClient *pipeline.Client, deps Deps) *Controller {
	ttl := settings.UI.SummaryCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	ct := &Controller{
		Echo:         echo.New(),
		Settings:     settings,
		Pipeline:     pipelineClient,
		overlay:      deps.Overlay,
		slideshow:    deps.Slideshow,
		weather:      deps.Weather,
		scheduler:    deps.Scheduler,
		metrics:      deps.Metrics,
		summaryCache: gocache.New(ttl, 2*ttl),
		logger:       logging.ForService("ui"),
		startTime:    time.Now(),
	}

	ct.Echo.HideBanner = true
	ct.Echo.HidePort = true
	ct.Echo.Use(middleware.Recover())
	// The overlay pages are served by the pipeline server on another
	// origin, so the view endpoints must answer cross-origin polls.
	ct.Echo.Use(middleware.CORS())

	ct.initRoutes()
	return ct
}

func (ct *Controller) initRoutes() {
	api := ct.Echo.Group("/api")

	api.GET("/overlay/state", ct.GetOverlayState)
	api.GET("/overlay/slideshow", ct.GetSlideshowState)
	api.GET("/weather/state", ct.GetWeatherState)

	api.GET("/summary", ct.GetSummary)
	api.GET("/activity", ct.GetActivity)
	api.GET("/events", ct.GetEvents)
	api.GET("/queue", ct.GetQueue)

	api.GET("/settings", ct.GetSettings)
	api.POST("/settings", ct.SaveSettings)
	api.POST("/log", ct.AddLogEntry)
	api.POST("/log/delete", ct.DeleteLogEntry)
	api.POST("/icon/upload", ct.UploadIcon)
	api.POST("/icon/delete", ct.DeleteIcon)
	api.POST("/restart", ct.RestartCapture)
	api.POST("/restart/server", ct.RestartServer)

	ct.Echo.GET("/healthz", ct.GetHealth)
	if ct.metrics != nil && ct.Settings.UI.Metrics {
		ct.Echo.GET("/metrics", echo.WrapHandler(ct.metrics.Handler()))
	}
}

// DisplayTransition implements scheduler.Listener: any display change
// means the detection log advanced, so the cached summary revision is
// no longer current.
func (ct *Controller) DisplayTransition(scheduler.Event) {
	ct.summaryCache.Delete(summaryLatestKey)
}

// Start begins listening and serving HTTP requests.
func (ct *Controller) Start() error {
	ct.logger.Info("ui server listening", "addr", ct.Settings.UI.Listen)
	err := ct.Echo.Start(ct.Settings.UI.Listen)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (ct *Controller) Shutdown(ctx context.Context) error {
	return ct.Echo.Shutdown(ctx)
}
