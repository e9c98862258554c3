package ui

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"

	"github.com/featherfront/feather-front/internal/overlay"
)

const (
	summaryLatestKey = "summary:latest"
	maxIconBytes     = 2 << 20
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// proxyError answers a failed pipeline call. The operator only ever
// sees a generic refresh failure; the detail goes to the log.
func (ct *Controller) proxyError(c echo.Context, operation string, err error) error {
	ct.logger.Warn("pipeline request failed", "operation", operation, "error", err)
	return c.JSON(http.StatusBadGateway, map[string]string{"error": "refresh failed"})
}

// noStore marks a response as uncacheable. The overlay pages poll
// these endpoints every second or two and must never see a stale body
// from an intermediate cache.
func noStore(c echo.Context) {
	c.Response().Header().Set("Cache-Control", "no-store")
}

// GetOverlayState serves the current detection overlay view.
func (ct *Controller) GetOverlayState(c echo.Context) error {
	noStore(c)
	if ct.overlay == nil {
		return c.JSON(http.StatusOK, overlay.IdleView(time.Now()))
	}
	return c.JSON(http.StatusOK, ct.overlay.Current())
}

// GetSlideshowState serves the slideshow variant of the overlay view.
func (ct *Controller) GetSlideshowState(c echo.Context) error {
	noStore(c)
	if ct.slideshow == nil {
		return c.JSON(http.StatusOK, overlay.IdleView(time.Now()))
	}
	return c.JSON(http.StatusOK, ct.slideshow.Current())
}

// GetWeatherState serves the current weather view.
func (ct *Controller) GetWeatherState(c echo.Context) error {
	noStore(c)
	if ct.weather == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "weather disabled"})
	}
	view, ok := ct.weather.View()
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "weather data unavailable"})
	}
	return c.JSON(http.StatusOK, view)
}

func summaryKey(revision int64) string {
	return fmt.Sprintf("summary:%d", revision)
}

// GetSummary serves the per-species summary. Responses are cached by
// the pipeline's log revision; a display transition evicts the latest
// pointer so a new detection forces a refetch.
func (ct *Controller) GetSummary(c echo.Context) error {
	if rev, ok := ct.summaryCache.Get(summaryLatestKey); ok {
		if cached, ok := ct.summaryCache.Get(summaryKey(rev.(int64))); ok {
			return c.JSON(http.StatusOK, cached)
		}
	}

	summary, err := ct.Pipeline.Summary(c.Request().Context())
	if err != nil {
		return ct.proxyError(c, "summary", err)
	}
	ct.summaryCache.Set(summaryKey(summary.LogRevision), summary, gocache.DefaultExpiration)
	ct.summaryCache.Set(summaryLatestKey, summary.LogRevision, gocache.DefaultExpiration)
	return c.JSON(http.StatusOK, summary)
}

// GetActivity serves the binned detection activity curve.
func (ct *Controller) GetActivity(c echo.Context) error {
	days := 7
	if v := c.QueryParam("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 31 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid days parameter"})
		}
		days = parsed
	}
	activity, err := ct.Pipeline.Activity(c.Request().Context(), days)
	if err != nil {
		return ct.proxyError(c, "activity", err)
	}
	return c.JSON(http.StatusOK, activity)
}

// GetEvents serves the pipeline's activity feed.
func (ct *Controller) GetEvents(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 200 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit parameter"})
		}
		limit = parsed
	}
	events, err := ct.Pipeline.Events(c.Request().Context(), limit)
	if err != nil {
		return ct.proxyError(c, "events", err)
	}
	return c.JSON(http.StatusOK, events)
}

// GetQueue serves the pipeline's pending clip count together with the
// local display queue depth.
func (ct *Controller) GetQueue(c echo.Context) error {
	pending, err := ct.Pipeline.QueueDepth(c.Request().Context())
	if err != nil {
		return ct.proxyError(c, "queue", err)
	}
	resp := map[string]int{"pending": pending}
	if ct.scheduler != nil {
		resp["display_queue"] = ct.scheduler.QueueDepth()
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSettings proxies the pipeline's settings document.
func (ct *Controller) GetSettings(c echo.Context) error {
	settings, err := ct.Pipeline.Settings(c.Request().Context())
	if err != nil {
		return ct.proxyError(c, "settings", err)
	}
	return c.JSON(http.StatusOK, settings)
}

// SaveSettings forwards settings updates to the pipeline.
func (ct *Controller) SaveSettings(c echo.Context) error {
	var updates map[string]any
	if err := c.Bind(&updates); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid settings payload"})
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "empty settings payload"})
	}
	changed, err := ct.Pipeline.SaveSettings(c.Request().Context(), updates)
	if err != nil {
		return ct.proxyError(c, "save_settings", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "changed": changed})
}

// UploadIcon forwards a species icon PNG to the pipeline.
func (ct *Controller) UploadIcon(c echo.Context) error {
	species := c.FormValue("species")
	if species == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "species is required"})
	}

	fileHeader, err := c.FormFile("icon")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "icon file is required"})
	}
	if fileHeader.Size > maxIconBytes {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "icon file too large"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read icon file"})
	}
	defer file.Close()

	png, err := io.ReadAll(io.LimitReader(file, maxIconBytes+1))
	if err != nil || len(png) > maxIconBytes {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read icon file"})
	}
	if !bytes.HasPrefix(png, pngSignature) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "icon must be a PNG image"})
	}

	iconURL, err := ct.Pipeline.UploadIcon(c.Request().Context(), species, png)
	if err != nil {
		return ct.proxyError(c, "icon_upload", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "icon_url": iconURL})
}

// DeleteIcon asks the pipeline to remove a species icon.
func (ct *Controller) DeleteIcon(c echo.Context) error {
	var body struct {
		Species string `json:"species"`
	}
	if err := c.Bind(&body); err != nil || body.Species == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "species is required"})
	}
	deleted, err := ct.Pipeline.DeleteIcon(c.Request().Context(), body.Species)
	if err != nil {
		return ct.proxyError(c, "icon_delete", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "deleted": deleted})
}

// AddLogEntry forwards a manually entered detection to the pipeline
// log, used by the settings panel to record sightings the microphone
// missed.
func (ct *Controller) AddLogEntry(c echo.Context) error {
	var body struct {
		Species        string  `json:"species"`
		ScientificName string  `json:"scientific_name"`
		Confidence     float64 `json:"confidence"`
		Timestamp      string  `json:"timestamp"`
	}
	if err := c.Bind(&body); err != nil || body.Species == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "species is required"})
	}
	err := ct.Pipeline.AddLogEntry(c.Request().Context(), body.Species, body.ScientificName, body.Confidence, body.Timestamp)
	if err != nil {
		return ct.proxyError(c, "log_add", err)
	}
	ct.summaryCache.Delete(summaryLatestKey)
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// DeleteLogEntry removes a detection from the pipeline log by id.
func (ct *Controller) DeleteLogEntry(c echo.Context) error {
	var body struct {
		ID string `json:"id"`
	}
	if err := c.Bind(&body); err != nil || body.ID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "id is required"})
	}
	deleted, err := ct.Pipeline.DeleteLogEntry(c.Request().Context(), body.ID)
	if err != nil {
		return ct.proxyError(c, "log_delete", err)
	}
	ct.summaryCache.Delete(summaryLatestKey)
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "deleted": deleted})
}

// RestartCapture asks the pipeline to restart audio capture.
func (ct *Controller) RestartCapture(c echo.Context) error {
	if err := ct.Pipeline.RestartCapture(c.Request().Context()); err != nil {
		return ct.proxyError(c, "restart_capture", err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// RestartServer asks the pipeline to restart itself.
func (ct *Controller) RestartServer(c echo.Context) error {
	if err := ct.Pipeline.RestartServer(c.Request().Context()); err != nil {
		return ct.proxyError(c, "restart_server", err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// GetHealth reports process liveness and the display state.
func (ct *Controller) GetHealth(c echo.Context) error {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(ct.startTime).Round(time.Second).String(),
	}
	if ct.scheduler != nil {
		resp["display_state"] = ct.scheduler.State().String()
	}
	return c.JSON(http.StatusOK, resp)
}
