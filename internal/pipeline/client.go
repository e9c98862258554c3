// Package pipeline is the typed client for the external detection pipeline
// server. The pipeline owns audio capture, BirdNET inference and detection
// storage; this process only talks to its documented JSON endpoints.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/detection"
	"github.com/featherfront/feather-front/internal/errors"
	"github.com/featherfront/feather-front/internal/httpclient"
)

// Client talks to one pipeline server. Thread-safe for concurrent use.
type Client struct {
	baseURL    string
	username   string
	password   string
	http       *httpclient.Client
	instanceID string // correlates this front-end's requests in pipeline logs
	logger     *slog.Logger
}

// New creates a pipeline client from settings. The logger may be nil.
func New(settings *conf.PipelineSettings, logger *slog.Logger) *Client {
	cfg := httpclient.DefaultConfig()
	if settings.Timeout > 0 {
		cfg.DefaultTimeout = settings.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(settings.BaseURL, "/"),
		username:   settings.Username,
		password:   settings.Password,
		http:       httpclient.New(&cfg),
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// HTTPClient exposes the underlying client so callers can attach
// observability hooks.
func (c *Client) HTTPClient() *httpclient.Client {
	return c.http
}

// InstanceID returns the per-process identifier sent with every request.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// Summary is the per-species rollup from /api/log/summary.
type Summary struct {
	Entries         []SummaryEntry `json:"entries"`
	SpeciesCount    int            `json:"species_count"`
	TotalDetections int            `json:"total_detections"`
	LogRevision     int64          `json:"log_revision"`
}

// SummaryEntry is one species row in the summary.
type SummaryEntry struct {
	ID             string  `json:"id"`
	Timestamp      string  `json:"timestamp"`
	Species        string  `json:"species"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
	Count          int     `json:"count"`
	DailyCounts    []int   `json:"daily_counts"`
	IconURL        string  `json:"icon_url,omitempty"`
	ClipURL        string  `json:"clip_url,omitempty"`
}

// Activity is the half-hour binned detection curve from /api/log/activity.
type Activity struct {
	Points      []float64  `json:"points"`
	TodayPoints []*float64 `json:"today_points"` // nil past the current bin
	Days        int        `json:"days"`
}

// Event is one entry in the pipeline's activity feed.
type Event struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

// WeatherSettings is the weather overlay configuration owned by the pipeline.
type WeatherSettings struct {
	Location string `json:"weather_location"`
	Unit     string `json:"weather_unit"` // "celsius" or "fahrenheit"
}

// Status polls /api/status. The t query parameter busts intermediary caches.
func (c *Client) Status(ctx context.Context) (*detection.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/api/status?t=%d", c.baseURL, time.Now().UnixMilli())
	var snapshot detection.Snapshot
	if err := c.getJSON(ctx, endpoint, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Summary fetches the per-species rollup.
func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	var summary Summary
	if err := c.getJSON(ctx, c.baseURL+"/api/log/summary", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Activity fetches the detection activity curve for the given day window.
func (c *Client) Activity(ctx context.Context, days int) (*Activity, error) {
	var activity Activity
	endpoint := fmt.Sprintf("%s/api/log/activity?days=%d", c.baseURL, days)
	if err := c.getJSON(ctx, endpoint, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Events fetches the most recent pipeline events, oldest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var payload struct {
		Entries []Event `json:"entries"`
	}
	endpoint := fmt.Sprintf("%s/api/events?limit=%d", c.baseURL, limit)
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

// QueueDepth fetches the number of audio segments waiting for analysis.
func (c *Client) QueueDepth(ctx context.Context) (int, error) {
	var payload struct {
		Pending int `json:"pending"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/api/queue", &payload); err != nil {
		return 0, err
	}
	return payload.Pending, nil
}

// Settings fetches the pipeline's settings snapshot. The payload is kept
// as a generic map: the settings panel edits fields this front-end has no
// business interpreting.
func (c *Client) Settings(ctx context.Context) (map[string]any, error) {
	var payload map[string]any
	if err := c.getJSON(ctx, c.baseURL+"/api/settings", &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// SaveSettings posts settings updates and returns the keys the pipeline
// reports as changed.
func (c *Client) SaveSettings(ctx context.Context, updates map[string]any) ([]string, error) {
	var payload struct {
		OK      bool     `json:"ok"`
		Changed []string `json:"changed"`
		Error   string   `json:"error"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/api/settings", updates, &payload); err != nil {
		return nil, err
	}
	if !payload.OK {
		return nil, errors.Newf("pipeline rejected settings: %s", payload.Error).
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}
	return payload.Changed, nil
}

// WeatherSettings fetches the weather overlay configuration.
func (c *Client) WeatherSettings(ctx context.Context) (*WeatherSettings, error) {
	var settings WeatherSettings
	if err := c.getJSON(ctx, c.baseURL+"/api/weather/settings", &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// RestartCapture asks the pipeline to restart its audio capture process.
func (c *Client) RestartCapture(ctx context.Context) error {
	return c.postJSON(ctx, c.baseURL+"/api/restart", nil, nil)
}

// RestartServer asks the pipeline to restart itself.
func (c *Client) RestartServer(ctx context.Context) error {
	return c.postJSON(ctx, c.baseURL+"/api/restart/server", nil, nil)
}

// UploadIcon uploads a PNG icon for a species and returns its URL on the
// pipeline server.
func (c *Client) UploadIcon(ctx context.Context, species string, png []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("species", species); err != nil {
		return "", errors.New(err).Component("pipeline").Category(errors.CategoryFileIO).Build()
	}
	part, err := writer.CreateFormFile("icon", "icon.png")
	if err != nil {
		return "", errors.New(err).Component("pipeline").Category(errors.CategoryFileIO).Build()
	}
	if _, err := part.Write(png); err != nil {
		return "", errors.New(err).Component("pipeline").Category(errors.CategoryFileIO).Build()
	}
	if err := writer.Close(); err != nil {
		return "", errors.New(err).Component("pipeline").Category(errors.CategoryFileIO).Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/icon/upload", &buf)
	if err != nil {
		return "", errors.New(err).Component("pipeline").Category(errors.CategoryHTTP).Build()
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", errors.New(err).Component("pipeline").Category(errors.CategoryNetwork).
			Context("operation", "upload_icon").Build()
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		OK      bool   `json:"ok"`
		IconURL string `json:"icon_url"`
		Error   string `json:"error"`
	}
	if err := decodeResponse(resp, &payload); err != nil {
		return "", err
	}
	if !payload.OK {
		return "", errors.Newf("icon upload rejected: %s", payload.Error).
			Component("pipeline").
			Category(errors.CategoryValidation).
			Context("species", species).
			Build()
	}
	return payload.IconURL, nil
}

// DeleteIcon removes a species icon. Returns whether an icon was removed.
func (c *Client) DeleteIcon(ctx context.Context, species string) (bool, error) {
	var payload struct {
		OK bool `json:"ok"`
	}
	body := map[string]any{"species": species}
	if err := c.postJSON(ctx, c.baseURL+"/api/icon/delete", body, &payload); err != nil {
		return false, err
	}
	return payload.OK, nil
}

// AddLogEntry posts a manual detection entry, used by the settings panel.
func (c *Client) AddLogEntry(ctx context.Context, species, scientificName string, confidence float64, timestamp string) error {
	body := map[string]any{
		"species":         species,
		"scientific_name": scientificName,
		"confidence":      confidence,
		"timestamp":       timestamp,
	}
	var payload struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/api/log/add", body, &payload); err != nil {
		return err
	}
	if !payload.OK {
		return errors.Newf("manual entry rejected: %s", payload.Error).
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// DeleteLogEntry removes a detection by id. Returns whether it was removed.
func (c *Client) DeleteLogEntry(ctx context.Context, id string) (bool, error) {
	var payload struct {
		OK bool `json:"ok"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/api/log/delete", map[string]any{"id": id}, &payload); err != nil {
		return false, err
	}
	return payload.OK, nil
}

// BaseURL returns the configured pipeline base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) authorize(req *http.Request) {
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("X-Client-Instance", c.instanceID)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return errors.New(err).Component("pipeline").Category(errors.CategoryHTTP).Build()
	}
	c.authorize(req)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return errors.New(err).Component("pipeline").Category(errors.CategoryNetwork).
			NetworkContext(sanitizeEndpoint(endpoint), 0).Build()
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeResponse(resp, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	data := []byte("{}")
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return errors.New(err).Component("pipeline").Category(errors.CategoryValidation).Build()
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return errors.New(err).Component("pipeline").Category(errors.CategoryHTTP).Build()
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return errors.New(err).Component("pipeline").Category(errors.CategoryNetwork).
			NetworkContext(sanitizeEndpoint(endpoint), 0).Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError(resp)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(err).Component("pipeline").Category(errors.CategoryHTTP).
			Context("operation", "decode_response").Build()
	}
	return nil
}

func statusError(resp *http.Response) error {
	// Read a little of the body for context, the rest is noise
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return errors.Newf("pipeline returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))).
		Component("pipeline").
		Category(errors.CategoryHTTP).
		Context("status_code", strconv.Itoa(resp.StatusCode)).
		Build()
}

// sanitizeEndpoint strips query parameters before an endpoint lands in an
// error context, the cache-buster is per-request noise.
func sanitizeEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	u.RawQuery = ""
	return u.String()
}
