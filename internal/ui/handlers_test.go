package ui

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/detection"
	"github.com/featherfront/feather-front/internal/overlay"
	"github.com/featherfront/feather-front/internal/pipeline"
	"github.com/featherfront/feather-front/internal/scheduler"
)

// testBackend is a minimal fake pipeline server.
type testBackend struct {
	mux          *http.ServeMux
	summaryHits  atomic.Int64
	failSettings bool
}

func newTestBackend() *testBackend {
	b := &testBackend{mux: http.NewServeMux()}

	b.mux.HandleFunc("/api/log/summary", func(w http.ResponseWriter, _ *http.Request) {
		b.summaryHits.Add(1)
		_ = json.NewEncoder(w).Encode(pipeline.Summary{
			Entries:      []pipeline.SummaryEntry{{Species: "Eurasian Wren", Count: 4}},
			SpeciesCount: 1,
			LogRevision:  1717243200000,
		})
	})
	b.mux.HandleFunc("/api/log/activity", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pipeline.Activity{Points: []float64{0, 1, 2}, Days: 7})
	})
	b.mux.HandleFunc("/api/events", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"entries": [{"id": "1", "type": "detection", "message": "Eurasian Wren"}]}`))
	})
	b.mux.HandleFunc("/api/queue", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pending": 3}`))
	})
	b.mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		if b.failSettings {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"ok": true, "changed": ["overlay_hold_seconds"]}`))
			return
		}
		_, _ = w.Write([]byte(`{"overlay_hold_seconds": 60}`))
	})
	b.mux.HandleFunc("/api/icon/upload", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true, "icon_url": "/icons/eurasian-wren.png"}`))
	})
	b.mux.HandleFunc("/api/log/add", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	})
	b.mux.HandleFunc("/api/log/delete", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	})
	b.mux.HandleFunc("/api/restart", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	})
	return b
}

func newTestController(t *testing.T, backendURL string, deps Deps) *Controller {
	t.Helper()
	settings := &conf.Settings{}
	settings.Pipeline.BaseURL = backendURL
	settings.UI.Listen = "127.0.0.1:0"
	settings.UI.SummaryCacheTTL = time.Minute

	pc := pipeline.New(&settings.Pipeline, nil)
	t.Cleanup(pc.Close)

	return New(settings, pc, deps)
}

func doRequest(ct *Controller, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ct.Echo.ServeHTTP(rec, req)
	return rec
}

func TestGetOverlayState(t *testing.T) {
	t.Parallel()

	surface := overlay.NewStateSurface()
	d := &detection.Detection{
		Species:        "Eurasian Wren",
		Confidence:     0.87,
		TopPredictions: []detection.Prediction{{Species: "Eurasian Wren", Confidence: 0.87}},
	}
	surface.Render(overlay.FromDetection(d, overlay.PhaseLive, false, 5, time.Now()))

	ct := newTestController(t, "http://127.0.0.1:1", Deps{Overlay: surface})

	rec := doRequest(ct, httptest.NewRequest(http.MethodGet, "/api/overlay/state", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	var view overlay.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Eurasian Wren", view.Species)
	assert.Equal(t, "87%", view.Confidence)
	assert.Equal(t, overlay.PhaseLive, view.Phase)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestGetWeatherStateDisabled(t *testing.T) {
	t.Parallel()

	ct := newTestController(t, "http://127.0.0.1:1", Deps{})

	rec := doRequest(ct, httptest.NewRequest(http.MethodGet, "/api/weather/state", http.NoBody))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSummaryCachesByRevision(t *testing.T) {
	t.Parallel()

	backend := newTestBackend()
	server := httptest.NewServer(backend.mux)
	t.Cleanup(server.Close)

	ct := newTestController(t, server.URL, Deps{})

	for range 3 {
		rec := doRequest(ct, httptest.NewRequest(http.MethodGet, "/api/summary", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int64(1), backend.summaryHits.Load(), "repeat requests should be served from cache")

	// A display transition means the log advanced: the cache pointer is
	// evicted and the next request refetches.
	ct.DisplayTransition(scheduler.Event{})
	rec := doRequest(ct, httptest.NewRequest(http.MethodGet, "/api/summary", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), backend.summaryHits.Load())
}

func TestGetSummaryBackendDown(t *testing.T) {
	t.Parallel()

	ct := newTestController(t, "http://127.0.0.1:1", Deps{})

	rec := doRequest(ct, httptest.NewRequest(http.MethodGet, "/api/summary", http.NoBody))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "refresh failed")
}

func TestGetActivityValidation(t *testing.T) {
	t.Parallel()

	backend := newTestBackend()
	server := httptest.NewServer(backend.mux)
	t.Cleanup(server.Close)

	ct := newTestController(t, server.URL, Deps{})

	rec := doRequest(ct, httptest.NewRequest(http.MethodGet, "/api/activity?days=99", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(ct, httptest.NewRequest(http.MethodGet, "/api/activity?days=7", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetQueueIncludesDisplayQueue(t *testing.T) {
	t.Parallel()

	backend := newTestBackend()
	server := httptest.NewServer(backend.mux)
	t.Cleanup(server.Close)

	sched := scheduler.New(nil, overlay.NewStateSurface(), nil, scheduler.Options{Name: "test"})
	ct := newTestController(t, server.URL, Deps{Scheduler: sched})

	rec := doRequest(ct, httptest.NewRequest(http.MethodGet, "/api/queue", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp["pending"])
	assert.Equal(t, 0, resp["display_queue"])
}

func TestSaveSettings(t *testing.T) {
	t.Parallel()

	backend := newTestBackend()
	server := httptest.NewServer(backend.mux)
	t.Cleanup(server.Close)

	ct := newTestController(t, server.URL, Deps{})

	req := httptest.NewRequest(http.MethodPost, "/api/settings",
		strings.NewReader(`{"overlay_hold_seconds": 45}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := doRequest(ct, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "overlay_hold_seconds")

	rec = doRequest(ct, httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadIconValidation(t *testing.T) {
	t.Parallel()

	backend := newTestBackend()
	server := httptest.NewServer(backend.mux)
	t.Cleanup(server.Close)

	ct := newTestController(t, server.URL, Deps{})

	// Missing species.
	body, contentType := multipartBody(t, "", []byte("not a png"))
	req := httptest.NewRequest(http.MethodPost, "/api/icon/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	assert.Equal(t, http.StatusBadRequest, doRequest(ct, req).Code)

	// Not a PNG.
	body, contentType = multipartBody(t, "Eurasian Wren", []byte("not a png"))
	req = httptest.NewRequest(http.MethodPost, "/api/icon/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := doRequest(ct, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PNG")

	// Valid upload.
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, []byte("imagedata")...)
	body, contentType = multipartBody(t, "Eurasian Wren", png)
	req = httptest.NewRequest(http.MethodPost, "/api/icon/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec = doRequest(ct, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/icons/eurasian-wren.png")
}

func TestManualLogEntries(t *testing.T) {
	t.Parallel()

	backend := newTestBackend()
	server := httptest.NewServer(backend.mux)
	t.Cleanup(server.Close)

	ct := newTestController(t, server.URL, Deps{})

	req := httptest.NewRequest(http.MethodPost, "/api/log",
		strings.NewReader(`{"species": "Eurasian Wren", "confidence": 0.9}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := doRequest(ct, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Species is mandatory.
	req = httptest.NewRequest(http.MethodPost, "/api/log", strings.NewReader(`{"confidence": 0.9}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, doRequest(ct, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/log/delete", strings.NewReader(`{"id": "42"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = doRequest(ct, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":true`)
}

func TestRestartCapture(t *testing.T) {
	t.Parallel()

	backend := newTestBackend()
	server := httptest.NewServer(backend.mux)
	t.Cleanup(server.Close)

	ct := newTestController(t, server.URL, Deps{})

	rec := doRequest(ct, httptest.NewRequest(http.MethodPost, "/api/restart", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetHealth(t *testing.T) {
	t.Parallel()

	sched := scheduler.New(nil, overlay.NewStateSurface(), nil, scheduler.Options{Name: "test"})
	ct := newTestController(t, "http://127.0.0.1:1", Deps{Scheduler: sched})

	rec := doRequest(ct, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"display_state":"idle"`)
}

func multipartBody(t *testing.T, species string, icon []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if species != "" {
		require.NoError(t, writer.WriteField("species", species))
	}
	part, err := writer.CreateFormFile("icon", "icon.png")
	require.NoError(t, err)
	_, err = part.Write(icon)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}
