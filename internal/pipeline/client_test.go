package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherfront/feather-front/internal/conf"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(&conf.PipelineSettings{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, nil)
	t.Cleanup(client.Close)
	return client
}

func TestClient_Status(t *testing.T) {
	var gotPath, gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"species": "Northern Cardinal",
			"confidence": 0.91,
			"status": "listening",
			"top_predictions": [{"species": "Northern Cardinal", "confidence": 0.91}],
			"log_revision": 1714800000123,
			"species_count": 9,
			"overlay_hold_seconds": 45,
			"overlay_sticky": true
		}`))
	})

	snapshot, err := client.Status(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "/api/status", gotPath)
	assert.Contains(t, gotQuery, "t=", "status polls must carry a cache-buster")
	assert.Equal(t, "Northern Cardinal", snapshot.Species)
	require.NotNil(t, snapshot.LogRevision)
	assert.Equal(t, int64(1714800000123), *snapshot.LogRevision)
	assert.True(t, snapshot.OverlaySticky)
	assert.InDelta(t, 45.0, snapshot.OverlayHoldSeconds, 0.001)
}

func TestClient_Status_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	snapshot, err := client.Status(t.Context())
	require.Error(t, err)
	assert.Nil(t, snapshot)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_Status_MalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := client.Status(t.Context())
	require.Error(t, err)
}

func TestClient_BasicAuthForwarded(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		_, _ = w.Write([]byte(`{"pending": 0}`))
	}))
	t.Cleanup(server.Close)

	client := New(&conf.PipelineSettings{
		BaseURL:  server.URL,
		Username: "admin",
		Password: "hunter2",
	}, nil)
	t.Cleanup(client.Close)

	_, err := client.QueueDepth(t.Context())
	require.NoError(t, err)
	require.True(t, gotOK, "expected Authorization header")
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "hunter2", gotPass)
}

func TestClient_Summary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/log/summary", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"entries": [
				{"id": "abc123", "species": "Blue Jay", "count": 42, "confidence": 0.88,
				 "daily_counts": [0, 1, 3]}
			],
			"species_count": 1,
			"total_detections": 42,
			"log_revision": 7
		}`))
	})

	summary, err := client.Summary(t.Context())
	require.NoError(t, err)
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, "Blue Jay", summary.Entries[0].Species)
	assert.Equal(t, 42, summary.Entries[0].Count)
	assert.Equal(t, int64(7), summary.LogRevision)
}

func TestClient_Activity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "days=10", r.URL.RawQuery)
		// today_points trims to null past the current half-hour bin
		_, _ = w.Write([]byte(`{"points": [0.5, 1.2], "today_points": [2, null], "days": 10}`))
	})

	activity, err := client.Activity(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, activity.Days)
	require.Len(t, activity.TodayPoints, 2)
	require.NotNil(t, activity.TodayPoints[0])
	assert.InDelta(t, 2.0, *activity.TodayPoints[0], 0.001)
	assert.Nil(t, activity.TodayPoints[1])
}

func TestClient_SaveSettings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var updates map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&updates))
		assert.InDelta(t, 30.0, updates["overlay_hold_seconds"], 0.001)
		_, _ = w.Write([]byte(`{"ok": true, "changed": ["overlay_hold_seconds"]}`))
	})

	changed, err := client.SaveSettings(t.Context(), map[string]any{"overlay_hold_seconds": 30.0})
	require.NoError(t, err)
	assert.Equal(t, []string{"overlay_hold_seconds"}, changed)
}

func TestClient_UploadIcon(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\nrest-of-file")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Barred Owl", r.FormValue("species"))
		file, _, err := r.FormFile("icon")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		_, _ = w.Write([]byte(`{"ok": true, "icon_url": "/data/icons/barred-owl.png"}`))
	})

	iconURL, err := client.UploadIcon(t.Context(), "Barred Owl", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "/data/icons/barred-owl.png", iconURL)
}

func TestClient_UploadIcon_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": false, "error": "Icon must be a PNG file"}`))
	})

	_, err := client.UploadIcon(t.Context(), "Barred Owl", []byte("JFIF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PNG")
}

func TestClient_RestartCapture(t *testing.T) {
	var hit bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hit = true
		assert.Equal(t, "/api/restart", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"ok": true}`))
	})

	require.NoError(t, client.RestartCapture(t.Context()))
	assert.True(t, hit)
}

func TestClient_WeatherSettings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/weather/settings", r.URL.Path)
		_, _ = w.Write([]byte(`{"weather_location": "02134", "weather_unit": "celsius"}`))
	})

	settings, err := client.WeatherSettings(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "02134", settings.Location)
	assert.Equal(t, "celsius", settings.Unit)
}

func TestClient_InstanceIDHeader(t *testing.T) {
	var gotInstance string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotInstance = r.Header.Get("X-Client-Instance")
		_, _ = w.Write([]byte(`{"pending": 3}`))
	})

	pending, err := client.QueueDepth(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
	assert.Equal(t, client.InstanceID(), gotInstance)
	assert.NotEmpty(t, gotInstance)
}
