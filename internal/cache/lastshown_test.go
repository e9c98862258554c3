package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherfront/feather-front/internal/detection"
)

func testDetection() *detection.Detection {
	return &detection.Detection{
		Timestamp:      "2026-05-04T06:12:09Z",
		Species:        "Eastern Towhee",
		ScientificName: "Pipilo erythrophthalmus",
		Confidence:     0.85,
		TimesHeard:     3,
		TopPredictions: []detection.Prediction{
			{Species: "Eastern Towhee", ScientificName: "Pipilo erythrophthalmus", Confidence: 0.85},
		},
	}
}

func TestLastShownStore_RoundTrip(t *testing.T) {
	store := NewLastShownStore(t.TempDir(), nil)

	require.Nil(t, store.Load(), "empty store must load nil")

	shown := testDetection()
	store.Save(shown)

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, shown, loaded)
}

func TestLastShownStore_ClearReturnsNil(t *testing.T) {
	store := NewLastShownStore(t.TempDir(), nil)
	store.Save(testDetection())
	require.NotNil(t, store.Load())

	store.Clear()
	assert.Nil(t, store.Load())

	// Clearing an already-empty store must not panic or error
	store.Clear()
	assert.Nil(t, store.Load())
}

func TestLastShownStore_RejectsEmptyPrediction(t *testing.T) {
	store := NewLastShownStore(t.TempDir(), nil)

	store.Save(&detection.Detection{Species: "Unknown"})
	assert.Nil(t, store.Load(), "detections without predictions must not be cached")
}

func TestLastShownStore_DiscardsInvalidCachedPayload(t *testing.T) {
	dir := t.TempDir()
	store := NewLastShownStore(dir, nil)

	t.Run("corrupt_json", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "last_detection.json"), []byte("{nope"), 0o644))
		assert.Nil(t, store.Load())
	})

	t.Run("valid_json_without_predictions", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "last_detection.json"),
			[]byte(`{"species": "Ghost Bird", "top_predictions": []}`), 0o644))
		assert.Nil(t, store.Load())
	})
}

func TestLastShownStore_SaveOverwrites(t *testing.T) {
	store := NewLastShownStore(t.TempDir(), nil)

	first := testDetection()
	store.Save(first)

	second := testDetection()
	second.Species = "Hermit Thrush"
	second.TopPredictions[0].Species = "Hermit Thrush"
	store.Save(second)

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, "Hermit Thrush", loaded.Species)
}

func TestLastShownStore_UnwritableDirIsNotFatal(t *testing.T) {
	store := NewLastShownStore(filepath.Join(string(os.PathSeparator), "proc", "nonexistent-subdir"), nil)

	// Must swallow the failure and keep behaving like an empty cache
	store.Save(testDetection())
	assert.Nil(t, store.Load())
}
