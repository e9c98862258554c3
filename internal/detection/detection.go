// Package detection defines the data model shared with the external
// detection pipeline server: classified bird-call events and the status
// snapshot polled from its /api/status endpoint.
package detection

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Prediction is one classified species candidate within a detection.
type Prediction struct {
	Species        string  `json:"species"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
}

// Detection is one classified bird-call event. Immutable once received,
// a new poll yields a new value.
type Detection struct {
	Timestamp      string       `json:"timestamp"` // ISO datetime as sent by the pipeline
	Species        string       `json:"species"`
	ScientificName string       `json:"scientific_name"`
	Confidence     float64      `json:"confidence"`
	ClipSeconds    float64      `json:"clip_seconds,omitempty"`
	TimesHeard     int          `json:"times_heard,omitempty"`
	SpeciesRank    int          `json:"species_rank,omitempty"`
	Location       string       `json:"location,omitempty"`
	IconURL        string       `json:"icon_url,omitempty"`
	TopPredictions []Prediction `json:"top_predictions,omitempty"`
}

// HasPrediction reports whether the detection carries at least one
// prediction. Cached detections that fail this check are discarded.
func (d *Detection) HasPrediction() bool {
	return d != nil && len(d.TopPredictions) > 0
}

// Time parses the detection timestamp. Returns the zero time when the
// timestamp is absent or malformed.
func (d *Detection) Time() time.Time {
	if d == nil {
		return time.Time{}
	}
	t, err := ParseTimestamp(d.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Snapshot is the payload polled from the pipeline's /api/status endpoint.
type Snapshot struct {
	Timestamp          string       `json:"timestamp"`
	Species            string       `json:"species"`
	ScientificName     string       `json:"scientific_name"`
	Confidence         float64      `json:"confidence"`
	Status             string       `json:"status"`
	StatusMessage      string       `json:"status_message"`
	ClipSeconds        float64      `json:"clip_seconds"`
	Model              string       `json:"model"`
	TimesHeard         int          `json:"times_heard"`
	Location           string       `json:"location"`
	Week               int          `json:"week"`
	TopPredictions     []Prediction `json:"top_predictions"`
	LastDetection      *Detection   `json:"last_detection"`
	LastHeard          string       `json:"last_heard"`
	IconURL            string       `json:"icon_url"`
	LogRevision        *int64       `json:"log_revision"` // opaque change token, nil when unknown
	SpeciesCount       int          `json:"species_count"`
	SpeciesRank        int          `json:"species_rank"`
	OverlayHoldSeconds float64      `json:"overlay_hold_seconds"`
	OverlaySticky      bool         `json:"overlay_sticky"`
}

// Live returns the detection carried by this snapshot, or nil when the
// snapshot has no live prediction this cycle.
func (s *Snapshot) Live() *Detection {
	if s == nil || len(s.TopPredictions) == 0 {
		return nil
	}
	return &Detection{
		Timestamp:      s.Timestamp,
		Species:        s.Species,
		ScientificName: s.ScientificName,
		Confidence:     s.Confidence,
		ClipSeconds:    s.ClipSeconds,
		TimesHeard:     s.TimesHeard,
		SpeciesRank:    s.SpeciesRank,
		Location:       s.Location,
		IconURL:        s.IconURL,
		TopPredictions: s.TopPredictions,
	}
}

// HoldDuration derives the overlay hold duration from the snapshot,
// falling back to the given default when the value is absent, non-positive
// or not finite.
func (s *Snapshot) HoldDuration(fallback time.Duration) time.Duration {
	if s == nil {
		return fallback
	}
	secs := s.OverlayHoldSeconds
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

// NormalizeConfidence maps a raw confidence value to a fraction in [0, 1].
// Values above 1 are treated as percentages.
func NormalizeConfidence(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	if value > 1 {
		value /= 100.0
	}
	return math.Max(0, math.Min(1, value))
}

// ConfidencePercent maps a raw confidence value to a whole percentage,
// rounded to the nearest integer. 0.87 and 87 both yield 87.
func ConfidencePercent(value float64) int {
	return int(math.Round(NormalizeConfidence(value) * 100))
}

// FormatConfidence renders a raw confidence value as "NN%", or the empty
// string when the value is not usable.
func FormatConfidence(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ""
	}
	return strconv.Itoa(ConfidencePercent(value)) + "%"
}

// ParseTimestamp parses an ISO timestamp as sent by the pipeline, accepting
// both the "Z" suffix and numeric offsets.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", value)
}
