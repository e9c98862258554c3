// Package overlay builds the view models the browser overlay pages poll
// and render. A View is a fully formatted, display-ready snapshot of what
// the overlay should show right now.
package overlay

import (
	"fmt"
	"time"

	"github.com/featherfront/feather-front/internal/detection"
)

// Phase describes how prominently the overlay presents a detection.
type Phase string

const (
	// PhaseLive is an actively held detection, shown full size.
	PhaseLive Phase = "live"
	// PhaseDocked is a previously shown detection kept visible in the
	// docked corner style while nothing live is on screen.
	PhaseDocked Phase = "docked"
	// PhaseIdle means no detection has ever been available to show.
	PhaseIdle Phase = "idle"
)

// IdlePlaceholder is the literal status text shown when there is no
// detection to display at all.
const IdlePlaceholder = "Listening"

// NoConfidence is the confidence text shown when no value applies.
const NoConfidence = "--"

// View is the display-ready overlay state. All fields are formatted
// strings or plain numbers so the page renders them verbatim.
type View struct {
	Phase          Phase     `json:"phase"`
	Status         string    `json:"status,omitempty"`
	Species        string    `json:"species,omitempty"`
	ScientificName string    `json:"scientific_name,omitempty"`
	Confidence     string    `json:"confidence"`
	LastHeard      string    `json:"last_heard,omitempty"`
	TimesHeard     int       `json:"times_heard,omitempty"`
	SpeciesRank    int       `json:"species_rank,omitempty"`
	SpeciesCount   int       `json:"species_count,omitempty"`
	IconURL        string    `json:"icon_url,omitempty"`
	Sticky         bool      `json:"sticky"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IdleView returns the placeholder view used when no detection exists.
func IdleView(now time.Time) View {
	return View{
		Phase:      PhaseIdle,
		Status:     IdlePlaceholder,
		Confidence: NoConfidence,
		UpdatedAt:  now,
	}
}

// FromDetection formats a detection into a view for the given phase.
func FromDetection(d *detection.Detection, phase Phase, sticky bool, speciesCount int, now time.Time) View {
	v := View{
		Phase:          phase,
		Species:        d.Species,
		ScientificName: d.ScientificName,
		Confidence:     detection.FormatConfidence(d.Confidence),
		TimesHeard:     d.TimesHeard,
		SpeciesRank:    d.SpeciesRank,
		SpeciesCount:   speciesCount,
		IconURL:        d.IconURL,
		Sticky:         sticky,
		UpdatedAt:      now,
	}
	if d.Confidence <= 0 || v.Confidence == "" {
		v.Confidence = NoConfidence
	}
	if t := d.Time(); !t.IsZero() {
		v.LastHeard = RelativeTime(t, now)
	}
	return v
}

// RelativeTime renders t relative to now, falling back to an absolute
// form once the detection is more than a day old.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2 15:04")
	}
}
