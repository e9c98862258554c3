package overlay

import (
	"sync/atomic"
	"time"
)

// Surface receives the current view whenever the display changes.
// Implementations must tolerate being called from the scheduler's
// goroutine; a panicking Render is recovered by the caller and leaves
// the previous visuals in place.
type Surface interface {
	Render(v View)
}

// StateSurface is the production surface: it holds the latest view for
// the HTTP handlers to serve. Reads and writes are lock-free.
type StateSurface struct {
	v atomic.Pointer[View]
}

// NewStateSurface returns a surface primed with the idle view so that
// handlers never observe an empty state.
func NewStateSurface() *StateSurface {
	s := &StateSurface{}
	idle := IdleView(time.Now())
	s.v.Store(&idle)
	return s
}

// Render stores v as the current view.
func (s *StateSurface) Render(v View) {
	s.v.Store(&v)
}

// Current returns the most recently rendered view.
func (s *StateSurface) Current() View {
	return *s.v.Load()
}
