// Package scheduler implements the detection display scheduler. It
// polls the pipeline status endpoint on a fixed cadence and decides
// what detection the overlay presents, for how long, and when to
// advance to a queued next detection.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/featherfront/feather-front/internal/cache"
	"github.com/featherfront/feather-front/internal/detection"
	"github.com/featherfront/feather-front/internal/logging"
	"github.com/featherfront/feather-front/internal/observability/metrics"
	"github.com/featherfront/feather-front/internal/overlay"
)

// State is the display state of the scheduler.
type State int

const (
	// StateIdle means nothing is being held on screen.
	StateIdle State = iota
	// StateShowing means a detection is actively displayed.
	StateShowing
	// StateClosing means a display just closed and the exit-animation
	// and inter-item gap must elapse before the next dequeue.
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateShowing:
		return "showing"
	case StateClosing:
		return "closing"
	default:
		return "idle"
	}
}

// Display transition names, used for events and metrics labels.
const (
	TransitionShown    = "shown"
	TransitionExtended = "extended"
	TransitionAdvanced = "advanced"
	TransitionExpired  = "expired"
)

// Event describes one display transition.
type Event struct {
	Scheduler  string
	Transition string
	Detection  *detection.Detection
	At         time.Time
}

// Listener receives display transition events. Listeners are invoked
// from the scheduler's loop and must not block or call back into the
// scheduler.
type Listener interface {
	DisplayTransition(ev Event)
}

// SnapshotSource provides status snapshots. *pipeline.Client satisfies
// this interface.
type SnapshotSource interface {
	Status(ctx context.Context) (*detection.Snapshot, error)
}

// Options configures a Scheduler. Zero fields take defaults.
type Options struct {
	Name            string        // label for logs and metrics, default "overlay"
	PollInterval    time.Duration // default 2s
	RefreshInterval time.Duration // default 1s
	HoldFallback    time.Duration // hold used when the pipeline sends none, default 60s
	ExitAnimation   time.Duration // default 600ms
	InterItemGap    time.Duration // default 400ms
	Clock           Clock
	Logger          *slog.Logger
	Metrics         *metrics.SchedulerMetrics
}

// Scheduler owns the display state. All mutations happen under mu,
// driven by the poll and refresh loops.
type Scheduler struct {
	name    string
	source  SnapshotSource
	surface overlay.Surface
	store   *cache.LastShownStore

	clock   Clock
	logger  *slog.Logger
	metrics *metrics.SchedulerMetrics

	pollInterval    time.Duration
	refreshInterval time.Duration
	holdFallback    time.Duration
	exitAnimation   time.Duration
	interItemGap    time.Duration

	listeners []Listener

	mu           sync.Mutex
	state        State
	current      *detection.Detection
	queue        []*detection.Detection
	openedAt     time.Time
	closesAt     time.Time // zero while sticky, no auto-close
	nextReadyAt  time.Time
	sticky       bool
	hold         time.Duration
	lastQueued   *int64 // last enqueued revision token
	speciesCount int
	fallback     *detection.Detection // docked display when nothing is live

	issued  atomic.Uint64 // poll sequence numbers, guards stale responses
	applied uint64        // highest applied sequence, under mu

	wg sync.WaitGroup
}

// New builds a scheduler. The store may be nil to disable persistence;
// when present, a cached last-shown detection seeds the docked display.
func New(source SnapshotSource, surface overlay.Surface, store *cache.LastShownStore, opts Options) *Scheduler {
	if opts.Name == "" {
		opts.Name = "overlay"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second
	}
	if opts.HoldFallback <= 0 {
		opts.HoldFallback = 60 * time.Second
	}
	if opts.ExitAnimation <= 0 {
		opts.ExitAnimation = 600 * time.Millisecond
	}
	if opts.InterItemGap <= 0 {
		opts.InterItemGap = 400 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = logging.ForService("scheduler")
	}

	s := &Scheduler{
		name:            opts.Name,
		source:          source,
		surface:         surface,
		store:           store,
		clock:           opts.Clock,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		pollInterval:    opts.PollInterval,
		refreshInterval: opts.RefreshInterval,
		holdFallback:    opts.HoldFallback,
		exitAnimation:   opts.ExitAnimation,
		interItemGap:    opts.InterItemGap,
		hold:            opts.HoldFallback,
	}
	if store != nil {
		if d := store.Load(); d.HasPrediction() {
			s.fallback = d
		}
	}
	return s
}

// AddListener registers a display transition listener. Not safe to call
// once Run has started.
func (s *Scheduler) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Run drives the poll and refresh loops until ctx is cancelled. The
// fixed-interval poll is the retry mechanism; there is no backoff.
func (s *Scheduler) Run(ctx context.Context) {
	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()
	refreshTicker := time.NewTicker(s.refreshInterval)
	defer refreshTicker.Stop()

	s.logger.Info("display scheduler started",
		"scheduler", s.name,
		"poll_interval", s.pollInterval,
		"hold_fallback", s.holdFallback)

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("display scheduler stopped", "scheduler", s.name)
			return
		case <-pollTicker.C:
			s.poll(ctx)
		case <-refreshTicker.C:
			s.Tick(s.clock.Now())
		}
	}
}

// poll issues one status fetch. Each fetch runs in its own goroutine so
// a hung request delays only its own cycle; responses carry a sequence
// number and a response older than one already applied is dropped.
func (s *Scheduler) poll(ctx context.Context) {
	seq := s.issued.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := s.clock.Now()
		snap, err := s.source.Status(ctx)
		now := s.clock.Now()
		if s.metrics != nil {
			s.metrics.RecordPollDuration(s.name, now.Sub(start).Seconds())
		}
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordPoll(s.name, "error")
			}
			s.logger.Debug("status poll failed", "scheduler", s.name, "error", err)
			s.Tick(now)
			return
		}
		s.apply(seq, snap, now)
	}()
}

// apply ingests a snapshot unless a response from a newer poll has
// already been applied.
func (s *Scheduler) apply(seq uint64, snap *detection.Snapshot, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		if s.metrics != nil {
			s.metrics.RecordPoll(s.name, "stale")
		}
		return
	}
	s.applied = seq
	if s.metrics != nil {
		s.metrics.RecordPoll(s.name, "success")
	}
	s.ingestLocked(snap, now)
	s.advanceLocked(now)
	s.renderLocked(now)
}

// Ingest applies one snapshot at the given time. A nil snapshot stands
// for a failed poll cycle: the queue is untouched and the display falls
// back to whatever state is already held.
func (s *Scheduler) Ingest(snap *detection.Snapshot, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingestLocked(snap, now)
	s.advanceLocked(now)
	s.renderLocked(now)
}

// Tick advances timers and refreshes time-derived display fields
// without fetching.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked(now)
	s.renderLocked(now)
}

func (s *Scheduler) ingestLocked(snap *detection.Snapshot, now time.Time) {
	if snap == nil {
		return
	}
	s.hold = snap.HoldDuration(s.holdFallback)
	s.speciesCount = snap.SpeciesCount
	s.setStickyLocked(snap.OverlaySticky, now)

	if snap.LastDetection.HasPrediction() {
		s.fallback = snap.LastDetection
	}

	live := snap.Live()
	if live == nil {
		return
	}

	if s.current != nil && live.Species == s.current.Species {
		// Same species still calling: extend the open window instead
		// of queueing a duplicate.
		s.current = live
		s.openedAt = now
		if !s.sticky {
			s.closesAt = now.Add(s.hold)
		}
		s.recordRevisionLocked(snap.LogRevision)
		s.emitLocked(TransitionExtended, live, now)
		return
	}

	if !s.acceptLocked(snap, live) {
		return
	}
	s.queue = append(s.queue, live)
	s.recordRevisionLocked(snap.LogRevision)
	if s.metrics != nil {
		s.metrics.UpdateQueueDepth(s.name, len(s.queue))
	}
}

// acceptLocked decides whether a live detection enters the queue.
// Revisions are deduplicated by identity; when the snapshot carries no
// revision token the detection is accepted only if it is strictly newer
// than the newest one already held.
func (s *Scheduler) acceptLocked(snap *detection.Snapshot, live *detection.Detection) bool {
	if rev := snap.LogRevision; rev != nil {
		return s.lastQueued == nil || *s.lastQueued != *rev
	}
	newest := s.current
	if n := len(s.queue); n > 0 {
		newest = s.queue[n-1]
	}
	if newest == nil {
		return true
	}
	lt := live.Time()
	if lt.IsZero() {
		return false
	}
	nt := newest.Time()
	if nt.IsZero() {
		return true
	}
	return lt.After(nt)
}

func (s *Scheduler) recordRevisionLocked(rev *int64) {
	if rev == nil {
		return
	}
	r := *rev
	s.lastQueued = &r
}

func (s *Scheduler) setStickyLocked(sticky bool, now time.Time) {
	if sticky == s.sticky {
		return
	}
	s.sticky = sticky
	if s.current == nil {
		return
	}
	if sticky {
		// Pending close is cancelled while sticky is on.
		s.closesAt = time.Time{}
	} else {
		s.closesAt = now.Add(s.hold)
	}
}

func (s *Scheduler) advanceLocked(now time.Time) {
	if s.state == StateShowing && !s.sticky && !s.closesAt.IsZero() && !now.Before(s.closesAt) {
		s.nextReadyAt = now.Add(s.exitAnimation + s.interItemGap)
		s.fallback = s.current
		s.emitLocked(TransitionExpired, s.current, now)
		s.current = nil
		s.state = StateClosing
	}

	if s.state == StateClosing && len(s.queue) == 0 && !now.Before(s.nextReadyAt) {
		s.state = StateIdle
	}

	if s.sticky && s.current != nil && len(s.queue) > 0 {
		// Sticky displays never expire on a timer; they advance as
		// soon as the next detection is ready to replace them.
		s.fallback = s.current
		s.showLocked(now, TransitionAdvanced)
		return
	}

	if s.current == nil && len(s.queue) > 0 && (s.sticky || !now.Before(s.nextReadyAt)) {
		kind := TransitionShown
		if s.state == StateClosing {
			kind = TransitionAdvanced
		}
		s.showLocked(now, kind)
	}
}

func (s *Scheduler) showLocked(now time.Time, kind string) {
	d := s.queue[0]
	s.queue = s.queue[1:]
	s.current = d
	s.openedAt = now
	if s.sticky {
		s.closesAt = time.Time{}
	} else {
		s.closesAt = now.Add(s.hold)
	}
	s.state = StateShowing
	if s.store != nil {
		s.store.Save(d)
	}
	if s.metrics != nil {
		s.metrics.UpdateQueueDepth(s.name, len(s.queue))
	}
	s.emitLocked(kind, d, now)
}

func (s *Scheduler) renderLocked(now time.Time) {
	var v overlay.View
	switch {
	case s.current != nil:
		v = overlay.FromDetection(s.current, overlay.PhaseLive, s.sticky, s.speciesCount, now)
	case s.fallback != nil:
		v = overlay.FromDetection(s.fallback, overlay.PhaseDocked, s.sticky, s.speciesCount, now)
	default:
		v = overlay.IdleView(now)
	}
	s.render(v)
}

// render delivers a view to the surface. A panicking surface must not
// take down the poll loop; prior visuals stay in place.
func (s *Scheduler) render(v overlay.View) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("surface render panicked", "scheduler", s.name, "panic", r)
		}
	}()
	s.surface.Render(v)
}

func (s *Scheduler) emitLocked(transition string, d *detection.Detection, now time.Time) {
	if s.metrics != nil {
		s.metrics.RecordTransition(s.name, transition)
	}
	s.logger.Debug("display transition",
		"scheduler", s.name,
		"transition", transition,
		"species", d.Species)
	ev := Event{Scheduler: s.name, Transition: transition, Detection: d, At: now}
	for _, l := range s.listeners {
		l.DisplayTransition(ev)
	}
}

// State returns the current display state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QueueDepth returns the number of detections waiting to be displayed.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Current returns the actively displayed detection, or nil.
func (s *Scheduler) Current() *detection.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
