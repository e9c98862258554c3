// Package notify sends a push notification the first time a species is
// displayed, via shoutrrr service URLs.
package notify

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"sync"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/errors"
	"github.com/featherfront/feather-front/internal/logging"
	"github.com/featherfront/feather-front/internal/scheduler"
)

// sender matches router.ServiceRouter's Send method.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier pushes a notification on the first display of each species.
// It implements scheduler.Listener; delivery happens off the display
// loop and failures are only logged.
type Notifier struct {
	logger *slog.Logger
	sender sender

	mu   sync.Mutex
	seen map[string]struct{}

	wg sync.WaitGroup
}

// New creates a notifier from the configured shoutrrr URLs.
func New(settings *conf.NotifySettings, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = logging.ForService("notify")
	}
	if len(settings.URLs) == 0 {
		return nil, errors.New(fmt.Errorf("at least one notification URL is required")).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}

	router, err := shoutrrr.CreateSender(settings.URLs...)
	if err != nil {
		return nil, errors.New(err).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router.SetLogger(log.New(io.Discard, "", 0))

	return &Notifier{
		logger: logger,
		sender: router,
		seen:   make(map[string]struct{}),
	}, nil
}

// Seed marks species as already seen so a restart does not re-announce
// the whole backlog.
func (n *Notifier) Seed(species []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sp := range species {
		n.seen[strings.ToLower(sp)] = struct{}{}
	}
}

// DisplayTransition implements scheduler.Listener.
func (n *Notifier) DisplayTransition(ev scheduler.Event) {
	if ev.Transition != scheduler.TransitionShown && ev.Transition != scheduler.TransitionAdvanced {
		return
	}
	if ev.Detection == nil || ev.Detection.Species == "" {
		return
	}

	key := strings.ToLower(ev.Detection.Species)
	n.mu.Lock()
	if _, ok := n.seen[key]; ok {
		n.mu.Unlock()
		return
	}
	n.seen[key] = struct{}{}
	n.mu.Unlock()

	title := "New species detected"
	message := fmt.Sprintf("%s (%s) heard for the first time",
		ev.Detection.Species, ev.Detection.ScientificName)
	if ev.Detection.ScientificName == "" {
		message = fmt.Sprintf("%s heard for the first time", ev.Detection.Species)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		params := stypes.Params{}
		params.SetTitle(title)
		for _, err := range n.sender.Send(message, &params) {
			if err != nil {
				n.logger.Warn("failed to send notification",
					"species", ev.Detection.Species, "error", err)
			}
		}
	}()
}

// Close waits for in-flight deliveries to finish.
func (n *Notifier) Close() {
	n.wg.Wait()
}
