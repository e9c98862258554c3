// Package publish sends display transition events to an MQTT broker so
// home-automation setups can react to what the overlay is showing.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/errors"
	"github.com/featherfront/feather-front/internal/logging"
	"github.com/featherfront/feather-front/internal/scheduler"
)

const connectTimeout = 30 * time.Second

// Message is the JSON payload published for each display transition.
type Message struct {
	Scheduler      string    `json:"scheduler"`
	Transition     string    `json:"transition"`
	Species        string    `json:"species,omitempty"`
	ScientificName string    `json:"scientific_name,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	TimesHeard     int       `json:"times_heard,omitempty"`
	At             time.Time `json:"at"`
}

// Publisher publishes display transitions to an MQTT broker. It
// implements scheduler.Listener; publish failures are logged and never
// propagate into the display loop.
type Publisher struct {
	settings conf.PublishSettings
	clientID string
	logger   *slog.Logger

	mu     sync.Mutex
	client mqtt.Client
}

// New creates a publisher for the given settings. clientID should be
// stable per installation; a random suffix avoids broker-side clashes.
func New(settings *conf.PublishSettings, clientID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.ForService("publish")
	}
	if clientID == "" {
		clientID = "feather-front"
	}
	return &Publisher{
		settings: *settings,
		clientID: fmt.Sprintf("%s-%s", clientID, uuid.New().String()[:8]),
		logger:   logger,
	}
}

// Connect establishes the broker connection. The paho client keeps
// reconnecting on its own afterwards.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := url.Parse(p.settings.Broker)
	if err != nil {
		return errors.New(err).
			Component("publish").
			Category(errors.CategoryConfiguration).
			Context("broker", p.settings.Broker).
			Build()
	}

	if host := u.Hostname(); net.ParseIP(host) == nil && host != "" {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(fmt.Errorf("failed to resolve broker host %s: %w", host, err)).
				Component("publish").
				Category(errors.CategoryMQTTConnection).
				Build()
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.settings.Broker)
	opts.SetClientID(p.clientID)
	opts.SetUsername(p.settings.Username)
	opts.SetPassword(p.settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New(fmt.Errorf("connection timeout")).
			Component("publish").
			Category(errors.CategoryMQTTConnection).
			Context("broker", p.settings.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("publish").
			Category(errors.CategoryMQTTConnection).
			Context("broker", p.settings.Broker).
			Build()
	}

	p.client = client
	p.logger.Info("connected to MQTT broker", "broker", p.settings.Broker, "client_id", p.clientID)
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}
}

// DisplayTransition implements scheduler.Listener.
func (p *Publisher) DisplayTransition(ev scheduler.Event) {
	msg := Message{
		Scheduler:  ev.Scheduler,
		Transition: ev.Transition,
		At:         ev.At,
	}
	if ev.Detection != nil {
		msg.Species = ev.Detection.Species
		msg.ScientificName = ev.Detection.ScientificName
		msg.Confidence = ev.Detection.Confidence
		msg.TimesHeard = ev.Detection.TimesHeard
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("failed to encode transition message", "error", err)
		return
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil || !client.IsConnected() {
		p.logger.Debug("skipping publish, broker not connected", "transition", ev.Transition)
		return
	}

	token := client.Publish(p.settings.Topic, 0, p.settings.Retain, payload)
	token.WaitTimeout(5 * time.Second)
	if err := token.Error(); err != nil {
		p.logger.Warn("failed to publish transition",
			"topic", p.settings.Topic, "transition", ev.Transition, "error", err)
	}
}
