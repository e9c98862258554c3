package publish

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/detection"
	"github.com/featherfront/feather-front/internal/scheduler"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMQTTClient struct {
	connected bool
	topics    []string
	payloads  [][]byte
	retained  []bool
}

func (f *fakeMQTTClient) IsConnected() bool      { return f.connected }
func (f *fakeMQTTClient) IsConnectionOpen() bool { return f.connected }
func (f *fakeMQTTClient) Connect() mqtt.Token    { return &fakeToken{} }
func (f *fakeMQTTClient) Disconnect(uint)        { f.connected = false }
func (f *fakeMQTTClient) Publish(topic string, _ byte, retained bool, payload any) mqtt.Token {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	f.retained = append(f.retained, retained)
	return &fakeToken{}
}
func (f *fakeMQTTClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (f *fakeMQTTClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (f *fakeMQTTClient) Unsubscribe(...string) mqtt.Token        { return &fakeToken{} }
func (f *fakeMQTTClient) AddRoute(string, mqtt.MessageHandler)    {}
func (f *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func newTestPublisher(client mqtt.Client) *Publisher {
	p := New(&conf.PublishSettings{
		Broker: "tcp://localhost:1883",
		Topic:  "featherfront/overlay",
		Retain: true,
	}, "test", nil)
	p.client = client
	return p
}

func TestDisplayTransitionPublishesMessage(t *testing.T) {
	t.Parallel()

	client := &fakeMQTTClient{connected: true}
	p := newTestPublisher(client)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.DisplayTransition(scheduler.Event{
		Scheduler:  "overlay",
		Transition: scheduler.TransitionShown,
		At:         at,
		Detection: &detection.Detection{
			Species:        "Eurasian Wren",
			ScientificName: "Troglodytes troglodytes",
			Confidence:     0.87,
			TimesHeard:     4,
		},
	})

	require.Len(t, client.payloads, 1)
	assert.Equal(t, "featherfront/overlay", client.topics[0])
	assert.True(t, client.retained[0])

	var msg Message
	require.NoError(t, json.Unmarshal(client.payloads[0], &msg))
	assert.Equal(t, "overlay", msg.Scheduler)
	assert.Equal(t, "shown", msg.Transition)
	assert.Equal(t, "Eurasian Wren", msg.Species)
	assert.InDelta(t, 0.87, msg.Confidence, 1e-9)
	assert.Equal(t, 4, msg.TimesHeard)
	assert.True(t, msg.At.Equal(at))
}

func TestDisplayTransitionSkipsWhenDisconnected(t *testing.T) {
	t.Parallel()

	client := &fakeMQTTClient{connected: false}
	p := newTestPublisher(client)

	p.DisplayTransition(scheduler.Event{
		Scheduler:  "overlay",
		Transition: scheduler.TransitionExpired,
		At:         time.Now(),
	})

	assert.Empty(t, client.payloads, "no publish should happen while disconnected")
}

func TestDisplayTransitionWithoutDetection(t *testing.T) {
	t.Parallel()

	client := &fakeMQTTClient{connected: true}
	p := newTestPublisher(client)

	p.DisplayTransition(scheduler.Event{
		Scheduler:  "overlay",
		Transition: scheduler.TransitionExpired,
		At:         time.Now(),
	})

	require.Len(t, client.payloads, 1)
	var msg Message
	require.NoError(t, json.Unmarshal(client.payloads[0], &msg))
	assert.Equal(t, "expired", msg.Transition)
	assert.Empty(t, msg.Species)
}
