package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/jemiko1/crm-platform-sub005/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

// fakeBroker records publishes and hands subscriptions back to the test.
type fakeBroker struct {
	mqtt.Client
	published map[string][]byte
	handlers  map[string]mqtt.MessageHandler
	err       error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: map[string][]byte{}, handlers: map[string]mqtt.MessageHandler{}}
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if b.err == nil {
		b.published[topic] = payload.([]byte)
	}
	return &fakeToken{err: b.err}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	if b.err == nil {
		b.handlers[topic] = cb
	}
	return &fakeToken{err: b.err}
}

func (b *fakeBroker) IsConnected() bool { return true }

func TestClientOptions(t *testing.T) {
	opts := clientOptions(&config.MQTTConfig{
		Broker:   "tcp://broker.local:1883",
		ClientID: "crm-api-1",
		Username: "crm",
		Password: "secret",
	}, zap.NewNop())

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker.local:1883", opts.Servers[0].Host)
	assert.Equal(t, "crm-api-1", opts.ClientID)
	assert.Equal(t, "crm", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.CleanSession)
	assert.Equal(t, 10*time.Second, opts.ConnectTimeout)
}

func TestClient_PublishAndSubscribe(t *testing.T) {
	broker := newFakeBroker()
	c := &Client{client: broker, config: &config.MQTTConfig{QoS: 1}, logger: zap.NewNop()}

	require.NoError(t, c.Publish("crm/t1/telephony", c.QoS(), false, []byte(`{"type":"call_start"}`)))
	assert.Equal(t, `{"type":"call_start"}`, string(broker.published["crm/t1/telephony"]))
	assert.EqualValues(t, 1, c.QoS())
	assert.True(t, c.IsConnected())

	var got []string
	require.NoError(t, c.Subscribe("crm/+/telephony", 1, func(topic string, payload []byte) error {
		got = append(got, topic+" "+string(payload))
		return errors.New("handler errors are only logged")
	}))
	cb := broker.handlers["crm/+/telephony"]
	require.NotNil(t, cb)
	cb(broker, &fakeMessage{topic: "crm/t1/telephony", payload: []byte("x")})
	assert.Equal(t, []string{"crm/t1/telephony x"}, got)
}

func TestClient_BrokerErrors(t *testing.T) {
	broker := newFakeBroker()
	broker.err = errors.New("not connected")
	c := &Client{client: broker, config: &config.MQTTConfig{}, logger: zap.NewNop()}

	err := c.Publish("crm/t1/telephony", 0, false, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crm/t1/telephony")

	err = c.Subscribe("crm/#", 0, func(string, []byte) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
