package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/log2"
	"github.com/napd/console/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockToken completes when done is closed, nil done means already complete.
type mockToken struct {
	err  error
	done chan struct{}
}

func (t *mockToken) Wait() bool {
	<-t.Done()
	return true
}
func (t *mockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.Done():
		return true
	case <-time.After(d):
		return false
	}
}
func (t *mockToken) Error() error { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	if t.done != nil {
		return t.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 1 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type mockClient struct {
	mu           sync.Mutex
	connectErr   error
	connectDone  chan struct{}
	subscribeErr error
	subscribed   []string
	published    []published
	disconnected bool
}

func (c *mockClient) Connect() mqtt.Token {
	return &mockToken{err: c.connectErr, done: c.connectDone}
}
func (c *mockClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}
func (c *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, payload.([]byte)})
	return &mockToken{}
}
func (c *mockClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &mockToken{err: c.subscribeErr}
}

// Not parallel: Init assigns paho package loggers.
func newTestMqtt(t testing.TB, clients ...*mockClient) (*transportMqtt, *recordHandler) {
	h := newRecordHandler()
	next := 0
	tr := &transportMqtt{
		newClient: func(*mqtt.ClientOptions) mqttClient {
			c := clients[next]
			next++
			return c
		},
	}
	cfg := config.Transport{
		Kind:            config.TransportMqtt,
		MqttBroker:      "tcp://127.0.0.1:1883",
		MqttTopicPrefix: "site",
	}
	require.NoError(t, tr.Init(context.Background(), log2.NewTest(t, log2.LDebug), cfg, "north", h))
	return tr, h
}

func TestMqttExchange(t *testing.T) {
	c := &mockClient{}
	tr, h := newTestMqtt(t, c)
	defer tr.Close()

	assert.Equal(t, protocol.ErrNotConnected, tr.Send([]byte(`{}`)))
	tr.Connect()
	s := tr.session
	s.onConnectHandler(nil)
	assert.Equal(t, "connect", h.wait(t).kind)
	assert.Equal(t, []string{"site/down", "site/north/down"}, c.subscribed)

	s.messageHandler(nil, &mockMessage{topic: "site/down", payload: []byte(`{"event":"heartbeat"}`)})
	e := h.wait(t)
	assert.Equal(t, "message", e.kind)
	assert.Equal(t, `{"event":"heartbeat"}`, string(e.payload))

	require.NoError(t, tr.Send([]byte(`{"event":"request_data","data":{}}`)))
	require.Len(t, c.published, 1)
	assert.Equal(t, published{"site/north/up", 1, []byte(`{"event":"request_data","data":{}}`)}, c.published[0])

	s.connectLostHandler(nil, errors.New("pingresp not received"))
	e = h.wait(t)
	assert.Equal(t, "disconnect", e.kind)
	assert.Contains(t, e.err.Error(), "pingresp not received")
	assert.Equal(t, protocol.ErrNotConnected, tr.Send([]byte(`{}`)))
}

func TestMqttConnectError(t *testing.T) {
	c := &mockClient{connectErr: errors.New("network unreachable")}
	tr, h := newTestMqtt(t, c)
	defer tr.Close()

	tr.Connect()
	e := h.wait(t)
	assert.Equal(t, "connect-error", e.kind)
	assert.Contains(t, e.err.Error(), "mqtt connect broker=tcp://127.0.0.1:1883: network unreachable")
}

func TestMqttSubscribeError(t *testing.T) {
	c := &mockClient{subscribeErr: errors.New("not authorized")}
	tr, h := newTestMqtt(t, c)
	defer tr.Close()

	tr.Connect()
	tr.session.onConnectHandler(nil)
	e := h.wait(t)
	assert.Equal(t, "connect-error", e.kind)
	assert.Contains(t, e.err.Error(), "mqtt subscribe topic=site/down")
	assert.Nil(t, tr.session)
}

func TestMqttStaleSession(t *testing.T) {
	c1, c2 := &mockClient{}, &mockClient{}
	tr, h := newTestMqtt(t, c1, c2)
	defer tr.Close()

	tr.Connect()
	old := tr.session
	tr.Disconnect()
	tr.Connect()
	require.NotEqual(t, old, tr.session)
	old.onConnectHandler(nil)
	old.connectLostHandler(nil, errors.New("x"))
	old.messageHandler(nil, &mockMessage{payload: []byte("{}")})
	assert.True(t, h.quiet(100*time.Millisecond))

	tr.Disconnect()
	tr.Close()
	c1.mu.Lock()
	assert.True(t, c1.disconnected)
	c1.mu.Unlock()
	c2.mu.Lock()
	assert.True(t, c2.disconnected)
	c2.mu.Unlock()
}

func TestMqttConnectPending(t *testing.T) {
	c := &mockClient{connectDone: make(chan struct{})}
	tr, h := newTestMqtt(t, c)
	defer tr.Close()

	tr.Connect()
	s := tr.session
	// broker is slow, repeated Connect must keep the same attempt
	tr.Connect()
	tr.Connect()
	assert.Equal(t, s, tr.session)
	assert.True(t, h.quiet(100*time.Millisecond))

	close(c.connectDone)
	s.onConnectHandler(nil)
	assert.Equal(t, "connect", h.wait(t).kind)
	assert.Equal(t, s, tr.session)
	c.mu.Lock()
	assert.False(t, c.disconnected)
	c.mu.Unlock()
}

func TestMqttConnectTimeout(t *testing.T) {
	c1 := &mockClient{connectDone: make(chan struct{})}
	c2 := &mockClient{}
	tr, h := newTestMqtt(t, c1, c2)
	defer tr.Close()
	tr.timeout = 100 * time.Millisecond

	tr.Connect()
	e := h.wait(t)
	assert.Equal(t, "connect-error", e.kind)
	assert.True(t, errors.IsTimeout(e.err))

	// timed out attempt is released, next Connect uses new client
	tr.Connect()
	tr.session.onConnectHandler(nil)
	assert.Equal(t, "connect", h.wait(t).kind)
	c1.mu.Lock()
	assert.True(t, c1.disconnected)
	c1.mu.Unlock()
}
