package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/log2"
	"github.com/napd/console/protocol"
)

// subset of mqtt.Client used here
type mqttClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

func newPahoClient(o *mqtt.ClientOptions) mqttClient { return mqtt.NewClient(o) }

type transportMqtt struct {
	log       *log2.Log
	h         Handler
	cfg       config.Transport
	clientID  string
	timeout   time.Duration
	newClient func(*mqtt.ClientOptions) mqttClient

	topicUp        string
	topicBroadcast string
	topicDirect    string

	mu      sync.Mutex
	gen     uint64
	session *mqttSession
	wg      sync.WaitGroup
}

// mqttSession is one connect attempt. Callbacks of replaced sessions are ignored.
// pending is true from Connect until connected or failed.
type mqttSession struct {
	t         *transportMqtt
	gen       uint64
	c         mqttClient
	pending   bool
	connected bool
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, cfg config.Transport, consoleID string, h Handler) error {
	if cfg.MqttBroker == "" {
		return errors.NotValidf("mqtt broker empty")
	}
	self.log = log
	// paho loggers are package globals
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log

	self.h = h
	self.cfg = cfg
	self.clientID = fmt.Sprintf("console-%s", consoleID)
	self.timeout = cfg.NetworkTimeout()
	if self.newClient == nil {
		self.newClient = newPahoClient
	}
	prefix := cfg.MqttTopicPrefix
	self.topicUp = fmt.Sprintf("%s/%s/up", prefix, consoleID)
	self.topicBroadcast = fmt.Sprintf("%s/down", prefix)
	self.topicDirect = fmt.Sprintf("%s/%s/down", prefix, consoleID)
	return nil
}

func (self *transportMqtt) options(s *mqttSession) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(self.cfg.MqttBroker).
		SetClientID(self.clientID).
		SetUsername(self.cfg.MqttUsername).
		SetPassword(self.cfg.MqttPassword).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(self.timeout).
		SetKeepAlive(self.cfg.Keepalive()).
		SetPingTimeout(self.timeout).
		SetDefaultPublishHandler(s.messageHandler).
		SetOnConnectHandler(s.onConnectHandler).
		SetConnectionLostHandler(s.connectLostHandler)
}

// Connect is no-op while previous attempt is still pending, so a slow broker
// is not abandoned by caller retries.
func (self *transportMqtt) Connect() {
	self.mu.Lock()
	if self.session != nil && self.session.pending {
		self.mu.Unlock()
		self.log.Debugf("mqtt connect already pending broker=%s", self.cfg.MqttBroker)
		return
	}
	self.gen++
	self.dropSession()
	s := &mqttSession{t: self, gen: self.gen, pending: true}
	s.c = self.newClient(self.options(s))
	self.session = s
	self.mu.Unlock()

	token := s.c.Connect()
	self.wg.Add(1)
	go func() {
		defer self.wg.Done()
		var err error
		if !token.WaitTimeout(self.timeout) {
			err = errors.Timeoutf("mqtt connect broker=%s", self.cfg.MqttBroker)
		} else if err = token.Error(); err != nil {
			err = errors.Annotatef(err, "mqtt connect broker=%s", self.cfg.MqttBroker)
		}
		if err != nil && s.fail() {
			self.h.OnConnectError(err)
		}
	}()
}

func (self *transportMqtt) Disconnect() {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.gen++
	self.dropSession()
}

func (self *transportMqtt) Close() {
	self.Disconnect()
	self.wg.Wait()
}

// dropSession requires mu held.
func (self *transportMqtt) dropSession() {
	if self.session == nil {
		return
	}
	s := self.session
	self.session = nil
	self.wg.Add(1)
	go func() {
		defer self.wg.Done()
		s.c.Disconnect(250)
	}()
}

// Send waits for QoS 1 ack at most network timeout.
func (self *transportMqtt) Send(payload []byte) error {
	self.mu.Lock()
	s := self.session
	ok := s != nil && s.connected
	self.mu.Unlock()
	if !ok {
		return protocol.ErrNotConnected
	}
	token := s.c.Publish(self.topicUp, 1, false, payload)
	if !token.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt publish topic=%s", self.topicUp)
	}
	return errors.Annotatef(token.Error(), "mqtt publish topic=%s", self.topicUp)
}

// fail drops current session, false if it was already replaced or connected.
func (s *mqttSession) fail() bool {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != s.gen || s.connected {
		return false
	}
	s.pending = false
	t.gen++
	t.dropSession()
	return true
}

func (s *mqttSession) current() bool {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return s.t.gen == s.gen
}

func (s *mqttSession) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	if !s.current() {
		return
	}
	s.t.log.Debugf("mqtt message topic=%s len=%d", msg.Topic(), len(msg.Payload()))
	s.t.h.OnMessage(msg.Payload())
}

func (s *mqttSession) onConnectHandler(_ mqtt.Client) {
	t := s.t
	if !s.current() {
		return
	}
	for _, topic := range []string{t.topicBroadcast, t.topicDirect} {
		token := s.c.Subscribe(topic, 1, s.messageHandler)
		var err error
		if !token.WaitTimeout(t.timeout) {
			err = errors.Timeoutf("mqtt subscribe topic=%s", topic)
		} else if token.Error() != nil {
			err = errors.Annotatef(token.Error(), "mqtt subscribe topic=%s", topic)
		}
		if err != nil {
			if s.fail() {
				t.h.OnConnectError(err)
			}
			return
		}
	}

	t.mu.Lock()
	if t.gen != s.gen {
		t.mu.Unlock()
		return
	}
	s.pending = false
	s.connected = true
	t.mu.Unlock()
	t.log.Debugf("mqtt connected broker=%s", t.cfg.MqttBroker)
	t.h.OnConnect()
}

func (s *mqttSession) connectLostHandler(_ mqtt.Client, err error) {
	t := s.t
	t.mu.Lock()
	if t.gen != s.gen {
		t.mu.Unlock()
		return
	}
	s.connected = false
	t.mu.Unlock()
	t.h.OnDisconnect(errors.Annotate(err, "mqtt connection lost"))
}
