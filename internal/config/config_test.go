package config

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/napd/console/log2"
	"github.com/stretchr/testify/assert"
)

func TestRead(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"minimal", `transport { url = "ws://10.0.0.5:5000/ws" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, TransportWebsocket, c.Transport.Kind)
				assert.Equal(t, DefaultConsoleID, c.Console.ID)
				assert.Equal(t, DefaultNotificationLimit, c.UI.NotificationLimit)
				assert.Equal(t, 10*time.Second, c.Transport.NetworkTimeout())
				assert.Equal(t, 30*time.Second, c.Transport.Keepalive())
			}, ""},

		{"mqtt", `
console { id = "panel2" log_debug = true }
transport {
	kind = "mqtt"
	mqtt_broker = "tcp://broker:1883"
	mqtt_topic_prefix = "site7"
	keepalive_sec = 5
}
metrics { listen = ":9101" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "panel2", c.Console.ID)
				assert.True(t, c.Console.LogDebug)
				assert.Equal(t, "site7", c.Transport.MqttTopicPrefix)
				assert.Equal(t, 5*time.Second, c.Transport.Keepalive())
				assert.Equal(t, ":9101", c.Metrics.Listen)
			}, ""},

		{"include-yaml-overwrites", `
transport { url = "ws://a/ws" }
include "local.yaml" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "ws://b/ws", c.Transport.URL)
				assert.Equal(t, 3, c.UI.NotificationLimit)
			}, ""},

		{"include-optional", `
include "ws" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "ws://a/ws", c.Transport.URL)
			}, ""},

		{"include-normalize", `
include "./ws" {}`,
			nil, ""},

		{"error-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-kind", `transport { kind = "carrier-pigeon" }`, nil, "transport.kind=carrier-pigeon not valid"},
		{"error-url-scheme", `transport { url = "http://a/ws" }`, nil, "transport.url scheme=http not valid"},
		{"error-mqtt-broker", `transport { kind = "mqtt" }`, nil, "transport.mqtt_broker empty not valid"},
		{"error-mqtt-id", `
console { id = "a/b" }
transport { kind = "mqtt" mqtt_broker = "tcp://x:1883" }`, nil, "console.id=a/b for mqtt topic not valid"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"ws":           `transport { url = "ws://a/ws" }`,
				"local.yaml":   "transport:\n  url: ws://b/ws\nui:\n  notification_limit: 3\n",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := Read(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				if err == nil || !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		})
	}
}

func TestReadYamlRoot(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{
		"console.yml": `
console:
  id: north
transport:
  kind: mqtt
  mqtt_broker: tcp://10.1.1.1:1883
include:
  - name: extra
    optional: true
`,
		"extra": `transport { mqtt_username = "op" }`,
	})
	cfg, err := Read(log, fs, "console.yml")
	if err != nil {
		t.Fatal(errors.ErrorStack(err))
	}
	assert.Equal(t, "north", cfg.Console.ID)
	assert.Equal(t, TransportMqtt, cfg.Transport.Kind)
	assert.Equal(t, "op", cfg.Transport.MqttUsername)
	assert.Equal(t, "tcp://10.1.1.1:1883", cfg.Transport.MqttBroker)
}
