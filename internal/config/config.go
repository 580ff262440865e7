// Package config reads console settings from HCL or YAML files.
// Later sources override earlier ones field by field, `include` pulls in
// more files relative to the first one.
package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/napd/console/helpers"
	"github.com/napd/console/log2"
	"gopkg.in/yaml.v3"
)

const (
	TransportWebsocket = "websocket"
	TransportMqtt      = "mqtt"

	DefaultConsoleID         = "console"
	DefaultMqttTopicPrefix   = "napd"
	DefaultNotificationLimit = 5
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include" yaml:"include"`

	Console struct {
		ID       string `hcl:"id" yaml:"id"`
		LogDebug bool   `hcl:"log_debug" yaml:"log_debug"`
	} `hcl:"console" yaml:"console"`

	Transport Transport `hcl:"transport" yaml:"transport"`

	Metrics struct {
		Listen string `hcl:"listen" yaml:"listen"`
	} `hcl:"metrics" yaml:"metrics"`

	UI struct {
		NotificationLimit int    `hcl:"notification_limit" yaml:"notification_limit"`
		LogFile           string `hcl:"log_file" yaml:"log_file"`
	} `hcl:"ui" yaml:"ui"`
}

type Transport struct {
	Kind              string `hcl:"kind" yaml:"kind"`
	URL               string `hcl:"url" yaml:"url"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec" yaml:"network_timeout_sec"`
	KeepaliveSec      int    `hcl:"keepalive_sec" yaml:"keepalive_sec"`
	MqttBroker        string `hcl:"mqtt_broker" yaml:"mqtt_broker"`
	MqttTopicPrefix   string `hcl:"mqtt_topic_prefix" yaml:"mqtt_topic_prefix"`
	MqttUsername      string `hcl:"mqtt_username" yaml:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password" yaml:"mqtt_password"`
}

func (t *Transport) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(t.NetworkTimeoutSec, 10*time.Second)
}
func (t *Transport) Keepalive() time.Duration {
	return helpers.IntSecondDefault(t.KeepaliveSec, 30*time.Second)
}

type Source struct {
	Name     string `hcl:"name,key" yaml:"name"`
	Optional bool   `hcl:"optional" yaml:"optional"`
}

func isYaml(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if isYaml(norm) {
		err = yaml.Unmarshal(bs, c)
	} else {
		err = hcl.Unmarshal(bs, c)
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// Read parses names in order, then applies defaults and validates.
func Read(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.New("code error config.Read() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{includeSeen: make(map[string]struct{})}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.Console.ID == "" {
		c.Console.ID = DefaultConsoleID
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportWebsocket
	}
	if c.Transport.MqttTopicPrefix == "" {
		c.Transport.MqttTopicPrefix = DefaultMqttTopicPrefix
	}
	if c.UI.NotificationLimit <= 0 {
		c.UI.NotificationLimit = DefaultNotificationLimit
	}
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	t := &c.Transport
	switch t.Kind {
	case TransportWebsocket:
		if t.URL == "" {
			errs = append(errs, errors.NotValidf("transport.url empty"))
		} else if u, err := url.Parse(t.URL); err != nil {
			errs = append(errs, errors.Annotatef(err, "transport.url"))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, errors.NotValidf("transport.url scheme=%s", u.Scheme))
		}
	case TransportMqtt:
		if t.MqttBroker == "" {
			errs = append(errs, errors.NotValidf("transport.mqtt_broker empty"))
		}
		if strings.ContainsAny(c.Console.ID, "/+#") {
			errs = append(errs, errors.NotValidf("console.id=%s for mqtt topic", c.Console.ID))
		}
	default:
		errs = append(errs, errors.NotValidf("transport.kind=%s", t.Kind))
	}
	if t.NetworkTimeoutSec < 0 || t.KeepaliveSec < 0 {
		errs = append(errs, errors.NotValidf("transport negative timeout"))
	}
	return helpers.FoldErrors(errs)
}
