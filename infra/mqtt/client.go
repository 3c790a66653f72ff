package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/skylink/core/logger"
	"github.com/kilianp07/skylink/core/monitoring"
)

// ErrNotConnected is returned when publishing without a broker session.
var ErrNotConnected = errors.New("mqtt: not connected")

const (
	defaultPrefix     = "skylink"
	defaultMaxRetries = 3
	defaultBackoff    = 100 * time.Millisecond

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool            `json:"enabled"`
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	TopicPrefix string          `json:"topic_prefix"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTQoS      byte            `json:"lwt_qos"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	// StatusIntervalMS is the period of the retained status publication.
	StatusIntervalMS int         `json:"status_interval_ms"`
	TLSConfig        *tls.Config `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "skylink-gcs"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultPrefix
	}
	if c.LWTTopic == "" {
		c.LWTTopic = c.TopicPrefix + "/gcs/online"
	}
	if c.StatusIntervalMS <= 0 {
		c.StatusIntervalMS = 1000
	}
}

// Validate checks the configuration of an enabled client.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	return nil
}

// Topics returns the topic layout derived from the prefix.
func (c Config) Topics() Topics {
	prefix := c.TopicPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return Topics{Prefix: prefix}
}

// Topics builds topic names under a common prefix.
type Topics struct{ Prefix string }

// Status is the retained per-vehicle status topic.
func (t Topics) Status(sysID uint8) string {
	return fmt.Sprintf("%s/vehicle/%d/status", t.Prefix, sysID)
}

// Command is the per-vehicle command intake topic.
func (t Topics) Command(sysID uint8) string {
	return fmt.Sprintf("%s/vehicle/%d/command", t.Prefix, sysID)
}

// CommandWildcard subscribes to the command topic of every vehicle.
func (t Topics) CommandWildcard() string { return t.Prefix + "/vehicle/+/command" }

// CommandResult is where outcomes of intake commands are published.
func (t Topics) CommandResult(sysID uint8) string {
	return fmt.Sprintf("%s/vehicle/%d/command/result", t.Prefix, sysID)
}

// Events carries fleet events.
func (t Topics) Events() string { return t.Prefix + "/events" }

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Handler receives the payload of a subscribed topic.
type Handler func(topic string, payload []byte)

// PahoClient publishes with retries and keeps subscriptions across
// reconnects.
type PahoClient struct {
	cli    pahoClient
	qos    map[string]byte
	log    logger.Logger
	mon    monitoring.Monitor
	topics Topics

	lwtTopic   string
	lwtQoS     byte
	maxRetries int
	backoff    time.Duration

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	key     string
	handler Handler
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the broker. The last will marks the station
// offline on the retained LWT topic; a successful connect marks it online.
func NewPahoClient(cfg Config, log logger.Logger, mon monitoring.Monitor) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if mon == nil {
		mon = monitoring.NopMonitor{}
	}
	pc := &PahoClient{
		qos:        cfg.QoS,
		log:        log,
		mon:        mon,
		topics:     cfg.Topics(),
		lwtTopic:   cfg.LWTTopic,
		lwtQoS:     cfg.LWTQoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		subs:       make(map[string]subscription),
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = defaultMaxRetries
	}
	if pc.backoff <= 0 {
		pc.backoff = defaultBackoff
	}

	opts.OnConnect = pc.onConnect
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, payloadOffline, cfg.LWTQoS, true)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Topics returns the topic layout of this client.
func (p *PahoClient) Topics() Topics { return p.topics }

func (p *PahoClient) onConnect(c paho.Client) {
	p.log.Infof("MQTT connected")
	if p.lwtTopic != "" {
		c.Publish(p.lwtTopic, p.lwtQoS, true, payloadOnline)
	}
	p.mu.Lock()
	subs := make(map[string]subscription, len(p.subs))
	for topic, s := range p.subs {
		subs[topic] = s
	}
	p.mu.Unlock()
	for topic, s := range subs {
		if token := c.Subscribe(topic, p.qosFor(s.key), wrap(s.handler)); token.Wait() && token.Error() != nil {
			p.log.Errorf("resubscribe %s: %v", topic, token.Error())
		}
	}
}

func wrap(h Handler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) { h(m.Topic(), m.Payload()) }
}

func (p *PahoClient) qosFor(key string) byte {
	if q, ok := p.qos[key]; ok {
		return q
	}
	return 0
}

// Publish sends payload to topic, retrying with exponential backoff. key
// selects the QoS from the configuration. Final failures are reported to
// the monitor.
func (p *PahoClient) Publish(topic, key string, retained bool, payload []byte) error {
	qos := p.qosFor(key)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.log.Debugf("published %s (%d bytes)", topic, len(payload))
			return nil
		}
		p.log.Errorf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	p.mon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Subscribe registers h for topic. The subscription is renewed on every
// reconnect.
func (p *PahoClient) Subscribe(topic, key string, h Handler) error {
	p.mu.Lock()
	p.subs[topic] = subscription{key: key, handler: h}
	p.mu.Unlock()
	if token := p.cli.Subscribe(topic, p.qosFor(key), wrap(h)); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect marks the station offline and closes the connection.
func (p *PahoClient) Disconnect() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	if p.lwtTopic != "" {
		token := p.cli.Publish(p.lwtTopic, p.lwtQoS, true, payloadOffline)
		token.WaitTimeout(time.Second)
	}
	p.cli.Disconnect(250)
}
