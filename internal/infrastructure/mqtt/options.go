package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/nhc-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for one connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultReconnectInterval is the fixed retry period between attempts.
	defaultReconnectInterval = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on close.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// defaultQoS is used for commands and subscriptions. The Hobby API
	// acknowledges at QoS 1.
	defaultQoS = 1

	// clientIDPrefix identifies bridge sessions in the controller's broker log.
	clientIDPrefix = "nhcbridge-"

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// TLSOptions configures transport security towards the controller.
// The zero value is TLS without certificate verification.
type TLSOptions struct {
	// Disabled connects over plain TCP.
	Disabled bool

	// Verify checks the server certificate against RootCAs, or the system
	// pool when RootCAs is nil.
	Verify bool

	// RootCAs pins the accepted certificate authorities.
	RootCAs *x509.CertPool
}

// Options configures sessions created by a Dialer.
type Options struct {
	Host string
	Port int
	TLS  TLSOptions

	// ReconnectInterval is the fixed period between connection attempts,
	// both for the initial connect and after a loss.
	ReconnectInterval time.Duration

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration

	// PublishTimeout bounds waiting for a publish or subscribe acknowledgment.
	PublishTimeout time.Duration

	// KeepAlive is the MQTT keepalive period.
	KeepAlive time.Duration

	Logger Logger
}

// OptionsFromConfig builds Options for one configured controller.
//
// Parameters:
//   - cfg: Controller entry from config.yaml, defaults already applied
//
// Returns:
//   - Options: Session options (without a logger)
//   - error: If the CA file cannot be read or parsed
func OptionsFromConfig(cfg config.ControllerConfig) (Options, error) {
	opts := Options{
		Host:              cfg.Host,
		Port:              cfg.Port,
		ReconnectInterval: cfg.ReconnectInterval,
		ConnectTimeout:    cfg.ConnectTimeout,
		TLS: TLSOptions{
			Disabled: cfg.TLS.Disabled,
			Verify:   cfg.TLS.Verify,
		},
	}

	if cfg.TLS.CAFile != "" {
		pem, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			return Options{}, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return Options{}, fmt.Errorf("%w: CA file %s contains no certificates", ErrInvalidOptions, cfg.TLS.CAFile)
		}
		opts.TLS.RootCAs = pool
	}

	return opts, nil
}

// withDefaults fills zero-valued timing fields.
func (o Options) withDefaults() Options {
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = defaultReconnectInterval
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidOptions)
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidOptions, o.Port)
	}
	return nil
}

// BrokerURL returns the controller's broker URL (ssl:// unless TLS is disabled).
func (o Options) BrokerURL() string {
	scheme := "ssl"
	if o.TLS.Disabled {
		scheme = "tcp"
	}
	return scheme + "://" + net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// tlsConfig returns the TLS settings, or nil when TLS is disabled.
func (o Options) tlsConfig() *tls.Config {
	if o.TLS.Disabled {
		return nil
	}
	cfg := &tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: o.Host,
	}
	if o.TLS.Verify {
		cfg.RootCAs = o.TLS.RootCAs
	} else {
		// Controllers present a self-signed certificate.
		cfg.InsecureSkipVerify = true //nolint:gosec // opt-in via tls.verify
	}
	return cfg
}

// newClientID returns a unique client identifier. The controller's broker
// drops an existing session when a second one reuses its ID.
func newClientID() string {
	return clientIDPrefix + uuid.NewString()
}

// buildClientOptions creates paho options for one session.
//
// This configures:
//   - Broker URL (ssl:// or tcp://)
//   - A fresh client ID
//   - Username and token as password
//   - Auto-reconnect at a fixed interval once the first connect succeeded
//   - Ordered, sequential message delivery
//   - Clean session mode
func buildClientOptions(o Options, username, token string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(o.BrokerURL())
	opts.SetClientID(newClientID())
	opts.SetUsername(username)
	opts.SetPassword(token)

	// The controller never persists bridge sessions; subscriptions are
	// re-established by the owner on every connect.
	opts.SetCleanSession(true)
	opts.SetResumeSubs(false)

	// Initial attempts are driven by Session.connectLoop so each failure can
	// be reported. Later losses are retried by paho.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(o.ReconnectInterval)

	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(o.KeepAlive)
	opts.SetWriteTimeout(o.PublishTimeout)
	opts.SetOrderMatters(true)

	if tlsCfg := o.tlsConfig(); tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
	}

	return opts
}
