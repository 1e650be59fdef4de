// Package config loads the eventsocket configuration from a config file,
// .env files and EVENTSOCKET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yanun0323/eventsocket/internal/recorder"
	"github.com/yanun0323/eventsocket/pkg/auth"
	"github.com/yanun0323/eventsocket/pkg/uds"
	"github.com/yanun0323/eventsocket/pkg/websocket"
)

const (
	EnvPrefix   = "EVENTSOCKET"
	defaultName = "eventsocket"

	AuthModeNone   = "none"
	AuthModeAPIKey = "api_key"
	AuthModeBearer = "bearer"
)

// Config is the resolved configuration.
type Config struct {
	Endpoint string         `mapstructure:"endpoint"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Client   ClientConfig   `mapstructure:"client"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Profile  ProfileConfig  `mapstructure:"profile"`

	// ConfigFile is the file that was read, empty when none was found.
	ConfigFile string `mapstructure:"-"`
}

// AuthConfig selects the authorization mode.
type AuthConfig struct {
	Mode   string `mapstructure:"mode"`
	APIKey string `mapstructure:"api_key"`
	Token  string `mapstructure:"token"`
	// Host overrides the host derived from the endpoint.
	Host string `mapstructure:"host"`
}

// ClientConfig tunes the websocket client.
type ClientConfig struct {
	EventQueueSize   int           `mapstructure:"event_queue_size"`
	EventOverflow    string        `mapstructure:"event_overflow"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout"`
	UnsubscribeWait  time.Duration `mapstructure:"unsubscribe_wait"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	// UnixSocket routes the connection through a local proxy socket.
	UnixSocket       string        `mapstructure:"unix_socket"`
}

// RecorderConfig enables event recording to PostgreSQL.
type RecorderConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DSN           string        `mapstructure:"dsn"`
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// ProfileConfig enables continuous profiling.
type ProfileConfig struct {
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	// keys without a default are invisible to Unmarshal when they only
	// come from the environment
	for _, key := range []string{"endpoint", "auth.api_key", "auth.token", "auth.host", "client.unix_socket", "recorder.dsn", "metrics.addr", "profile.server_address"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("recorder.enabled", false)
	v.SetDefault("auth.mode", AuthModeAPIKey)
	v.SetDefault("client.event_queue_size", websocket.DefaultEventQueueSize)
	v.SetDefault("client.event_overflow", "drop_oldest")
	v.SetDefault("client.close_timeout", websocket.DefaultCloseTimeout)
	v.SetDefault("client.unsubscribe_wait", websocket.DefaultUnsubscribeWait)
	v.SetDefault("client.handshake_timeout", websocket.DefaultHandshakeTimeout)
	v.SetDefault("client.write_timeout", websocket.DefaultWriteTimeout)
	v.SetDefault("client.read_limit", websocket.DefaultReadLimit)

	rec := recorder.DefaultConfig()
	v.SetDefault("recorder.queue_size", rec.QueueSize)
	v.SetDefault("recorder.batch_size", rec.BatchSize)
	v.SetDefault("recorder.flush_interval", rec.FlushInterval)

	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("profile.application_name", defaultName)
}

// Load reads the configuration in order of precedence: flags bound on v,
// environment variables, .env files, the config file, defaults. With an
// empty path, eventsocket.yaml is searched in the working directory. The
// endpoint and credentials are left to Validate.
func Load(v *viper.Viper, path string) (Config, error) {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(defaultName)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	return cfg, cfg.validateShared()
}

// Validate checks the configuration before dialing: the shared sections
// plus the endpoint and the credentials of the auth mode.
func (c Config) Validate() error {
	if err := c.validateShared(); err != nil {
		return err
	}
	if c.Endpoint == "" {
		return fmt.Errorf("invalid config: endpoint is empty")
	}
	switch c.Auth.Mode {
	case AuthModeAPIKey:
		if c.Auth.APIKey == "" {
			return fmt.Errorf("invalid config: auth.api_key is empty")
		}
	case AuthModeBearer:
		if c.Auth.Token == "" {
			return fmt.Errorf("invalid config: auth.token is empty")
		}
	}
	return nil
}

// validateShared checks what every command relies on, including the ones
// that never dial.
func (c Config) validateShared() error {
	if _, err := c.Client.Overflow(); err != nil {
		return err
	}
	switch c.Auth.Mode {
	case AuthModeNone, AuthModeAPIKey, AuthModeBearer:
	default:
		return fmt.Errorf("invalid config: unknown auth.mode %q", c.Auth.Mode)
	}
	if c.Recorder.Enabled && c.Recorder.DSN == "" {
		return fmt.Errorf("invalid config: recorder.dsn is empty")
	}
	return nil
}

// Overflow resolves the event overflow policy name.
func (c ClientConfig) Overflow() (websocket.OverflowPolicy, error) {
	switch strings.ToLower(c.EventOverflow) {
	case "", "drop_oldest":
		return websocket.OverflowDropOldest, nil
	case "drop_newest":
		return websocket.OverflowDropNewest, nil
	case "block":
		return websocket.OverflowBlock, nil
	default:
		return 0, fmt.Errorf("invalid config: unknown client.event_overflow %q", c.EventOverflow)
	}
}

// Authorizer builds the authorizer of the configured mode.
func (c Config) Authorizer() websocket.Authorizer {
	switch c.Auth.Mode {
	case AuthModeAPIKey:
		return auth.APIKey{Key: c.Auth.APIKey, Host: c.Auth.Host}
	case AuthModeBearer:
		return auth.Bearer{Token: auth.StaticToken(c.Auth.Token), Host: c.Auth.Host}
	default:
		return nil
	}
}

// ClientOption builds the websocket client option. Logger and Observer are
// left to the caller.
func (c Config) ClientOption() websocket.Option {
	overflow, _ := c.Client.Overflow()
	dialer := &websocket.GorillaDialer{
		HandshakeTimeout: c.Client.HandshakeTimeout,
		WriteTimeout:     c.Client.WriteTimeout,
		ReadLimit:        c.Client.ReadLimit,
	}
	if proxy, err := uds.NewClient(c.Client.UnixSocket); err == nil {
		dialer.NetDialContext = proxy.DialContext
	}
	return websocket.Option{
		Authorizer:      c.Authorizer(),
		Dialer:          dialer,
		EventQueueSize:  c.Client.EventQueueSize,
		EventOverflow:   overflow,
		CloseTimeout:    c.Client.CloseTimeout,
		UnsubscribeWait: c.Client.UnsubscribeWait,
	}
}

// WriterConfig converts the recorder section.
func (c RecorderConfig) WriterConfig() recorder.Config {
	return recorder.Config{
		QueueSize:     c.QueueSize,
		BatchSize:     c.BatchSize,
		FlushInterval: c.FlushInterval,
	}
}
