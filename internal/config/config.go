// Package config loads dmq-client settings from defaults, an optional
// file and DMQ_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dmq-protocol/dmq-go/pkg/client"
	"github.com/dmq-protocol/dmq-go/pkg/transport"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// EnvPrefix is prepended to every environment override, e.g.
// DMQ_SEND_ENDPOINT.
const EnvPrefix = "DMQ"

// Config is the effective client configuration.
type Config struct {
	Transport        string        `mapstructure:"transport"`
	SendEndpoint     string        `mapstructure:"send_endpoint"`
	RecvEndpoint     string        `mapstructure:"recv_endpoint"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	ConnectRetries   int           `mapstructure:"connect_retries"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	Serializer       string        `mapstructure:"serializer"`
	LogLevel         string        `mapstructure:"log_level"`
	ProtocolLog      string        `mapstructure:"protocol_log"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	RunFor           time.Duration `mapstructure:"run_for"`
	ActuatorInterval time.Duration `mapstructure:"actuator_interval"`
}

var defaults = map[string]any{
	"transport":         transport.KindZMQ,
	"send_endpoint":     client.DefaultSendEndpoint,
	"recv_endpoint":     client.DefaultRecvEndpoint,
	"connect_timeout":   transport.DefaultConnectTimeout,
	"connect_retries":   5,
	"poll_interval":     client.DefaultPollInterval,
	"serializer":        wire.SerializerMsgPack,
	"log_level":         "info",
	"protocol_log":      "",
	"metrics_addr":      "",
	"run_for":           30 * time.Second,
	"actuator_interval": time.Second,
}

// Default returns the built-in configuration.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (YAML, TOML or JSON by extension) if non-empty, then
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerations and durations.
func (c Config) Validate() error {
	var errs []error

	if _, err := transport.NewDialer(c.Transport, transport.DialOptions{}); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	if c.SendEndpoint == "" {
		errs = append(errs, errors.New("send_endpoint is required"))
	}
	if c.RecvEndpoint == "" {
		errs = append(errs, errors.New("recv_endpoint is required"))
	}
	if c.SendEndpoint != "" && c.SendEndpoint == c.RecvEndpoint {
		errs = append(errs, errors.New("send_endpoint and recv_endpoint must differ"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}
	if c.ConnectRetries < 0 {
		errs = append(errs, errors.New("connect_retries must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.RunFor < 0 {
		errs = append(errs, errors.New("run_for must not be negative"))
	}
	if c.ActuatorInterval <= 0 {
		errs = append(errs, errors.New("actuator_interval must be positive"))
	}
	if _, err := wire.SerializerByName(c.Serializer); err != nil {
		errs = append(errs, fmt.Errorf("serializer: %w", err))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level: unknown level %q", s)
	}
	return l, nil
}

// Marshal renders the configuration as YAML with durations in
// time.Duration notation.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(struct {
		Transport        string `yaml:"transport"`
		SendEndpoint     string `yaml:"send_endpoint"`
		RecvEndpoint     string `yaml:"recv_endpoint"`
		ConnectTimeout   string `yaml:"connect_timeout"`
		ConnectRetries   int    `yaml:"connect_retries"`
		PollInterval     string `yaml:"poll_interval"`
		Serializer       string `yaml:"serializer"`
		LogLevel         string `yaml:"log_level"`
		ProtocolLog      string `yaml:"protocol_log,omitempty"`
		MetricsAddr      string `yaml:"metrics_addr,omitempty"`
		RunFor           string `yaml:"run_for"`
		ActuatorInterval string `yaml:"actuator_interval"`
	}{
		Transport:        c.Transport,
		SendEndpoint:     c.SendEndpoint,
		RecvEndpoint:     c.RecvEndpoint,
		ConnectTimeout:   c.ConnectTimeout.String(),
		ConnectRetries:   c.ConnectRetries,
		PollInterval:     c.PollInterval.String(),
		Serializer:       c.Serializer,
		LogLevel:         c.LogLevel,
		ProtocolLog:      c.ProtocolLog,
		MetricsAddr:      c.MetricsAddr,
		RunFor:           c.RunFor.String(),
		ActuatorInterval: c.ActuatorInterval.String(),
	})
}
