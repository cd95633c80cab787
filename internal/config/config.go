package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/accelsock/internal/certs"
	"github.com/muurk/accelsock/internal/logging"
)

// Defaults match the demo's fixed startup values: every interface, port 5000,
// certificate pair in the working directory.
const (
	DefaultHost     = ""
	DefaultPort     = 5000
	DefaultLogLevel = "info"

	DefaultAdvertiseName = "accelsock"
)

// ServerConfig holds everything the server needs at startup.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	CertPath string `yaml:"cert"`
	KeyPath  string `yaml:"key"`

	// LogLevel is one of debug, info, warn, error. Debug forces "debug".
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`

	// AllowedOrigins restricts browser origins on the socket channel.
	// Empty means any origin.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// Advertise registers the server over mDNS so simulators can find it.
	Advertise     bool   `yaml:"advertise"`
	AdvertiseName string `yaml:"advertise_name,omitempty"`

	Socket SocketConfig `yaml:"socket"`
}

// SocketConfig tunes the socket channel. Zero values use gateway defaults.
type SocketConfig struct {
	MaxMessageSize int64         `yaml:"max_message_size,omitempty"`
	PingInterval   time.Duration `yaml:"ping_interval,omitempty"`
	PongWait       time.Duration `yaml:"pong_wait,omitempty"`
	WriteWait      time.Duration `yaml:"write_wait,omitempty"`
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Default returns the built-in configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Host:          DefaultHost,
		Port:          DefaultPort,
		CertPath:      certs.DefaultCertFile,
		KeyPath:       certs.DefaultKeyFile,
		LogLevel:      DefaultLogLevel,
		AdvertiseName: DefaultAdvertiseName,
	}
}

// Load reads a YAML file on top of the defaults. Keys absent from the file
// keep their default values.
func Load(path string) (*ServerConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadDefault loads the config file from the user config directory if one
// exists, and the built-in defaults otherwise. The returned path is empty
// when no file was used.
func LoadDefault() (*ServerConfig, string, error) {
	path, err := GetConfigPath()
	if err != nil {
		return Default(), "", nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), "", nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func Save(cfg *ServerConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the server cannot start with.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ValidationError{Field: "port", Message: fmt.Sprintf("%d is outside 0-65535", c.Port)}
	}
	if c.CertPath == "" {
		return &ValidationError{Field: "cert", Message: "path is empty"}
	}
	if c.KeyPath == "" {
		return &ValidationError{Field: "key", Message: "path is empty"}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &ValidationError{Field: "log_level", Message: err.Error()}
	}
	if c.Advertise && strings.TrimSpace(c.AdvertiseName) == "" {
		return &ValidationError{Field: "advertise_name", Message: "must be set when advertising"}
	}
	if c.Socket.MaxMessageSize < 0 {
		return &ValidationError{Field: "socket.max_message_size", Message: "must not be negative"}
	}
	if c.Socket.PingInterval > 0 && c.Socket.PongWait > 0 && c.Socket.PingInterval >= c.Socket.PongWait {
		return &ValidationError{Field: "socket.ping_interval", Message: "must be shorter than pong_wait"}
	}
	return nil
}

// EffectiveLogLevel returns the level to initialise logging with.
func (c *ServerConfig) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
