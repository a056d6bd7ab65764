package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/flemzord/toolbench/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodySize bounds request bodies in bytes.
	MaxBodySize int `yaml:"max_body_size"`

	// MaxJSONDepth bounds the nesting of request bodies.
	MaxJSONDepth int `yaml:"max_json_depth"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = security.DefaultMaxBodySize
	}
	if c.MaxJSONDepth <= 0 {
		c.MaxJSONDepth = security.DefaultMaxJSONDepth
	}
}

func (c *Config) validate() error {
	host, _, err := net.SplitHostPort(c.Bind)
	if err != nil {
		return errors.New("gateway: invalid bind address: " + c.Bind)
	}
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + c.Bind)
	}
	if !c.Auth.IsConfigured() && !isLoopback(host) {
		return fmt.Errorf("gateway: auth is required when binding to %s", c.Bind)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// AuthConfig configures authentication for the API endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
