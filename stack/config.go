package stack

import (
	"fmt"
	"net"
	"time"

	"github.com/hsdfat/diam-stack/pkg/connection"
)

// Config holds stack configuration
type Config struct {
	ListenAddress  string        // host:port to bind in server mode
	RemoteAddress  string        // host:port of the peer in client mode
	LocalAddress   string        // optional host:port to bind before connecting
	ConnectTimeout time.Duration // bound on one connect attempt
	RequestTimeout time.Duration // default wait for an answer in SendRequest

	ConnectionConfig *connection.ConnectionConfig
}

// DefaultConfig returns default stack configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:    "0.0.0.0:3868",
		ConnectTimeout:   2 * time.Second,
		RequestTimeout:   5 * time.Second,
		ConnectionConfig: connection.DefaultConnectionConfig(),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddress == "" && c.RemoteAddress == "" {
		return fmt.Errorf("one of ListenAddress or RemoteAddress is required")
	}
	for name, addr := range map[string]string{
		"ListenAddress": c.ListenAddress,
		"RemoteAddress": c.RemoteAddress,
		"LocalAddress":  c.LocalAddress,
	} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%s %q: %w", name, addr, err)
		}
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("ConnectTimeout must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("RequestTimeout must be greater than 0")
	}
	if cc := c.ConnectionConfig; cc != nil {
		if cc.ReadTimeout < 0 || cc.WriteTimeout < 0 {
			return fmt.Errorf("connection timeouts must be non-negative")
		}
		if cc.BufferSize < 0 || cc.MaxFrameSize < 0 {
			return fmt.Errorf("connection sizes must be non-negative")
		}
	}
	return nil
}
