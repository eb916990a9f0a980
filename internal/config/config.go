package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/hsdfat/diam-stack/dictionary"
	"github.com/hsdfat/diam-stack/pkg/connection"
	"github.com/hsdfat/diam-stack/pkg/netutil"
	"github.com/hsdfat/diam-stack/stack"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DIAMSTACK_STACK_MODE
const EnvPrefix = "DIAMSTACK"

// Config holds the application configuration
type Config struct {
	Stack      StackConfig
	Identity   IdentityConfig
	Dictionary DictionaryConfig
	Logging    LoggingConfig
	Capture    CaptureConfig
	Metrics    MetricsConfig
}

// StackConfig holds transport configuration
type StackConfig struct {
	Mode           string // "server" or "client"
	ListenAddr     string
	RemoteAddr     string
	LocalAddr      string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int
}

// IdentityConfig holds the local peer identity sent in capabilities exchange
type IdentityConfig struct {
	OriginHost       string
	OriginRealm      string
	ProductName      string
	VendorID         uint32
	FirmwareRevision uint32
	HostIPAddress    string // empty picks the default route address
	AuthAppIDs       []uint32
}

// DictionaryConfig lists dictionary files merged over the base dictionary
type DictionaryConfig struct {
	Files    []string
	SkipBase bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string // "debug", "info", "warn", "error"
}

// CaptureConfig holds pcap capture configuration
type CaptureConfig struct {
	Enabled bool
	Path    string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled  bool
	Interval time.Duration // period of the metrics summary log line
}

// Load loads configuration from file and environment variables
// Priority order (highest to lowest):
// 1. Environment variables (prefixed with DIAMSTACK_)
// 2. Config file specified by configPath
// 3. diameter-stack.yaml in standard paths
// 4. Hardcoded defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values (lowest priority)
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("diameter-stack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/diameter-stack")
	}

	// Read environment variables (highest priority)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Stack defaults
	v.SetDefault("stack.mode", "server")
	v.SetDefault("stack.listenAddr", "0.0.0.0:3868")
	v.SetDefault("stack.remoteAddr", "127.0.0.1:3868")
	v.SetDefault("stack.localAddr", "")
	v.SetDefault("stack.connectTimeout", "2s")
	v.SetDefault("stack.requestTimeout", "5s")
	v.SetDefault("stack.readTimeout", "0s")
	v.SetDefault("stack.writeTimeout", "30s")
	v.SetDefault("stack.bufferSize", 4096)
	v.SetDefault("stack.maxMessageSize", 65535)

	// Identity defaults
	v.SetDefault("identity.originHost", "diameter-stack.example.com")
	v.SetDefault("identity.originRealm", "example.com")
	v.SetDefault("identity.productName", "Diameter-Stack")
	v.SetDefault("identity.vendorID", 0)
	v.SetDefault("identity.firmwareRevision", 1)
	v.SetDefault("identity.hostIPAddress", "")
	v.SetDefault("identity.authAppIDs", []uint32{0})

	// Dictionary defaults
	v.SetDefault("dictionary.files", []string{})
	v.SetDefault("dictionary.skipBase", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")

	// Capture defaults
	v.SetDefault("capture.enabled", false)
	v.SetDefault("capture.path", "diameter-stack.pcap")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.interval", "60s")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Stack.Validate(); err != nil {
		return fmt.Errorf("stack config: %w", err)
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}
	if err := c.Dictionary.Validate(); err != nil {
		return fmt.Errorf("dictionary config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	return nil
}

// Validate validates the StackConfig
func (c *StackConfig) Validate() error {
	switch c.Mode {
	case "server":
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("listenAddr %q: %w", c.ListenAddr, err)
		}
	case "client":
		if _, _, err := net.SplitHostPort(c.RemoteAddr); err != nil {
			return fmt.Errorf("remoteAddr %q: %w", c.RemoteAddr, err)
		}
	default:
		return fmt.Errorf("mode must be server or client, got %q", c.Mode)
	}
	if c.LocalAddr != "" {
		if _, _, err := net.SplitHostPort(c.LocalAddr); err != nil {
			return fmt.Errorf("localAddr %q: %w", c.LocalAddr, err)
		}
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connectTimeout must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("requestTimeout must be greater than 0")
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("readTimeout must be non-negative")
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("writeTimeout must be non-negative")
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("bufferSize must be at least 1")
	}
	if c.MaxMessageSize < 20 {
		return fmt.Errorf("maxMessageSize must be at least 20")
	}
	return nil
}

// StackConfig converts the section into a stack configuration
func (c *StackConfig) StackConfig() *stack.Config {
	sc := &stack.Config{
		LocalAddress:   c.LocalAddr,
		ConnectTimeout: c.ConnectTimeout,
		RequestTimeout: c.RequestTimeout,
		ConnectionConfig: &connection.ConnectionConfig{
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
			BufferSize:   c.BufferSize,
			MaxFrameSize: c.MaxMessageSize,
		},
	}
	if c.Mode == "client" {
		sc.RemoteAddress = c.RemoteAddr
	} else {
		sc.ListenAddress = c.ListenAddr
	}
	return sc
}

// Validate validates the IdentityConfig
func (c *IdentityConfig) Validate() error {
	if c.OriginHost == "" {
		return fmt.Errorf("originHost is required")
	}
	if c.OriginRealm == "" {
		return fmt.Errorf("originRealm is required")
	}
	if c.ProductName == "" {
		return fmt.Errorf("productName is required")
	}
	if c.HostIPAddress != "" {
		if _, err := netip.ParseAddr(c.HostIPAddress); err != nil {
			return fmt.Errorf("hostIPAddress: %w", err)
		}
	}
	return nil
}

// HostIP returns the configured Host-IP-Address or the default route address
func (c *IdentityConfig) HostIP() (netip.Addr, error) {
	if c.HostIPAddress != "" {
		return netip.ParseAddr(c.HostIPAddress)
	}
	return netutil.DefaultHostIP(false)
}

// Validate validates the DictionaryConfig
func (c *DictionaryConfig) Validate() error {
	if c.SkipBase && len(c.Files) == 0 {
		return fmt.Errorf("skipBase needs at least one dictionary file")
	}
	return nil
}

// Load builds the dictionary: the base dictionary with Files merged in order
func (c *DictionaryConfig) Load() (*dictionary.Dictionary, error) {
	if len(c.Files) == 0 {
		return dictionary.Base(), nil
	}
	return dictionary.LoadFiles(!c.SkipBase, c.Files...)
}

// Validate validates the LoggingConfig
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error", "fatal":
		return nil
	}
	return fmt.Errorf("invalid level %q", c.Level)
}

// Validate validates the CaptureConfig
func (c *CaptureConfig) Validate() error {
	if c.Enabled && c.Path == "" {
		return fmt.Errorf("path is required when capture is enabled")
	}
	return nil
}

// Validate validates the MetricsConfig
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return fmt.Errorf("interval must be greater than 0 when metrics are enabled")
	}
	return nil
}
