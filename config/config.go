// Package config holds the settings of the registry, provider and client binaries.
package config

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"mini-soa/codec"
	"mini-soa/registry"
)

const (
	DefaultRegistryPort = "9000"
	DefaultProviderPort = "9100"
	DefaultDialTimeout  = 5 * time.Second
	DefaultLogLevel     = "info"
)

// Registry configures ssoa-registry.
type Registry struct {
	Host        string
	Port        string
	Workers     int
	ReadTimeout time.Duration
	RateLimit   float64
	Burst       int
	Codec       string
	LogLevel    string
	Development bool

	// Etcd, when set, mirrors every registration into these etcd endpoints.
	Etcd     []string
	LeaseTTL int64
}

func DefaultRegistry() Registry {
	return Registry{
		Host:     "0.0.0.0",
		Port:     DefaultRegistryPort,
		Codec:    codec.CodecTypeYAML.String(),
		LogLevel: DefaultLogLevel,
		LeaseTTL: registry.DefaultLeaseTTL,
	}
}

func (c Registry) Address() string { return registry.Endpoint{Host: c.Host, Port: c.Port}.String() }

func (c Registry) Validate() error {
	return multierr.Combine(
		validatePort("port", c.Port),
		validateNonNegative("workers", c.Workers),
		validateDuration("read-timeout", c.ReadTimeout),
		validateRate(c.RateLimit, c.Burst),
		validateCodec(c.Codec),
	)
}

// Provider configures ssoa-provider.
type Provider struct {
	Host          string
	Port          string
	AdvertiseHost string
	RegistryHost  string
	RegistryPort  string
	Workers       int
	ReadTimeout   time.Duration
	CallTimeout   time.Duration
	RateLimit     float64
	Burst         int
	Codec         string
	LogLevel      string
	Development   bool
	Etcd          []string
	LeaseTTL      int64
}

func DefaultProvider() Provider {
	return Provider{
		Host:         "0.0.0.0",
		Port:         DefaultProviderPort,
		RegistryHost: "127.0.0.1",
		RegistryPort: DefaultRegistryPort,
		Codec:        codec.CodecTypeYAML.String(),
		LogLevel:     DefaultLogLevel,
		LeaseTTL:     registry.DefaultLeaseTTL,
	}
}

func (c Provider) Address() string { return registry.Endpoint{Host: c.Host, Port: c.Port}.String() }

func (c Provider) Registry() registry.Endpoint {
	return registry.Endpoint{Host: c.RegistryHost, Port: c.RegistryPort}
}

// Advertise is the endpoint announced to the registry. The server fills in the port, and
// the host when none is configured, from its listener.
func (c Provider) Advertise() registry.Endpoint {
	return registry.Endpoint{Host: c.AdvertiseHost}
}

func (c Provider) Validate() error {
	err := multierr.Combine(
		validatePort("port", c.Port),
		validateNonNegative("workers", c.Workers),
		validateDuration("read-timeout", c.ReadTimeout),
		validateDuration("call-timeout", c.CallTimeout),
		validateRate(c.RateLimit, c.Burst),
		validateCodec(c.Codec),
	)
	if c.RegistryHost != "" {
		err = multierr.Append(err, validatePort("registry-port", c.RegistryPort))
	}
	return err
}

// Client configures ssoa-client.
type Client struct {
	RegistryHost string
	RegistryPort string
	DialTimeout  time.Duration
	CallTimeout  time.Duration
	Codec        string
	LogLevel     string
}

func DefaultClient() Client {
	return Client{
		RegistryHost: "127.0.0.1",
		RegistryPort: DefaultRegistryPort,
		DialTimeout:  DefaultDialTimeout,
		Codec:        codec.CodecTypeYAML.String(),
		LogLevel:     "warn",
	}
}

func (c Client) Registry() registry.Endpoint {
	return registry.Endpoint{Host: c.RegistryHost, Port: c.RegistryPort}
}

func (c Client) Validate() error {
	var err error
	if c.RegistryHost == "" {
		err = fmt.Errorf("registry-host: must be set")
	}
	return multierr.Combine(
		err,
		validatePort("registry-port", c.RegistryPort),
		validateDuration("dial-timeout", c.DialTimeout),
		validateDuration("call-timeout", c.CallTimeout),
		validateCodec(c.Codec),
	)
}

func validatePort(name, port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%s: invalid port %q", name, port)
	}
	return nil
}

func validateNonNegative(name string, n int) error {
	if n < 0 {
		return fmt.Errorf("%s: must not be negative", name)
	}
	return nil
}

func validateDuration(name string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%s: must not be negative", name)
	}
	return nil
}

func validateRate(r float64, burst int) error {
	if r < 0 || burst < 0 {
		return fmt.Errorf("rate-limit: rate and burst must not be negative")
	}
	return nil
}

func validateCodec(name string) error {
	_, err := codec.ParseCodecType(name)
	return err
}
