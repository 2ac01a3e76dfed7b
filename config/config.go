// Package config loads the configuration of HamShack from defaults, an optional YAML file,
// environment variables and command line flags.
package config

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ftl/hamradio/callsign"
	"github.com/ftl/hamradio/locator"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ftl/hamshack/sdr"
	"github.com/ftl/hamshack/spots"
	"github.com/ftl/hamshack/telnet"
	"github.com/ftl/hamshack/trace"
)

// EnvPrefix is the prefix of all environment variables, e.g. HAMSHACK_SERVER_PORT.
const EnvPrefix = "HAMSHACK"

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Station StationConfig `mapstructure:"station" yaml:"station"`
	SDR     SDRConfig     `mapstructure:"sdr" yaml:"sdr"`
	Spots   SpotsConfig   `mapstructure:"spots" yaml:"spots"`
	Telnet  TelnetConfig  `mapstructure:"telnet" yaml:"telnet"`
	TCI     TCIConfig     `mapstructure:"tci" yaml:"tci"`
	Scope   ScopeConfig   `mapstructure:"scope" yaml:"scope"`
	Trace   TraceConfig   `mapstructure:"trace" yaml:"trace"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	StaticDir    string        `mapstructure:"static_dir" yaml:"static_dir"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type StationConfig struct {
	Callsign string `mapstructure:"callsign" yaml:"callsign"`
	Locator  string `mapstructure:"locator" yaml:"locator"`
}

type SDRConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Device     string        `mapstructure:"device" yaml:"device"`
	SampleRate int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Frequency  int           `mapstructure:"frequency" yaml:"frequency"`
	Gain       float64       `mapstructure:"gain" yaml:"gain"`
	FFTSize    int           `mapstructure:"fft_size" yaml:"fft_size"`
	Transform  string        `mapstructure:"transform" yaml:"transform"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
}

type SpotsConfig struct {
	Capacity  int           `mapstructure:"capacity" yaml:"capacity"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

type TelnetConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Port          int           `mapstructure:"port" yaml:"port"`
	Call          string        `mapstructure:"call" yaml:"call"`
	SilencePeriod time.Duration `mapstructure:"silence_period" yaml:"silence_period"`
}

type TCIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Trace   bool   `mapstructure:"trace" yaml:"trace"`
}

type ScopeConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

type TraceConfig struct {
	Context     string `mapstructure:"context" yaml:"context"`
	Destination string `mapstructure:"destination" yaml:"destination"`
}

// SetDefaults registers the default value of every configuration key.
func SetDefaults(v *viper.Viper) {
	defaultSDR := sdr.DefaultConfig()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("server.poll_interval", 100*time.Millisecond)

	v.SetDefault("station.callsign", "N0CALL")
	v.SetDefault("station.locator", "FN31")

	v.SetDefault("sdr.enabled", true)
	v.SetDefault("sdr.device", defaultSDR.Device)
	v.SetDefault("sdr.sample_rate", defaultSDR.SampleRate)
	v.SetDefault("sdr.frequency", defaultSDR.Frequency)
	v.SetDefault("sdr.gain", defaultSDR.Gain)
	v.SetDefault("sdr.fft_size", defaultSDR.FFTSize)
	v.SetDefault("sdr.transform", string(sdr.GoDSPTransform))
	v.SetDefault("sdr.interval", sdr.DefaultInterval)

	v.SetDefault("spots.capacity", spots.DefaultCapacity)
	v.SetDefault("spots.retention", spots.DefaultRetention)

	v.SetDefault("telnet.enabled", false)
	v.SetDefault("telnet.port", 7373)
	v.SetDefault("telnet.call", "")
	v.SetDefault("telnet.silence_period", telnet.DefaultSilencePeriod)

	v.SetDefault("tci.enabled", false)
	v.SetDefault("tci.host", "localhost:40001")
	v.SetDefault("tci.trace", false)

	v.SetDefault("scope.enabled", false)
	v.SetDefault("scope.address", ":35369")

	v.SetDefault("trace.context", "")
	v.SetDefault("trace.destination", "")
}

// Setup prepares the given viper instance with the defaults and the environment variable binding.
func Setup(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the given viper instance and validates it.
func Load(v *viper.Viper) (*Config, error) {
	config := &Config{}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if _, err := callsign.Parse(c.StationCallsign()); err != nil {
		return fmt.Errorf("invalid station callsign %q: %w", c.Station.Callsign, err)
	}
	if _, err := locator.Parse(c.Station.Locator); err != nil {
		return fmt.Errorf("invalid station locator %q: %w", c.Station.Locator, err)
	}
	if err := c.SDRConfig().Validate(); err != nil {
		return err
	}
	if c.SDR.Interval <= 0 {
		return fmt.Errorf("sdr interval must be positive")
	}
	if c.Spots.Capacity <= 0 {
		return fmt.Errorf("spot capacity must be positive")
	}
	if c.Spots.Retention <= 0 {
		return fmt.Errorf("spot retention must be positive")
	}
	if c.Telnet.Enabled && (c.Telnet.Port <= 0 || c.Telnet.Port > 65535) {
		return fmt.Errorf("invalid telnet port %d", c.Telnet.Port)
	}
	switch c.Trace.Context {
	case "", trace.SpectrumContext, trace.StatusContext:
	default:
		return fmt.Errorf("unknown trace context %q", c.Trace.Context)
	}

	return nil
}

// SDRConfig returns the configuration of the acquisition pipeline.
func (c *Config) SDRConfig() sdr.Config {
	return sdr.Config{
		Device:     c.SDR.Device,
		SampleRate: c.SDR.SampleRate,
		Frequency:  c.SDR.Frequency,
		Gain:       c.SDR.Gain,
		FFTSize:    c.SDR.FFTSize,
		Transform:  sdr.TransformKind(c.SDR.Transform),
	}
}

// StationCallsign returns the normalized callsign of the station.
func (c *Config) StationCallsign() string {
	return strings.ToUpper(strings.TrimSpace(c.Station.Callsign))
}

// TelnetCall returns the callsign of the DX cluster. It defaults to the station callsign.
func (c *Config) TelnetCall() string {
	if c.Telnet.Call != "" {
		return c.Telnet.Call
	}
	return c.StationCallsign()
}

func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) TelnetAddress() string {
	return net.JoinHostPort("", strconv.Itoa(c.Telnet.Port))
}

// WriteYAML writes the configuration as YAML into the given writer.
func (c *Config) WriteYAML(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("cannot encode configuration: %w", err)
	}
	return encoder.Close()
}
