// ABOUTME: Server configuration loaded from YAML with .env and environment overrides
// ABOUTME: Precedence is environment, then .env file, then YAML, then defaults
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PROXAUDIO_"

// Config is the server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Registry  RegistryConfig  `yaml:"registry"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// ServerConfig controls the websocket listener
type ServerConfig struct {
	Name    string `yaml:"name"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"log_file"`
	NoTUI   bool   `yaml:"no_tui"`
}

// RegistryConfig controls stream admission and proximity
type RegistryConfig struct {
	Radius              float64       `yaml:"radius"`
	MaxStreamsPerSource int           `yaml:"max_streams_per_source"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	DataRate            float64       `yaml:"data_rate"`
	DataBurst           int           `yaml:"data_burst"`
}

// DiscoveryConfig controls mDNS advertisement
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "proxaudio",
			Port:    8927,
			Path:    "/proxaudio",
			LogFile: "proxaudio-server.log",
		},
		Registry: RegistryConfig{
			Radius:              64,
			MaxStreamsPerSource: 2,
			IdleTimeout:         10 * time.Second,
			TickInterval:        250 * time.Millisecond,
			DataRate:            100,
			DataBurst:           200,
		},
		Discovery: DiscoveryConfig{Enabled: true},
	}
}

// Load builds a configuration from defaults, an optional YAML file and an
// optional .env file, then applies process environment overrides
func Load(yamlPath, envPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		f, err := os.Open(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", yamlPath, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", yamlPath, err)
		}
	}

	fileVars := map[string]string{}
	if envPath != "" {
		vars, err := godotenv.Read(envPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read %q: %w", envPath, err)
		}
		if vars != nil {
			fileVars = vars
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates it
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with PROXAUDIO_* variables found by lookup
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("NAME", &cfg.Server.Name)
	integer("PORT", &cfg.Server.Port)
	str("PATH", &cfg.Server.Path)
	boolean("DEBUG", &cfg.Server.Debug)
	str("LOG_FILE", &cfg.Server.LogFile)
	boolean("NO_TUI", &cfg.Server.NoTUI)
	float("RADIUS", &cfg.Registry.Radius)
	integer("MAX_STREAMS", &cfg.Registry.MaxStreamsPerSource)
	duration("IDLE_TIMEOUT", &cfg.Registry.IdleTimeout)
	duration("TICK_INTERVAL", &cfg.Registry.TickInterval)
	float("DATA_RATE", &cfg.Registry.DataRate)
	integer("DATA_BURST", &cfg.Registry.DataBurst)
	boolean("MDNS", &cfg.Discovery.Enabled)

	return errors.Join(errs...)
}

// Validate returns a joined error listing every invalid value
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Name == "" {
		errs = append(errs, errors.New("server.name must not be empty"))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d outside [1, 65535]", cfg.Server.Port))
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path %q must start with /", cfg.Server.Path))
	}
	if cfg.Registry.MaxStreamsPerSource < 1 {
		errs = append(errs, fmt.Errorf("registry.max_streams_per_source %d must be at least 1", cfg.Registry.MaxStreamsPerSource))
	}
	if cfg.Registry.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("registry.idle_timeout %v must be positive", cfg.Registry.IdleTimeout))
	}
	if cfg.Registry.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("registry.tick_interval %v must be positive", cfg.Registry.TickInterval))
	} else if cfg.Registry.TickInterval >= cfg.Registry.IdleTimeout {
		errs = append(errs, fmt.Errorf("registry.tick_interval %v must be shorter than idle_timeout %v",
			cfg.Registry.TickInterval, cfg.Registry.IdleTimeout))
	}
	if cfg.Registry.DataRate <= 0 {
		errs = append(errs, fmt.Errorf("registry.data_rate %v must be positive", cfg.Registry.DataRate))
	}
	if cfg.Registry.DataBurst < 1 {
		errs = append(errs, fmt.Errorf("registry.data_burst %d must be at least 1", cfg.Registry.DataBurst))
	}

	return errors.Join(errs...)
}
