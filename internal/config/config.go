// Package config provides configuration loading and validation for
// resolvectl and any other binary embedding the dnsresolver facade.
// It handles reading configuration from a YAML file, providing
// defaults, and ensuring all required settings are sane before the
// resolver is constructed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvr-core/resolve/internal/domain"
	"github.com/nvr-core/resolve/internal/filesys"
)

var (
	// ErrInvalidConfig is returned when the configuration fails Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoConfig is returned when the configuration file is not found.
	ErrNoConfig = errors.New("configuration file not found")
)

const (
	// DefaultConfigPath is the default path for the configuration file.
	DefaultConfigPath = ".resolvectl/config.yaml"
	// DefaultUpstream is the upstream resolver spec.md §6 hard-codes;
	// here it is only the default, overridable through resolver.upstream
	// in the config file, per spec.md §9's
	// note that configurability is a natural, out-of-scope extension.
	DefaultUpstream = "8.8.8.8:53"
	// DefaultWaitSetSize is the C4 WaitSet bound: the message queue and
	// the UDP socket, and nothing else.
	DefaultWaitSetSize = 2
	// DefaultTimeout is the per-lookup timeout applied when a caller
	// does not specify one.
	DefaultTimeout = 5 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Resolver ResolverConfig `yaml:"resolver"`
	CLI      CLIConfig      `yaml:"cli"`
}

// ResolverConfig holds dnsresolver-facade-related configuration.
type ResolverConfig struct {
	Upstream       string        `yaml:"upstream"`
	WaitSetSize    int           `yaml:"wait_set_size"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// CLIConfig holds CLI-related configuration.
type CLIConfig struct {
	LogLevel string `yaml:"log_level"`
}

// UpstreamAddr parses Resolver.Upstream into a domain.Addr.
func (c *Config) UpstreamAddr() (domain.Addr, error) {
	return domain.ParseAddr(c.Resolver.Upstream)
}

// Provider defines the interface for loading configuration.
type Provider interface {
	Load() (*Config, error)
}

// FSProvider implements Provider using a filesys.ReadWriteFS.
type FSProvider struct {
	fs   filesys.ReadWriteFS
	path string
}

var _ Provider = (*FSProvider)(nil)

// New creates a configuration provider rooted at the user's home
// directory. If the home directory cannot be determined, it falls
// back to the current directory.
func New() Provider {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return NewWithPath(filesys.OS(), filepath.Join(home, DefaultConfigPath))
}

// NewWithPath creates a provider against a specific filesystem and path.
func NewWithPath(fs filesys.ReadWriteFS, path string) Provider {
	return &FSProvider{fs: fs, path: path}
}

// Default returns a default configuration with preset values, used
// when no configuration file exists.
func Default() *Config {
	return &Config{
		Resolver: ResolverConfig{
			Upstream:       DefaultUpstream,
			WaitSetSize:    DefaultWaitSetSize,
			DefaultTimeout: DefaultTimeout,
		},
		CLI: CLIConfig{
			LogLevel: "info",
		},
	}
}

// Load loads the configuration from the provider's path.
func (p *FSProvider) Load() (*Config, error) {
	_ = p.ensureConfigDir()

	cfg, err := p.loadAndParse()
	if err != nil {
		if errors.Is(err, ErrNoConfig) {
			return Default(), nil
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// Validate checks the configuration for the constraints spec.md §9
// and SPEC_FULL.md §9.3 require before a Resolver can be built from it.
func (c *Config) Validate() error {
	if _, err := c.UpstreamAddr(); err != nil {
		return fmt.Errorf("resolver.upstream: %w", err)
	}
	if c.Resolver.WaitSetSize < DefaultWaitSetSize {
		return fmt.Errorf("resolver.wait_set_size must be at least %d", DefaultWaitSetSize)
	}
	if c.Resolver.DefaultTimeout < time.Millisecond {
		return errors.New("resolver.default_timeout must be at least 1ms")
	}
	return nil
}

func (p *FSProvider) ensureConfigDir() error {
	dir := filepath.Dir(p.path)
	if _, err := p.fs.Stat(dir); os.IsNotExist(err) {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return nil
}

func (p *FSProvider) loadAndParse() (*Config, error) {
	f, err := p.fs.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}

	return cfg, nil
}
