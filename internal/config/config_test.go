package config_test

import (
	"io"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/nvr-core/resolve/internal/config"
)

type mockFS struct {
	files map[string]string
}

func (m mockFS) Stat(path string) (fs.FileInfo, error) {
	if _, ok := m.files[path]; !ok {
		return nil, os.ErrNotExist
	}
	return nil, nil
}

func (m mockFS) MkdirAll(_ string, _ os.FileMode) error { return nil }

func (m mockFS) Open(path string) (*os.File, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	tmp, err := os.CreateTemp("", "resolvectl-config-*")
	if err != nil {
		return nil, err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, err
	}
	return tmp, nil
}

type ConfigTestSuite struct {
	suite.Suite
	fs       mockFS
	provider config.Provider
}

func (s *ConfigTestSuite) SetupTest() {
	s.fs = mockFS{files: make(map[string]string)}
	s.provider = config.NewWithPath(s.fs, "test/config.yaml")
}

func (s *ConfigTestSuite) TestLoadDefaultWhenNoFile() {
	cfg, err := s.provider.Load()

	s.Require().NoError(err)
	s.Equal(config.DefaultUpstream, cfg.Resolver.Upstream)
	s.Equal(config.DefaultWaitSetSize, cfg.Resolver.WaitSetSize)
	s.Equal(config.DefaultTimeout, cfg.Resolver.DefaultTimeout)
	s.Equal("info", cfg.CLI.LogLevel)
}

func (s *ConfigTestSuite) TestLoadValidConfig() {
	s.fs.files["test/config.yaml"] = `
resolver:
  upstream: 1.1.1.1:53
  wait_set_size: 2
  default_timeout: 2s
cli:
  log_level: debug
`
	cfg, err := s.provider.Load()

	s.Require().NoError(err)
	s.Equal("1.1.1.1:53", cfg.Resolver.Upstream)
	s.Equal(2*time.Second, cfg.Resolver.DefaultTimeout)
	s.Equal("debug", cfg.CLI.LogLevel)

	addr, err := cfg.UpstreamAddr()
	s.Require().NoError(err)
	s.Equal(uint16(53), addr.Port)
	s.Equal([4]byte{1, 1, 1, 1}, addr.IP)
}

func (s *ConfigTestSuite) TestLoadInvalidYAML() {
	s.fs.files["test/config.yaml"] = `
resolver: [invalid: yaml]
`
	_, err := s.provider.Load()

	s.Error(err)
	s.Contains(err.Error(), "decoding config file")
}

func (s *ConfigTestSuite) TestLoadRejectsInvalidUpstream() {
	s.fs.files["test/config.yaml"] = `
resolver:
  upstream: not-a-host-port
  wait_set_size: 2
  default_timeout: 5s
`
	_, err := s.provider.Load()

	s.ErrorIs(err, config.ErrInvalidConfig)
}

func (s *ConfigTestSuite) TestValidation() {
	base := func() config.Config { return *config.Default() }

	testCases := []struct {
		name        string
		mutate      func(*config.Config)
		expectedErr string
	}{
		{
			name:        "malformed upstream",
			mutate:      func(c *config.Config) { c.Resolver.Upstream = "garbage" },
			expectedErr: "resolver.upstream",
		},
		{
			name:        "wait set size below C4 bound",
			mutate:      func(c *config.Config) { c.Resolver.WaitSetSize = 1 },
			expectedErr: "wait_set_size must be at least",
		},
		{
			name:        "zero default timeout",
			mutate:      func(c *config.Config) { c.Resolver.DefaultTimeout = 0 },
			expectedErr: "default_timeout must be at least 1ms",
		},
		{
			name:        "negative default timeout",
			mutate:      func(c *config.Config) { c.Resolver.DefaultTimeout = -time.Second },
			expectedErr: "default_timeout must be at least 1ms",
		},
		{
			name:        "defaults are valid",
			mutate:      func(*config.Config) {},
			expectedErr: "",
		},
		{
			name:        "exactly the wait set floor",
			mutate:      func(c *config.Config) { c.Resolver.WaitSetSize = config.DefaultWaitSetSize },
			expectedErr: "",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.expectedErr == "" {
				s.NoError(err)
			} else {
				s.Error(err)
				s.Contains(err.Error(), tc.expectedErr)
			}
		})
	}
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
