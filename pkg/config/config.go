// Package config holds the per-workspace settings read by the adapter.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Defaults
const (
	DefaultInterpreter    = "python"
	DefaultCwd            = "${workspaceFolder}"
	DefaultEnvFile        = "${workspaceFolder}/.env"
	DefaultStartDirectory = "."
	DefaultPattern        = "test*.py"
	DefaultMaxParallel    = 4
)

// Config is an immutable snapshot of the workspace settings. Placeholders are
// already expanded and paths are absolute once Parse or Default returns.
type Config struct {
	Interpreter string         `yaml:"interpreter"`
	Cwd         string         `yaml:"cwd"`
	EnvFile     string         `yaml:"envFile"`
	MaxParallel int            `yaml:"maxParallel"` // concurrent run invocations
	Unittest    UnittestConfig `yaml:"unittest"`
	Pytest      PytestConfig   `yaml:"pytest"`

	// Workspace is the folder placeholders and relative paths resolve against.
	Workspace string `yaml:"-"`
}

// UnittestConfig configures unittest discovery.
type UnittestConfig struct {
	Enabled        bool   `yaml:"enabled"`
	StartDirectory string `yaml:"startDirectory"` // relative to Cwd
	Pattern        string `yaml:"pattern"`
}

// PytestConfig configures pytest. Args are passed through on every invocation.
type PytestConfig struct {
	Enabled bool     `yaml:"enabled"`
	Args    []string `yaml:"args"`
}

// Default returns the settings used when no file is present: unittest
// enabled with the standard pattern, pytest disabled.
func Default(workspace string) *Config {
	cfg := defaults(workspace)
	cfg.resolve()
	return cfg
}

func defaults(workspace string) *Config {
	return &Config{
		Interpreter: DefaultInterpreter,
		Cwd:         DefaultCwd,
		EnvFile:     DefaultEnvFile,
		MaxParallel: DefaultMaxParallel,
		Unittest: UnittestConfig{
			Enabled:        true,
			StartDirectory: DefaultStartDirectory,
			Pattern:        DefaultPattern,
		},
		Workspace: workspace,
	}
}

// Parse parses YAML settings for workspace.
func Parse(data []byte, workspace string) (*Config, error) {
	cfg := defaults(workspace)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Workspace = workspace
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads settings from path. An empty path yields Default.
func Load(path, workspace string) (*Config, error) {
	if path == "" {
		return Default(workspace), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, workspace)
}

// Validate checks config validity.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Interpreter) == "" {
		return fmt.Errorf("%w: interpreter must not be empty", ErrInvalid)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("%w: maxParallel must be at least 1, got %d", ErrInvalid, c.MaxParallel)
	}
	if c.Unittest.Enabled {
		if c.Unittest.Pattern == "" {
			return fmt.Errorf("%w: unittest.pattern must not be empty", ErrInvalid)
		}
		if !doublestar.ValidatePattern(c.Unittest.Pattern) {
			return fmt.Errorf("%w: unittest.pattern %q is not a valid glob", ErrInvalid, c.Unittest.Pattern)
		}
	}
	return nil
}

// StartDir returns the absolute unittest start directory.
func (c *Config) StartDir() string {
	return absolute(c.Unittest.StartDirectory, c.Cwd)
}

// EnvOverlay reads the environment file. A missing file is an empty overlay.
func (c *Config) EnvOverlay() (map[string]string, error) {
	if c.EnvFile == "" {
		return map[string]string{}, nil
	}
	env, err := godotenv.Read(c.EnvFile)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", c.EnvFile, err)
	}
	return env, nil
}

// resolve expands placeholders and makes paths absolute.
func (c *Config) resolve() {
	c.Interpreter = c.expand(c.Interpreter)
	c.Cwd = absolute(c.expand(c.Cwd), c.Workspace)
	c.EnvFile = c.expand(c.EnvFile)
	if c.EnvFile != "" {
		c.EnvFile = absolute(c.EnvFile, c.Workspace)
	}
	c.Unittest.StartDirectory = c.expand(c.Unittest.StartDirectory)
	for i, arg := range c.Pytest.Args {
		c.Pytest.Args[i] = c.expand(arg)
	}
}

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expand substitutes ${workspaceFolder}, ${workspaceRoot}, ${env:NAME} and a
// leading "~/". Unknown placeholders are left as they are.
func (c *Config) expand(s string) string {
	s = placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		switch {
		case name == "workspaceFolder", name == "workspaceRoot":
			return c.Workspace
		case strings.HasPrefix(name, "env:"):
			return os.Getenv(strings.TrimPrefix(name, "env:"))
		default:
			return m
		}
	})
	if rest, ok := strings.CutPrefix(s, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			s = filepath.Join(home, rest)
		}
	}
	return s
}

func absolute(path, base string) string {
	if path == "" {
		path = "."
	}
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
