// Package config layers defaults, an optional config file and QBRANCH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"qbranch/state"
)

// ErrInvalid is returned when a loaded value is out of range.
var ErrInvalid = errors.New("config: invalid value")

// EnvPrefix prefixes every environment override, e.g. QBRANCH_REMOTE_URL.
const EnvPrefix = "QBRANCH"

type Remote struct {
	URL      string        `mapstructure:"url"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Config struct {
	LogLevel    string  `mapstructure:"log_level"`
	Epsilon     float64 `mapstructure:"epsilon"`
	MaxBranches int     `mapstructure:"max_branches"`
	Shots       int     `mapstructure:"shots"`
	Workers     int     `mapstructure:"workers"`
	Remote      Remote  `mapstructure:"remote"`
}

// Default returns the built-in settings. MaxBranches 0 lets the CLI derive a
// budget from host memory; Workers 0 means one per CPU.
func Default() Config {
	return Config{
		LogLevel:    "info",
		Epsilon:     state.DefaultEpsilon,
		MaxBranches: 0,
		Shots:       1024,
		Workers:     0,
		Remote: Remote{
			URL:     "ws://127.0.0.1:55444",
			Timeout: 2 * time.Minute,
		},
	}
}

// New returns a viper instance carrying the defaults and the environment
// binding. Callers may bind flags into it before Load.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("epsilon", d.Epsilon)
	v.SetDefault("max_branches", d.MaxBranches)
	v.SetDefault("shots", d.Shots)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.user", d.Remote.User)
	v.SetDefault("remote.password", d.Remote.Password)
	v.SetDefault("remote.timeout", d.Remote.Timeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, when set, into v and decodes the merged settings.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, ErrInvalid)
	}
	if c.Epsilon <= 0 || c.Epsilon >= state.MaxEpsilon {
		return fmt.Errorf("epsilon %g not in (0, %g): %w", c.Epsilon, state.MaxEpsilon, ErrInvalid)
	}
	if c.MaxBranches < 0 {
		return fmt.Errorf("max_branches %d: %w", c.MaxBranches, ErrInvalid)
	}
	if c.Shots < 0 {
		return fmt.Errorf("shots %d: %w", c.Shots, ErrInvalid)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers %d: %w", c.Workers, ErrInvalid)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout %s: %w", c.Remote.Timeout, ErrInvalid)
	}
	return nil
}

// Level is the parsed LogLevel. Validate has already rejected bad values.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
