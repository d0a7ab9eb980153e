package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/loykin/tabguard/internal/logger"
	"github.com/loykin/tabguard/internal/policy"
)

// FileName is the config file name inside the user config directory.
const FileName = "tab-memory-manager.toml"

// EnvPrefix prefixes environment overrides, e.g. TABGUARD_BROWSER_NAME or TABGUARD_LOG_LEVEL.
const EnvPrefix = "TABGUARD"

//go:embed default.toml
var DefaultTOML []byte

// ErrExists is returned by WriteDefault when the file is already there.
var ErrExists = errors.New("config file already exists")

// Config represents the top-level TOML structure.
type Config struct {
	BrowserName       string         `toml:"browser_name" mapstructure:"browser_name"`
	KillTabStrategies []string       `toml:"kill_tab_strategies" mapstructure:"kill_tab_strategies"`
	CheckIntervalSecs float64        `toml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WhitelistAudible  bool           `toml:"whitelist_audible" mapstructure:"whitelist_audible"`
	Whitelist         []string       `toml:"whitelist" mapstructure:"whitelist"`
	Strategy          StrategyConfig `toml:"strategy" mapstructure:"strategy"`
	Server            ServerConfig   `toml:"server" mapstructure:"server"`
	Report            ListenConfig   `toml:"report" mapstructure:"report"`
	Metrics           ListenConfig   `toml:"metrics" mapstructure:"metrics"`
	Log               LogConfig      `toml:"log" mapstructure:"log"`
	History           HistoryConfig  `toml:"history" mapstructure:"history"`
}

type StrategyConfig struct {
	RSSLimit            RSSLimitConfig `toml:"rss_limit" mapstructure:"rss_limit"`
	BackgroundTimeLimit SecsLimit      `toml:"background_time_limit" mapstructure:"background_time_limit"`
	CPUIdleTimeLimit    SecsLimit      `toml:"cpu_idle_time_limit" mapstructure:"cpu_idle_time_limit"`
}

type RSSLimitConfig struct {
	MaxBytes uint64 `toml:"max_bytes" mapstructure:"max_bytes"`
}

type SecsLimit struct {
	MaxSecs float64 `toml:"max_secs" mapstructure:"max_secs"`
}

type ServerConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
	// Origin prefixes allowed to connect, e.g. "chrome-extension://". Empty allows any.
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`
}

type ListenConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// DefaultPath returns <user config dir>/tab-memory-manager.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns the built-in configuration.
func Default() (Config, error) {
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	return decode(v)
}

// Load reads path over the built-in defaults, applies TABGUARD_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.MergeInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

// LoadOrCreate loads the configuration the daemon runs with and returns the
// path it came from. An explicit path must hold a valid file or not exist, in
// which case the defaults are written there. With an empty path the default
// location is used; a missing or unreadable file there is moved aside to
// <file>.bak and replaced by the defaults.
func LoadOrCreate(path string) (Config, string, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, "", err
		}
		path = p
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path, false); err != nil {
			return Config{}, path, err
		}
		cfg, err := Load(path)
		return cfg, path, err
	}

	cfg, err := Load(path)
	if err == nil || explicit {
		return cfg, path, err
	}
	bak := path + ".bak"
	if rerr := os.Rename(path, bak); rerr != nil {
		return Config{}, path, fmt.Errorf("%w (and could not move it aside: %v)", err, rerr)
	}
	if werr := WriteDefault(path, false); werr != nil {
		return Config{}, path, werr
	}
	cfg, lerr := Load(path)
	if lerr != nil {
		return Config{}, path, lerr
	}
	return cfg, path, &ReplacedError{Path: path, Backup: bak, Err: err}
}

// ReplacedError reports that an invalid config file was replaced by defaults.
// The returned Config is usable.
type ReplacedError struct {
	Path   string
	Backup string
	Err    error
}

func (e *ReplacedError) Error() string {
	return fmt.Sprintf("invalid config %s replaced by defaults (old file at %s): %v", e.Path, e.Backup, e.Err)
}

func (e *ReplacedError) Unwrap() error { return e.Err }

// WriteDefault writes the built-in configuration to path, creating parent directories.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, DefaultTOML, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(DefaultTOML)); err != nil {
		return nil, fmt.Errorf("parse built-in config: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values the daemon cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BrowserName) == "" {
		errs = append(errs, errors.New("browser_name is empty"))
	}
	if c.CheckIntervalSecs <= 0 {
		errs = append(errs, fmt.Errorf("check_interval_secs must be positive, got %v", c.CheckIntervalSecs))
	}
	if _, err := policy.Build(c.KillTabStrategies, c.Limits()); err != nil {
		errs = append(errs, fmt.Errorf("kill_tab_strategies: %w", err))
	}
	if _, err := policy.NewWhitelist(c.Whitelist); err != nil {
		errs = append(errs, err)
	}
	if c.Strategy.BackgroundTimeLimit.MaxSecs < 0 || c.Strategy.CPUIdleTimeLimit.MaxSecs < 0 {
		errs = append(errs, errors.New("strategy max_secs must not be negative"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is empty"))
	}
	if c.Report.Enabled && c.Report.Listen == "" {
		errs = append(errs, errors.New("report.listen is empty"))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is empty"))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		errs = append(errs, errors.New("history.dsn is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Interval is check_interval_secs as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.CheckIntervalSecs * float64(time.Second))
}

func (c Config) Limits() policy.Limits {
	return policy.Limits{
		MaxRSSBytes:       c.Strategy.RSSLimit.MaxBytes,
		MaxBackgroundSecs: c.Strategy.BackgroundTimeLimit.MaxSecs,
		MaxCPUIdleSecs:    c.Strategy.CPUIdleTimeLimit.MaxSecs,
	}
}

func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Color:      c.Log.Color,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// TOML renders the effective configuration.
func (c Config) TOML() ([]byte, error) {
	return toml.Marshal(c)
}
