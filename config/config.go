// Package config loads the pools, threads and timers of a foundation
// process from YAML, with a command-line overlay for the default pool.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"

	"github.com/zeus-go/foundation/core"
)

// DefaultPoolName is the pool created by Default and targeted by ApplyFlags.
const DefaultPoolName = "default"

// Timer kinds accepted in TimerConfig.Kind.
const (
	TimerKindRelative = "relative"
	TimerKindAbsolute = "absolute"
)

// Config describes every named scheduler of a process.
type Config struct {
	Pools   []PoolConfig   `yaml:"pools"`
	Threads []ThreadConfig `yaml:"threads"`
	Timers  []TimerConfig  `yaml:"timers"`
	History HistoryConfig  `yaml:"history"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Log     LogConfig      `yaml:"log"`
}

type PoolConfig struct {
	Name               string        `yaml:"name"`
	CoreSize           int           `yaml:"core_size"`
	AutoExpansion      bool          `yaml:"auto_expansion"`
	MaxSize            int           `yaml:"max_size"`
	Manual             bool          `yaml:"manual"`
	QueueCapacity      int           `yaml:"queue_capacity"`
	ExpansionThreshold int           `yaml:"expansion_threshold"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
}

type ThreadConfig struct {
	Name        string        `yaml:"name"`
	Automatic   bool          `yaml:"automatic"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type TimerConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Manual bool   `yaml:"manual"`
	// Pool names the pool that runs callbacks. Empty runs them on the
	// timer thread.
	Pool        string        `yaml:"pool"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// HistoryConfig enables the SQLite execution history when Path is set.
type HistoryConfig struct {
	Path          string        `yaml:"path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Retention     time.Duration `yaml:"retention"`
}

type MetricsConfig struct {
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Default returns a configuration with one automatic two-worker pool.
func Default() *Config {
	opts := core.DefaultPoolOptions()
	return &Config{
		Pools: []PoolConfig{{
			Name:               DefaultPoolName,
			CoreSize:           opts.CoreSize,
			ExpansionThreshold: opts.ExpansionThreshold,
			IdleTimeout:        opts.IdleTimeout,
		}},
		History: HistoryConfig{FlushInterval: time.Second},
		Metrics: MetricsConfig{Namespace: "foundation", PollInterval: 5 * time.Second},
	}
}

// Load reads and validates a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, core.ErrCodeInvalidConfig, "cannot read config file").
			WithContext("path", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	pools := cfg.Pools
	cfg.Pools = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, core.ErrCodeInvalidConfig, "invalid YAML")
	}
	if len(cfg.Pools) == 0 {
		cfg.Pools = pools
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks names, references and per-pool options.
func (c *Config) Validate() error {
	names := make(map[string]string)
	claim := func(kind, name string) error {
		if name == "" {
			return errors.New(core.ErrCodeInvalidConfig, fmt.Sprintf("%s without a name", kind))
		}
		if prev, dup := names[name]; dup {
			return errors.New(core.ErrCodeInvalidConfig, "duplicate name").
				WithContext("name", name).
				WithContext("first", prev).
				WithContext("second", kind)
		}
		names[name] = kind
		return nil
	}

	pools := make(map[string]bool, len(c.Pools))
	for _, p := range c.Pools {
		if err := claim("pool", p.Name); err != nil {
			return err
		}
		if err := p.Options().Validate(); err != nil {
			return err
		}
		pools[p.Name] = true
	}
	for _, th := range c.Threads {
		if err := claim("thread", th.Name); err != nil {
			return err
		}
		if th.IdleTimeout < 0 {
			return errors.New(core.ErrCodeInvalidConfig, "idle timeout must not be negative").WithContext("thread", th.Name)
		}
	}
	for _, tm := range c.Timers {
		if err := claim("timer", tm.Name); err != nil {
			return err
		}
		switch tm.Kind {
		case TimerKindRelative, TimerKindAbsolute:
		default:
			return errors.New(core.ErrCodeInvalidConfig, "unknown timer kind").
				WithContext("timer", tm.Name).
				WithContext("kind", tm.Kind)
		}
		if tm.Pool != "" && !pools[tm.Pool] {
			return errors.New(core.ErrCodeInvalidConfig, "timer refers to an unknown pool").
				WithContext("timer", tm.Name).
				WithContext("pool", tm.Pool)
		}
	}
	if c.History.Path != "" && c.History.FlushInterval <= 0 {
		return errors.New(core.ErrCodeInvalidConfig, "history flush interval must be positive")
	}
	if c.Metrics.PollInterval < 0 {
		return errors.New(core.ErrCodeInvalidConfig, "metrics poll interval must not be negative")
	}
	return nil
}

// Pool returns the named pool section.
func (c *Config) Pool(name string) (PoolConfig, bool) {
	for _, p := range c.Pools {
		if p.Name == name {
			return p, true
		}
	}
	return PoolConfig{}, false
}

// Options converts the section into core pool options without hooks.
func (p PoolConfig) Options() core.PoolOptions {
	return core.PoolOptions{
		Name:               p.Name,
		CoreSize:           p.CoreSize,
		AutoExpansion:      p.AutoExpansion,
		MaxSize:            p.MaxSize,
		Manual:             p.Manual,
		QueueCapacity:      p.QueueCapacity,
		ExpansionThreshold: p.ExpansionThreshold,
		IdleTimeout:        p.IdleTimeout,
	}
}

func (t ThreadConfig) Options() core.ThreadOptions {
	return core.ThreadOptions{Automatic: t.Automatic, IdleTimeout: t.IdleTimeout}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, core.ErrCodeInvalidConfig, "cannot encode config")
	}
	return data, nil
}
