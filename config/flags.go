package config

import (
	"time"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"

	"github.com/zeus-go/foundation/core"
)

// EnvPrefix prefixes the environment variables read by ApplyFlags,
// e.g. FOUNDATION_WORKERS.
const EnvPrefix = "FOUNDATION"

// ApplyFlags overlays command-line flags and FOUNDATION_* environment
// variables on cfg. The pool flags target the default pool, which is
// created when missing. Current values act as flag defaults, so only
// flags that are given change anything.
func ApplyFlags(cfg *Config, args []string) error {
	idx := -1
	for i, p := range cfg.Pools {
		if p.Name == DefaultPoolName {
			idx = i
			break
		}
	}
	if idx < 0 {
		cfg.Pools = append(cfg.Pools, Default().Pools[0])
		idx = len(cfg.Pools) - 1
	}
	pool := &cfg.Pools[idx]

	fs := flashflags.New("foundation")
	fs.SetEnvPrefix(EnvPrefix)
	fs.Int("workers", pool.CoreSize, "core workers of the default pool")
	fs.Int("max-workers", pool.MaxSize, "worker cap of the default pool (0 = GOMAXPROCS)")
	fs.Bool("auto-expansion", pool.AutoExpansion, "let the default pool grow under load")
	fs.Int("queue-capacity", pool.QueueCapacity, "queue bound of the default pool (0 = unbounded)")
	fs.Duration("idle-timeout", pool.IdleTimeout, "idle timeout of temporary workers")
	fs.String("history-db", cfg.History.Path, "SQLite file for execution history")
	fs.Duration("metrics-interval", cfg.Metrics.PollInterval, "stats polling interval")
	fs.Bool("verbose", cfg.Log.Verbose, "log debug messages")

	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, core.ErrCodeInvalidConfig, "invalid command-line flags")
	}

	pool.CoreSize = fs.GetInt("workers")
	pool.MaxSize = fs.GetInt("max-workers")
	pool.AutoExpansion = fs.GetBool("auto-expansion")
	pool.QueueCapacity = fs.GetInt("queue-capacity")
	pool.IdleTimeout = fs.GetDuration("idle-timeout")
	cfg.History.Path = fs.GetString("history-db")
	cfg.Metrics.PollInterval = fs.GetDuration("metrics-interval")
	cfg.Log.Verbose = fs.GetBool("verbose")

	if cfg.History.Path != "" && cfg.History.FlushInterval <= 0 {
		cfg.History.FlushInterval = time.Second
	}
	return cfg.Validate()
}
