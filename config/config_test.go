package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeus-go/foundation/core"
)

const sampleYAML = `
pools:
  - name: default
    core_size: 2
  - name: io
    core_size: 1
    auto_expansion: true
    max_size: 8
    queue_capacity: 100
    idle_timeout: 30s
threads:
  - name: ui
    automatic: true
    idle_timeout: 1m
timers:
  - name: ticker
    kind: relative
    pool: io
  - name: alarms
    kind: absolute
    manual: true
history:
  path: /tmp/history.db
  flush_interval: 500ms
  retention: 24h
`

// TestParse_FullDocument verifies YAML decoding
// Given: a document with pools, threads, timers and history
// When: Parse is called
// Then: every section is decoded with durations parsed
func TestParse_FullDocument(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(cfg.Pools) != 2 || len(cfg.Threads) != 1 || len(cfg.Timers) != 2 {
		t.Fatalf("sections: pools=%d threads=%d timers=%d", len(cfg.Pools), len(cfg.Threads), len(cfg.Timers))
	}
	io, ok := cfg.Pool("io")
	if !ok {
		t.Fatal("pool io missing")
	}
	opts := io.Options()
	if !opts.AutoExpansion || opts.MaxSize != 8 || opts.QueueCapacity != 100 || opts.IdleTimeout != 30*time.Second {
		t.Errorf("io options: got = %+v", opts)
	}
	if cfg.Threads[0].Options().IdleTimeout != time.Minute {
		t.Errorf("thread idle timeout: got = %v", cfg.Threads[0].IdleTimeout)
	}
	if cfg.Timers[0].Manual || !cfg.Timers[1].Manual {
		t.Errorf("timer manual flags: got = %v, %v, want false, true", cfg.Timers[0].Manual, cfg.Timers[1].Manual)
	}
	if cfg.History.FlushInterval != 500*time.Millisecond || cfg.History.Retention != 24*time.Hour {
		t.Errorf("history: got = %+v", cfg.History)
	}
	if cfg.Metrics.Namespace != "foundation" {
		t.Errorf("metrics namespace default lost: %q", cfg.Metrics.Namespace)
	}
}

func TestParse_EmptyKeepsDefaultPool(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, ok := cfg.Pool(DefaultPoolName)
	if !ok || p.CoreSize != 2 {
		t.Errorf("default pool: got = %+v, %v", p, ok)
	}
}

// TestParse_Rejects tests validation failures
// Main test items:
// 1. Unknown keys
// 2. Duplicate names across kinds
// 3. Unknown timer kind and pool reference
// 4. Invalid pool options
func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "pools:\n  - name: a\n    core_size: 1\n    cores: 3\n",
		"duplicate name": "pools:\n  - name: a\n    core_size: 1\nthreads:\n  - name: a\n",
		"timer kind":     "timers:\n  - name: t\n    kind: cron\n",
		"timer pool":     "timers:\n  - name: t\n    kind: relative\n    pool: missing\n",
		"zero core":      "pools:\n  - name: a\n    core_size: 0\n",
		"negative queue": "pools:\n  - name: a\n    core_size: 1\n    queue_capacity: -1\n",
		"unnamed thread": "threads:\n  - automatic: true\n",
		"history flush":  "history:\n  path: x.db\n  flush_interval: 0s\n",
		"malformed yaml": "pools: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if !core.HasCode(err, core.ErrCodeInvalidConfig) {
				t.Errorf("got = %v, want code %s", err, core.ErrCodeInvalidConfig)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foundation.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timers[0].Pool != "io" {
		t.Errorf("timer pool: got = %q", cfg.Timers[0].Pool)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !core.HasCode(err, core.ErrCodeInvalidConfig) {
		t.Errorf("missing file: got = %v", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal): %v", err)
	}
	if len(again.Timers) != 2 || again.Pools[1].IdleTimeout != 30*time.Second {
		t.Errorf("round trip lost data: %+v", again)
	}
}

// TestApplyFlags verifies the command-line overlay
// Given: a config without a default pool
// When: flags for the default pool and history are applied
// Then: the default pool is created with the flag values
func TestApplyFlags(t *testing.T) {
	cfg, err := Parse([]byte("pools:\n  - name: io\n    core_size: 1\n"))
	if err != nil {
		t.Fatal(err)
	}

	err = ApplyFlags(cfg, []string{
		"--workers", "4",
		"--max-workers", "16",
		"--auto-expansion",
		"--queue-capacity", "64",
		"--idle-timeout", "10s",
		"--history-db", "/tmp/h.db",
	})
	if err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}

	p, ok := cfg.Pool(DefaultPoolName)
	if !ok {
		t.Fatal("default pool not created")
	}
	if p.CoreSize != 4 || p.MaxSize != 16 || !p.AutoExpansion || p.QueueCapacity != 64 || p.IdleTimeout != 10*time.Second {
		t.Errorf("default pool: got = %+v", p)
	}
	if cfg.History.Path != "/tmp/h.db" {
		t.Errorf("history path: got = %q", cfg.History.Path)
	}
	if io, _ := cfg.Pool("io"); io.CoreSize != 1 {
		t.Errorf("flags changed another pool: %+v", io)
	}
}

func TestApplyFlags_InvalidValue(t *testing.T) {
	cfg := Default()
	if err := ApplyFlags(cfg, []string{"--workers", "0"}); !core.HasCode(err, core.ErrCodeInvalidConfig) {
		t.Errorf("zero workers without expansion: got = %v", err)
	}
}
