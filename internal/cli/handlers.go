package cli

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zeus-go/foundation"
	"github.com/zeus-go/foundation/config"
	"github.com/zeus-go/foundation/core"
	"github.com/zeus-go/foundation/history"
	fprom "github.com/zeus-go/foundation/observability/prometheus"
)

// ErrCodeUsage marks missing or malformed command arguments.
const ErrCodeUsage = "FOUNDATION_USAGE"

func usageError(msg string) error {
	return errors.New(ErrCodeUsage, msg)
}

func parseDuration(flag, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeUsage, "invalid duration").WithContext("flag", flag)
	}
	return d, nil
}

// loadConfig reads path, or starts from config.Default when path is empty,
// then applies the FOUNDATION_* environment overlay.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyFlags(cfg, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *Manager) handleRun(ctx *orpheus.Context) error {
	cfg, err := loadConfig(ctx.GetFlagString("config"))
	if err != nil {
		return err
	}
	duration, err := parseDuration("duration", ctx.GetFlagString("duration"))
	if err != nil {
		return err
	}

	logger := &core.DefaultLogger{Verbose: cfg.Log.Verbose}
	promReg := prom.NewRegistry()
	exporter, err := fprom.NewMetricsExporter(cfg.Metrics.Namespace, promReg, fprom.ExporterOptions{})
	if err != nil {
		return err
	}
	hooks := core.Hooks{Logger: logger, Metrics: exporter}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		sink := history.NewSink(store, history.SinkOptions{
			FlushInterval: cfg.History.FlushInterval,
			Retention:     cfg.History.Retention,
			Logger:        logger,
		})
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Error("history close failed", core.F("error", err))
			}
		}()
		hooks.Sink = sink
	}

	reg, err := foundation.NewRegistry(cfg, foundation.RegistryOptions{Hooks: hooks})
	if err != nil {
		return err
	}
	defer reg.Close()
	reg.Start()

	poller, err := fprom.NewSnapshotPoller(cfg.Metrics.Namespace, promReg, cfg.Metrics.PollInterval)
	if err != nil {
		return err
	}
	addProviders(poller, reg, cfg)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, duration)
		defer cancel()
	}

	poller.Start(runCtx)
	defer poller.Stop()

	g, gctx := errgroup.WithContext(runCtx)
	if addr := ctx.GetFlagString("metrics-addr"); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, ErrCodeUsage, "metrics server failed").WithContext("addr", addr)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	logger.Info("foundation running",
		core.F("pools", len(cfg.Pools)),
		core.F("threads", len(cfg.Threads)),
		core.F("timers", len(cfg.Timers)))
	if err := g.Wait(); err != nil {
		return err
	}

	m.printSnapshot(reg.Snapshot())
	return nil
}

func addProviders(poller *fprom.SnapshotPoller, reg *foundation.Registry, cfg *config.Config) {
	for _, pc := range cfg.Pools {
		if p, err := reg.Pool(pc.Name); err == nil {
			poller.AddPool(pc.Name, p)
		}
	}
	for _, tc := range cfg.Threads {
		if t, err := reg.Thread(tc.Name); err == nil {
			poller.AddThread(tc.Name, t)
		}
	}
	for _, tc := range cfg.Timers {
		if tc.Kind == config.TimerKindAbsolute {
			if t, err := reg.AbsoluteTimer(tc.Name); err == nil {
				poller.AddTimer(tc.Name, t)
			}
			continue
		}
		if t, err := reg.RelativeTimer(tc.Name); err == nil {
			poller.AddTimer(tc.Name, t)
		}
	}
}

func (m *Manager) printSnapshot(s foundation.Snapshot) {
	w := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tCOMPLETED\tPANICKED\tPENDING")
	for _, p := range s.Pools {
		fmt.Fprintf(w, "pool\t%s\t%d\t%d\t%d\n", p.Name, p.Completed, p.Panicked, p.Queued)
	}
	for _, t := range s.Threads {
		fmt.Fprintf(w, "thread\t%s\t%d\t%d\t%d\n", t.Name, t.Completed, t.Panicked, t.Queued)
	}
	for _, t := range s.Timers {
		fmt.Fprintf(w, "timer\t%s\t%d\t%d\t%d\n", t.Name, t.Fired, t.Panicked, t.Pending)
	}
	w.Flush()
}

func (m *Manager) handlePoolBench(ctx *orpheus.Context) error {
	tasks := ctx.GetFlagInt("tasks")
	submitters := max(ctx.GetFlagInt("submitters"), 1)
	if tasks <= 0 {
		return usageError("--tasks must be positive")
	}

	pool, err := core.NewThreadPool(core.PoolOptions{
		Name:          "bench",
		CoreSize:      ctx.GetFlagInt("workers"),
		MaxSize:       ctx.GetFlagInt("max-workers"),
		AutoExpansion: ctx.GetFlagBool("auto-expansion"),
		QueueCapacity: ctx.GetFlagInt("queue"),
		Hooks:         core.Hooks{Logger: core.NewNoOpLogger()},
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	var ran atomic.Int64
	latch := core.NewLatch(tasks)
	start := time.Now()

	var g errgroup.Group
	for s := range submitters {
		n := tasks / submitters
		if s < tasks%submitters {
			n++
		}
		g.Go(func() error {
			for range n {
				if err := pool.CommitTask(func() {
					ran.Add(1)
					latch.CountDown()
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	latch.Wait()
	elapsed := time.Since(start)

	stats := pool.Stats()
	fmt.Fprintf(m.out, "tasks=%d elapsed=%s rate=%.0f/s workers=%d max=%d completed=%d\n",
		ran.Load(), elapsed.Round(time.Microsecond), float64(ran.Load())/elapsed.Seconds(),
		stats.Workers, stats.MaxWorkers, stats.Completed)
	return nil
}

func (m *Manager) handleTimerTick(ctx *orpheus.Context) error {
	period, err := parseDuration("period", ctx.GetFlagString("period"))
	if err != nil {
		return err
	}
	count := ctx.GetFlagInt("count")
	if period <= 0 || count <= 0 {
		return usageError("--period and --count must be positive")
	}

	timer := core.NewRelativeTimer(core.TimerOptions{
		Name:  "tick",
		Hooks: core.Hooks{Logger: core.NewNoOpLogger()},
	})
	defer timer.Stop()

	done := core.NewEvent()
	start := time.Now()
	timer.AddPeriodTimerTask(func(n uint64) bool {
		due := start.Add(time.Duration(n+1) * period)
		fmt.Fprintf(m.out, "tick %d late=%s\n", n, time.Since(due).Round(time.Microsecond))
		if n+1 == uint64(count) {
			done.NotifyAll()
			return false
		}
		return true
	}, period)
	done.Wait()
	return nil
}

func (m *Manager) handleThreadInvoke(ctx *orpheus.Context) error {
	count := ctx.GetFlagInt("count")
	if count <= 0 {
		return usageError("--count must be positive")
	}

	thread := core.NewAdvancedThread("invoke", core.ThreadOptions{
		Hooks: core.Hooks{Logger: core.NewNoOpLogger()},
	})
	thread.Start()
	defer thread.Stop()

	for i := range count {
		id, err := core.InvokeValue(thread, func() (uint64, error) {
			return core.CurrentThreadID(), nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(m.out, "invoke %d thread=%d\n", i, id)
	}
	return nil
}

func (m *Manager) handleConfigValidate(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		return usageError("usage: foundation config validate <file>")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "%s: ok (%d pools, %d threads, %d timers)\n",
		path, len(cfg.Pools), len(cfg.Threads), len(cfg.Timers))
	return nil
}

func (m *Manager) handleConfigShow(ctx *orpheus.Context) error {
	cfg, err := loadConfig(ctx.GetArg(0))
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = m.out.Write(data)
	return err
}

func (m *Manager) handleHistoryQuery(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		return usageError("usage: foundation history query <db>")
	}
	since, err := parseDuration("since", ctx.GetFlagString("since"))
	if err != nil {
		return err
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := history.Filter{
		RunnerName:   ctx.GetFlagString("runner"),
		PanickedOnly: ctx.GetFlagBool("panicked"),
		Limit:        ctx.GetFlagInt("limit"),
	}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	records, err := store.Query(filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tRUNNER\tTYPE\tTASK\tDURATION\tPANICKED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
			r.FinishedAt.Format(time.RFC3339Nano), r.RunnerName, r.RunnerType,
			r.Name, r.Duration, r.Panicked)
	}
	return w.Flush()
}

func (m *Manager) handleHistoryCleanup(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		return usageError("usage: foundation history cleanup <db>")
	}
	olderThan, err := parseDuration("older-than", ctx.GetFlagString("older-than"))
	if err != nil {
		return err
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Cleanup(time.Now().Add(-olderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "deleted %d executions\n", n)
	return nil
}
