package foundation

import (
	"slices"
	"sync"

	"github.com/agilira/go-errors"

	"github.com/zeus-go/foundation/config"
	"github.com/zeus-go/foundation/core"
)

// ErrCodeUnknownComponent is returned by Registry lookups for unknown names.
const ErrCodeUnknownComponent = "FOUNDATION_UNKNOWN_COMPONENT"

// RegistryOptions carries the hooks shared by every component of a Registry.
type RegistryOptions struct {
	Hooks core.Hooks
}

// Registry owns the named pools, threads and timers of a process.
type Registry struct {
	mu        sync.RWMutex
	pools     map[string]*core.ThreadPool
	threads   map[string]*core.AdvancedThread
	relTimers map[string]*core.RelativeTimer
	absTimers map[string]*core.AbsoluteTimer
	closed    bool
}

// NewRegistry builds every component described by cfg. A nil cfg means
// config.Default().
func NewRegistry(cfg *config.Config, opts RegistryOptions) (*Registry, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		pools:     make(map[string]*core.ThreadPool, len(cfg.Pools)),
		threads:   make(map[string]*core.AdvancedThread, len(cfg.Threads)),
		relTimers: make(map[string]*core.RelativeTimer),
		absTimers: make(map[string]*core.AbsoluteTimer),
	}

	for _, pc := range cfg.Pools {
		po := pc.Options()
		po.Hooks = opts.Hooks
		pool, err := core.NewThreadPool(po)
		if err != nil {
			r.Close()
			return nil, errors.Wrap(err, core.ErrCodeInvalidConfig, "cannot build pool").
				WithContext("pool", pc.Name)
		}
		r.pools[pc.Name] = pool
	}

	for _, tc := range cfg.Threads {
		to := tc.Options()
		to.Hooks = opts.Hooks
		r.threads[tc.Name] = core.NewAdvancedThread(tc.Name, to)
	}

	for _, tc := range cfg.Timers {
		to := core.TimerOptions{
			Name:        tc.Name,
			Manual:      tc.Manual,
			IdleTimeout: tc.IdleTimeout,
			Hooks:       opts.Hooks,
		}
		if tc.Pool != "" {
			to.Pool = r.pools[tc.Pool]
		}
		switch tc.Kind {
		case config.TimerKindAbsolute:
			r.absTimers[tc.Name] = core.NewAbsoluteTimer(to)
		default:
			r.relTimers[tc.Name] = core.NewRelativeTimer(to)
		}
	}

	return r, nil
}

// Start starts every pool, thread and timer, including manual ones.
func (r *Registry) Start() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, p := range r.pools {
		p.Start()
	}
	for _, t := range r.threads {
		t.Start()
	}
	for _, t := range r.relTimers {
		t.Start()
	}
	for _, t := range r.absTimers {
		t.Start()
	}
}

// Close stops timers first, then threads, then pools, so no timer commits
// into a pool that is already gone. Pools are closed and reject later
// submissions.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	for _, t := range r.relTimers {
		t.Stop()
	}
	for _, t := range r.absTimers {
		t.Stop()
	}
	for _, t := range r.threads {
		t.Stop()
	}
	for _, p := range r.pools {
		p.Close()
	}
}

// Pool returns the named pool.
func (r *Registry) Pool(name string) (*core.ThreadPool, error) {
	return lookup(r, r.pools, "pool", name)
}

// DefaultPool returns the pool named config.DefaultPoolName, or nil.
func (r *Registry) DefaultPool() *core.ThreadPool {
	p, _ := r.Pool(config.DefaultPoolName)
	return p
}

func (r *Registry) Thread(name string) (*core.AdvancedThread, error) {
	return lookup(r, r.threads, "thread", name)
}

func (r *Registry) RelativeTimer(name string) (*core.RelativeTimer, error) {
	return lookup(r, r.relTimers, "relative timer", name)
}

func (r *Registry) AbsoluteTimer(name string) (*core.AbsoluteTimer, error) {
	return lookup(r, r.absTimers, "absolute timer", name)
}

func lookup[T any](r *Registry, m map[string]*T, kind, name string) (*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := m[name]; ok {
		return v, nil
	}
	return nil, errors.New(ErrCodeUnknownComponent, "unknown "+kind).
		WithContext("name", name)
}

// Snapshot holds the stats of every component, sorted by name.
type Snapshot struct {
	Pools   []core.PoolStats
	Threads []core.ThreadStats
	Timers  []core.TimerStats
}

// Snapshot collects Stats from every component.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Snapshot
	for _, name := range sortedKeys(r.pools) {
		s.Pools = append(s.Pools, r.pools[name].Stats())
	}
	for _, name := range sortedKeys(r.threads) {
		s.Threads = append(s.Threads, r.threads[name].Stats())
	}
	for _, t := range r.relTimers {
		s.Timers = append(s.Timers, t.Stats())
	}
	for _, t := range r.absTimers {
		s.Timers = append(s.Timers, t.Stats())
	}
	slices.SortFunc(s.Timers, func(a, b core.TimerStats) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return s
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
