package core

import "github.com/ravynsoft/go-dispatch/internal/atomics"

// Engine owns the root queue table and the collaborators shared by every
// queue it creates. It is constructed once and passed by reference.
type Engine struct {
	config          EngineConfig
	logger          *Logger
	panicHandler    PanicHandler
	metrics         Metrics
	metricsEnabled  bool
	hook            Hook
	priorityControl ThreadPriorityController
	pool            ThreadPool
	roots           *RootQueues
	serial          atomics.Uint64
}

// NewEngine creates an engine whose root queues are drained by pool. A nil
// config uses DefaultEngineConfig. A negative CacheLimit disables the
// per-thread continuation cache.
func NewEngine(pool ThreadPool, config *EngineConfig) *Engine {
	if pool == nil {
		panic("dispatch: NewEngine requires a ThreadPool")
	}
	if config == nil {
		config = DefaultEngineConfig()
	}
	e := &Engine{config: *config, pool: pool}

	e.logger = e.config.Logger
	if e.logger == nil {
		e.logger = DefaultLogger()
		e.config.Logger = e.logger
	}
	e.panicHandler = e.config.PanicHandler
	if e.panicHandler == nil {
		e.panicHandler = &DefaultPanicHandler{Logger: e.logger}
	}
	e.metrics = e.config.Metrics
	if e.metrics == nil {
		e.metrics = &NilMetrics{}
	}
	_, isNil := e.metrics.(*NilMetrics)
	e.metricsEnabled = !isNil
	if instrumentationCompiled {
		e.hook = e.config.Hook
	}
	e.priorityControl = e.config.PriorityController
	if e.priorityControl == nil {
		e.priorityControl = nopPriorityController{}
	}
	switch {
	case e.config.CacheLimit == 0:
		e.config.CacheLimit = DefaultCacheLimit
	case e.config.CacheLimit < 0:
		e.config.CacheLimit = 0
	}

	e.roots = newRootQueues(e)
	return e
}

// Roots returns the root queue table.
func (e *Engine) Roots() *RootQueues { return e.roots }

// Root is shorthand for e.Roots().Root(qos, overcommit).
func (e *Engine) Root(qos QoSClass, overcommit bool) *Queue {
	return e.roots.Root(qos, overcommit)
}

func (e *Engine) Logger() *Logger { return e.logger }

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig { return e.config }
