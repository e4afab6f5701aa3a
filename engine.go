// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package intake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/intake/core"
	"github.com/poiesic/intake/metrics"
	"github.com/poiesic/intake/pipeline"
	"github.com/poiesic/intake/source"
	"github.com/poiesic/intake/storage"
	storagebadger "github.com/poiesic/intake/storage/badger"
)

const (
	defaultWorkers         = 8
	defaultQueueCapacity   = 1000
	defaultMonitorInterval = 30 * time.Second
	defaultCleanupInterval = 5 * time.Minute
	probeTimeout           = 10 * time.Second
)

// Pipeline is the record-processing contract the engine drives. The
// pipeline package provides the standard implementation.
type Pipeline interface {
	Name() string
	ProcessBatch(ctx context.Context, rawData []core.Document) *core.IngestionBatch
	ValidateBatch(batch *core.IngestionBatch) bool
	TransformData(record core.Document) core.Document
	ResultQuality() core.DataQuality
	PerformanceStats() core.Document
}

type workItem struct {
	sourceID string
	records  []core.Document
}

type managedSource struct {
	// mu serializes access to the source connection; pipelines handle
	// their own locking.
	mu         sync.Mutex
	cfg        core.SourceConfig
	src        source.Source
	pipeline   Pipeline
	active     bool
	paused     bool
	pollCancel context.CancelFunc
}

// Engine orchestrates sources, pipelines, storage and monitoring. Batches
// flow through a bounded queue into a fixed worker pool; a full queue drops
// the newest batch rather than blocking producers.
type Engine struct {
	logger          *slog.Logger
	store           storage.Adapter
	seen            storage.SeenStore
	lookup          *storagebadger.Lookup
	backend         *storagebadger.Backend
	ownsBackend     bool
	tracker         *metrics.Tracker
	pool            *ants.Pool
	queue           chan workItem
	workers         int
	queueCapacity   int
	monitorInterval time.Duration
	cleanupInterval time.Duration

	newSource   func(cfg core.SourceConfig) (source.Source, error)
	newPipeline func(cfg core.SourceConfig) (Pipeline, error)

	mu      sync.RWMutex
	sources map[string]*managedSource
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithDataDir opens persistent storage under the given directory.
// Default is in-memory storage.
func WithDataDir(path string) Option {
	return func(e *Engine) error {
		backend, err := storagebadger.OpenBackend(path, false)
		if err != nil {
			return err
		}
		e.backend = backend
		e.ownsBackend = true
		return nil
	}
}

// WithBackend uses an already opened storage backend. The caller keeps
// ownership and closes it.
func WithBackend(backend *storagebadger.Backend) Option {
	return func(e *Engine) error {
		e.backend = backend
		e.ownsBackend = false
		return nil
	}
}

// WithWorkerCount sets the number of batch workers.
func WithWorkerCount(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("%w: worker count must be positive", core.ErrInvalidConfig)
		}
		e.workers = n
		return nil
	}
}

// WithQueueCapacity bounds the work queue.
func WithQueueCapacity(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("%w: queue capacity must be positive", core.ErrInvalidConfig)
		}
		e.queueCapacity = n
		return nil
	}
}

// WithMonitorInterval sets the pause between source health probes.
func WithMonitorInterval(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("%w: monitor interval must be positive", core.ErrInvalidConfig)
		}
		e.monitorInterval = d
		return nil
	}
}

// WithCleanupInterval sets the pause between failing-source sweeps.
func WithCleanupInterval(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("%w: cleanup interval must be positive", core.ErrInvalidConfig)
		}
		e.cleanupInterval = d
		return nil
	}
}

// WithSourceFactory replaces how sources are built, mainly for tests.
func WithSourceFactory(factory func(cfg core.SourceConfig) (source.Source, error)) Option {
	return func(e *Engine) error {
		e.newSource = factory
		return nil
	}
}

// WithPipelineFactory replaces how pipelines are built.
func WithPipelineFactory(factory func(cfg core.SourceConfig) (Pipeline, error)) Option {
	return func(e *Engine) error {
		e.newPipeline = factory
		return nil
	}
}

// New creates an Engine. Without WithDataDir or WithBackend it runs on
// in-memory storage, which suits tests and throwaway runs.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:          slog.Default(),
		workers:         defaultWorkers,
		queueCapacity:   defaultQueueCapacity,
		monitorInterval: defaultMonitorInterval,
		cleanupInterval: defaultCleanupInterval,
		newSource:       source.New,
		sources:         make(map[string]*managedSource),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.backend == nil {
		backend, err := storagebadger.OpenBackend("", true)
		if err != nil {
			return nil, err
		}
		e.backend = backend
		e.ownsBackend = true
	}

	adapter, err := storagebadger.NewAdapter(e.backend)
	if err != nil {
		e.closeBackend()
		return nil, err
	}
	e.store = adapter

	seen, err := storagebadger.NewSeenStore(e.backend)
	if err != nil {
		e.closeBackend()
		return nil, err
	}
	e.seen = seen

	lookup, err := storagebadger.NewLookup(e.backend)
	if err != nil {
		e.closeBackend()
		return nil, err
	}
	e.lookup = lookup

	e.tracker = metrics.NewTracker(e.logger)
	e.queue = make(chan workItem, e.queueCapacity)

	if e.newPipeline == nil {
		e.newPipeline = func(cfg core.SourceConfig) (Pipeline, error) {
			return pipeline.NewStandard(cfg,
				pipeline.WithLogger(e.logger),
				pipeline.WithSeenStore(e.seen),
				pipeline.WithLookup(e.lookup),
			)
		}
	}

	pool, err := ants.NewPool(e.workers)
	if err != nil {
		e.closeBackend()
		return nil, err
	}
	e.pool = pool

	return e, nil
}

// Start launches the worker pool and the monitoring and cleanup loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		if err := e.pool.Submit(func() {
			defer e.wg.Done()
			e.workerLoop(runCtx)
		}); err != nil {
			e.wg.Done()
			cancel()
			return fmt.Errorf("starting worker: %w", err)
		}
	}

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.monitorLoop(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.cleanupLoop(runCtx)
	}()

	e.running = true
	e.logger.Info("ingestion engine started",
		"workers", e.workers,
		"queue_capacity", e.queueCapacity)
	return nil
}

// Shutdown stops the loops, waits for in-flight work, disconnects sources
// and closes storage. The engine cannot be restarted afterwards.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()

	// Deactivating first stops the per-source poll loops, which run on
	// their own contexts.
	e.mu.RLock()
	active := make([]*managedSource, 0, len(e.sources))
	for _, managed := range e.sources {
		active = append(active, managed)
	}
	e.mu.RUnlock()
	for _, managed := range active {
		e.deactivate(ctx, managed)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("shutdown timed out waiting for workers")
	}

	e.pool.Release()

	var firstErr error
	if err := e.seen.Close(); err != nil {
		firstErr = err
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.ownsBackend {
		if err := e.backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.logger.Info("ingestion engine stopped")
	return firstErr
}

func (e *Engine) closeBackend() {
	if e.ownsBackend && e.backend != nil {
		e.backend.Close()
	}
}

// Storage exposes the record store for querying outside the engine API.
func (e *Engine) Storage() storage.Adapter {
	return e.store
}

// Lookup exposes the reference-data store used by validation and
// enrichment. Populate it before starting ingestion.
func (e *Engine) Lookup() *storagebadger.Lookup {
	return e.lookup
}
