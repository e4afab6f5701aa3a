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
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/poiesic/intake/core"
)

// RegisterSource adds a source configuration. Registration alone moves no
// data; StartIngestion connects the source and builds its pipeline.
func (e *Engine) RegisterSource(cfg core.SourceConfig) error {
	if err := core.ValidateSourceConfig(&cfg); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sources[cfg.SourceID]; ok {
		return fmt.Errorf("%w: %s", ErrSourceExists, cfg.SourceID)
	}
	e.sources[cfg.SourceID] = &managedSource{cfg: cfg}
	e.tracker.Register(cfg.SourceID)
	e.logger.Info("source registered", "source", cfg.SourceID, "type", cfg.Type)
	return nil
}

// UnregisterSource stops ingestion if needed and removes the source and its
// metrics.
func (e *Engine) UnregisterSource(ctx context.Context, sourceID string) error {
	e.mu.Lock()
	managed, ok := e.sources[sourceID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	delete(e.sources, sourceID)
	e.mu.Unlock()

	// deactivate re-checks the active flag under the source lock.
	e.deactivate(ctx, managed)
	e.tracker.Forget(sourceID)
	e.logger.Info("source unregistered", "source", sourceID)
	return nil
}

// ListSources returns the registered source IDs in stable order.
func (e *Engine) ListSources() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sources))
	for id := range e.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetSourceConfig returns a copy of a registered source's configuration.
func (e *Engine) GetSourceConfig(sourceID string) (core.SourceConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	managed, ok := e.sources[sourceID]
	if !ok {
		return core.SourceConfig{}, false
	}
	return managed.cfg, true
}

// Pipeline returns the pipeline built for an active source.
func (e *Engine) Pipeline(sourceID string) (Pipeline, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	managed, ok := e.sources[sourceID]
	if !ok || managed.pipeline == nil {
		return nil, false
	}
	return managed.pipeline, true
}

// StartIngestion connects the source and builds its pipeline. When the
// source has a poll interval a background loop fetches and enqueues batches
// until ingestion stops.
func (e *Engine) StartIngestion(ctx context.Context, sourceID string) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	managed, ok := e.sources[sourceID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}

	managed.mu.Lock()
	defer managed.mu.Unlock()
	if managed.active {
		return fmt.Errorf("%w: %s", ErrSourceActive, sourceID)
	}

	src, err := e.newSource(managed.cfg)
	if err != nil {
		return fmt.Errorf("building source %s: %w", sourceID, err)
	}
	if err := src.Connect(ctx); err != nil {
		e.tracker.RecordError(sourceID, err)
		return fmt.Errorf("connecting source %s: %w", sourceID, err)
	}

	pipe, err := e.newPipeline(managed.cfg)
	if err != nil {
		// Leave no half-open connection behind.
		if derr := src.Disconnect(ctx); derr != nil {
			e.logger.Error("error disconnecting source after pipeline failure",
				"source", sourceID, "err", derr)
		}
		return fmt.Errorf("building pipeline for %s: %w", sourceID, err)
	}

	managed.src = src
	managed.pipeline = pipe
	managed.active = true
	managed.paused = false

	if managed.cfg.PollInterval > 0 {
		pollCtx, cancel := context.WithCancel(context.Background())
		managed.pollCancel = cancel
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.pollLoop(pollCtx, sourceID, managed)
		}()
	}

	e.tracker.RecordHealth(sourceID, true)
	e.logger.Info("ingestion started", "source", sourceID)
	return nil
}

// StopIngestion disconnects the source and stops its poll loop. The source
// stays registered.
func (e *Engine) StopIngestion(ctx context.Context, sourceID string) error {
	managed, err := e.activeSource(sourceID)
	if err != nil {
		return err
	}
	e.deactivate(ctx, managed)
	e.logger.Info("ingestion stopped", "source", sourceID)
	return nil
}

// PauseIngestion stops data flow but remembers the source was running so
// ResumeIngestion can pick it back up.
func (e *Engine) PauseIngestion(ctx context.Context, sourceID string) error {
	managed, err := e.activeSource(sourceID)
	if err != nil {
		return err
	}
	e.deactivate(ctx, managed)
	managed.mu.Lock()
	managed.paused = true
	managed.mu.Unlock()
	e.logger.Info("ingestion paused", "source", sourceID)
	return nil
}

// ResumeIngestion restarts a paused source.
func (e *Engine) ResumeIngestion(ctx context.Context, sourceID string) error {
	e.mu.RLock()
	managed, ok := e.sources[sourceID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}

	managed.mu.Lock()
	paused := managed.paused
	managed.mu.Unlock()
	if !paused {
		return fmt.Errorf("%w: %s is not paused", ErrSourceNotActive, sourceID)
	}
	return e.StartIngestion(ctx, sourceID)
}

func (e *Engine) activeSource(sourceID string) (*managedSource, error) {
	e.mu.RLock()
	managed, ok := e.sources[sourceID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	managed.mu.Lock()
	active := managed.active
	managed.mu.Unlock()
	if !active {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotActive, sourceID)
	}
	return managed, nil
}

func (e *Engine) deactivate(ctx context.Context, managed *managedSource) {
	managed.mu.Lock()
	defer managed.mu.Unlock()
	if !managed.active {
		return
	}
	if managed.pollCancel != nil {
		managed.pollCancel()
		managed.pollCancel = nil
	}
	if err := managed.src.Disconnect(ctx); err != nil {
		e.logger.Error("error disconnecting source",
			"source", managed.cfg.SourceID, "err", err)
	}
	managed.active = false
}

// AdoptLegacySource registers a monitored web endpoint with the settings
// the retired scraper service used: fifteen-minute polls, five retries,
// batches of fifty, and the article fields required up front. Adopting an
// already-registered source is a no-op.
func (e *Engine) AdoptLegacySource(sourceID, endpoint string) error {
	cfg := core.SourceConfig{
		SourceID:         sourceID,
		SourceName:       sourceID,
		Type:             core.SourceTypeWebScrape,
		Mode:             core.ModeScheduled,
		PollInterval:     15 * time.Minute,
		MaxRetries:       5,
		RetryDelay:       30 * time.Second,
		BatchSize:        50,
		ConnectionParams: map[string]string{"url": endpoint},
		ValidationRules: core.Document{
			"rules": []any{
				map[string]any{
					"rule_name":     "required_article_fields",
					"rule_type":     "required_fields",
					"fail_on_error": true,
					"parameters": map[string]any{
						"fields": []any{"title", "content", "source", "published_date"},
					},
				},
			},
		},
	}
	if err := e.RegisterSource(cfg); err != nil {
		if errors.Is(err, ErrSourceExists) {
			e.logger.Info("legacy source already registered", "source", sourceID)
			return nil
		}
		return err
	}
	return nil
}
