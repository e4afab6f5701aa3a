package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/poiesic/intake/core"
	"github.com/poiesic/intake/storage"
)

// Standard is the reference pipeline implementation. It runs a configurable
// subset of the eight canonical stages over each batch, always in canonical
// order, and never lets a failure escape ProcessBatch: internal errors mark
// the batch failed instead.
type Standard struct {
	source        core.SourceConfig
	cfg           Config
	seenStore     storage.SeenStore
	lookup        storage.Lookup
	httpClient    *http.Client
	encryptionKey []byte
	logger        *slog.Logger

	mu          sync.Mutex
	enabled     map[Stage]bool
	cache       *ttlCache
	seenKeys    map[string]time.Time
	stageTimes  map[Stage]time.Duration
	errorCounts map[string]int
	processed   int
	succeeded   int
	failed      int
}

const (
	maxEnrichmentCacheSize = 10000
	maxSeenKeySetSize      = 100000
)

// Option configures a Standard pipeline.
type Option func(*Standard) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Standard) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithConfig replaces the configuration derived from the source config.
func WithConfig(cfg Config) Option {
	return func(p *Standard) error {
		p.cfg = cfg
		p.resetEnabled()
		return nil
	}
}

// WithSeenStore attaches a persisted duplicate-key store, so duplicate
// suppression survives process restarts.
func WithSeenStore(store storage.SeenStore) Option {
	return func(p *Standard) error {
		p.seenStore = store
		return nil
	}
}

// WithLookup attaches the external store used for reference-integrity
// validation and lookup-table enrichment.
func WithLookup(lookup storage.Lookup) Option {
	return func(p *Standard) error {
		p.lookup = lookup
		return nil
	}
}

// WithHTTPClient sets the client used for API-call enrichment.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Standard) error {
		if client != nil {
			p.httpClient = client
		}
		return nil
	}
}

// WithEncryptionKey sets the key used by encrypting field masks.
// The key must be 16, 24 or 32 bytes (AES-128/192/256).
func WithEncryptionKey(key []byte) Option {
	return func(p *Standard) error {
		switch len(key) {
		case 16, 24, 32:
			p.encryptionKey = key
			return nil
		default:
			return fmt.Errorf("%w: encryption key must be 16, 24 or 32 bytes", core.ErrFatal)
		}
	}
}

// NewStandard creates a Standard pipeline for the given source. The rule
// documents carried by the source config are parsed into the pipeline
// configuration; parse failures are construction-time errors.
func NewStandard(src core.SourceConfig, opts ...Option) (*Standard, error) {
	if src.SourceID == "" {
		return nil, ErrConfigRequired
	}
	cfg, err := ConfigFromSource(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrFatal, err)
	}

	p := &Standard{
		source:      src,
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      slog.Default(),
		cache:       newTTLCache(maxEnrichmentCacheSize),
		seenKeys:    make(map[string]time.Time),
		stageTimes:  make(map[Stage]time.Duration),
		errorCounts: make(map[string]int),
	}
	p.resetEnabled()

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Standard) resetEnabled() {
	p.enabled = make(map[Stage]bool, len(p.cfg.EnabledStages))
	for _, stage := range p.cfg.EnabledStages {
		p.enabled[stage] = true
	}
	// Storage preparation is the terminal pass-through and is never skipped.
	p.enabled[StageStoragePreparation] = true
}

// Name returns the pipeline name used to tag produced records.
func (p *Standard) Name() string {
	return p.cfg.Name
}

// EnableStage adds a stage to the enabled set.
func (p *Standard) EnableStage(stage Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled[stage] = true
}

// DisableStage removes a stage from the enabled set. Storage preparation
// cannot be disabled.
func (p *Standard) DisableStage(stage Stage) {
	if stage == StageStoragePreparation {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.enabled, stage)
}

// EnabledStages returns the enabled stages in canonical execution order.
func (p *Standard) EnabledStages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var stages []Stage
	for _, stage := range canonicalStages {
		if p.enabled[stage] {
			stages = append(stages, stage)
		}
	}
	return stages
}

// ResultQuality reports the quality level records reach when every enabled
// stage succeeds.
func (p *Standard) ResultQuality() core.DataQuality {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.enabled[StageEnrichment]:
		return core.QualityEnriched
	case p.enabled[StageTransformation]:
		return core.QualityTransformed
	case p.enabled[StageValidation]:
		return core.QualityValidated
	default:
		return core.QualityRaw
	}
}

// ProcessBatch runs the enabled stages over the raw records and returns the
// resulting batch. It always returns a well-formed batch: internal failures
// mark the batch failed with the error captured, they are never raised.
func (p *Standard) ProcessBatch(ctx context.Context, rawData []core.Document) (batch *core.IngestionBatch) {
	batch = &core.IngestionBatch{
		BatchID:   core.NewBatchID(),
		SourceID:  p.source.SourceID,
		Status:    core.BatchProcessing,
		StartTime: time.Now().UTC(),
		RawData:   rawData,
		Metadata:  core.Document{"pipeline": p.cfg.Name},
	}

	defer func() {
		if r := recover(); r != nil {
			batch.Status = core.BatchFailed
			batch.EndTime = time.Now().UTC()
			batch.Errors = append(batch.Errors, fmt.Sprintf("pipeline panic: %v", r))
			batch.RecordsProcessed = len(rawData)
			batch.RecordsFailed = len(rawData)
			batch.RecordsSucceeded = 0
			p.recordOutcome(len(rawData), 0)
			p.countError("panic")
			p.logger.Error("pipeline stage panicked", "source", p.source.SourceID, "panic", r)
		}
	}()

	// Stages mutate records freely; work on copies so callers keep their
	// raw documents intact.
	records := make([]core.Document, len(rawData))
	for i, doc := range rawData {
		records[i] = maps.Clone(doc)
	}

	for _, stage := range canonicalStages {
		if !p.stageEnabled(stage) {
			continue
		}
		start := time.Now()
		var stageErrors []string
		records, stageErrors = p.applyStage(ctx, stage, records)
		p.recordStageTime(stage, time.Since(start))

		for _, msg := range stageErrors {
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %s", stage, msg))
			p.countError(stage.String())
		}
	}

	batch.ProcessedData = records
	batch.RecordsProcessed = len(rawData)
	batch.RecordsSucceeded = len(records)
	batch.RecordsFailed = len(rawData) - len(records)
	batch.Status = core.BatchCompleted
	batch.EndTime = time.Now().UTC()
	p.recordOutcome(len(rawData), len(records))

	return batch
}

func (p *Standard) applyStage(ctx context.Context, stage Stage, records []core.Document) ([]core.Document, []string) {
	switch stage {
	case StageValidation:
		return p.validateStage(ctx, records)
	case StageCleaning:
		return p.cleanStage(ctx, records)
	case StageTransformation:
		return p.transformStage(ctx, records)
	case StageEnrichment:
		return p.enrichStage(ctx, records)
	case StageQualityCheck:
		return p.qualityStage(ctx, records)
	case StageDuplicateDetection:
		return p.duplicateStage(ctx, records)
	case StageComplianceCheck:
		return p.complianceStage(ctx, records)
	case StageStoragePreparation:
		// Terminal pass-through.
		return records, nil
	default:
		return records, nil
	}
}

func (p *Standard) stageEnabled(stage Stage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[stage]
}

// ValidateBatch is a structural precondition check run before trusting a
// batch for reprocessing or metrics. Minor issues are logged; only severe
// ones reject the batch.
func (p *Standard) ValidateBatch(batch *core.IngestionBatch) bool {
	severe, advisory := core.BatchIssues(batch, p.cfg.BatchSize)
	for _, issue := range advisory {
		p.logger.Warn("batch validation advisory", "source", p.source.SourceID, "issue", issue)
	}
	if len(severe) > 0 {
		for _, issue := range severe {
			p.logger.Error("batch validation failed", "source", p.source.SourceID, "issue", issue)
		}
		return false
	}
	return true
}

// TransformData applies the configured transformations to a single record
// and stamps the processing timestamp.
func (p *Standard) TransformData(record core.Document) core.Document {
	out := maps.Clone(record)
	if out == nil {
		out = core.Document{}
	}
	for _, rule := range p.cfg.Transformations {
		p.applyTransformation(out, rule)
	}
	out["processed_at"] = time.Now().UTC().UnixMilli()
	return out
}

// PerformanceStats returns cumulative processing counters, per-stage timings
// and error counts.
func (p *Standard) PerformanceStats() core.Document {
	p.mu.Lock()
	defer p.mu.Unlock()

	stageTimes := make(core.Document, len(p.stageTimes))
	for stage, duration := range p.stageTimes {
		stageTimes[stage.String()] = duration.Microseconds()
	}
	errorCounts := make(core.Document, len(p.errorCounts))
	for kind, count := range p.errorCounts {
		errorCounts[kind] = count
	}

	return core.Document{
		"total_processed":    p.processed,
		"successful":         p.succeeded,
		"failed":             p.failed,
		"stage_times_us":     stageTimes,
		"error_counts":       errorCounts,
		"enrichment_entries": p.cache.Len(),
		"duplicate_keys":     len(p.seenKeys),
	}
}

func (p *Standard) recordStageTime(stage Stage, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stageTimes[stage] += d
}

func (p *Standard) recordOutcome(processed, succeeded int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed += processed
	p.succeeded += succeeded
	p.failed += processed - succeeded
}

func (p *Standard) countError(kind string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorCounts[kind]++
}
