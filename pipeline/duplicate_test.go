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


package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/intake/core"
	storagebadger "github.com/poiesic/intake/storage/badger"
)

func duplicatePipeline(t *testing.T, keyFields []string, opts ...Option) *Standard {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EnabledStages = []Stage{StageDuplicateDetection}
	cfg.DuplicateKeyFields = keyFields
	return newTestPipeline(t, append([]Option{WithConfig(cfg)}, opts...)...)
}

func TestDuplicateKeyNormalization(t *testing.T) {
	fields := []string{"title", "author"}

	base := DuplicateKey(core.Document{"title": "Go Proverbs", "author": "rob"}, fields)

	// Case, surrounding whitespace and inner whitespace runs are ignored.
	assert.Equal(t, base, DuplicateKey(core.Document{"title": "  go   proverbs ", "author": "ROB"}, fields))
	// Unlisted fields do not affect the key.
	assert.Equal(t, base, DuplicateKey(core.Document{"title": "Go Proverbs", "author": "rob", "extra": 1}, fields))
	// Different content produces a different key.
	assert.NotEqual(t, base, DuplicateKey(core.Document{"title": "Other", "author": "rob"}, fields))
}

func TestDuplicateKeyFieldOrderIndependent(t *testing.T) {
	a := DuplicateKey(core.Document{"x": "1", "y": "2"}, []string{"y", "x"})
	b := DuplicateKey(core.Document{"x": "1", "y": "2"}, []string{"x", "y"})
	assert.Equal(t, a, b)
}

func TestDuplicateKeyEmptyWhenNoFieldsPresent(t *testing.T) {
	assert.Empty(t, DuplicateKey(core.Document{"other": "v"}, []string{"title"}))
}

func TestDuplicateSuppressionInProcess(t *testing.T) {
	p := duplicatePipeline(t, []string{"title"})
	ctx := context.Background()

	out, errs := p.duplicateStage(ctx, []core.Document{
		{"title": "first"},
		{"title": "First"},
		{"title": "second"},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0]["title"])
	assert.Equal(t, "second", out[1]["title"])
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "duplicate record")

	// Seen again in a later batch.
	out, errs = p.duplicateStage(ctx, []core.Document{{"title": "second"}})
	assert.Empty(t, out)
	assert.Len(t, errs, 1)
}

func TestDuplicateSuppressionSurvivesRestart(t *testing.T) {
	_, seen, backend, err := storagebadger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	first := duplicatePipeline(t, []string{"title"}, WithSeenStore(seen))
	out, _ := first.duplicateStage(ctx, []core.Document{{"title": "persisted"}})
	require.Len(t, out, 1)

	// A fresh pipeline has an empty in-process set but shares the store.
	second := duplicatePipeline(t, []string{"title"}, WithSeenStore(seen))
	out, errs := second.duplicateStage(ctx, []core.Document{{"title": "persisted"}})
	assert.Empty(t, out)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "duplicate record")
}

func TestRememberKeySweepsExpiredFirst(t *testing.T) {
	p := duplicatePipeline(t, []string{"title"})
	now := time.Now()

	p.seenKeys["expired"] = now.Add(-2 * time.Hour)
	p.seenKeys["recent"] = now.Add(-30 * time.Minute)
	for i := 0; len(p.seenKeys) < maxSeenKeySetSize; i++ {
		p.seenKeys[fmt.Sprintf("k%d", i)] = now
	}

	p.rememberKey("fresh")

	assert.NotContains(t, p.seenKeys, "expired")
	assert.Contains(t, p.seenKeys, "recent")
	assert.Contains(t, p.seenKeys, "fresh")
}

func TestRememberKeyEvictsOldestAtCapacity(t *testing.T) {
	p := duplicatePipeline(t, []string{"title"})
	now := time.Now()

	p.seenKeys["oldest"] = now.Add(-30 * time.Minute)
	for i := 0; len(p.seenKeys) < maxSeenKeySetSize; i++ {
		p.seenKeys[fmt.Sprintf("k%d", i)] = now
	}

	p.rememberKey("fresh")

	assert.NotContains(t, p.seenKeys, "oldest")
	assert.Contains(t, p.seenKeys, "fresh")
	assert.LessOrEqual(t, len(p.seenKeys), maxSeenKeySetSize)
}

func TestDuplicateStageAnnotatesKey(t *testing.T) {
	p := duplicatePipeline(t, []string{"title"})

	out, _ := p.duplicateStage(context.Background(), []core.Document{{"title": "only"}})

	require.Len(t, out, 1)
	assert.Equal(t, DuplicateKey(core.Document{"title": "only"}, []string{"title"}), out[0]["_duplicate_key"])
}
