package pipeline

import (
	"context"
	"fmt"

	"github.com/poiesic/intake/core"
)

// Stage identifies one pipeline processing step.
type Stage int

const (
	StageValidation Stage = iota + 1
	StageCleaning
	StageTransformation
	StageEnrichment
	StageQualityCheck
	StageDuplicateDetection
	StageComplianceCheck
	StageStoragePreparation
)

var stageNames = map[Stage]string{
	StageValidation:         "validation",
	StageCleaning:           "cleaning",
	StageTransformation:     "transformation",
	StageEnrichment:         "enrichment",
	StageQualityCheck:       "quality_check",
	StageDuplicateDetection: "duplicate_detection",
	StageComplianceCheck:    "compliance_check",
	StageStoragePreparation: "storage_preparation",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageFromName resolves a stage by its configuration name.
func StageFromName(name string) (Stage, bool) {
	for stage, n := range stageNames {
		if n == name {
			return stage, true
		}
	}
	return 0, false
}

// canonicalStages is the authoritative execution order. Enabled stages are
// always applied in this order, regardless of configuration order, so that
// subsets of stages behave deterministically.
var canonicalStages = []Stage{
	StageValidation,
	StageCleaning,
	StageTransformation,
	StageEnrichment,
	StageQualityCheck,
	StageDuplicateDetection,
	StageComplianceCheck,
	StageStoragePreparation,
}

// stageHandler applies one stage to a batch of records, returning the
// surviving records and any per-record error strings.
type stageHandler func(ctx context.Context, records []core.Document) ([]core.Document, []string)
