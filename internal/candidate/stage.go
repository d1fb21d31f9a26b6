// Package candidate turns raw trace spans into per-stage candidate
// records: it extracts the candidate hash and stage tags, recovers
// missing tags from related spans, and classifies stages against a
// fixed table.
package candidate

import (
	"fmt"
	"strings"
)

// Stage is one phase of the candidate processing pipeline. StageUnknown
// is reserved for labels outside the known table.
type Stage int

const (
	StageUnknown Stage = iota
	StageScheduled
	StageBacking
	StageAvailability
	StageInclusion
	StageApproval
)

// stageLabels is the single place a new stage is added. Lookup is
// case-insensitive; the value here is the canonical spelling.
var stageLabels = map[Stage]string{
	StageScheduled:    "Scheduled",
	StageBacking:      "Backing",
	StageAvailability: "Availability",
	StageInclusion:    "Inclusion",
	StageApproval:     "Approval",
}

// String returns the canonical label, or "Unknown".
func (s Stage) String() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}
	return "Unknown"
}

// ParseStage maps a raw stage label to its variant. Labels not in the
// table, including the empty string, map to StageUnknown.
func ParseStage(label string) Stage {
	folded := strings.ToLower(strings.TrimSpace(label))
	for stage, canonical := range stageLabels {
		if strings.ToLower(canonical) == folded {
			return stage
		}
	}
	return StageUnknown
}

// KnownStages returns every variant in the table, in pipeline order.
func KnownStages() []Stage {
	return []Stage{StageScheduled, StageBacking, StageAvailability, StageInclusion, StageApproval}
}

// ValidateStageTable checks the label table round-trips: labels are
// unique under case folding and none collides with the Unknown
// variant. Called once at daemon startup.
func ValidateStageTable() error {
	seen := make(map[string]Stage, len(stageLabels))
	for stage, label := range stageLabels {
		folded := strings.ToLower(label)
		if folded == "" || folded == "unknown" {
			return fmt.Errorf("stage table: variant %d uses reserved label %q", stage, label)
		}
		if prev, dup := seen[folded]; dup {
			return fmt.Errorf("stage table: label %q maps to both %d and %d", label, prev, stage)
		}
		seen[folded] = stage
		if got := ParseStage(label); got != stage {
			return fmt.Errorf("stage table: label %q does not round-trip (got %d, want %d)", label, got, stage)
		}
	}
	return nil
}
