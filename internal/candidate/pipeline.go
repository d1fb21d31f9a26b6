package candidate

import (
	"fmt"
	"strings"
	"time"

	"github.com/pipewatch/pipewatch/internal/jaeger"
)

// Record is one completed (candidate, stage) observation, the unit the
// aggregator consumes. Candidate is never empty: it is either a real
// hash or a sentinel key scoped to the record's stage.
type Record struct {
	Candidate string
	Stage     Stage
	Service   string
	Timestamp time.Time
	Duration  time.Duration
}

// DropReason says why a span produced no record. Expected outcomes, not
// errors.
type DropReason string

const (
	DropNoAttributes        DropReason = "no_attributes"
	DropUnresolvedCandidate DropReason = "unresolved_candidate"
	DropUnresolvedStage     DropReason = "unresolved_stage"
	DropUnknownStage        DropReason = "unknown_stage"
)

// Options configures one processing run.
type Options struct {
	Policy  Policy
	MaxHops int
	// IncludeUnknown keeps records the strict path would drop: spans
	// whose candidate hash never resolved get a sentinel key, and
	// stages outside the known table are forwarded as Unknown.
	IncludeUnknown bool
}

// SentinelKey is the synthetic candidate key used when only the stage
// is known. Scoped per stage so gauge cardinality stays bounded.
func SentinelKey(stage Stage) string {
	return fmt.Sprintf("unresolved:%s", strings.ToLower(stage.String()))
}

// ProcessTrace runs extract, resolve and classify over every span of
// one trace and returns the completed records plus drop counts. The
// trace is read-only; at most one record is emitted per span.
func ProcessTrace(t *jaeger.Trace, opts Options) ([]Record, map[DropReason]int) {
	idx := newSpanIndex(t)
	resolver := NewResolver(opts.Policy, opts.MaxHops)
	drops := make(map[DropReason]int)

	var records []Record
	for i := range t.Spans {
		span := &t.Spans[i]

		pair := ExtractAttributes(span)
		if pair.Empty() {
			// Neither attribute present: never a record, never a
			// traversal.
			drops[DropNoAttributes]++
			continue
		}
		if !pair.Complete() {
			pair = resolver.Resolve(idx, span, pair)
		}

		// Stage selects the histogram; without it there is nothing to
		// count against.
		if pair.StageLabel == "" {
			drops[DropUnresolvedStage]++
			continue
		}
		stage := ParseStage(pair.StageLabel)
		if stage == StageUnknown && !opts.IncludeUnknown {
			drops[DropUnknownStage]++
			continue
		}

		hash := pair.Hash
		if hash == "" {
			if !opts.IncludeUnknown {
				drops[DropUnresolvedCandidate]++
				continue
			}
			hash = SentinelKey(stage)
		}

		records = append(records, Record{
			Candidate: hash,
			Stage:     stage,
			Service:   t.ServiceName(span),
			Timestamp: span.Start(),
			Duration:  span.Elapsed(),
		})
	}
	return records, drops
}
