package candidate

import "github.com/pipewatch/pipewatch/internal/jaeger"

// Tag keys the pipeline nodes attach to their spans. The two attributes
// are frequently split across different spans of the same trace.
const (
	HashTagKey  = "candidate-hash"
	StageTagKey = "candidate-stage"
)

// AttributePair holds what a single span's tags say about the candidate
// being processed. Either field may be empty.
type AttributePair struct {
	Hash       string
	StageLabel string
}

// Complete reports whether both attributes are present.
func (p AttributePair) Complete() bool {
	return p.Hash != "" && p.StageLabel != ""
}

// Empty reports whether neither attribute is present.
func (p AttributePair) Empty() bool {
	return p.Hash == "" && p.StageLabel == ""
}

// ExtractAttributes reads the pair directly off the span's tag set. No
// traversal, no side effects.
func ExtractAttributes(s *jaeger.Span) AttributePair {
	var p AttributePair
	if t, ok := s.Tag(HashTagKey); ok {
		p.Hash = t.ValueString()
	}
	if t, ok := s.Tag(StageTagKey); ok {
		p.StageLabel = t.ValueString()
	}
	return p
}
