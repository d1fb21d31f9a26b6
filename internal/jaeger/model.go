// Package jaeger wraps the Jaeger query HTTP API and the JSON trace
// model it returns.
package jaeger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Reference type linking a span to its parent.
const refChildOf = "CHILD_OF"

// Envelope is the response wrapper used by every query endpoint:
// {"data": [...], "total": n, "limit": n, "offset": n, "errors": null}.
type Envelope[T any] struct {
	Data   []T             `json:"data"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
	Errors json.RawMessage `json:"errors"`
}

// Trace is one trace as returned by the backend: the set of spans
// sharing a trace ID plus the process table spans reference for their
// service name. Treated as read-only after decoding.
type Trace struct {
	TraceID   string             `json:"traceID"`
	Spans     []Span             `json:"spans"`
	Processes map[string]Process `json:"processes"`
	Warnings  []string           `json:"warnings"`
}

// Span is one recorded unit of work. StartTime and Duration are in
// microseconds, per the Jaeger JSON schema.
type Span struct {
	TraceID       string      `json:"traceID"`
	SpanID        string      `json:"spanID"`
	Flags         int         `json:"flags,omitempty"`
	OperationName string      `json:"operationName"`
	References    []Reference `json:"references"`
	StartTime     int64       `json:"startTime"`
	Duration      int64       `json:"duration"`
	Tags          []Tag       `json:"tags"`
	ProcessID     string      `json:"processID"`
	Warnings      []string    `json:"warnings"`
}

// Process maps a span's processID to the reporting service.
type Process struct {
	ServiceName string `json:"serviceName"`
	Tags        []Tag  `json:"tags"`
}

// Reference links spans across the trace.
type Reference struct {
	RefType string `json:"refType"`
	TraceID string `json:"traceID"`
	SpanID  string `json:"spanID"`
}

// Tag is a single key/value annotation. Value may be a string, bool or
// number on the wire.
type Tag struct {
	Key   string      `json:"key"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// ValueString renders the tag value as a string regardless of wire type.
func (t Tag) ValueString() string {
	switch v := t.Value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		// JSON numbers decode as float64; tag numbers are integral.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Tag returns the tag stored under key, if present.
func (s *Span) Tag(key string) (Tag, bool) {
	for _, t := range s.Tags {
		if t.Key == key {
			return t, true
		}
	}
	return Tag{}, false
}

// ParentSpanID returns the span ID of the first CHILD_OF reference, or
// "" for a root span.
func (s *Span) ParentSpanID() string {
	for _, r := range s.References {
		if r.RefType == refChildOf {
			return r.SpanID
		}
	}
	return ""
}

// Start returns the span start as wall-clock time.
func (s *Span) Start() time.Time {
	return time.UnixMicro(s.StartTime)
}

// Elapsed returns the span duration.
func (s *Span) Elapsed() time.Duration {
	return time.Duration(s.Duration) * time.Microsecond
}

// ServiceName resolves the span's service through the trace's process
// table. Spans with an unknown processID report an empty service.
func (t *Trace) ServiceName(s *Span) string {
	if p, ok := t.Processes[s.ProcessID]; ok {
		return p.ServiceName
	}
	return ""
}

// SpanByID returns the span with the given ID, or nil.
func (t *Trace) SpanByID(id string) *Span {
	for i := range t.Spans {
		if t.Spans[i].SpanID == id {
			return &t.Spans[i]
		}
	}
	return nil
}
