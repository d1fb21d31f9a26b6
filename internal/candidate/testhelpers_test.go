package candidate

import "github.com/pipewatch/pipewatch/internal/jaeger"

// span builds a test span. parent == "" makes a root span.
func span(id, parent string, tags map[string]string) jaeger.Span {
	s := jaeger.Span{
		TraceID:       "t1",
		SpanID:        id,
		OperationName: "op-" + id,
		StartTime:     1_700_000_000_000_000,
		Duration:      2_000,
		ProcessID:     "p1",
	}
	if parent != "" {
		s.References = []jaeger.Reference{{RefType: "CHILD_OF", TraceID: "t1", SpanID: parent}}
	}
	for k, v := range tags {
		s.Tags = append(s.Tags, jaeger.Tag{Key: k, Type: "string", Value: v})
	}
	return s
}

// trace assembles spans into a trace with a single process table entry.
func trace(spans ...jaeger.Span) *jaeger.Trace {
	return &jaeger.Trace{
		TraceID:   "t1",
		Spans:     spans,
		Processes: map[string]jaeger.Process{"p1": {ServiceName: "serviceX"}},
	}
}
