package candidate

import "github.com/pipewatch/pipewatch/internal/jaeger"

// Policy selects which related spans the resolver may search when a
// span's own tags carry only one of the two attributes.
type Policy int

const (
	PolicyNone Policy = iota
	PolicyParents
	PolicyChildren
	PolicyBoth
)

// PolicyFromFlags maps the two recursion flags to a policy: both set
// means both, neither means none.
func PolicyFromFlags(parents, children bool) Policy {
	switch {
	case parents && children:
		return PolicyBoth
	case parents:
		return PolicyParents
	case children:
		return PolicyChildren
	default:
		return PolicyNone
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyParents:
		return "parents-only"
	case PolicyChildren:
		return "children-only"
	case PolicyBoth:
		return "both"
	default:
		return "none"
	}
}

func (p Policy) searchesParents() bool {
	return p == PolicyParents || p == PolicyBoth
}

func (p Policy) searchesChildren() bool {
	return p == PolicyChildren || p == PolicyBoth
}

// spanIndex is a trace-local view for traversal: span lookup by ID and
// a child adjacency list in input order, so breadth-first search visits
// nearer spans first and ties break deterministically.
type spanIndex struct {
	trace    *jaeger.Trace
	byID     map[string]*jaeger.Span
	children map[string][]string
}

func newSpanIndex(t *jaeger.Trace) *spanIndex {
	idx := &spanIndex{
		trace:    t,
		byID:     make(map[string]*jaeger.Span, len(t.Spans)),
		children: make(map[string][]string),
	}
	for i := range t.Spans {
		s := &t.Spans[i]
		idx.byID[s.SpanID] = s
	}
	for i := range t.Spans {
		s := &t.Spans[i]
		if pid := s.ParentSpanID(); pid != "" {
			idx.children[pid] = append(idx.children[pid], s.SpanID)
		}
	}
	return idx
}

// Resolver completes partial attribute pairs by searching related spans
// in the same trace under a bounded policy. It never mutates the trace
// and tolerates cyclic or orphaned parent links in malformed input.
type Resolver struct {
	policy  Policy
	maxHops int
}

// NewResolver creates a resolver. maxHops bounds both the ancestor walk
// and the descendant search depth; values below one disable traversal
// entirely, same as PolicyNone.
func NewResolver(policy Policy, maxHops int) *Resolver {
	return &Resolver{policy: policy, maxHops: maxHops}
}

// Resolve returns the pair with as many missing fields filled from
// related spans as the policy allows. A pair that is already complete
// is returned unchanged with no traversal. The caller decides what an
// incomplete result means (drop or sentinel).
func (r *Resolver) Resolve(idx *spanIndex, span *jaeger.Span, pair AttributePair) AttributePair {
	if pair.Complete() || r.policy == PolicyNone || r.maxHops < 1 {
		return pair
	}
	if r.policy.searchesParents() {
		pair = r.resolveParents(idx, span, pair)
	}
	// Parent search wins when both are enabled; the subtree is only
	// searched for what the ancestor walk did not find.
	if !pair.Complete() && r.policy.searchesChildren() {
		pair = r.resolveChildren(idx, span, pair)
	}
	return pair
}

// resolveParents walks strictly upward one hop at a time. The visited
// set terminates cyclic parent chains; an orphaned parent reference
// ends the walk.
func (r *Resolver) resolveParents(idx *spanIndex, span *jaeger.Span, pair AttributePair) AttributePair {
	visited := map[string]bool{span.SpanID: true}
	cur := span
	for hops := 0; hops < r.maxHops; hops++ {
		pid := cur.ParentSpanID()
		if pid == "" || visited[pid] {
			return pair
		}
		parent := idx.byID[pid]
		if parent == nil {
			return pair
		}
		visited[pid] = true
		pair = fillFrom(pair, parent)
		if pair.Complete() {
			return pair
		}
		cur = parent
	}
	return pair
}

// resolveChildren searches the descendant subtree breadth-first, so the
// nearest span carrying a missing field wins. Deliberately the costlier
// direction: subtrees can be wide, ancestor chains cannot.
func (r *Resolver) resolveChildren(idx *spanIndex, span *jaeger.Span, pair AttributePair) AttributePair {
	visited := map[string]bool{span.SpanID: true}
	frontier := append([]string(nil), idx.children[span.SpanID]...)
	for depth := 0; depth < r.maxHops && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			if visited[id] {
				continue
			}
			visited[id] = true
			child := idx.byID[id]
			if child == nil {
				continue
			}
			pair = fillFrom(pair, child)
			if pair.Complete() {
				return pair
			}
			next = append(next, idx.children[id]...)
		}
		frontier = next
	}
	return pair
}

// fillFrom copies any still-missing field from the other span's own
// tags into the pair.
func fillFrom(pair AttributePair, other *jaeger.Span) AttributePair {
	found := ExtractAttributes(other)
	if pair.Hash == "" {
		pair.Hash = found.Hash
	}
	if pair.StageLabel == "" {
		pair.StageLabel = found.StageLabel
	}
	return pair
}
