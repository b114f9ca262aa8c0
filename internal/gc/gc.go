// Package gc defines the tracing protocol over heap records: per-record
// child visitors, embedder-supplied root sets and a mark-from-roots
// worklist.
package gc

import (
	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/value"
)

// Tracer is implemented by every heap record type.
type Tracer interface {
	// TraceChildren visits every Var slot the object holds directly.
	TraceChildren(visit func(value.Var))
	// SizeBytes estimates the object's footprint for accounting.
	SizeBytes() int
	// TypeName names the record type for debugging.
	TypeName() string
}

// RootSet enumerates externally reachable values: stack temporaries,
// globals and values live in compiled code.
type RootSet interface {
	TraceRoots(visit func(value.Var))
}

// SimpleRootSet is a RootSet over three plain slices.
type SimpleRootSet struct {
	Stack   []value.Var
	Globals []value.Var
	JITLive []value.Var
}

func (r *SimpleRootSet) TraceRoots(visit func(value.Var)) {
	for _, v := range r.Stack {
		visit(v)
	}
	for _, v := range r.Globals {
		visit(v)
	}
	for _, v := range r.JITLive {
		visit(v)
	}
}

// RootFunc adapts a function to RootSet.
type RootFunc func(visit func(value.Var))

func (f RootFunc) TraceRoots(visit func(value.Var)) { f(visit) }

// Roots combines several root sets.
type Roots []RootSet

func (rs Roots) TraceRoots(visit func(value.Var)) {
	for _, r := range rs {
		r.TraceRoots(visit)
	}
}

// NeedsTracing reports whether v references a heap record. It reads the
// tag only.
func NeedsTracing(v value.Var) bool {
	return v.IsList() || v.IsString() || v.IsEnvironment() || v.IsClosure()
}

// ObjectRef resolves v to its record. It reports false for non-heap values
// and for stale handles.
func ObjectRef(h *heap.Heap, v value.Var) (value.Handle, Tracer, bool) {
	if !NeedsTracing(v) {
		return 0, nil, false
	}
	hd, rec, ok := h.Resolve(v)
	if !ok {
		return 0, nil, false
	}
	return hd, rec, true
}

// MarkFunc is called once per visit of a reachable record. Returning false
// means the record was already marked, so its children are not pushed.
type MarkFunc func(hd value.Handle) bool

// TraceFromRoots runs the mark-from-roots worklist. The protocol does not
// deduplicate: a mark callback that always returns true sees each record
// once per path that reaches it and does not terminate on cycles.
// References to records that are no longer live are skipped.
func TraceFromRoots(h *heap.Heap, roots RootSet, mark MarkFunc) {
	var worklist []value.Var
	push := func(v value.Var) {
		if NeedsTracing(v) {
			worklist = append(worklist, v)
		}
	}
	roots.TraceRoots(push)

	for len(worklist) > 0 {
		v := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		hd, obj, ok := ObjectRef(h, v)
		if !ok {
			continue
		}
		if !mark(hd) {
			continue
		}
		obj.TraceChildren(push)
	}
}

// Reachable returns the distinct set of handles reachable from roots.
func Reachable(h *heap.Heap, roots RootSet) map[value.Handle]struct{} {
	seen := make(map[value.Handle]struct{})
	TraceFromRoots(h, roots, func(hd value.Handle) bool {
		if _, ok := seen[hd]; ok {
			return false
		}
		seen[hd] = struct{}{}
		return true
	})
	return seen
}
