package env

import (
	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/value"
)

// Word-level entry points called from compiled code. They take and return
// raw words and never fail: a bad address reads as none and a bad store
// is dropped.

// WordGet implements env_get(env, depth, offset) -> value.
func WordGet(h *heap.Heap, envWord uint64, depth, offset uint32) uint64 {
	v, err := Lookup(h, value.FromU64(envWord), LexicalAddress{Depth: depth, Offset: offset})
	if err != nil {
		return value.None().U64()
	}
	return v.U64()
}

// WordCreate implements env_create(slot_count, parent) -> env.
func WordCreate(h *heap.Heap, slots uint32, parentWord uint64) uint64 {
	return New(h, int(slots), value.FromU64(parentWord)).U64()
}

// WordSet implements env_set(env, depth, offset, value) -> env.
func WordSet(h *heap.Heap, envWord uint64, depth, offset uint32, v uint64) uint64 {
	_ = Store(h, value.FromU64(envWord), LexicalAddress{Depth: depth, Offset: offset}, value.FromU64(v))
	return envWord
}
