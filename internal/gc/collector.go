package gc

import (
	"log/slog"

	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/value"
)

// Stats reports the outcome of one collection.
type Stats struct {
	Marked     int
	Freed      int
	LiveBytes  int
	FreedBytes int
}

// Collector is a stop-the-world mark-sweep collector built on
// TraceFromRoots.
type Collector struct {
	heap   *heap.Heap
	logger *slog.Logger
}

func NewCollector(h *heap.Heap, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{heap: h, logger: logger}
}

// Collect frees every record not reachable from roots.
func (c *Collector) Collect(roots RootSet) Stats {
	marked := Reachable(c.heap, roots)

	var st Stats
	var dead []value.Handle
	c.heap.Each(func(hd value.Handle, rec heap.Record) {
		if _, ok := marked[hd]; ok {
			st.Marked++
			st.LiveBytes += rec.SizeBytes()
			return
		}
		st.FreedBytes += rec.SizeBytes()
		dead = append(dead, hd)
	})
	for _, hd := range dead {
		if err := c.heap.Free(hd); err != nil {
			c.logger.Warn("sweep failed", slog.String("handle", hd.String()), slog.Any("error", err))
			continue
		}
		st.Freed++
	}

	c.logger.Debug("gc cycle",
		slog.Int("marked", st.Marked),
		slog.Int("freed", st.Freed),
		slog.Int("live_bytes", st.LiveBytes),
		slog.Int("freed_bytes", st.FreedBytes))
	return st
}
