// Package batch turns an ordered key list into per-slot chunks, each
// small enough to dispatch as one bulk backend call, and records how to
// put the per-chunk results back into the caller's order.
package batch

// Chunk is a bounded group of same-slot keys dispatched as one bulk
// operation. Indexes holds each key's position in the original request,
// which is how write values are looked up and results scattered back.
type Chunk struct {
	Slot    uint16
	Keys    [][]byte
	Indexes []int
}

// Pos locates one request position inside a plan.
type Pos struct {
	Chunk  int
	Offset int
}

// Plan is the chunked form of a request. Index is the position map:
// Index[i] locates request key i inside Chunks. Chunks appear in order
// of first occurrence of their slot, so planning is deterministic for a
// given input.
type Plan struct {
	Chunks []Chunk
	Index  []Pos
}

// Split groups keys by slot, preserving input order within each slot
// group, and caps every chunk at chunkSize keys. Duplicate keys are
// kept as independent positions. One O(N) pass.
func Split(keys [][]byte, slotOf func([]byte) uint16, chunkSize int) Plan {
	if chunkSize < 1 {
		chunkSize = 1
	}

	plan := Plan{
		Index: make([]Pos, len(keys)),
	}

	// Slot of the chunk currently open for each slot group.
	open := make(map[uint16]int)

	for i, key := range keys {
		s := slotOf(key)

		ci, ok := open[s]
		if !ok || len(plan.Chunks[ci].Keys) >= chunkSize {
			plan.Chunks = append(plan.Chunks, Chunk{Slot: s})
			ci = len(plan.Chunks) - 1
			open[s] = ci
		}

		c := &plan.Chunks[ci]
		plan.Index[i] = Pos{Chunk: ci, Offset: len(c.Keys)}
		c.Keys = append(c.Keys, key)
		c.Indexes = append(c.Indexes, i)
	}

	return plan
}
