package batch

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/DeltaLaboratory/bkv/internal/slot"
)

// firstByteSlot is a trivial slot function for readable test cases.
func firstByteSlot(key []byte) uint16 {
	if len(key) == 0 {
		return 0
	}
	return uint16(key[0])
}

func keysOf(ss ...string) [][]byte {
	keys := make([][]byte, len(ss))
	for i, s := range ss {
		keys[i] = []byte(s)
	}
	return keys
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		keys       [][]byte
		chunkSize  int
		wantChunks [][]string // keys per chunk, in order
	}{
		{
			name:       "empty input",
			keys:       nil,
			chunkSize:  256,
			wantChunks: nil,
		},
		{
			name:       "single slot single chunk",
			keys:       keysOf("a1", "a2", "a3"),
			chunkSize:  256,
			wantChunks: [][]string{{"a1", "a2", "a3"}},
		},
		{
			name:       "groups ordered by first occurrence",
			keys:       keysOf("b1", "a1", "b2", "c1", "a2"),
			chunkSize:  256,
			wantChunks: [][]string{{"b1", "b2"}, {"a1", "a2"}, {"c1"}},
		},
		{
			name:       "chunk size splits a group",
			keys:       keysOf("a1", "a2", "a3", "a4", "a5"),
			chunkSize:  2,
			wantChunks: [][]string{{"a1", "a2"}, {"a3", "a4"}, {"a5"}},
		},
		{
			name:       "chunk size one degenerates to one chunk per key",
			keys:       keysOf("a1", "a2", "b1"),
			chunkSize:  1,
			wantChunks: [][]string{{"a1"}, {"a2"}, {"b1"}},
		},
		{
			name:       "duplicates tracked independently",
			keys:       keysOf("a1", "a1", "b1", "a1"),
			chunkSize:  256,
			wantChunks: [][]string{{"a1", "a1", "a1"}, {"b1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Split(tt.keys, firstByteSlot, tt.chunkSize)

			var got [][]string
			for _, c := range plan.Chunks {
				var ck []string
				for _, k := range c.Keys {
					ck = append(ck, string(k))
				}
				got = append(got, ck)
			}
			if !reflect.DeepEqual(got, tt.wantChunks) {
				t.Errorf("Split() chunks = %v, want %v", got, tt.wantChunks)
			}

			if len(plan.Index) != len(tt.keys) {
				t.Fatalf("Split() index length = %d, want %d", len(plan.Index), len(tt.keys))
			}
			for i, pos := range plan.Index {
				key := plan.Chunks[pos.Chunk].Keys[pos.Offset]
				if string(key) != string(tt.keys[i]) {
					t.Errorf("Index[%d] points at %q, want %q", i, key, tt.keys[i])
				}
				if plan.Chunks[pos.Chunk].Indexes[pos.Offset] != i {
					t.Errorf("Chunks[%d].Indexes[%d] = %d, want %d",
						pos.Chunk, pos.Offset, plan.Chunks[pos.Chunk].Indexes[pos.Offset], i)
				}
			}
		})
	}
}

func TestSplitSingleSlotSingleRoundTrip(t *testing.T) {
	// Keys sharing one routing tag must collapse into a single chunk as
	// long as the chunk size allows it.
	r := slot.Default()
	keys := keysOf("{T}k1", "{T}k2", "{T}k3")

	plan := Split(keys, r.Slot, 256)
	if len(plan.Chunks) != 1 {
		t.Fatalf("expected 1 chunk for tagged keys, got %d", len(plan.Chunks))
	}
	if len(plan.Chunks[0].Keys) != 3 {
		t.Errorf("expected 3 keys in chunk, got %d", len(plan.Chunks[0].Keys))
	}
}

func TestSplitWholeGroupFitsOneChunk(t *testing.T) {
	// chunkSize >= group size must yield exactly one chunk per slot group.
	keys := keysOf("a1", "a2", "b1", "b2", "b3", "c1")

	plan := Split(keys, firstByteSlot, 3)
	if len(plan.Chunks) != 3 {
		t.Fatalf("expected 3 chunks (one per group), got %d", len(plan.Chunks))
	}
}

func TestSplitProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genKeys := gen.SliceOf(gen.AlphaString()).Map(func(ss []string) [][]byte {
		return keysOf(ss...)
	})

	properties.Property("index is a bijection over request positions", prop.ForAll(
		func(keys [][]byte, chunkSize int) bool {
			plan := Split(keys, firstByteSlot, chunkSize)

			if len(plan.Index) != len(keys) {
				return false
			}
			seen := make(map[string]bool)
			total := 0
			for _, c := range plan.Chunks {
				total += len(c.Keys)
			}
			if total != len(keys) {
				return false
			}
			for _, pos := range plan.Index {
				id := fmt.Sprintf("%d/%d", pos.Chunk, pos.Offset)
				if seen[id] {
					return false
				}
				seen[id] = true
			}
			return true
		},
		genKeys,
		gen.IntRange(1, 8),
	))

	properties.Property("chunks never exceed the cap and are slot-pure", prop.ForAll(
		func(keys [][]byte, chunkSize int) bool {
			plan := Split(keys, firstByteSlot, chunkSize)
			for _, c := range plan.Chunks {
				if len(c.Keys) == 0 || len(c.Keys) > chunkSize {
					return false
				}
				for _, k := range c.Keys {
					if firstByteSlot(k) != c.Slot {
						return false
					}
				}
			}
			return true
		},
		genKeys,
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
