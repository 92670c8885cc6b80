// Package topology tracks which backend node owns each hash slot. The
// slot table is an immutable snapshot swapped atomically on refresh, so
// readers never lock and never observe a partially-updated table.
package topology

import (
	"fmt"

	"github.com/buraksezer/consistent"

	"github.com/DeltaLaboratory/bkv/internal/slot"
)

type Node struct {
	ID      string
	Address string
}

func (n Node) String() string { return n.ID }

// Map is an immutable slot-ownership snapshot.
type Map struct {
	slots []string // node ID per slot, len slot.Count
	nodes map[string]Node
}

// NewMap builds a snapshot from an explicit slot table. The table must
// cover the whole slot space and reference only known nodes.
func NewMap(nodes []Node, slots []string) (*Map, error) {
	if len(slots) != slot.Count {
		return nil, fmt.Errorf("slot table has %d entries, want %d", len(slots), slot.Count)
	}

	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for s, id := range slots {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("slot %d assigned to unknown node %q", s, id)
		}
	}

	return &Map{slots: slots, nodes: byID}, nil
}

// Assign distributes the slot space over nodes by consistent-hash
// partition ownership. Deterministic for a given node set, and stable
// under membership changes: adding or removing one node moves only the
// slots that have to move.
func Assign(nodes []Node) (*Map, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes to assign slots to")
	}

	members := make([]consistent.Member, len(nodes))
	for i, n := range nodes {
		members[i] = n
	}

	ring := consistent.New(members, consistent.Config{
		PartitionCount:    slot.Count,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            Hasher{},
	})

	slots := make([]string, slot.Count)
	for s := 0; s < slot.Count; s++ {
		slots[s] = ring.GetPartitionOwner(s).String()
	}

	return NewMap(nodes, slots)
}

// Owner returns the node owning slot s.
func (m *Map) Owner(s uint16) (Node, bool) {
	if int(s) >= len(m.slots) {
		return Node{}, false
	}
	n, ok := m.nodes[m.slots[s]]
	return n, ok
}

// Nodes returns the member nodes of the snapshot.
func (m *Map) Nodes() []Node {
	nodes := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

// Slots returns a copy of the slot table.
func (m *Map) Slots() []string {
	out := make([]string, len(m.slots))
	copy(out, m.slots)
	return out
}

// Hasher is the 64-bit FNV-1a used for ring placement.
type Hasher struct{}

func (h Hasher) Sum64(data []byte) uint64 {
	var hash uint64 = 14695981039346656037
	for _, b := range data {
		hash ^= uint64(b)
		hash *= 1099511628211
	}
	return hash
}
