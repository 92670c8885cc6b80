package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/DeltaLaboratory/bkv/internal/protocol"
)

func newNode(t *testing.T, nodeID string, peers []protocol.NodeInfo) *Server {
	t.Helper()
	s, err := NewServer(nodeID, t.TempDir(), peers, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.store.Close() })
	return s
}

func singleNode(t *testing.T) *Server {
	return newNode(t, "n1", []protocol.NodeInfo{{ID: "n1", Address: "127.0.0.1:7001"}})
}

func TestNewServerRejectsUnknownSelf(t *testing.T) {
	_, err := NewServer("ghost", t.TempDir(), []protocol.NodeInfo{
		{ID: "n1", Address: "127.0.0.1:7001"},
	}, zerolog.Nop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "peer list")
}

func TestBulkSetThenGet(t *testing.T) {
	s := singleNode(t)

	setResp := s.handler.BulkSet(&protocol.BulkSetRequest{Items: []protocol.Item{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2"), TTL: time.Hour},
	}})
	require.Equal(t, protocol.StatusOK, setResp.Status)
	require.Equal(t, []string{"", ""}, setResp.Errors)

	getResp := s.handler.BulkGet(&protocol.BulkGetRequest{Keys: [][]byte{
		[]byte("a"), []byte("missing"), []byte("b"),
	}})
	require.Equal(t, protocol.StatusOK, getResp.Status)
	require.Equal(t, []bool{true, false, true}, getResp.Found)
	require.Equal(t, []byte("1"), getResp.Values[0])
	require.Nil(t, getResp.Values[1])
	require.Equal(t, []byte("2"), getResp.Values[2])
}

func TestBulkExists(t *testing.T) {
	s := singleNode(t)

	setResp := s.handler.BulkSet(&protocol.BulkSetRequest{Items: []protocol.Item{
		{Key: []byte("here"), Value: []byte("v")},
	}})
	require.Equal(t, protocol.StatusOK, setResp.Status)

	resp := s.handler.BulkExists(&protocol.BulkExistsRequest{Keys: [][]byte{
		[]byte("here"), []byte("gone"),
	}})
	require.Equal(t, protocol.StatusOK, resp.Status)
	require.Equal(t, []bool{true, false}, resp.Exists)
}

func TestOwnershipSingleNodeOwnsEverything(t *testing.T) {
	s := singleNode(t)

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		require.Nil(t, s.checkOwnership([][]byte{key}))
	}
}

func TestOwnershipRedirectsForeignSlots(t *testing.T) {
	peers := []protocol.NodeInfo{
		{ID: "n1", Address: "127.0.0.1:7001"},
		{ID: "n2", Address: "127.0.0.1:7002"},
	}
	s := newNode(t, "n1", peers)

	// With two members, some keys must hash to the peer's share.
	var moved *protocol.Moved
	for i := 0; i < 1000 && moved == nil; i++ {
		moved = s.checkOwnership([][]byte{[]byte(fmt.Sprintf("key-%d", i))})
	}
	require.NotNil(t, moved, "no key out of 1000 landed on the peer")
	require.Equal(t, "n2", moved.NodeID)
	require.Equal(t, "127.0.0.1:7002", moved.Address)
}

func TestPeersAgreeOnAssignment(t *testing.T) {
	peers := []protocol.NodeInfo{
		{ID: "n1", Address: "127.0.0.1:7001"},
		{ID: "n2", Address: "127.0.0.1:7002"},
		{ID: "n3", Address: "127.0.0.1:7003"},
	}
	a := newNode(t, "n1", peers)
	b := newNode(t, "n2", peers)

	require.Equal(t, a.cluster.Slots(), b.cluster.Slots(),
		"all members must derive the same slot table from the peer list")
}

func TestKeysListing(t *testing.T) {
	s := singleNode(t)

	setResp := s.handler.BulkSet(&protocol.BulkSetRequest{Items: []protocol.Item{
		{Key: []byte("k1"), Value: []byte("v")},
		{Key: []byte("k2"), Value: []byte("v")},
	}})
	require.Equal(t, protocol.StatusOK, setResp.Status)

	resp := s.handler.Keys()
	require.Empty(t, resp.Error)
	require.Len(t, resp.Keys, 2)
}
