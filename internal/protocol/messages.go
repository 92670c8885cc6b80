package protocol

import (
	"context"
	"time"
)

// Status classifies the outcome of a bulk call at the node level.
// Per-item failures on an otherwise successful call are reported in the
// response body, not here.
type Status uint8

const (
	StatusOK Status = iota
	// StatusMoved means at least one requested slot is no longer owned by
	// the node; Moved names the new owner. The caller should refresh its
	// cluster map and re-issue the call.
	StatusMoved
	// StatusTransient covers overload and shutdown-in-progress conditions
	// that are expected to clear; safe to retry.
	StatusTransient
	// StatusPermanent covers malformed requests and storage corruption;
	// retrying will not help.
	StatusPermanent
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMoved:
		return "moved"
	case StatusTransient:
		return "transient"
	case StatusPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Moved identifies the node that now owns a relocated slot.
type Moved struct {
	Slot    uint16 `json:"slot"`
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

// Item is a single write: key, value and an optional expiration.
// TTL <= 0 means the item does not expire.
type Item struct {
	Key   []byte        `json:"key"`
	Value []byte        `json:"value"`
	TTL   time.Duration `json:"ttl,omitempty"`
}

type BulkGetRequest struct {
	Keys [][]byte `json:"keys"`
}

type BulkGetResponse struct {
	Status Status `json:"status"`
	Moved  *Moved `json:"moved,omitempty"`
	Error  string `json:"error,omitempty"`

	// Values and Found are index-aligned with the request keys.
	// Found[i] == false means the key is absent; Values[i] is nil then.
	Values [][]byte `json:"values"`
	Found  []bool   `json:"found"`
}

type BulkSetRequest struct {
	Items []Item `json:"items"`
}

type BulkSetResponse struct {
	Status Status `json:"status"`
	Moved  *Moved `json:"moved,omitempty"`
	Error  string `json:"error,omitempty"`

	// Errors is index-aligned with the request items; an empty string is
	// an ack.
	Errors []string `json:"errors"`
}

type BulkExistsRequest struct {
	Keys [][]byte `json:"keys"`
}

type BulkExistsResponse struct {
	Status Status `json:"status"`
	Moved  *Moved `json:"moved,omitempty"`
	Error  string `json:"error,omitempty"`

	Exists []bool `json:"exists"`
}

// ClusterMapResponse describes the slot ownership of the whole cluster.
// Slots is indexed by slot number and holds node IDs.
type ClusterMapResponse struct {
	Nodes []NodeInfo `json:"nodes"`
	Slots []string   `json:"slots"`
	Error string     `json:"error,omitempty"`
}

type NodeInfo struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// KeysResponse lists the keys stored locally on one node. Debug
// surface, not routed.
type KeysResponse struct {
	Keys  [][]byte `json:"keys"`
	Error string   `json:"error,omitempty"`
}

// NodeConn is one usable connection to a backend node. Implementations
// are not required to be safe for concurrent calls; the connection pool
// hands a NodeConn to one chunk at a time.
type NodeConn interface {
	GetMany(ctx context.Context, keys [][]byte) (*BulkGetResponse, error)
	SetMany(ctx context.Context, items []Item) (*BulkSetResponse, error)
	ExistsMany(ctx context.Context, keys [][]byte) (*BulkExistsResponse, error)
	Close() error
}
