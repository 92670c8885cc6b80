package client

import (
	"context"
	"net"
	"time"

	"github.com/lesismal/arpc"

	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/topology"
)

// RPC method paths served by backend nodes.
const (
	methodBulkGet    = "/bulk/get"
	methodBulkSet    = "/bulk/set"
	methodBulkExists = "/bulk/exists"
	methodClusterMap = "/cluster/map"
)

// conn is one arpc connection to a backend node, pooled by the
// connection pool.
type conn struct {
	rpc     *arpc.Client
	timeout time.Duration
}

func dialNode(address string, timeout time.Duration) (*conn, error) {
	rpc, err := arpc.NewClient(func() (net.Conn, error) {
		return net.Dial("tcp", address)
	})
	if err != nil {
		return nil, err
	}
	return &conn{rpc: rpc, timeout: timeout}, nil
}

// Factory returns a pool factory dialing nodes with the given call
// timeout.
func Factory(timeout time.Duration) func(ctx context.Context, node topology.Node) (protocol.NodeConn, error) {
	return func(_ context.Context, node topology.Node) (protocol.NodeConn, error) {
		return dialNode(node.Address, timeout)
	}
}

func (c *conn) GetMany(_ context.Context, keys [][]byte) (*protocol.BulkGetResponse, error) {
	var resp protocol.BulkGetResponse
	if err := c.rpc.Call(methodBulkGet, &protocol.BulkGetRequest{Keys: keys}, &resp, c.timeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *conn) SetMany(_ context.Context, items []protocol.Item) (*protocol.BulkSetResponse, error) {
	var resp protocol.BulkSetResponse
	if err := c.rpc.Call(methodBulkSet, &protocol.BulkSetRequest{Items: items}, &resp, c.timeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *conn) ExistsMany(_ context.Context, keys [][]byte) (*protocol.BulkExistsResponse, error) {
	var resp protocol.BulkExistsResponse
	if err := c.rpc.Call(methodBulkExists, &protocol.BulkExistsRequest{Keys: keys}, &resp, c.timeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *conn) Close() error {
	c.rpc.Stop()
	return nil
}
