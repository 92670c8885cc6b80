package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/lesismal/arpc"
	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/topology"
)

// clusterProvider fetches the slot map from the first bootstrap node
// that answers.
type clusterProvider struct {
	bootstrap []string
	timeout   time.Duration
	logger    zerolog.Logger
}

func newClusterProvider(bootstrap []string, timeout time.Duration, logger zerolog.Logger) *clusterProvider {
	return &clusterProvider{
		bootstrap: bootstrap,
		timeout:   timeout,
		logger:    logger.With().Str("layer", "provider").Logger(),
	}
}

func (p *clusterProvider) CurrentMap(_ context.Context) (*topology.Map, error) {
	var lastErr error

	for _, address := range p.bootstrap {
		m, err := p.fetch(address)
		if err != nil {
			p.logger.Warn().Err(err).Str("address", address).Msg("bootstrap node did not answer")
			lastErr = err
			continue
		}
		return m, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no bootstrap addresses configured")
	}
	return nil, fmt.Errorf("failed to fetch cluster map: %w", lastErr)
}

func (p *clusterProvider) fetch(address string) (*topology.Map, error) {
	rpc, err := arpc.NewClient(func() (net.Conn, error) {
		return net.Dial("tcp", address)
	})
	if err != nil {
		return nil, err
	}
	defer rpc.Stop()

	var resp protocol.ClusterMapResponse
	if err := rpc.Call(methodClusterMap, &struct{}{}, &resp, p.timeout); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("cluster map error: %s", resp.Error)
	}

	nodes := make([]topology.Node, len(resp.Nodes))
	for i, n := range resp.Nodes {
		nodes[i] = topology.Node{ID: n.ID, Address: n.Address}
	}

	return topology.NewMap(nodes, resp.Slots)
}
