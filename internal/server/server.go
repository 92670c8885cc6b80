// Package server is a standalone backend node: it owns a deterministic
// share of the slot space, serves bulk reads, writes and presence
// checks against local storage, and redirects chunks for slots it does
// not own.
package server

import (
	"fmt"
	"path/filepath"

	"github.com/lesismal/arpc"
	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/slot"
	"github.com/DeltaLaboratory/bkv/internal/storage"
	"github.com/DeltaLaboratory/bkv/internal/topology"
)

type Server struct {
	nodeID  string
	handler *Handler
	server  *arpc.Server
	router  slot.Router
	cluster *topology.Map
	store   *storage.PebbleStore

	logger zerolog.Logger
}

// NewServer builds a node serving its share of the slot space. peers
// lists every cluster member including this node; all members must
// agree on the peer list, since each derives the same slot assignment
// from it.
func NewServer(nodeID, dataPath string, peers []protocol.NodeInfo, logger zerolog.Logger) (*Server, error) {
	nodes := make([]topology.Node, len(peers))
	self := false
	for i, p := range peers {
		nodes[i] = topology.Node{ID: p.ID, Address: p.Address}
		if p.ID == nodeID {
			self = true
		}
	}
	if !self {
		return nil, fmt.Errorf("node %q is not in the peer list", nodeID)
	}

	cluster, err := topology.Assign(nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to assign slots: %w", err)
	}

	store, err := storage.NewPebbleStore(filepath.Join(dataPath, "store"), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	s := &Server{
		nodeID:  nodeID,
		handler: NewHandler(store),
		server:  arpc.NewServer(),
		router:  slot.Default(),
		cluster: cluster,
		store:   store,
		logger:  logger.With().Str("layer", "server").Logger(),
	}

	s.server.Handler.Handle("/bulk/get", s.handleBulkGet)
	s.server.Handler.Handle("/bulk/set", s.handleBulkSet)
	s.server.Handler.Handle("/bulk/exists", s.handleBulkExists)
	s.server.Handler.Handle("/cluster/map", s.handleClusterMap)
	s.server.Handler.Handle("/debug/keys", s.handleKeys)

	return s, nil
}

func (s *Server) Start(addr string) error {
	s.logger.Info().Str("address", addr).Str("node_id", s.nodeID).Msg("node listening")
	return s.server.Run(addr)
}

func (s *Server) Stop() error {
	err := s.server.Stop()
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// checkOwnership returns a redirect for the first key whose slot this
// node does not own. Chunks built against a current cluster map are
// slot-pure, so checking per key only matters for stale callers.
func (s *Server) checkOwnership(keys [][]byte) *protocol.Moved {
	for _, key := range keys {
		ks := s.router.Slot(key)
		owner, ok := s.cluster.Owner(ks)
		if !ok || owner.ID != s.nodeID {
			return &protocol.Moved{Slot: ks, NodeID: owner.ID, Address: owner.Address}
		}
	}
	return nil
}

func (s *Server) handleBulkGet(ctx *arpc.Context) {
	var req protocol.BulkGetRequest
	if err := ctx.Bind(&req); err != nil {
		s.logger.Warn().Err(err).Str("handler", "bulk/get").Msg("failed to bind request")
		s.write(ctx, "bulk/get", &protocol.BulkGetResponse{
			Status: protocol.StatusPermanent,
			Error:  err.Error(),
		})
		return
	}

	if moved := s.checkOwnership(req.Keys); moved != nil {
		s.write(ctx, "bulk/get", &protocol.BulkGetResponse{
			Status: protocol.StatusMoved,
			Moved:  moved,
		})
		return
	}

	s.write(ctx, "bulk/get", s.handler.BulkGet(&req))
}

func (s *Server) handleBulkSet(ctx *arpc.Context) {
	var req protocol.BulkSetRequest
	if err := ctx.Bind(&req); err != nil {
		s.logger.Warn().Err(err).Str("handler", "bulk/set").Msg("failed to bind request")
		s.write(ctx, "bulk/set", &protocol.BulkSetResponse{
			Status: protocol.StatusPermanent,
			Error:  err.Error(),
		})
		return
	}

	keys := make([][]byte, len(req.Items))
	for i, item := range req.Items {
		keys[i] = item.Key
	}
	if moved := s.checkOwnership(keys); moved != nil {
		s.write(ctx, "bulk/set", &protocol.BulkSetResponse{
			Status: protocol.StatusMoved,
			Moved:  moved,
		})
		return
	}

	s.write(ctx, "bulk/set", s.handler.BulkSet(&req))
}

func (s *Server) handleBulkExists(ctx *arpc.Context) {
	var req protocol.BulkExistsRequest
	if err := ctx.Bind(&req); err != nil {
		s.logger.Warn().Err(err).Str("handler", "bulk/exists").Msg("failed to bind request")
		s.write(ctx, "bulk/exists", &protocol.BulkExistsResponse{
			Status: protocol.StatusPermanent,
			Error:  err.Error(),
		})
		return
	}

	if moved := s.checkOwnership(req.Keys); moved != nil {
		s.write(ctx, "bulk/exists", &protocol.BulkExistsResponse{
			Status: protocol.StatusMoved,
			Moved:  moved,
		})
		return
	}

	s.write(ctx, "bulk/exists", s.handler.BulkExists(&req))
}

func (s *Server) handleClusterMap(ctx *arpc.Context) {
	nodes := s.cluster.Nodes()
	infos := make([]protocol.NodeInfo, len(nodes))
	for i, n := range nodes {
		infos[i] = protocol.NodeInfo{ID: n.ID, Address: n.Address}
	}

	s.write(ctx, "cluster/map", &protocol.ClusterMapResponse{
		Nodes: infos,
		Slots: s.cluster.Slots(),
	})
}

func (s *Server) handleKeys(ctx *arpc.Context) {
	s.write(ctx, "debug/keys", s.handler.Keys())
}

func (s *Server) write(ctx *arpc.Context, handler string, resp interface{}) {
	if err := ctx.Write(resp); err != nil {
		s.logger.Error().Err(err).Str("handler", handler).Msg("failed to write response")
	}
}
