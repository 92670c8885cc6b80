package server

import (
	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/storage"
)

// Handler serves bulk storage operations against the node-local store.
// Responses are always index-aligned with the request.
type Handler struct {
	store *storage.PebbleStore
}

func NewHandler(store *storage.PebbleStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) BulkGet(req *protocol.BulkGetRequest) *protocol.BulkGetResponse {
	resp := &protocol.BulkGetResponse{
		Values: make([][]byte, len(req.Keys)),
		Found:  make([]bool, len(req.Keys)),
	}
	for i, key := range req.Keys {
		value, found, err := h.store.Get(key)
		if err != nil {
			return &protocol.BulkGetResponse{
				Status: protocol.StatusPermanent,
				Error:  err.Error(),
			}
		}
		resp.Values[i] = value
		resp.Found[i] = found
	}
	return resp
}

func (h *Handler) BulkSet(req *protocol.BulkSetRequest) *protocol.BulkSetResponse {
	resp := &protocol.BulkSetResponse{
		Errors: make([]string, len(req.Items)),
	}

	wb := h.store.NewBatch()
	defer wb.Close()

	for i, item := range req.Items {
		if err := wb.Set(item.Key, item.Value, item.TTL); err != nil {
			resp.Errors[i] = err.Error()
		}
	}
	if err := wb.Commit(); err != nil {
		return &protocol.BulkSetResponse{
			Status: protocol.StatusTransient,
			Error:  err.Error(),
		}
	}
	return resp
}

func (h *Handler) BulkExists(req *protocol.BulkExistsRequest) *protocol.BulkExistsResponse {
	resp := &protocol.BulkExistsResponse{
		Exists: make([]bool, len(req.Keys)),
	}
	for i, key := range req.Keys {
		exists, err := h.store.Exists(key)
		if err != nil {
			return &protocol.BulkExistsResponse{
				Status: protocol.StatusPermanent,
				Error:  err.Error(),
			}
		}
		resp.Exists[i] = exists
	}
	return resp
}

func (h *Handler) Keys() *protocol.KeysResponse {
	keys, err := h.store.GetAllKeys()
	if err != nil {
		return &protocol.KeysResponse{Error: err.Error()}
	}
	return &protocol.KeysResponse{Keys: keys}
}
