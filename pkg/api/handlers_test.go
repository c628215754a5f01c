package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/pkg/storage"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore backs the handlers with in-memory data.
type fakeStore struct {
	blocks   []*storage.StoredBlock
	accounts map[types.AccountID]*storage.StoredAccount
	failing  bool
}

func (s *fakeStore) FetchMaxLevel(ctx context.Context) (int64, error) {
	if s.failing {
		return 0, fmt.Errorf("db down")
	}
	if len(s.blocks) == 0 {
		return -1, nil
	}
	return s.blocks[0].Level, nil
}

func (s *fakeStore) FetchLatestBlock(ctx context.Context) (*storage.StoredBlock, error) {
	if s.failing {
		return nil, fmt.Errorf("db down")
	}
	if len(s.blocks) == 0 {
		return nil, nil
	}
	return s.blocks[0], nil
}

func (s *fakeStore) ListBlocks(ctx context.Context, limit, offset int) ([]*storage.StoredBlock, error) {
	if s.failing {
		return nil, fmt.Errorf("db down")
	}
	if offset >= len(s.blocks) {
		return nil, nil
	}
	end := min(offset+limit, len(s.blocks))
	return s.blocks[offset:end], nil
}

func (s *fakeStore) GetBlock(ctx context.Context, hash types.BlockHash) (*storage.StoredBlock, error) {
	if s.failing {
		return nil, fmt.Errorf("db down")
	}
	for _, block := range s.blocks {
		if block.Hash == hash {
			return block, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetAccount(ctx context.Context, id types.AccountID) (*storage.StoredAccount, error) {
	if s.failing {
		return nil, fmt.Errorf("db down")
	}
	return s.accounts[id], nil
}

func (s *fakeStore) CountBlocks(ctx context.Context) (int64, error) {
	if s.failing {
		return 0, fmt.Errorf("db down")
	}
	return int64(len(s.blocks)), nil
}

func newTestStore() *fakeStore {
	return &fakeStore{
		blocks: []*storage.StoredBlock{
			{Hash: "BL3", Level: 3, Predecessor: "BL2", Timestamp: time.Now().UTC()},
			{Hash: "BL2", Level: 2, Predecessor: "BL1", Timestamp: time.Now().UTC()},
			{Hash: "BL1", Level: 1, Predecessor: "BL0", Timestamp: time.Now().UTC()},
		},
		accounts: map[types.AccountID]*storage.StoredAccount{
			"tz1abc": {AccountID: "tz1abc", BlockHash: "BL3", BlockLevel: 3, Manager: "tz1abc"},
		},
	}
}

func serveRequest(store Store, method, target string) *httptest.ResponseRecorder {
	handler := NewHandler(store, logger.NewNopLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /api/v1/status", handler.GetStatus)
	mux.HandleFunc("GET /api/v1/blocks", handler.ListBlocks)
	mux.HandleFunc("GET /api/v1/blocks/{hash}", handler.GetBlock)
	mux.HandleFunc("GET /api/v1/accounts/{id}", handler.GetAccount)

	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandler_Health(t *testing.T) {
	w := serveRequest(newTestStore(), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestHandler_GetStatus(t *testing.T) {
	w := serveRequest(newTestStore(), http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	var response StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, int64(3), response.MaxLevel)
	assert.Equal(t, int64(3), response.BlockCount)
	assert.Equal(t, "BL3", response.LatestHash)
}

func TestHandler_GetStatus_StoreFailure(t *testing.T) {
	w := serveRequest(&fakeStore{failing: true}, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_ListBlocks(t *testing.T) {
	w := serveRequest(newTestStore(), http.MethodGet, "/api/v1/blocks?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Blocks     []storage.StoredBlock `json:"blocks"`
		Pagination PaginationResult      `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	require.Len(t, response.Blocks, 2)
	assert.Equal(t, int64(3), response.Blocks[0].Level)
	assert.Equal(t, int64(3), response.Pagination.Total)
	assert.Equal(t, 2, response.Pagination.Limit)
	assert.True(t, response.Pagination.HasMore)
}

func TestHandler_ListBlocks_InvalidParams(t *testing.T) {
	w := serveRequest(newTestStore(), http.MethodGet, "/api/v1/blocks?limit=abc")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = serveRequest(newTestStore(), http.MethodGet, "/api/v1/blocks?limit=-1")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = serveRequest(newTestStore(), http.MethodGet, "/api/v1/blocks?offset=-5")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetBlock(t *testing.T) {
	w := serveRequest(newTestStore(), http.MethodGet, "/api/v1/blocks/BL2")
	require.Equal(t, http.StatusOK, w.Code)

	var block storage.StoredBlock
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &block))
	assert.Equal(t, types.BlockHash("BL2"), block.Hash)
	assert.Equal(t, int64(2), block.Level)
}

// The distinguished hash "head" addresses the latest indexed block.
func TestHandler_GetBlock_Head(t *testing.T) {
	w := serveRequest(newTestStore(), http.MethodGet, "/api/v1/blocks/head")
	require.Equal(t, http.StatusOK, w.Code)

	var block storage.StoredBlock
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &block))
	assert.Equal(t, types.BlockHash("BL3"), block.Hash)
}

func TestHandler_GetBlock_NotFound(t *testing.T) {
	w := serveRequest(newTestStore(), http.MethodGet, "/api/v1/blocks/BLmissing")
	require.Equal(t, http.StatusNotFound, w.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, http.StatusNotFound, response.Code)
}

func TestHandler_GetAccount(t *testing.T) {
	w := serveRequest(newTestStore(), http.MethodGet, "/api/v1/accounts/tz1abc")
	require.Equal(t, http.StatusOK, w.Code)

	var account storage.StoredAccount
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, "tz1abc", account.AccountID)

	w = serveRequest(newTestStore(), http.MethodGet, "/api/v1/accounts/tz1missing")
	require.Equal(t, http.StatusNotFound, w.Code)
}
