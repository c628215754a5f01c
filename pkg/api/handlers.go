package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/pkg/storage"
	"github.com/goran-ethernal/TezosIndexor/pkg/types"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// Store is the read side of the chain store the API serves.
type Store interface {
	FetchMaxLevel(ctx context.Context) (int64, error)
	FetchLatestBlock(ctx context.Context) (*storage.StoredBlock, error)
	ListBlocks(ctx context.Context, limit, offset int) ([]*storage.StoredBlock, error)
	GetBlock(ctx context.Context, hash types.BlockHash) (*storage.StoredBlock, error)
	GetAccount(ctx context.Context, id types.AccountID) (*storage.StoredAccount, error)
	CountBlocks(ctx context.Context) (int64, error)
}

// Handler handles HTTP requests for the API.
type Handler struct {
	store Store
	log   *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(store Store, log *logger.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log,
	}
}

// Health reports server liveness.
// @Summary Health check
// @Description Report whether the API server is alive
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Server is healthy"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}

// GetStatus reports the indexing progress.
// @Summary Indexing status
// @Description Report the highest indexed level and stored block count
// @Tags Status
// @Produce json
// @Success 200 {object} StatusResponse "Indexing status"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	maxLevel, err := h.store.FetchMaxLevel(r.Context())
	if err != nil {
		h.log.Errorf("failed to read max level: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read indexing status")
		return
	}

	count, err := h.store.CountBlocks(r.Context())
	if err != nil {
		h.log.Errorf("failed to count blocks: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read indexing status")
		return
	}

	response := StatusResponse{MaxLevel: maxLevel, BlockCount: count}

	latest, err := h.store.FetchLatestBlock(r.Context())
	if err != nil {
		h.log.Errorf("failed to read latest block: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read indexing status")
		return
	}
	if latest != nil {
		response.LatestHash = string(latest.Hash)
		response.LatestLevel = latest.Level
	}

	respondJSON(w, http.StatusOK, response)
}

// ListBlocks returns stored blocks, newest first.
// @Summary List indexed blocks
// @Description Retrieve stored blocks ordered by level descending with pagination
// @Tags Blocks
// @Produce json
// @Param limit query int false "Maximum number of blocks to return" default(100)
// @Param offset query int false "Number of blocks to skip" default(0)
// @Success 200 {object} BlocksResponse "List of blocks with pagination info"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /blocks [get]
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	blocks, err := h.store.ListBlocks(r.Context(), limit, offset)
	if err != nil {
		h.log.Errorf("failed to list blocks: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list blocks")
		return
	}

	total, err := h.store.CountBlocks(r.Context())
	if err != nil {
		h.log.Errorf("failed to count blocks: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list blocks")
		return
	}

	respondJSON(w, http.StatusOK, BlocksResponse{
		Blocks: blocks,
		Pagination: PaginationResult{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: int64(offset+len(blocks)) < total,
		},
	})
}

// GetBlock returns one stored block by hash, or the latest one for the
// distinguished hash "head".
// @Summary Get a block
// @Description Retrieve a stored block by hash; "head" addresses the latest indexed block
// @Tags Blocks
// @Produce json
// @Param hash path string true "Block hash or 'head'"
// @Success 200 {object} storage.StoredBlock "The stored block"
// @Failure 404 {object} ErrorResponse "Block not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /blocks/{hash} [get]
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	hash := types.BlockHash(r.PathValue("hash"))
	if hash == "" {
		respondError(w, http.StatusBadRequest, "block hash is required")
		return
	}

	var (
		block *storage.StoredBlock
		err   error
	)

	if hash == types.HeadReference {
		block, err = h.store.FetchLatestBlock(r.Context())
	} else {
		block, err = h.store.GetBlock(r.Context(), hash)
	}
	if err != nil {
		h.log.Errorf("failed to read block %s: %v", hash, err)
		respondError(w, http.StatusInternalServerError, "failed to read block")
		return
	}
	if block == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("block '%s' not found", hash))
		return
	}

	respondJSON(w, http.StatusOK, block)
}

// GetAccount returns the latest stored snapshot of an account.
// @Summary Get an account
// @Description Retrieve the latest stored snapshot of an account by id
// @Tags Accounts
// @Produce json
// @Param id path string true "Account id (tz1/KT1 address)"
// @Success 200 {object} storage.StoredAccount "The stored account"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /accounts/{id} [get]
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := types.AccountID(r.PathValue("id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "account id is required")
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		h.log.Errorf("failed to read account %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to read account")
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("account '%s' not found", id))
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// parsePagination extracts limit and offset query parameters.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, fmt.Errorf("invalid limit parameter")
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter")
		}
	}

	return limit, offset, nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode JSON first to catch any errors before writing status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)

	if _, err := w.Write(encoded); err != nil {
		// Headers already sent, the partial response may have reached the client
		return
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
