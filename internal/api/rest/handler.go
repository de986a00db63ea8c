package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/holders"
)

// HolderService is the part of the holders service the REST layer consumes
type HolderService interface {
	Contracts() []string
	ListHolders(ctx context.Context, key string, page, pageSize int, refresh bool) (*holders.Page, error)
	GetHolder(ctx context.Context, key, wallet string, refresh bool) (*domain.Holder, error)
	Progress(ctx context.Context, key string) (*holders.Progress, error)
	Trigger(key string, force bool) (bool, error)
}

// Handler handles REST API requests
type Handler struct {
	service HolderService
}

// NewHandler creates a new REST handler
func NewHandler(service HolderService) *Handler {
	return &Handler{service: service}
}

// ListContracts returns the registered contract keys
// GET /api/v1/contracts
func (h *Handler) ListContracts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contracts": h.service.Contracts()})
}

// ListHolders returns one page of ranked holders for a contract
// GET /api/v1/holders/:contract?page=&page_size=&wallet=&refresh=
func (h *Handler) ListHolders(c *gin.Context) {
	contract := c.Param("contract")

	params, err := parseListParams(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	// wallet filter short-circuits pagination but still honors refresh
	if wallet := c.Query("wallet"); wallet != "" {
		holder, err := h.service.GetHolder(c.Request.Context(), contract, wallet, params.Refresh)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"contract": contract, "holder": holder})
		return
	}

	page, err := h.service.ListHolders(c.Request.Context(), contract, params.Page, params.PageSize, params.Refresh)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetProgress returns the population progress for a contract
// GET /api/v1/holders/:contract/progress
func (h *Handler) GetProgress(c *gin.Context) {
	progress, err := h.service.Progress(c.Request.Context(), c.Param("contract"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// TriggerPopulation starts a population run in the background
// POST /api/v1/holders/:contract?force=
func (h *Handler) TriggerPopulation(c *gin.Context) {
	contract := c.Param("contract")
	force := c.Query("force") == "true"

	started, err := h.service.Trigger(contract, force)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	status := "started"
	if !started {
		status = "already_running"
	}
	c.JSON(http.StatusAccepted, gin.H{"contract": contract, "status": status})
}

// Health returns service health status
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
