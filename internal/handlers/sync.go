// internal/handlers/sync.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/multistore-backend/internal/i18n"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/services"
	"github.com/javajoker/multistore-backend/internal/utils"
)

type SyncHandler struct {
	productService *services.ProductService
	syncService    *services.SyncService
	tracker        *services.SyncTracker
	pollInterval   time.Duration
}

func NewSyncHandler(productService *services.ProductService, syncService *services.SyncService, tracker *services.SyncTracker, pollInterval time.Duration) *SyncHandler {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &SyncHandler{
		productService: productService,
		syncService:    syncService,
		tracker:        tracker,
		pollInterval:   pollInterval,
	}
}

// POST /products/:id/sync
func (h *SyncHandler) StartSync(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "product")
	if !ok {
		return
	}

	var req services.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	product, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	batch, err := h.syncService.Start(c.Request.Context(), product, req.Targets, req.Options())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	results := batch.Results()
	utils.AcceptedResponse(c, gin.H{
		"message":          i18n.T(lang, i18n.KeySyncStarted),
		"attempt_id":       batch.AttemptID,
		"results":          results,
		"summary":          services.Summarize(results),
		"allocations":      batch.Allocations(),
		"poll_interval_ms": h.pollInterval.Milliseconds(),
	})
}

// GET /products/:id/sync-status
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "product")
	if !ok {
		return
	}

	results, err := h.tracker.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if results == nil {
		results = []models.SyncResult{}
	}

	summary := services.Summarize(results)
	utils.SuccessResponse(c, gin.H{
		"results":          results,
		"summary":          summary,
		"message":          i18n.T(lang, i18n.KeySyncSummary, summary.Completed, summary.Failed),
		"settled":          services.IsSettled(results),
		"poll_interval_ms": h.pollInterval.Milliseconds(),
	})
}

// POST /products/:id/sync/cancel
func (h *SyncHandler) CancelSync(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "product")
	if !ok {
		return
	}

	cancelled, err := h.syncService.Cancel(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeySyncCancelled),
		"cancelled": cancelled,
	})
}

type allocationPreviewRequest struct {
	Target   services.SyncTarget `json:"target"`
	Strategy string              `json:"strategy,omitempty"`
}

// POST /products/:id/allocation/preview
func (h *SyncHandler) PreviewAllocation(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "product")
	if !ok {
		return
	}

	var req allocationPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	product, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	rows, err := h.syncService.PreviewAllocation(c.Request.Context(), product, req.Target, services.SyncOptions{Strategy: req.Strategy})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"store_id": req.Target.StoreID,
		"variants": rows,
	})
}
