// internal/handlers/store.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/multistore-backend/internal/i18n"
	"github.com/javajoker/multistore-backend/internal/services"
	"github.com/javajoker/multistore-backend/internal/utils"
)

type StoreHandler struct {
	storeService *services.StoreService
}

func NewStoreHandler(storeService *services.StoreService) *StoreHandler {
	return &StoreHandler{storeService: storeService}
}

// GET /stores
func (h *StoreHandler) GetStores(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))

	stores, err := h.storeService.ListStores(c.Request.Context(), activeOnly)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stores": stores,
	})
}

// POST /stores
func (h *StoreHandler) CreateStore(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	store, err := h.storeService.CreateStore(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyStoreCreated),
		"store":   store,
	})
}

// GET /stores/:id
func (h *StoreHandler) GetStore(c *gin.Context) {
	id, ok := parseID(c, "id", "store")
	if !ok {
		return
	}

	store, err := h.storeService.GetStore(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, store)
}

// PUT /stores/:id
func (h *StoreHandler) UpdateStore(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "store")
	if !ok {
		return
	}

	var req services.UpdateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	store, err := h.storeService.UpdateStore(c.Request.Context(), id, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyStoreUpdated),
		"store":   store,
	})
}

// DELETE /stores/:id
func (h *StoreHandler) DeleteStore(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "store")
	if !ok {
		return
	}

	if err := h.storeService.DeleteStore(c.Request.Context(), id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyStoreDeleted),
	})
}

// POST /stores/:id/locations/refresh
func (h *StoreHandler) RefreshLocations(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "store")
	if !ok {
		return
	}

	locations, err := h.storeService.RefreshLocations(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyStoreLocationsRefreshed),
		"locations": locations,
	})
}

// PUT /stores/:id/locations/:locationId
func (h *StoreHandler) UpdateLocation(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	storeID, ok := parseID(c, "id", "store")
	if !ok {
		return
	}
	locationID, ok := parseID(c, "locationId", "location")
	if !ok {
		return
	}

	var req services.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	location, err := h.storeService.UpdateLocation(c.Request.Context(), storeID, locationID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyLocationUpdated),
		"location": location,
	})
}
