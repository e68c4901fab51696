// internal/handlers/product.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/multistore-backend/internal/i18n"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/services"
	"github.com/javajoker/multistore-backend/internal/utils"
)

type ProductHandler struct {
	productService *services.ProductService
	storageService *services.StorageService
}

func NewProductHandler(productService *services.ProductService, storageService *services.StorageService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		storageService: storageService,
	}
}

// parseID reads a uuid path parameter and answers 400 when it is malformed.
func parseID(c *gin.Context, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+label+" ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.ProductSearchParams{
		PaginationParams: params,
	}
	if status := c.Query("status"); status != "" {
		productStatus := models.ProductStatus(status)
		if !productStatus.Valid() {
			utils.BadRequestResponse(c, "Invalid product status", nil)
			return
		}
		searchParams.Status = &productStatus
	}

	products, total, err := h.productService.ListProducts(c.Request.Context(), &searchParams)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	result := utils.CreatePaginationResult(products, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	product, err := h.productService.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyProductCreated),
		"product": product,
	})
}

// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id", "product")
	if !ok {
		return
	}

	product, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, product)
}

// PUT /products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "product")
	if !ok {
		return
	}

	var req services.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	product, err := h.productService.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyProductUpdated),
		"product": product,
	})
}

// DELETE /products/:id
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "id", "product")
	if !ok {
		return
	}

	if err := h.productService.DeleteProduct(c.Request.Context(), id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyProductDeleted),
	})
}

// PATCH /products/:id/variants/:variantId
func (h *ProductHandler) PatchVariant(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	productID, ok := parseID(c, "id", "product")
	if !ok {
		return
	}
	variantID, ok := parseID(c, "variantId", "variant")
	if !ok {
		return
	}

	var req services.PatchVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	variant, err := h.productService.PatchVariant(c.Request.Context(), productID, variantID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyVariantUpdated),
		"variant": variant,
	})
}

// DELETE /products/:id/variants/:variantId
func (h *ProductHandler) DeleteVariant(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	productID, ok := parseID(c, "id", "product")
	if !ok {
		return
	}
	variantID, ok := parseID(c, "variantId", "variant")
	if !ok {
		return
	}

	if err := h.productService.DeleteVariant(c.Request.Context(), productID, variantID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyVariantDeleted),
	})
}

type previewVariantsRequest struct {
	Options []services.OptionInput `json:"options"`
}

// POST /variants/preview
func (h *ProductHandler) PreviewVariants(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req previewVariantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	variants, err := h.productService.PreviewVariants(req.Options)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"variants": variants,
		"count":    len(variants),
	})
}

// POST /media
func (h *ProductHandler) UploadMedia(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		utils.BadRequestResponse(c, "No files uploaded", nil)
		return
	}

	options := h.storageService.GetDefaultUploadOptions("products")
	uploaded := make([]map[string]interface{}, 0, len(files))
	rejected := make([]map[string]interface{}, 0)

	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			rejected = append(rejected, gin.H{"filename": fileHeader.Filename, "error": err.Error()})
			continue
		}

		result, err := h.storageService.UploadFile(c.Request.Context(), file, fileHeader, options)
		file.Close()
		if err != nil {
			rejected = append(rejected, gin.H{"filename": fileHeader.Filename, "error": err.Error()})
			continue
		}

		uploaded = append(uploaded, map[string]interface{}{
			"url":       result.URL,
			"key":       result.Key,
			"size":      result.Size,
			"mime_type": result.MimeType,
			"filename":  fileHeader.Filename,
		})
	}

	if len(uploaded) == 0 {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileInvalidType), rejected)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyFileUploadSuccess),
		"files":    uploaded,
		"rejected": rejected,
	})
}
