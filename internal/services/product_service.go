// internal/services/product_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/multistore-backend/internal/allocation"
	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
	"github.com/javajoker/multistore-backend/internal/utils"
	"github.com/javajoker/multistore-backend/internal/variants"
)

type ProductService struct {
	products    repository.ProductRepository
	commitments repository.CommitmentRepository
	syncResults repository.SyncResultRepository
	ledger      *allocation.Ledger
}

type OptionInput struct {
	Name   string   `json:"name" validate:"required,max=255"`
	Values []string `json:"values" validate:"required,min=1"`
}

type VariantInput struct {
	// ID keeps an existing variant when a product is updated.
	ID                *uuid.UUID           `json:"id,omitempty"`
	Price             decimal.Decimal      `json:"price"`
	CompareAtPrice    *decimal.Decimal     `json:"compare_at_price,omitempty"`
	SKU               string               `json:"sku,omitempty" validate:"max=255"`
	Barcode           string               `json:"barcode,omitempty" validate:"max=255"`
	InventoryQuantity int                  `json:"inventory_quantity" validate:"gte=0"`
	Weight            decimal.Decimal      `json:"weight"`
	WeightUnit        models.WeightUnit    `json:"weight_unit,omitempty"`
	OptionValues      []models.OptionValue `json:"option_values,omitempty"`
}

type MediaInput struct {
	URL      string `json:"url" validate:"required,url"`
	Alt      string `json:"alt,omitempty" validate:"max=512"`
	MimeType string `json:"mime_type,omitempty"`
}

type ProductRequest struct {
	Title       string               `json:"title" validate:"required,min=1,max=255"`
	Description string               `json:"description,omitempty"`
	Vendor      string               `json:"vendor,omitempty" validate:"max=255"`
	ProductType string               `json:"product_type,omitempty" validate:"max=255"`
	Status      models.ProductStatus `json:"status,omitempty" validate:"product_status"`
	Tags        []string             `json:"tags,omitempty"`
	Options     []OptionInput        `json:"options,omitempty" validate:"max=3,dive"`
	// GenerateVariants builds the full cartesian product of the options and
	// applies VariantDefaults to every new variant.
	GenerateVariants bool           `json:"generate_variants"`
	VariantDefaults  *VariantInput  `json:"variant_defaults,omitempty"`
	Variants         []VariantInput `json:"variants,omitempty" validate:"dive"`
	Media            []MediaInput   `json:"media,omitempty" validate:"dive"`
}

type PatchVariantRequest struct {
	Price             *decimal.Decimal `json:"price,omitempty"`
	CompareAtPrice    *decimal.Decimal `json:"compare_at_price,omitempty"`
	ClearCompareAt    bool             `json:"clear_compare_at_price,omitempty"`
	SKU               *string          `json:"sku,omitempty" validate:"omitempty,max=255"`
	Barcode           *string          `json:"barcode,omitempty" validate:"omitempty,max=255"`
	InventoryQuantity *int             `json:"inventory_quantity,omitempty" validate:"omitempty,gte=0"`
}

type ProductSearchParams struct {
	utils.PaginationParams
	Status *models.ProductStatus `json:"status,omitempty"`
}

func NewProductService(repos *repository.Repositories, ledger *allocation.Ledger) *ProductService {
	return &ProductService{
		products:    repos.Products,
		commitments: repos.Commitments,
		syncResults: repos.SyncResults,
		ledger:      ledger,
	}
}

func (s *ProductService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	product := &models.Product{}
	if err := s.apply(product, req); err != nil {
		return nil, err
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"product_id": product.ID,
		"variants":   len(product.Variants),
	}).Info("Product created")

	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.products.GetByID(ctx, id)
}

func (s *ProductService) ListProducts(ctx context.Context, params *ProductSearchParams) ([]models.Product, int64, error) {
	return s.products.List(ctx, repository.ProductFilter{
		PaginationParams: params.PaginationParams,
		Status:           params.Status,
	})
}

// UpdateProduct replaces the product's fields, options, variants and media.
// Kept variants cannot drop below what is committed to stores; variants that
// disappear release their inventory commitments.
func (s *ProductService) UpdateProduct(ctx context.Context, id uuid.UUID, req *ProductRequest) (*models.Product, error) {
	current, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(current.Variants))
	for i, v := range current.Variants {
		ids[i] = v.ID
	}

	var product *models.Product
	var removed []uuid.UUID
	err = s.ledger.WithVariantLocks(ctx, id, ids, func() error {
		locked, err := s.products.GetByID(ctx, id)
		if err != nil {
			return err
		}
		before := make(map[uuid.UUID]int, len(locked.Variants))
		for _, v := range locked.Variants {
			before[v.ID] = v.InventoryQuantity
		}

		if err := s.apply(locked, req); err != nil {
			return err
		}
		for _, v := range locked.Variants {
			qty, kept := before[v.ID]
			if !kept {
				continue
			}
			delete(before, v.ID)
			if v.InventoryQuantity < qty {
				if err := s.checkCommitted(ctx, id, v.ID, v.InventoryQuantity); err != nil {
					return err
				}
			}
		}
		if err := s.products.Update(ctx, locked); err != nil {
			return err
		}

		for variantID := range before {
			removed = append(removed, variantID)
		}
		product = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, variantID := range removed {
		if err := s.ledger.Release(ctx, product.ID, variantID); err != nil {
			return nil, fmt.Errorf("failed to release commitments for variant %s: %w", variantID, err)
		}
	}

	logrus.WithField("product_id", product.ID).Info("Product updated")
	return product, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.commitments.DeleteByProduct(ctx, id); err != nil {
		return fmt.Errorf("failed to delete commitments: %w", err)
	}
	if err := s.syncResults.DeleteByProduct(ctx, id); err != nil {
		return fmt.Errorf("failed to delete sync results: %w", err)
	}
	return nil
}

// PatchVariant edits price, identifiers and master quantity of one variant.
// The master quantity cannot drop below what is already committed to stores.
func (s *ProductService) PatchVariant(ctx context.Context, productID, variantID uuid.UUID, req *PatchVariantRequest) (*models.Variant, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationFailed(err)
	}

	var variant *models.Variant
	err := s.ledger.WithVariantLocks(ctx, productID, []uuid.UUID{variantID}, func() error {
		var err error
		variant, err = s.products.GetVariant(ctx, productID, variantID)
		if err != nil {
			return err
		}

		if req.Price != nil {
			variant.Price = *req.Price
		}
		if req.ClearCompareAt {
			variant.CompareAtPrice = nil
		} else if req.CompareAtPrice != nil {
			compareAt := *req.CompareAtPrice
			variant.CompareAtPrice = &compareAt
		}
		if req.SKU != nil {
			variant.SKU = strings.TrimSpace(*req.SKU)
		}
		if req.Barcode != nil {
			variant.Barcode = strings.TrimSpace(*req.Barcode)
		}
		if err := checkPricing(variant); err != nil {
			return err
		}

		if req.InventoryQuantity != nil {
			if err := s.checkCommitted(ctx, productID, variantID, *req.InventoryQuantity); err != nil {
				return err
			}
			variant.InventoryQuantity = *req.InventoryQuantity
		}

		return s.products.UpdateVariant(ctx, variant)
	})
	if err != nil {
		return nil, err
	}
	return variant, nil
}

// checkCommitted refuses a master quantity below the variant's commitments.
// The caller holds the variant's ledger lock.
func (s *ProductService) checkCommitted(ctx context.Context, productID, variantID uuid.UUID, quantity int) error {
	committed, err := s.ledger.Committed(ctx, productID, variantID)
	if err != nil {
		return err
	}
	if quantity < committed {
		return &apperrors.InsufficientInventoryError{
			VariantID: variantID,
			Requested: committed,
			Available: quantity,
		}
	}
	return nil
}

// DeleteVariant removes one variant and every store commitment made for it.
// Overrides and commitments of the other variants are keyed by their own ids
// and stay as they are.
func (s *ProductService) DeleteVariant(ctx context.Context, productID, variantID uuid.UUID) error {
	if err := s.products.DeleteVariant(ctx, productID, variantID); err != nil {
		return err
	}
	if err := s.ledger.Release(ctx, productID, variantID); err != nil {
		return fmt.Errorf("failed to release commitments: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"product_id": productID,
		"variant_id": variantID,
	}).Info("Variant deleted")
	return nil
}

// PreviewVariants runs the generator without saving anything.
func (s *ProductService) PreviewVariants(options []OptionInput) ([]models.Variant, error) {
	return variants.Generate(toOptions(options))
}

func toOptions(inputs []OptionInput) []models.ProductOption {
	options := make([]models.ProductOption, len(inputs))
	for i, in := range inputs {
		options[i] = models.ProductOption{
			Name:   in.Name,
			Values: append(pq.StringArray(nil), in.Values...),
		}
	}
	return options
}

// apply validates req and writes it onto product, keeping the ids of
// existing options and variants that survive.
func (s *ProductService) apply(product *models.Product, req *ProductRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return validationFailed(err)
	}

	options, err := variants.Normalize(toOptions(req.Options))
	if err != nil {
		return err
	}

	var next []models.Variant
	if req.GenerateVariants {
		next, err = generateVariants(product.Variants, options, req)
	} else {
		next, err = curatedVariants(product.Variants, options, req.Variants)
	}
	if err != nil {
		return err
	}

	existingOptions := make(map[string]uuid.UUID, len(product.Options))
	for _, opt := range product.Options {
		existingOptions[strings.ToLower(opt.Name)] = opt.ID
	}
	for i := range options {
		options[i].ID = existingOptions[strings.ToLower(options[i].Name)]
		options[i].ProductID = product.ID
	}

	media := make([]models.ProductMedia, len(req.Media))
	for i, m := range req.Media {
		media[i] = models.ProductMedia{
			ProductID: product.ID,
			URL:       m.URL,
			Alt:       m.Alt,
			Position:  i + 1,
			MimeType:  m.MimeType,
		}
	}

	product.Title = strings.TrimSpace(req.Title)
	product.Description = req.Description
	product.Vendor = req.Vendor
	product.ProductType = req.ProductType
	product.Status = req.Status
	if product.Status == "" {
		product.Status = models.ProductStatusDraft
	}
	product.Tags = normalizeTags(req.Tags)
	product.Options = options
	product.Variants = next
	product.Media = media
	return nil
}

func generateVariants(existing []models.Variant, options []models.ProductOption, req *ProductRequest) ([]models.Variant, error) {
	generated, err := variants.Generate(options)
	if err != nil {
		return nil, err
	}

	byCombination := make(map[string]models.Variant, len(existing))
	for _, v := range existing {
		byCombination[v.OptionValues.Key()] = v
	}

	defaults := VariantInput{WeightUnit: models.WeightUnitKilograms}
	if req.VariantDefaults != nil {
		defaults = *req.VariantDefaults
	}

	out := make([]models.Variant, len(generated))
	for i, g := range generated {
		v, kept := byCombination[g.OptionValues.Key()]
		if !kept {
			v = newVariant(defaults)
		}
		v.Position = g.Position
		v.Title = g.Title
		v.OptionValues = g.OptionValues
		if err := checkPricing(&v); err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func curatedVariants(existing []models.Variant, options []models.ProductOption, inputs []VariantInput) ([]models.Variant, error) {
	if len(inputs) == 0 {
		return nil, apperrors.NewValidationError("a product needs at least one variant")
	}

	byID := make(map[uuid.UUID]models.Variant, len(existing))
	for _, v := range existing {
		byID[v.ID] = v
	}

	out := make([]models.Variant, len(inputs))
	for i, in := range inputs {
		v := newVariant(in)
		if in.ID != nil {
			current, ok := byID[*in.ID]
			if !ok {
				return nil, apperrors.NewNotFound("variant", *in.ID)
			}
			v.BaseModel = current.BaseModel
			v.ProductID = current.ProductID
		}
		v.Position = i + 1
		v.OptionValues = trimOptionValues(in.OptionValues)
		v.Title = v.OptionValues.Title()
		if v.Title == "" {
			v.Title = "Default Title"
		}
		if err := checkPricing(&v); err != nil {
			return nil, err
		}
		out[i] = v
	}

	if err := variants.ValidateVariants(options, out); err != nil {
		return nil, err
	}
	return out, nil
}

func newVariant(in VariantInput) models.Variant {
	v := models.Variant{
		Price:             in.Price,
		SKU:               strings.TrimSpace(in.SKU),
		Barcode:           strings.TrimSpace(in.Barcode),
		InventoryQuantity: in.InventoryQuantity,
		Weight:            in.Weight,
		WeightUnit:        in.WeightUnit,
	}
	if in.CompareAtPrice != nil {
		compareAt := *in.CompareAtPrice
		v.CompareAtPrice = &compareAt
	}
	if v.WeightUnit == "" {
		v.WeightUnit = models.WeightUnitKilograms
	}
	return v
}

func trimOptionValues(values []models.OptionValue) models.OptionValues {
	out := make(models.OptionValues, len(values))
	for i, ov := range values {
		out[i] = models.OptionValue{
			OptionName: strings.TrimSpace(ov.OptionName),
			Value:      strings.TrimSpace(ov.Value),
		}
	}
	return out
}

func checkPricing(v *models.Variant) error {
	if v.Price.IsNegative() {
		return apperrors.NewValidationError("variant price cannot be negative")
	}
	if v.CompareAtPrice != nil && !v.CompareAtPrice.GreaterThan(v.Price) {
		return apperrors.NewValidationError("compare-at price must exceed price")
	}
	if v.InventoryQuantity < 0 {
		return apperrors.NewValidationError("inventory quantity cannot be negative")
	}
	if v.Weight.IsNegative() {
		return apperrors.NewValidationError("weight cannot be negative")
	}
	return nil
}

func normalizeTags(tags []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		out = append(out, tag)
	}
	return out
}
