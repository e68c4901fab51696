// internal/models/product.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Product struct {
	BaseModel
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Vendor      string         `json:"vendor" gorm:"size:255"`
	ProductType string         `json:"product_type" gorm:"size:255"`
	Status      ProductStatus  `json:"status" gorm:"type:varchar(20);default:'DRAFT';index"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`

	// Relationships
	Options  []ProductOption `json:"options" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Variants []Variant       `json:"variants" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Media    []ProductMedia  `json:"media" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// ProductOption is a named axis of variation with ordered values.
type ProductOption struct {
	BaseModel
	ProductID uuid.UUID      `json:"product_id" gorm:"type:uuid;not null;index"`
	Name      string         `json:"name" gorm:"size:255;not null"`
	Position  int            `json:"position" gorm:"not null"`
	Values    pq.StringArray `json:"values" gorm:"type:text[]"`
}

type Variant struct {
	BaseModel
	ProductID         uuid.UUID        `json:"product_id" gorm:"type:uuid;not null;index"`
	Position          int              `json:"position" gorm:"not null"`
	Title             string           `json:"title" gorm:"size:255"`
	Price             decimal.Decimal  `json:"price" gorm:"type:decimal(12,2);not null"`
	CompareAtPrice    *decimal.Decimal `json:"compare_at_price,omitempty" gorm:"type:decimal(12,2)"`
	SKU               string           `json:"sku" gorm:"size:255;index"`
	Barcode           string           `json:"barcode" gorm:"size:255"`
	InventoryQuantity int              `json:"inventory_quantity" gorm:"not null;default:0"`
	Weight            decimal.Decimal  `json:"weight" gorm:"type:decimal(10,3);default:0"`
	WeightUnit        WeightUnit       `json:"weight_unit" gorm:"type:varchar(20);default:'KILOGRAMS'"`
	OptionValues      OptionValues     `json:"option_values" gorm:"type:jsonb"`
}

type ProductMedia struct {
	BaseModel
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	URL       string    `json:"url" gorm:"type:text;not null"`
	Alt       string    `json:"alt" gorm:"size:512"`
	Position  int       `json:"position"`
	MimeType  string    `json:"mime_type" gorm:"size:100"`
}

// OptionValue assigns one value of a named option to a variant.
type OptionValue struct {
	OptionName string `json:"option_name"`
	Value      string `json:"value"`
}

type OptionValues []OptionValue

func (o OptionValues) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func (o *OptionValues) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(bytes, o)
}

// Key identifies the combination regardless of the variant's own id.
func (o OptionValues) Key() string {
	parts := make([]string, len(o))
	for i, ov := range o {
		parts[i] = ov.OptionName + "=" + ov.Value
	}
	return strings.Join(parts, "|")
}

func (o OptionValues) Title() string {
	parts := make([]string, len(o))
	for i, ov := range o {
		parts[i] = ov.Value
	}
	return strings.Join(parts, " / ")
}

// VariantByID returns the variant with the given id, or nil.
func (p *Product) VariantByID(id uuid.UUID) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can merge per-store data without
// touching the canonical record.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	out := *p
	out.Tags = append(pq.StringArray(nil), p.Tags...)

	out.Options = make([]ProductOption, len(p.Options))
	for i, opt := range p.Options {
		opt.Values = append(pq.StringArray(nil), opt.Values...)
		out.Options[i] = opt
	}

	out.Variants = make([]Variant, len(p.Variants))
	for i, v := range p.Variants {
		if v.CompareAtPrice != nil {
			compareAt := *v.CompareAtPrice
			v.CompareAtPrice = &compareAt
		}
		v.OptionValues = append(OptionValues(nil), v.OptionValues...)
		out.Variants[i] = v
	}

	out.Media = append([]ProductMedia(nil), p.Media...)
	return &out
}
