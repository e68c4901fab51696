package shopify

// ProductPayload is the merged, store-specific product pushed by UpsertProduct.
type ProductPayload struct {
	// ShopifyProductID is the product gid from an earlier sync; empty creates.
	ShopifyProductID string           `json:"shopify_product_id,omitempty"`
	Title            string           `json:"title"`
	DescriptionHTML  string           `json:"description_html,omitempty"`
	Vendor           string           `json:"vendor,omitempty"`
	ProductType      string           `json:"product_type,omitempty"`
	Status           string           `json:"status"`
	Tags             []string         `json:"tags,omitempty"`
	Options          []OptionPayload  `json:"options,omitempty"`
	Variants         []VariantPayload `json:"variants"`
	Media            []MediaPayload   `json:"media,omitempty"`
	CollectionIDs    []string         `json:"collection_ids,omitempty"`
}

type OptionPayload struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type VariantPayload struct {
	// LocalID is the canonical variant id; it is not sent to the store.
	LocalID        string              `json:"local_id"`
	SKU            string              `json:"sku,omitempty"`
	Barcode        string              `json:"barcode,omitempty"`
	Price          string              `json:"price"`
	CompareAtPrice string              `json:"compare_at_price,omitempty"`
	Weight         string              `json:"weight,omitempty"`
	WeightUnit     string              `json:"weight_unit,omitempty"`
	OptionValues   []OptionValue       `json:"option_values,omitempty"`
	Inventory      []InventoryQuantity `json:"inventory,omitempty"`
}

type OptionValue struct {
	OptionName string `json:"option_name"`
	Name       string `json:"name"`
}

type InventoryQuantity struct {
	LocationID string `json:"location_id"`
	Quantity   int    `json:"quantity"`
}

type MediaPayload struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Location is a store location as reported by the Admin API.
type Location struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	IsActive             bool   `json:"isActive"`
	FulfillsOnlineOrders bool   `json:"fulfillsOnlineOrders"`
	ShipsInventory       bool   `json:"shipsInventory"`
}

type GraphQLResponse[T any] struct {
	Data       T              `json:"data"`
	Errors     []GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type UserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type productSetData struct {
	ProductSet struct {
		Product *struct {
			ID string `json:"id"`
		} `json:"product"`
		UserErrors []UserError `json:"userErrors,omitempty"`
	} `json:"productSet"`
}

type variantSearchData struct {
	ProductVariants struct {
		Nodes []struct {
			ID      string `json:"id"`
			SKU     string `json:"sku"`
			Product struct {
				ID string `json:"id"`
			} `json:"product"`
		} `json:"nodes"`
	} `json:"productVariants"`
}

type locationsData struct {
	Locations struct {
		Nodes    []Location `json:"nodes"`
		PageInfo pageInfo   `json:"pageInfo"`
	} `json:"locations"`
}
