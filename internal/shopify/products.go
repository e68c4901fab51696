package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const productSetMutation = `
mutation productSet($input: ProductSetInput!, $synchronous: Boolean!) {
	productSet(synchronous: $synchronous, input: $input) {
		product { id }
		userErrors { field message code }
	}
}`

const variantBySKUQuery = `
query productVariantBySku($first: Int!, $query: String!) {
	productVariants(first: $first, query: $query) {
		nodes {
			id
			sku
			product { id }
		}
	}
}`

// UpsertProduct creates or updates the product with productSet and returns
// its gid. Without a known gid the first variant SKU is looked up so a lost
// result does not create a duplicate.
func (c *Client) UpsertProduct(ctx context.Context, creds Credentials, payload *ProductPayload) (string, error) {
	if payload == nil {
		return "", errors.New("shopify product payload is nil")
	}
	if strings.TrimSpace(payload.Title) == "" {
		return "", errors.New("shopify product title is required")
	}

	productGid := strings.TrimSpace(payload.ShopifyProductID)
	if productGid == "" {
		found, err := c.findProductBySKU(ctx, creds, firstSKU(payload))
		if err != nil {
			return "", err
		}
		productGid = found
	}

	input := buildProductSetInput(payload, productGid)

	var data productSetData
	err := c.graphqlRequest(ctx, creds, productSetMutation, map[string]any{
		"input":       input,
		"synchronous": true,
	}, &data)
	if err != nil {
		return "", err
	}
	if err := userErrorsToError("productSet", data.ProductSet.UserErrors); err != nil {
		return "", err
	}
	if data.ProductSet.Product == nil || strings.TrimSpace(data.ProductSet.Product.ID) == "" {
		return "", errors.New("shopify productSet returned empty product id")
	}
	return data.ProductSet.Product.ID, nil
}

func firstSKU(payload *ProductPayload) string {
	for _, v := range payload.Variants {
		if sku := strings.TrimSpace(v.SKU); sku != "" {
			return sku
		}
	}
	return ""
}

func (c *Client) findProductBySKU(ctx context.Context, creds Credentials, sku string) (string, error) {
	if sku == "" {
		return "", nil
	}

	queryValue := sku
	if strings.ContainsAny(queryValue, " \"") {
		queryValue = fmt.Sprintf(`"%s"`, strings.ReplaceAll(queryValue, `"`, `\"`))
	}

	var data variantSearchData
	err := c.graphqlRequest(ctx, creds, variantBySKUQuery, map[string]any{
		"first": 1,
		"query": "sku:" + queryValue,
	}, &data)
	if err != nil {
		return "", err
	}
	for _, node := range data.ProductVariants.Nodes {
		if strings.EqualFold(strings.TrimSpace(node.SKU), sku) {
			return strings.TrimSpace(node.Product.ID), nil
		}
	}
	return "", nil
}

func buildProductSetInput(payload *ProductPayload, productGid string) map[string]any {
	input := map[string]any{
		"title":  strings.TrimSpace(payload.Title),
		"status": payload.Status,
	}
	if productGid != "" {
		input["id"] = productGid
	}
	if payload.DescriptionHTML != "" {
		input["descriptionHtml"] = payload.DescriptionHTML
	}
	if payload.Vendor != "" {
		input["vendor"] = payload.Vendor
	}
	if payload.ProductType != "" {
		input["productType"] = payload.ProductType
	}
	if len(payload.Tags) > 0 {
		input["tags"] = payload.Tags
	}
	if len(payload.CollectionIDs) > 0 {
		input["collections"] = payload.CollectionIDs
	}

	if len(payload.Options) > 0 {
		options := make([]map[string]any, 0, len(payload.Options))
		for i, opt := range payload.Options {
			values := make([]map[string]any, 0, len(opt.Values))
			for _, v := range opt.Values {
				values = append(values, map[string]any{"name": v})
			}
			options = append(options, map[string]any{
				"name":     opt.Name,
				"position": i + 1,
				"values":   values,
			})
		}
		input["productOptions"] = options
	}

	variants := make([]map[string]any, 0, len(payload.Variants))
	for _, v := range payload.Variants {
		variant := map[string]any{
			"price": v.Price,
		}
		if v.CompareAtPrice != "" {
			variant["compareAtPrice"] = v.CompareAtPrice
		}
		if v.Barcode != "" {
			variant["barcode"] = v.Barcode
		}

		item := map[string]any{}
		if v.SKU != "" {
			item["sku"] = v.SKU
		}
		if v.Weight != "" && v.WeightUnit != "" {
			item["measurement"] = map[string]any{
				"weight": map[string]any{"value": v.Weight, "unit": v.WeightUnit},
			}
		}
		if len(item) > 0 {
			variant["inventoryItem"] = item
		}

		if len(v.OptionValues) > 0 {
			optionValues := make([]map[string]any, 0, len(v.OptionValues))
			for _, ov := range v.OptionValues {
				optionValues = append(optionValues, map[string]any{"optionName": ov.OptionName, "name": ov.Name})
			}
			variant["optionValues"] = optionValues
		}

		if len(v.Inventory) > 0 {
			quantities := make([]map[string]any, 0, len(v.Inventory))
			for _, q := range v.Inventory {
				quantities = append(quantities, map[string]any{
					"locationId": q.LocationID,
					"name":       "available",
					"quantity":   q.Quantity,
				})
			}
			variant["inventoryQuantities"] = quantities
		}
		variants = append(variants, variant)
	}
	input["variants"] = variants

	if len(payload.Media) > 0 {
		files := make([]map[string]any, 0, len(payload.Media))
		for _, m := range payload.Media {
			file := map[string]any{
				"originalSource": m.URL,
				"contentType":    "IMAGE",
			}
			if m.Alt != "" {
				file["alt"] = m.Alt
			}
			files = append(files, file)
		}
		input["files"] = files
	}

	return input
}
