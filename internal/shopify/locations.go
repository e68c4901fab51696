package shopify

import (
	"context"
	"strings"
)

const locationsQuery = `
query locations($first: Int!, $after: String) {
	locations(first: $first, after: $after, includeInactive: true) {
		nodes {
			id
			name
			isActive
			fulfillsOnlineOrders
			shipsInventory
		}
		pageInfo { hasNextPage endCursor }
	}
}`

const locationsPageSize = 50

// ListLocations pages through every location of the shop, inactive included.
func (c *Client) ListLocations(ctx context.Context, creds Credentials) ([]Location, error) {
	var (
		out   []Location
		after *string
	)
	for {
		variables := map[string]any{"first": locationsPageSize}
		if after != nil {
			variables["after"] = *after
		}

		var data locationsData
		if err := c.graphqlRequest(ctx, creds, locationsQuery, variables, &data); err != nil {
			return nil, err
		}
		for _, loc := range data.Locations.Nodes {
			loc.ID = strings.TrimSpace(loc.ID)
			out = append(out, loc)
		}

		page := data.Locations.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			return out, nil
		}
		cursor := page.EndCursor
		after = &cursor
	}
}
