package shopify

import (
	"context"
	"fmt"

	"b2b-pricing/internal/model"
)

// PageSize is the number of variants requested per page.
const PageSize = 250

const variantsQuery = `query variants($first: Int!, $after: String, $namespace: String!, $key: String!) {
  productVariants(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    nodes {
      id
      sku
      price
      compareAtPrice
      updatedAt
      product { id }
      metafield(namespace: $namespace, key: $key) { id value }
    }
  }
}`

const variantsBulkUpdateMutation = `mutation variantsBulkUpdate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkUpdate(productId: $productId, variants: $variants) {
    productVariants { id }
    userErrors { field message }
  }
}`

const metafieldsDeleteMutation = `mutation metafieldsDelete($metafields: [MetafieldIdentifierInput!]!) {
  metafieldsDelete(metafields: $metafields) {
    deletedMetafields { ownerId }
    userErrors { field message }
  }
}`

const activeSubscriptionsQuery = `query activeSubscriptions {
  currentAppInstallation {
    activeSubscriptions { name status }
  }
}`

// ListVariants returns one page of variants with their special-price metafield.
func (c *Client) ListVariants(ctx context.Context, cursor string) (*model.VariantPage, error) {
	vars := map[string]any{
		"first":     PageSize,
		"namespace": c.field.Namespace,
		"key":       c.field.Key,
	}
	if cursor != "" {
		vars["after"] = cursor
	}

	var data variantsData
	if err := c.graphql(ctx, variantsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}

	conn := data.ProductVariants
	page := &model.VariantPage{
		Variants:    make([]model.VariantSnapshot, 0, len(conn.Nodes)),
		HasNextPage: conn.PageInfo.HasNextPage,
		EndCursor:   conn.PageInfo.EndCursor,
	}
	for _, n := range conn.Nodes {
		page.Variants = append(page.Variants, variantFromNode(n))
	}
	return page, nil
}

// variantFromNode converts an API node. Unparsable amounts are treated as absent;
// a metafield with an unparsable value keeps its handle so it can be overwritten.
func variantFromNode(n variantNode) model.VariantSnapshot {
	v := model.VariantSnapshot{
		ID:        n.ID,
		SKU:       n.SKU,
		ProductID: n.Product.ID,
		UpdatedAt: n.UpdatedAt,
	}
	if p, ok := model.ParseDecimal(n.Price); ok {
		v.Price = p
	}
	if n.CompareAtPrice != nil {
		if p, ok := model.ParseDecimal(*n.CompareAtPrice); ok {
			v.CompareAtPrice = &p
		}
	}
	if n.Metafield != nil {
		v.SpecialPriceHandle = n.Metafield.ID
		if p, ok := model.ParseDecimal(n.Metafield.Value); ok {
			v.SpecialPrice = &p
		}
	}
	return v
}

// UpdateVariants runs productVariantsBulkUpdate for one product.
func (c *Client) UpdateVariants(ctx context.Context, productID string, updates []model.VariantUpdate) ([]model.UserError, error) {
	vars := map[string]any{
		"productId": productID,
		"variants":  updates,
	}

	var data bulkUpdateData
	if err := c.graphql(ctx, variantsBulkUpdateMutation, vars, &data); err != nil {
		return nil, fmt.Errorf("updating variants of %s: %w", productID, err)
	}
	return toUserErrors(data.ProductVariantsBulkUpdate.UserErrors), nil
}

// DeleteSpecialPrices removes the special-price metafield from each variant.
func (c *Client) DeleteSpecialPrices(ctx context.Context, variantIDs []string) ([]model.UserError, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}

	identifiers := make([]map[string]string, 0, len(variantIDs))
	for _, id := range variantIDs {
		identifiers = append(identifiers, map[string]string{
			"ownerId":   id,
			"namespace": c.field.Namespace,
			"key":       c.field.Key,
		})
	}

	var data metafieldsDeleteData
	if err := c.graphql(ctx, metafieldsDeleteMutation, map[string]any{"metafields": identifiers}, &data); err != nil {
		return nil, fmt.Errorf("deleting special prices: %w", err)
	}
	return toUserErrors(data.MetafieldsDelete.UserErrors), nil
}

// ActivePlanName returns the first active subscription's name, or "" when there is none.
func (c *Client) ActivePlanName(ctx context.Context) (string, error) {
	var data subscriptionData
	if err := c.graphql(ctx, activeSubscriptionsQuery, nil, &data); err != nil {
		return "", fmt.Errorf("reading subscription: %w", err)
	}
	subs := data.CurrentAppInstallation.ActiveSubscriptions
	if len(subs) == 0 {
		return "", nil
	}
	return subs[0].Name, nil
}
