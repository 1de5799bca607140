package inventory

import "github.com/shopspring/decimal"

const CollectionName = "inventory_items"

// DefaultCategory groups items that were saved without a category.
const DefaultCategory = "Sem Categoria"

// Item is one tracked inventory record. Optional fields are pointers so that
// unset values are omitted from storage rather than written as zeroes.
// ID is the storage key, never part of the document body.
type Item struct {
	ID              string           `json:"-"`
	Name            string           `json:"name"`
	Quantity        int              `json:"quantity"`
	Category        *string          `json:"category,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Location        *string          `json:"location,omitempty"`
	CustomCreatedAt *string          `json:"custom_created_at,omitempty"`
	LastRemovedAt   *string          `json:"last_removed_at,omitempty"`
}

// CategoryOrDefault is the grouping key used by listings and suggestions.
func (it Item) CategoryOrDefault() string {
	if it.Category == nil || *it.Category == "" {
		return DefaultCategory
	}
	return *it.Category
}
