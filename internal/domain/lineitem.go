package domain

import (
	"bytes"
	"sort"
)

// MaxQuantityPerItem caps a single line item in one checkout attempt.
const MaxQuantityPerItem = 10

// ValidateLineItems rejects empty carts and out-of-range quantities before
// any inventory is touched.
func ValidateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return ErrInvalidInput
	}
	for _, item := range items {
		if item.Quantity < 1 || item.Quantity > MaxQuantityPerItem {
			return ErrInvalidInput
		}
	}
	return nil
}

// SortLineItems orders items by ticket type id so concurrent checkouts that
// touch overlapping sets decrement in the same order.
func SortLineItems(items []LineItem) []LineItem {
	sorted := make([]LineItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].TicketTypeID[:], sorted[j].TicketTypeID[:]) < 0
	})
	return sorted
}
