package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidItem       = errors.New("cart item is invalid")
	ErrMalformedSnapshot = errors.New("malformed cart snapshot")
)

// Product is the externally supplied record a cart line is built from.
type Product struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
}

// CartItem is one product line in the cart. Quantity is at least 1 while the
// item is part of a cart.
type CartItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Totals struct {
	Items int     `json:"total_items"`
	Price float64 `json:"total_price"`
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidItem
	}
	return nil
}

// NewCartItem starts a cart line for p with quantity 1.
func NewCartItem(p Product) CartItem {
	return CartItem{
		ID:       p.ID,
		Title:    p.Title,
		ImageURL: p.ImageURL,
		Price:    p.Price,
		Quantity: 1,
	}
}

// FindItem returns the index of the item with the given id, or -1.
func FindItem(items []CartItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// CloneItems copies items so the caller can mutate the result freely.
// A nil input yields an empty, non-nil slice.
func CloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

// RemoveItem drops the element at idx preserving order. The input is not modified.
func RemoveItem(items []CartItem, idx int) []CartItem {
	if idx < 0 || idx >= len(items) {
		return CloneItems(items)
	}
	out := make([]CartItem, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...)
}

func ComputeTotals(items []CartItem) Totals {
	var t Totals
	for _, it := range items {
		t.Items += it.Quantity
		t.Price += it.Price * float64(it.Quantity)
	}
	return t
}
