package catalog

import (
	"fmt"
	"strings"
)

// Item is one storefront listing. Items are immutable value records joined
// across snapshots solely by ID; everything else is compared structurally.
//
// The schema is a fixed set of named attributes (see itemAttrs in classify.go
// for the per-attribute comparison classes).
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Stock       *int64    `json:"stock,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PageURL     string    `json:"page_url,omitempty"`
	Variants    []Variant `json:"variants,omitempty"`
}

// Variant is one purchase option of an item. The variant list is ordered;
// reordering counts as a structural change.
type Variant struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock *int64 `json:"stock,omitempty"`
}

// Equal reports deep structural equality over every attribute, including the
// importance-ignored ones. This is the comparison the diff engine uses.
func (it Item) Equal(other Item) bool {
	if it.ID != other.ID {
		return false
	}
	for _, a := range itemAttrs {
		if !a.equal(it, other) {
			return false
		}
	}
	return true
}

func (v Variant) Equal(other Variant) bool {
	return v.Name == other.Name && v.Price == other.Price && stockEqual(v.Stock, other.Stock)
}

func variantsEqual(a, b []Variant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func stockEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Snapshot is an ordered collection of items, uniquely keyed by ID.
type Snapshot []Item

// Equal is order-sensitive: the same items in a different order are not equal
// (the diff of such snapshots is still empty, which is why the two no-change
// paths log differently).
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !s[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Validate rejects snapshots that cannot serve as a diff side: items with
// empty ids, duplicate ids, or negative prices.
func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, it := range s {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			return fmt.Errorf("item %d: empty id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("item %d: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		if it.Price < 0 {
			return fmt.Errorf("item %q: negative price %d", id, it.Price)
		}
		for j, v := range it.Variants {
			if v.Price < 0 {
				return fmt.Errorf("item %q: variant %d: negative price %d", id, j, v.Price)
			}
		}
	}
	return nil
}
