package reconcile

import (
	"context"
	"fmt"

	"b2b-pricing/internal/adapter"
	"b2b-pricing/internal/model"
)

// maxSnapshotPages bounds pagination against a platform that keeps returning hasNextPage.
const maxSnapshotPages = 10000

// Snapshot is the live catalog indexed for one run. It is never cached across runs.
type Snapshot struct {
	variants     []model.VariantSnapshot
	bySKU        map[string]int
	byID         map[string]int
	specialCount int
}

// NewSnapshot indexes variants by normalized SKU and by id.
// Variants without a SKU are reachable by id only. When two variants share a
// SKU the first one listed wins.
func NewSnapshot(variants []model.VariantSnapshot) *Snapshot {
	s := &Snapshot{
		variants: variants,
		bySKU:    make(map[string]int, len(variants)),
		byID:     make(map[string]int, len(variants)),
	}
	for i := range variants {
		v := &variants[i]
		s.byID[v.ID] = i
		if sku := model.NormalizeSKU(v.SKU); sku != "" {
			if _, dup := s.bySKU[sku]; !dup {
				s.bySKU[sku] = i
			}
		}
		if v.HasSpecialPrice() {
			s.specialCount++
		}
	}
	return s
}

// LoadSnapshot pages through the whole catalog. Any page error aborts the load.
func LoadSnapshot(ctx context.Context, catalog adapter.Catalog) (*Snapshot, error) {
	var (
		variants []model.VariantSnapshot
		cursor   string
	)
	for page := 0; ; page++ {
		if page >= maxSnapshotPages {
			return nil, fmt.Errorf("catalog has more than %d pages", maxSnapshotPages)
		}

		result, err := catalog.ListVariants(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("listing variants (page %d): %w", page+1, err)
		}
		variants = append(variants, result.Variants...)

		if !result.HasNextPage {
			break
		}
		if result.EndCursor == "" || result.EndCursor == cursor {
			return nil, fmt.Errorf("listing variants (page %d): next page without a new cursor", page+1)
		}
		cursor = result.EndCursor
	}
	return NewSnapshot(variants), nil
}

// BySKU looks up a variant by SKU.
func (s *Snapshot) BySKU(sku string) (*model.VariantSnapshot, bool) {
	i, ok := s.bySKU[model.NormalizeSKU(sku)]
	if !ok {
		return nil, false
	}
	return &s.variants[i], true
}

// ByID looks up a variant by id.
func (s *Snapshot) ByID(id string) (*model.VariantSnapshot, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.variants[i], true
}

// SpecialPriceCount is the number of variants that currently occupy a plan slot.
func (s *Snapshot) SpecialPriceCount() int {
	return s.specialCount
}

// Variants returns every variant in listing order.
func (s *Snapshot) Variants() []model.VariantSnapshot {
	return s.variants
}

// Len returns the number of variants.
func (s *Snapshot) Len() int {
	return len(s.variants)
}
