package admission

import (
	"sort"

	"b2b-pricing/internal/model"
)

// SelectEvictions picks the variants whose special price must be removed after a plan
// downgrade. Only variants that occupy a slot are considered; the least recently updated
// are evicted first until the remaining count fits the capacity.
func SelectEvictions(variants []model.VariantSnapshot, capacity Capacity) []model.VariantSnapshot {
	if capacity.Unlimited {
		return nil
	}

	holders := make([]model.VariantSnapshot, 0, len(variants))
	for _, v := range variants {
		if v.HasSpecialPrice() {
			holders = append(holders, v)
		}
	}

	excess := len(holders) - capacity.Limit
	if excess <= 0 {
		return nil
	}

	sort.SliceStable(holders, func(i, j int) bool {
		return holders[i].UpdatedAt.Before(holders[j].UpdatedAt)
	})
	return holders[:excess]
}
