package reconcile

import (
	"context"

	"b2b-pricing/internal/admission"
	"b2b-pricing/internal/model"
)

// evictionChunk is the number of metafields removed per call.
const evictionChunk = 25

// EnforceResult reports a plan-limit enforcement pass.
type EnforceResult struct {
	Plan     string   `json:"plan"`
	Capacity string   `json:"capacity"`
	Holders  int      `json:"holders"`
	Evicted  []string `json:"evicted"`
	Errors   []string `json:"errors"`
}

// EnforcePlan brings the number of variants carrying a special price within the
// capacity of planName, evicting the least recently updated variants first.
// It is run when the merchant's subscription changes.
func (r *Reconciler) EnforcePlan(ctx context.Context, shop model.ShopContext, planName string) (*EnforceResult, error) {
	capacity := admission.CapacityForPlan(planName)
	log := r.logger.With("shop", shop.Shop, "plan", planName, "capacity", capacity.String())

	result := &EnforceResult{
		Plan:     planName,
		Capacity: capacity.String(),
		Evicted:  []string{},
		Errors:   []string{},
	}

	snapshot, err := LoadSnapshot(ctx, r.gateway)
	if err != nil {
		log.Error("snapshot load failed", "error", err)
		return nil, model.NewSnapshotError(err)
	}
	result.Holders = snapshot.SpecialPriceCount()

	evict := admission.SelectEvictions(snapshot.Variants(), capacity)
	if len(evict) == 0 {
		log.Info("plan limit satisfied", "holders", result.Holders)
		return result, nil
	}

	for start := 0; start < len(evict); start += evictionChunk {
		end := min(start+evictionChunk, len(evict))
		ids := make([]string, 0, end-start)
		for _, v := range evict[start:end] {
			ids = append(ids, v.ID)
		}

		userErrors, err := r.gateway.DeleteSpecialPrices(ctx, ids)
		if err != nil {
			log.Error("special price eviction failed", "variants", len(ids), "error", err)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		for _, ue := range userErrors {
			result.Errors = append(result.Errors, ue.Message)
		}
		result.Evicted = append(result.Evicted, ids...)
	}

	log.Info("plan limit enforced", "holders", result.Holders, "evicted", len(result.Evicted), "errors", len(result.Errors))
	return result, nil
}
