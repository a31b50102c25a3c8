package admission

import (
	"sort"

	"b2b-pricing/internal/model"
)

// ReasonPlanLimit is reported for every addition the plan could not fit.
const ReasonPlanLimit = "plan limit reached"

// Decision is the outcome of admitting one batch.
type Decision struct {
	// Admitted holds every operation that may be executed, in batch order.
	Admitted []model.ClassifiedOperation
	// Deferred holds additions refused by the plan limit, in priority order.
	Deferred []model.ClassifiedOperation

	AvailableSlots int // slots for additions; -1 when unlimited
	Additions      int
	Modifications  int
	Deletions      int
}

// Admit applies the plan limit to a batch of classified operations.
//
// Deletions and modifications are never gated. Deletions in the same batch free
// their slots before additions are counted, so the slots available to additions are
// max(0, limit - currentCount + deletions). Additions compete for those slots in
// ascending SubmittedAt order; rows without a timestamp have priority 0 and ties
// keep batch order.
func Admit(ops []model.ClassifiedOperation, currentCount int, capacity Capacity) *Decision {
	d := &Decision{}

	var additions []int
	for i := range ops {
		switch ops[i].SpecialPriceOp {
		case model.SpecialPriceAddition:
			additions = append(additions, i)
		case model.SpecialPriceModification:
			d.Modifications++
		case model.SpecialPriceDeletion:
			d.Deletions++
		}
	}
	d.Additions = len(additions)

	if capacity.Unlimited {
		d.AvailableSlots = -1
		d.Admitted = append([]model.ClassifiedOperation(nil), ops...)
		return d
	}

	d.AvailableSlots = max(0, capacity.Limit-currentCount+d.Deletions)

	sort.SliceStable(additions, func(a, b int) bool {
		return ops[additions[a]].Row.SubmittedAt < ops[additions[b]].Row.SubmittedAt
	})

	refused := make(map[int]bool)
	for rank, idx := range additions {
		if rank >= d.AvailableSlots {
			refused[idx] = true
			d.Deferred = append(d.Deferred, ops[idx])
		}
	}

	d.Admitted = make([]model.ClassifiedOperation, 0, len(ops)-len(refused))
	for i := range ops {
		if !refused[i] {
			d.Admitted = append(d.Admitted, ops[i])
		}
	}
	return d
}

// AdmittedAdditions is the number of additions that fit.
func (d *Decision) AdmittedAdditions() int {
	return d.Additions - len(d.Deferred)
}
