package reconcile

import (
	"strings"

	"b2b-pricing/internal/model"
)

// Row-level reasons reported to the merchant.
const (
	ReasonDuplicateSKU     = "duplicate SKU in file"
	ReasonNotFound         = "variant not found"
	ReasonInvalidPrice     = "invalid Price value"
	ReasonInvalidCompareAt = "invalid CompareAt Price value"
	ReasonUnchanged        = "prices already match"
)

// headerSKU is what a header row repeated inside the data looks like.
const headerSKU = "SKU"

// Outcome classifies what a row resolved to.
type Outcome int

const (
	// OutcomeIgnored rows carry no SKU and are dropped without a report entry.
	OutcomeIgnored Outcome = iota
	// OutcomeFailed rows are rejected with a reason; the batch continues.
	OutcomeFailed
	// OutcomeUnchanged rows already match the catalog.
	OutcomeUnchanged
	// OutcomeChanged rows produce an operation.
	OutcomeChanged
)

// Classification is the result for one row.
type Classification struct {
	Outcome   Outcome
	Reason    string
	VariantID string
	Operation *model.ClassifiedOperation
}

// Classifier diffs desired rows against a snapshot.
// A Classifier is scoped to one batch: it remembers which SKUs it has already seen.
type Classifier struct {
	snapshot *Snapshot
	seen     map[string]bool
}

// NewClassifier creates a classifier for one batch against snapshot.
func NewClassifier(snapshot *Snapshot) *Classifier {
	return &Classifier{snapshot: snapshot, seen: make(map[string]bool)}
}

// Classify resolves one row.
//
// Rules, in order:
//  1. Empty SKU, or the literal header "SKU": ignored.
//  2. SKU already seen in this batch: failed. The first sighting registers the SKU
//     whatever its own outcome.
//  3. SKU not in the catalog: failed.
//  4. Unparsable price or compare-at: failed, nothing from the row is applied.
//  5. Special price: "" and "null" clear, a number sets, anything else is ignored.
//  6. Nothing differs by more than the epsilon: unchanged.
func (c *Classifier) Classify(row model.DesiredRow) Classification {
	sku := model.NormalizeSKU(row.SKU)
	if sku == "" || strings.EqualFold(sku, headerSKU) {
		return Classification{Outcome: OutcomeIgnored}
	}

	if c.seen[sku] {
		return Classification{Outcome: OutcomeFailed, Reason: ReasonDuplicateSKU}
	}
	c.seen[sku] = true

	variant, ok := c.snapshot.BySKU(sku)
	if !ok {
		return Classification{Outcome: OutcomeFailed, Reason: ReasonNotFound}
	}

	price, ok := parsePriceIntent(row.Price)
	if !ok {
		return Classification{Outcome: OutcomeFailed, Reason: ReasonInvalidPrice, VariantID: variant.ID}
	}
	compareAt, ok := parseCompareAtIntent(row.CompareAtPrice)
	if !ok {
		return Classification{Outcome: OutcomeFailed, Reason: ReasonInvalidCompareAt, VariantID: variant.ID}
	}
	special := parseSpecialPriceIntent(row.SpecialPrice)

	op := &model.ClassifiedOperation{
		Row:                row,
		VariantID:          variant.ID,
		ProductID:          variant.ProductID,
		SpecialPriceOp:     model.SpecialPriceNone,
		SpecialPriceHandle: variant.SpecialPriceHandle,
	}

	if price.set && model.PricesDiffer(price.value, variant.Price) {
		op.PriceChanged = true
		op.NewPrice = price.value
	}

	switch {
	case compareAt.clear:
		if variant.CompareAtPrice != nil {
			op.CompareAtChanged = true
		}
	case compareAt.set:
		if variant.CompareAtPrice == nil || model.PricesDiffer(compareAt.value, *variant.CompareAtPrice) {
			op.CompareAtChanged = true
			v := compareAt.value
			op.NewCompareAt = &v
		}
	}

	if special.clear || special.set {
		target := special.value // zero when clearing
		var changed bool
		if special.clear {
			changed = variant.SpecialPrice != nil && model.PricesDiffer(*variant.SpecialPrice, 0)
		} else {
			changed = variant.SpecialPrice == nil || model.PricesDiffer(*variant.SpecialPrice, target)
		}
		if changed {
			op.SpecialPriceChanged = true
			op.NewSpecialPrice = target
			op.SpecialPriceOp = specialPriceOp(variant.HasSpecialPrice(), special.set && target > 0)
		}
	}

	if !op.PriceChanged && !op.CompareAtChanged && !op.SpecialPriceChanged {
		return Classification{Outcome: OutcomeUnchanged, Reason: ReasonUnchanged, VariantID: variant.ID}
	}
	return Classification{Outcome: OutcomeChanged, VariantID: variant.ID, Operation: op}
}

// specialPriceOp places a changed special price in the plan-limited set.
func specialPriceOp(oldSet, newSet bool) model.SpecialPriceOp {
	switch {
	case !oldSet && newSet:
		return model.SpecialPriceAddition
	case oldSet && !newSet:
		return model.SpecialPriceDeletion
	case oldSet && newSet:
		return model.SpecialPriceModification
	default:
		return model.SpecialPriceNone
	}
}

// intent is what a raw cell asks for.
type intent struct {
	set   bool
	clear bool
	value float64
}

// parsePriceIntent: absent or blank means no change. Price cannot be cleared.
func parsePriceIntent(raw *string) (intent, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return intent{}, true
	}
	v, ok := model.ParseDecimal(*raw)
	if !ok {
		return intent{}, false
	}
	return intent{set: true, value: v}, true
}

// parseCompareAtIntent: absent or blank means no change, "null" clears.
func parseCompareAtIntent(raw *string) (intent, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return intent{}, true
	}
	if model.IsClearToken(*raw) {
		return intent{clear: true}, true
	}
	v, ok := model.ParseDecimal(*raw)
	if !ok {
		return intent{}, false
	}
	return intent{set: true, value: v}, true
}

// parseSpecialPriceIntent: absent means no change, blank or "null" clears,
// and an unparsable value is ignored rather than failing the row.
func parseSpecialPriceIntent(raw *string) intent {
	if raw == nil {
		return intent{}
	}
	if strings.TrimSpace(*raw) == "" || model.IsClearToken(*raw) {
		return intent{clear: true}
	}
	v, ok := model.ParseDecimal(*raw)
	if !ok {
		return intent{}
	}
	return intent{set: true, value: v}
}
