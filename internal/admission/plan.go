// Package admission decides how many variants may carry a special price under the merchant's plan.
package admission

import (
	"fmt"
	"strings"
)

// Capacity is the number of variants a plan allows to carry a special price.
type Capacity struct {
	Limit     int
	Unlimited bool
}

// Unlimited is the capacity of plans without a cap.
var Unlimited = Capacity{Unlimited: true}

// Limited returns a capped capacity.
func Limited(n int) Capacity {
	return Capacity{Limit: n}
}

func (c Capacity) String() string {
	if c.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", c.Limit)
}

// DefaultCapacity applies to shops without a subscription and to unknown plans.
const DefaultCapacity = 5

// planTiers is matched in order against the lower-cased plan name.
var planTiers = []struct {
	contains string
	capacity Capacity
}{
	{"startup", Limited(10)},
	{"growth", Limited(15)},
	{"expand", Unlimited},
}

// CapacityForPlan maps a subscription name to its capacity.
// Matching is by substring so that "Growth (annual)" and "growth" resolve the same.
func CapacityForPlan(planName string) Capacity {
	name := strings.ToLower(strings.TrimSpace(planName))
	if name == "" {
		return Limited(DefaultCapacity)
	}
	for _, tier := range planTiers {
		if strings.Contains(name, tier.contains) {
			return tier.capacity
		}
	}
	return Limited(DefaultCapacity)
}
