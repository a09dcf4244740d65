package decision

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
)

// trafficScale is the bucketing resolution: bucket values span [1, 10000],
// giving 0.01% granularity for integer-percent variation weights.
// Fractional weights are not supported; changing the scale would break
// portability of existing assignments.
const trafficScale = 10000

// BucketValue maps a (visitor, experiment) pair onto [1, trafficScale].
//
// The hash is MurmurHash3 x86 32-bit with seed 0 over "endUserID:expID".
// The hash family and seed are fixed: any reimplementation must produce
// identical bucket values for the same experiment data, which is what makes
// bucketing sticky even before persistence completes.
func BucketValue(endUserID string, experimentID int64) int {
	key := fmt.Sprintf("%s:%d", endUserID, experimentID)
	h := int64(int32(murmur3.Sum32([]byte(key))))
	if h < 0 {
		h = -h
	}
	return int(h%trafficScale) + 1
}

// AssignVariation deterministically selects a variation for the visitor
// according to the experiment's traffic allocation. Returns nil when the
// bucket value falls past the cumulative allocation — weights that don't
// cover the full scale leave an unreachable remainder, which means "no
// decision for this experiment", not an error.
func AssignVariation(endUserID string, exp *domain.Experiment) *domain.Variation {
	return variationForBucket(exp.Variations, BucketValue(endUserID, exp.ID))
}

// variationForBucket walks variations in stored order, accumulating each
// one's sub-range (traffic percent * 100 on the scale), and returns the
// first whose cumulative upper bound reaches the bucket value.
func variationForBucket(variations []domain.Variation, bucketVal int) *domain.Variation {
	cumulative := 0
	for i := range variations {
		cumulative += variations[i].Traffic * 100
		if bucketVal <= cumulative {
			return &variations[i]
		}
	}
	return nil
}
