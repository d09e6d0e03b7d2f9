// Package decision applies category policies to classifier score lists.
package decision

import "github.com/aegislabs/aegis-gateway/pkg/domain"

// Decide evaluates an ordered score list against the given policy set.
//
// Scores are scanned in the order the classifier ranked them (descending
// confidence). The first category in scan order whose score meets or exceeds
// its own enabled policy's threshold wins; the scan is never re-sorted by
// score, so the blocked category is not necessarily the globally
// highest-scoring one. Categories without an enabled policy are ignored.
//
// Decide is a pure function of its inputs.
func Decide(scores []domain.RiskScore, policies []domain.Policy) domain.Decision {
	if len(scores) == 0 || len(policies) == 0 {
		return domain.Safe
	}

	enabled := make(map[string]domain.Policy, len(policies))
	for _, p := range policies {
		if p.Enabled {
			enabled[p.Category] = p
		}
	}

	for _, s := range scores {
		p, ok := enabled[s.Category]
		if !ok {
			continue
		}
		if s.Score >= p.Threshold {
			return domain.Block(s.Category, s.Score)
		}
	}
	return domain.Safe
}
