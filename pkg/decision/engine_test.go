package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

func policy(category string, threshold float64, enabled bool) domain.Policy {
	return domain.Policy{Category: category, Name: category, Threshold: threshold, Enabled: enabled}
}

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name     string
		scores   []domain.RiskScore
		policies []domain.Policy
		want     domain.Decision
	}{
		{
			name:     "no scores",
			scores:   nil,
			policies: []domain.Policy{policy("dw", 0.5, true)},
			want:     domain.Safe,
		},
		{
			name:     "no policies",
			scores:   []domain.RiskScore{{Category: "dw", Score: 1.0}},
			policies: nil,
			want:     domain.Safe,
		},
		{
			name:     "score below threshold",
			scores:   []domain.RiskScore{{Category: "dw", Score: 0.49}},
			policies: []domain.Policy{policy("dw", 0.5, true)},
			want:     domain.Safe,
		},
		{
			name:     "score equal to threshold blocks",
			scores:   []domain.RiskScore{{Category: "dw", Score: 0.5}},
			policies: []domain.Policy{policy("dw", 0.5, true)},
			want:     domain.Block("dw", 0.5),
		},
		{
			name:     "disabled policy never blocks",
			scores:   []domain.RiskScore{{Category: "dw", Score: 1.0}},
			policies: []domain.Policy{policy("dw", 0.0, false)},
			want:     domain.Safe,
		},
		{
			name:     "category without policy is ignored",
			scores:   []domain.RiskScore{{Category: "zz", Score: 1.0}},
			policies: []domain.Policy{policy("dw", 0.5, true)},
			want:     domain.Safe,
		},
		{
			name: "first breach in scan order wins over higher score later",
			scores: []domain.RiskScore{
				{Category: "dw", Score: 0.9},
				{Category: "pc", Score: 0.95},
			},
			policies: []domain.Policy{
				policy("dw", 0.5, true),
				policy("pc", 0.99, true),
			},
			want: domain.Block("dw", 0.9),
		},
		{
			name: "earlier non-breaching category is skipped",
			scores: []domain.RiskScore{
				{Category: "pc", Score: 0.95},
				{Category: "dw", Score: 0.9},
			},
			policies: []domain.Policy{
				policy("pc", 0.99, true),
				policy("dw", 0.5, true),
			},
			want: domain.Block("dw", 0.9),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.scores, tt.policies)
			assert.Equal(t, tt.want, got)
		})
	}
}

// A disabled policy can never produce a block for its category, for any
// score in [0,1].
func TestDisabledPolicyNeverBlocksProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		score := rapid.Float64Range(0, 1).Draw(t, "score")
		threshold := rapid.Float64Range(0, 1).Draw(t, "threshold")

		got := Decide(
			[]domain.RiskScore{{Category: "dw", Score: score}},
			[]domain.Policy{policy("dw", threshold, false)},
		)
		assert.Equal(t, domain.Safe, got)
	})
}

// If every enabled policy's threshold strictly exceeds its category's score,
// the decision is Safe.
func TestAllBelowThresholdIsSafeProperty(t *testing.T) {
	categories := []string{"dw", "pc", "mc", "ha", "pp"}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, len(categories)).Draw(t, "n")

		scores := make([]domain.RiskScore, 0, n)
		policies := make([]domain.Policy, 0, n)
		for i := 0; i < n; i++ {
			threshold := rapid.Float64Range(0.01, 1).Draw(t, "threshold")
			score := rapid.Float64Range(0, threshold-0.001).Draw(t, "score")
			scores = append(scores, domain.RiskScore{Category: categories[i], Score: score})
			policies = append(policies, policy(categories[i], threshold, true))
		}

		assert.Equal(t, domain.Safe, Decide(scores, policies))
	})
}

func TestSentinelFormat(t *testing.T) {
	d := domain.Block("dw", 0.9123)
	assert.Equal(t, "BLOCKED:dw:0.9123", d.Sentinel())

	d = domain.Block("pc", 0.91)
	assert.Equal(t, "BLOCKED:pc:0.9100", d.Sentinel())
}
