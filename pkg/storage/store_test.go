package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

type store interface {
	domain.PolicyStore
	domain.AuditStore
}

// Both backends must satisfy identical semantics, so every case runs
// against SQLite and the memory store.
func eachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "gateway.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func seedCatalog() []domain.RiskCategory {
	return []domain.RiskCategory{
		{Code: "dw", Name: "Dangerous Weapons"},
		{Code: "pc", Name: "Pornographic Contraband"},
	}
}

func findByCategory(t *testing.T, policies []domain.Policy, category string) domain.Policy {
	t.Helper()
	for _, p := range policies {
		if p.Category == category {
			return p
		}
	}
	t.Fatalf("category %s not found", category)
	return domain.Policy{}
}

func TestSeedDefaults(t *testing.T) {
	eachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		require.NoError(t, s.SeedDefaults(ctx, seedCatalog()))

		policies, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, policies, 2)

		dw := findByCategory(t, policies, "dw")
		assert.Equal(t, "Dangerous Weapons", dw.Name)
		assert.Equal(t, 0.5, dw.Threshold)
		assert.True(t, dw.Enabled)
	})
}

// Seeding twice with an admin update in between must keep the customized
// threshold: seeding merges, it never resets.
func TestSeedDefaultsIdempotentAcrossUpdate(t *testing.T) {
	eachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		require.NoError(t, s.SeedDefaults(ctx, seedCatalog()))

		policies, err := s.List(ctx)
		require.NoError(t, err)
		dw := findByCategory(t, policies, "dw")

		_, err = s.Update(ctx, dw.ID, 0.9, true)
		require.NoError(t, err)

		require.NoError(t, s.SeedDefaults(ctx, seedCatalog()))

		policies, err = s.List(ctx)
		require.NoError(t, err)
		require.Len(t, policies, 2)
		assert.Equal(t, 0.9, findByCategory(t, policies, "dw").Threshold)
	})
}

func TestUpdateSetsBothFields(t *testing.T) {
	eachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		require.NoError(t, s.SeedDefaults(ctx, seedCatalog()))

		policies, err := s.List(ctx)
		require.NoError(t, err)
		dw := findByCategory(t, policies, "dw")

		updated, err := s.Update(ctx, dw.ID, 0.75, false)
		require.NoError(t, err)
		assert.Equal(t, 0.75, updated.Threshold)
		assert.False(t, updated.Enabled)
		assert.Equal(t, "dw", updated.Category)
	})
}

func TestUpdateUnknownIDIsNotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s store) {
		_, err := s.Update(context.Background(), 9999, 0.5, true)
		assert.ErrorIs(t, err, domain.ErrPolicyNotFound)
	})
}

func TestListActiveExcludesDisabled(t *testing.T) {
	eachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		require.NoError(t, s.SeedDefaults(ctx, seedCatalog()))

		policies, err := s.List(ctx)
		require.NoError(t, err)
		dw := findByCategory(t, policies, "dw")
		_, err = s.Update(ctx, dw.ID, 0.5, false)
		require.NoError(t, err)

		active, err := s.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "pc", active[0].Category)
	})
}

func TestAuditInsertAndListRecent(t *testing.T) {
	eachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		for _, action := range []domain.Action{
			domain.ActionAllow, domain.ActionBlockPrompt, domain.ActionAllow,
		} {
			rec := &domain.AuditRecord{
				UserInput: "input for " + string(action),
				Action:    action,
				LatencyMs: 12.5,
			}
			require.NoError(t, s.Insert(ctx, rec))
			assert.NotZero(t, rec.ID)
			assert.False(t, rec.Timestamp.IsZero())
		}

		records, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		// Newest first.
		assert.Equal(t, domain.ActionAllow, records[0].Action)
		assert.Equal(t, "input for allow", records[0].UserInput)
	})
}

func TestStats(t *testing.T) {
	eachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Stats{}, stats, "empty table has zero block rate")

		for _, action := range []domain.Action{
			domain.ActionAllow,
			domain.ActionBlockPrompt,
			domain.ActionBlockResponse,
			domain.ActionBlockResponseStream,
		} {
			require.NoError(t, s.Insert(ctx, &domain.AuditRecord{Action: action}))
		}

		stats, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.TotalRequests)
		assert.Equal(t, int64(3), stats.BlockedRequests)
		assert.InDelta(t, 0.75, stats.BlockRate, 1e-9)
	})
}
