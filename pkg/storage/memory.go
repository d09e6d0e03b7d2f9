package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

// MemoryStore is an in-memory implementation of domain.PolicyStore and
// domain.AuditStore. It mirrors the SQLite semantics, including seeding
// idempotency, and is used by tests and database-less deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	policies []domain.Policy
	records  []domain.AuditRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// ListActive returns all enabled policies.
func (s *MemoryStore) ListActive(_ context.Context) ([]domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

// List returns every policy.
func (s *MemoryStore) List(_ context.Context) ([]domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Policy(nil), s.policies...), nil
}

// Update sets threshold and enabled together for one policy.
func (s *MemoryStore) Update(_ context.Context, id int64, threshold float64, enabled bool) (*domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.policies {
		if s.policies[i].ID == id {
			s.policies[i].Threshold = threshold
			s.policies[i].Enabled = enabled
			s.policies[i].UpdatedAt = time.Now().UTC()
			p := s.policies[i]
			return &p, nil
		}
	}
	return nil, domain.ErrPolicyNotFound
}

// SeedDefaults inserts defaults only for categories not already present.
func (s *MemoryStore) SeedDefaults(_ context.Context, catalog []domain.RiskCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.policies))
	for _, p := range s.policies {
		existing[p.Category] = struct{}{}
	}

	now := time.Now().UTC()
	for _, entry := range catalog {
		if _, ok := existing[entry.Code]; ok {
			continue
		}
		s.policies = append(s.policies, domain.Policy{
			ID:        s.nextID,
			Category:  entry.Code,
			Name:      entry.Name,
			Threshold: 0.5,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		s.nextID++
	}
	return nil
}

// Insert appends one audit record.
func (s *MemoryStore) Insert(_ context.Context, rec *domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	stored := *rec
	stored.ID = int64(len(s.records) + 1)
	rec.ID = stored.ID
	s.records = append(s.records, stored)
	return nil
}

// ListRecent returns the most recent records, newest first.
func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := append([]domain.AuditRecord(nil), s.records...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats computes the dashboard counters.
func (s *MemoryStore) Stats(_ context.Context) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.Stats{TotalRequests: int64(len(s.records))}
	for _, r := range s.records {
		if r.Action != domain.ActionAllow {
			stats.BlockedRequests++
		}
	}
	if stats.TotalRequests > 0 {
		stats.BlockRate = float64(stats.BlockedRequests) / float64(stats.TotalRequests)
	}
	return stats, nil
}
