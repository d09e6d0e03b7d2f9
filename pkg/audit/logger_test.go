package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
	"github.com/aegislabs/aegis-gateway/pkg/storage"
)

func TestRecordPersistsAsynchronously(t *testing.T) {
	store := storage.NewMemoryStore()
	l := New(store, nil, Options{})

	l.Record(domain.AuditRecord{UserInput: "hi", Action: domain.ActionAllow})
	l.Close()

	records, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ActionAllow, records[0].Action)
}

// failingStore always rejects inserts.
type failingStore struct{}

func (failingStore) Insert(context.Context, *domain.AuditRecord) error {
	return errors.New("disk full")
}
func (failingStore) ListRecent(context.Context, int) ([]domain.AuditRecord, error) {
	return nil, nil
}
func (failingStore) Stats(context.Context) (domain.Stats, error) {
	return domain.Stats{}, nil
}

func TestPersistenceFailureIsCountedNotPropagated(t *testing.T) {
	failures := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_audit_failures"})
	l := New(failingStore{}, nil, Options{Failures: failures})

	l.Record(domain.AuditRecord{Action: domain.ActionBlockPrompt})
	l.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(failures))
}

// slowStore blocks inserts until released.
type slowStore struct {
	storage.MemoryStore
	release chan struct{}
}

func (s *slowStore) Insert(ctx context.Context, rec *domain.AuditRecord) error {
	<-s.release
	return s.MemoryStore.Insert(ctx, rec)
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	store := &slowStore{release: make(chan struct{})}
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_audit_dropped"})
	l := New(store, nil, Options{QueueSize: 1, Dropped: dropped})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// First record occupies the worker, second fills the queue, the
		// rest must be dropped without blocking the caller.
		for i := 0; i < 5; i++ {
			l.Record(domain.AuditRecord{Action: domain.ActionAllow})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(store.release)
	l.Close()
	assert.GreaterOrEqual(t, testutil.ToFloat64(dropped), 1.0)
}
