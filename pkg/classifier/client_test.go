package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

func TestScoreRanksDescending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.CheckResponse)
		assert.Len(t, req.Messages, 1)

		json.NewEncoder(w).Encode(scoreResponse{Scores: map[string]float64{
			"dw": 0.91,
			"pc": 0.12,
			"mc": 0.55,
		}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	scores, err := c.Score(context.Background(), domain.Conversation{
		{Role: domain.RoleUser, Content: "hello"},
	}, false)
	require.NoError(t, err)

	require.Len(t, scores, 3)
	assert.Equal(t, "dw", scores[0].Category)
	assert.Equal(t, "mc", scores[1].Category)
	assert.Equal(t, "pc", scores[2].Category)
}

func TestScoreFailureIsClassifierUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	_, err := c.Score(context.Background(), nil, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClassifierUnavailable)
}

func TestScoreGateSerializesCalls(t *testing.T) {
	var inFlight, maxSeen int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			seen := atomic.LoadInt64(&maxSeen)
			if n <= seen || atomic.CompareAndSwapInt64(&maxSeen, seen, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		json.NewEncoder(w).Encode(scoreResponse{Scores: map[string]float64{"dw": 0.1}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxConcurrent: 1}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Score(context.Background(), nil, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&maxSeen), "gate must serialize backend access")
}

func TestScoreGateRespectsContext(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0", MaxConcurrent: 1}, nil)
	c.gate <- struct{}{} // occupy the only slot

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Score(ctx, nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRankDeterministicTieBreak(t *testing.T) {
	in := map[string]float64{"pc": 0.5, "dw": 0.5, "ha": 0.5}

	first := Rank(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Rank(in))
	}
	assert.Equal(t, "dw", first[0].Category)
	assert.Equal(t, "ha", first[1].Category)
	assert.Equal(t, "pc", first[2].Category)
}
