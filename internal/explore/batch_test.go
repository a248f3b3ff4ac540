package explore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"navscout/internal/types"
)

func TestMain(m *testing.M) {
	// opencensus (a transitive dependency of the oracle's genai client)
	// starts a background worker in its package init; it is not a leak
	// from the code under test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func okRecord(site string) *types.RunRecord {
	return &types.RunRecord{ID: site, Site: site, Success: true}
}

func TestRunBatchPreservesOrder(t *testing.T) {
	sites := []string{"https://a.example", "https://b.example", "https://c.example"}
	recs := RunBatch(context.Background(), sites, 2, func(_ context.Context, site string) *types.RunRecord {
		return okRecord(site)
	}, nil)

	require.Len(t, recs, len(sites))
	for i, site := range sites {
		assert.Equal(t, site, recs[i].Site)
		assert.True(t, recs[i].Success)
	}
}

func TestRunBatchContainsPanic(t *testing.T) {
	sites := []string{"https://a.example", "https://boom.example", "https://c.example"}
	recs := RunBatch(context.Background(), sites, 1, func(_ context.Context, site string) *types.RunRecord {
		if site == "https://boom.example" {
			panic("browser process died")
		}
		return okRecord(site)
	}, nil)

	require.Len(t, recs, 3)
	assert.True(t, recs[0].Success)
	assert.False(t, recs[1].Success)
	assert.Equal(t, ReasonBrowserFailed, recs[1].Reason)
	assert.NotEmpty(t, recs[1].ID)
	assert.True(t, recs[2].Success, "sites after the panic still run")
}

func TestRunBatchHonorsConcurrencyLimit(t *testing.T) {
	var active, peak atomic.Int32
	var mu sync.Mutex
	sites := []string{"a", "b", "c", "d", "e", "f"}

	RunBatch(context.Background(), sites, 2, func(_ context.Context, site string) *types.RunRecord {
		n := active.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return okRecord(site)
	}, nil)

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunBatchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recs := RunBatch(ctx, []string{"a", "b"}, 2, func(ctx context.Context, site string) *types.RunRecord {
		t.Errorf("runner invoked for %s after cancellation", site)
		return okRecord(site)
	}, nil)

	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.False(t, rec.Success)
		assert.Equal(t, ReasonCancelled, rec.Reason)
	}
}

func TestRunBatchDefaultConcurrency(t *testing.T) {
	recs := RunBatch(context.Background(), []string{"a"}, 0, func(_ context.Context, site string) *types.RunRecord {
		return okRecord(site)
	}, nil)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Success)
}
