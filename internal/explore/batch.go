package explore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"navscout/internal/types"
)

// DefaultConcurrency bounds parallel site runs, respecting target-site
// load and oracle rate limits.
const DefaultConcurrency = 3

// SiteRunner executes one site's discovery end to end. Implementations
// own all per-run state; runs share nothing mutable.
type SiteRunner func(ctx context.Context, site string) *types.RunRecord

// RunBatch discovers many sites in parallel with a bounded worker count.
// One site's failure (even a panic) never sinks the batch: the slot is
// filled with a failed record and the rest proceed. Results align with
// the input order.
func RunBatch(ctx context.Context, sites []string, concurrency int, run SiteRunner, log *zap.Logger) []*types.RunRecord {
	if log == nil {
		log = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]*types.RunRecord, len(sites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, site := range sites {
		g.Go(func() error {
			results[i] = runContained(gctx, site, run, log)
			return nil
		})
	}
	_ = g.Wait()

	for i, site := range sites {
		if results[i] == nil {
			results[i] = failedRecord(site, ReasonCancelled)
		}
	}
	return results
}

func runContained(ctx context.Context, site string, run SiteRunner, log *zap.Logger) (rec *types.RunRecord) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("site run panicked", zap.String("site", site), zap.Any("panic", r))
			rec = failedRecord(site, ReasonBrowserFailed)
		}
	}()
	if err := ctx.Err(); err != nil {
		return failedRecord(site, ReasonCancelled)
	}
	return run(ctx, site)
}

func failedRecord(site, reason string) *types.RunRecord {
	now := time.Now()
	return &types.RunRecord{
		ID:         uuid.NewString(),
		Site:       site,
		Method:     types.MethodDOM,
		Success:    false,
		Reason:     reason,
		StartedAt:  now,
		FinishedAt: now,
	}
}
