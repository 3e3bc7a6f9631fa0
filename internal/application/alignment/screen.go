package alignment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
)

// ScreenOptions bounds a screening run.  Zero TopN keeps every hit.
type ScreenOptions struct {
	TopN     int
	MinScore float64
}

// Hit is one aligned candidate.
type Hit struct {
	Index  int
	Name   string
	Result *Result
}

// Failure is one candidate that could not be aligned.
type Failure struct {
	Index int
	Name  string
	Err   error
}

// ScreenResult holds hits sorted by descending score.
type ScreenResult struct {
	Metric   shape.ScoreMetric
	Screened int
	Hits     []Hit
	Failures []Failure
	Duration time.Duration
}

// Screen aligns every candidate onto ref with at most Options.Concurrency
// alignments in flight.  The reference density is built once and shared.
// Per-candidate failures are collected; only cancellation aborts the run.
func (a *Aligner) Screen(ctx context.Context, ref *shape.Shape, candidates []*shape.Shape, so ScreenOptions) (*ScreenResult, error) {
	start := time.Now()
	if a.opts.MaxBatch > 0 && len(candidates) > a.opts.MaxBatch {
		return nil, errors.InvalidParam("too many candidates").
			WithDetail(fmt.Sprintf("got %d, limit %d", len(candidates), a.opts.MaxBatch))
	}
	r, err := a.prepare(ref, a.opts.Products)
	if err != nil {
		return nil, err
	}

	done := a.metrics.TrackScreening()
	defer done()

	results := make([]*Result, len(candidates))
	var (
		mu       sync.Mutex
		failures []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := a.opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.alignTo(gctx, r, c)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				failures = append(failures, Failure{Index: i, Name: overlayName(c), Err: err})
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.metrics.ObserveScreening(0, len(candidates), time.Since(start))
		return nil, errors.Wrap(contextError(err), errors.CodeUnknown, "screening aborted")
	}

	out := &ScreenResult{Metric: a.opts.Metric, Screened: len(candidates)}
	for i, res := range results {
		if res == nil || res.Score < so.MinScore {
			continue
		}
		out.Hits = append(out.Hits, Hit{Index: i, Name: candidates[i].Name, Result: res})
	}
	sort.SliceStable(out.Hits, func(x, y int) bool {
		return out.Hits[x].Result.Score > out.Hits[y].Result.Score
	})
	if so.TopN > 0 && len(out.Hits) > so.TopN {
		out.Hits = out.Hits[:so.TopN]
	}
	sort.Slice(failures, func(x, y int) bool { return failures[x].Index < failures[y].Index })
	out.Failures = failures
	out.Duration = time.Since(start)

	a.metrics.ObserveScreening(len(candidates)-len(failures), len(failures), out.Duration)
	a.logger.Info("screening finished",
		logging.String("reference", ref.Name),
		logging.Int("candidates", len(candidates)),
		logging.Int("hits", len(out.Hits)),
		logging.Int("failures", len(failures)),
		logging.Duration("duration", out.Duration))
	return out, nil
}
