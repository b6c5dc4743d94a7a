package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papyr-io/papyr/internal/source"
)

// BatchOptions tunes a multi-source search fan-out.
type BatchOptions struct {
	// Parallelism bounds concurrent sources; zero uses the engine default.
	Parallelism int
	// Deadline bounds the whole batch; zero means no extra bound beyond
	// each execution's own budget.
	Deadline time.Duration
	// MinWeight drops sources below this weight before searching.
	MinWeight int
}

// SourceHits pairs one source with its search results.
type SourceHits struct {
	SourceID string      `json:"sourceId"`
	Weight   int         `json:"weight"`
	Hits     []SearchHit `json:"hits"`
}

// SearchAll fans one keyword out across many sources with bounded
// parallelism. One source's failure or timeout never delays or cancels the
// others; the aggregate is whatever completed within the deadline, ordered
// by source weight, highest first. Zero successful sources is an empty
// aggregate, not an error.
func (e *Engine) SearchAll(ctx context.Context, sources []*source.BookSource, keyword string, opts BatchOptions) []SourceHits {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = e.cfg.BatchParallelism
	}
	if parallelism <= 0 {
		parallelism = 4
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	var (
		mu  sync.Mutex
		out []SourceHits
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, src := range sources {
		if src.Weight < opts.MinWeight {
			continue
		}
		g.Go(func() error {
			res := e.Search(gctx, src, keyword)
			if !res.OK() {
				return nil // a failed source is not a batch failure
			}
			hits, err := SearchHits(res)
			if err != nil || len(hits) == 0 {
				return nil
			}
			mu.Lock()
			out = append(out, SourceHits{SourceID: src.ID, Weight: src.Weight, Hits: hits})
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight > out[j].Weight
	})
	return out
}
