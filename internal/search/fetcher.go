package search

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/metrics"
)

// Fetcher issues planned queries concurrently.
type Fetcher struct {
	searcher Searcher
	log      *zap.Logger
	// limit bounds in-flight queries per refresh.
	limit int
}

// NewFetcher returns a fetcher over s.
func NewFetcher(s Searcher, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{searcher: s, log: log.Named("fetch"), limit: 4}
}

// FetchRelated runs queries and returns their results in query order.
// A query that fails is logged and contributes no data; the number of failed
// queries is returned alongside. Only cancellation of ctx is returned as an error.
func (f *Fetcher) FetchRelated(ctx context.Context, queries []Query) ([]models.SearchResult, int, error) {
	results := make([][]models.SearchResult, len(queries))
	failed := make([]bool, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.limit)
	for i, q := range queries {
		g.Go(func() error {
			start := time.Now()
			res, err := f.searcher.Search(gctx, []models.SearchInput{q.Input})
			metrics.SearchQueryDurationSeconds.WithLabelValues(q.Name).Observe(time.Since(start).Seconds())
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.SearchQueryFailuresTotal.WithLabelValues(q.Name).Inc()
				f.log.Warn("search query failed",
					zap.String("query", q.Name),
					zap.String("kind", q.ItemsKind),
					zap.Error(err))
				failed[i] = true
				return nil
			}
			if q.ItemsKind != "" {
				res = itemsAsRelated(q.ItemsKind, res)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var out []models.SearchResult
	failures := 0
	for i := range queries {
		if failed[i] {
			failures++
			continue
		}
		out = append(out, results[i]...)
	}
	return out, failures, nil
}

// itemsAsRelated files the items of a kind query under a related group of kind.
func itemsAsRelated(kind string, res []models.SearchResult) []models.SearchResult {
	var items []models.RawResourceRecord
	for _, r := range res {
		items = append(items, r.Items...)
	}
	if len(items) == 0 {
		return nil
	}
	return []models.SearchResult{{Related: []models.RelatedGroup{{Kind: kind, Items: items}}}}
}
