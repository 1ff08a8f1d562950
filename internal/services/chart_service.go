package services

import (
	"context"
	"fmt"
	"time"

	"tracker/internal/cache"
	"tracker/internal/charts"
	"tracker/internal/core"
	"tracker/internal/storage"
)

// RecordSource supplies the records charted.
type RecordSource interface {
	Records(ctx context.Context, f storage.EntryFilter) ([]core.Record, error)
}

// ChartService builds chart views and caches them per time window until
// the next write.
type ChartService struct {
	source RecordSource
	opts   charts.Options
	loader *cache.Loader[charts.Views]
	now    func() time.Time
}

// NewChartService creates a chart service caching built views in c.
func NewChartService(source RecordSource, opts charts.Options, c cache.Cache[charts.Views]) *ChartService {
	return &ChartService{
		source: source,
		opts:   opts,
		loader: cache.NewLoader(c),
		now:    time.Now,
	}
}

// Views returns the chart views for entries inside window, or all entries
// when window is nil.
func (s *ChartService) Views(ctx context.Context, window *core.Period) (charts.Views, error) {
	key := "all"
	if window != nil {
		key = window.String()
	}
	return s.loader.Get(ctx, key, func(ctx context.Context) (charts.Views, error) {
		var f storage.EntryFilter
		if window != nil {
			since, err := window.Start(s.now())
			if err != nil {
				return charts.Views{}, err
			}
			f.Since = since
		}
		records, err := s.source.Records(ctx, f)
		if err != nil {
			return charts.Views{}, fmt.Errorf("load records: %w", err)
		}
		return charts.Build(ctx, records, s.opts)
	})
}

// Invalidate drops every cached view.
func (s *ChartService) Invalidate() {
	s.loader.Purge()
}
