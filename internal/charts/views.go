package charts

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tracker/internal/core"
)

// Views bundles the three chart views built from one record set.
type Views struct {
	Series    Series                `json:"series"`
	Breakdown []core.CategoryAmount `json:"breakdown"`
	Heatmap   Heatmap               `json:"heatmap"`
}

// Options configure every view built by Build.
type Options struct {
	Series  SeriesOptions
	Heatmap HeatmapOptions
}

// Build runs every builder over records. The builders only read the shared
// input, so they run concurrently.
func Build(ctx context.Context, records []core.Record, opts Options) (Views, error) {
	var v Views
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.Series = BuildSeries(records, opts.Series)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.Breakdown = BuildBreakdown(records)
		return nil
	})
	g.Go(func() error {
		hm, err := BuildHeatmap(records, opts.Heatmap)
		if err != nil {
			return err
		}
		v.Heatmap = hm
		return nil
	})

	if err := g.Wait(); err != nil {
		return Views{}, err
	}
	return v, nil
}
