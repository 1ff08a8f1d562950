package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/joho/godotenv"

	"tracker/internal/amqp"
	"tracker/internal/cache"
	"tracker/internal/charts"
	"tracker/internal/config"
	"tracker/internal/core"
	"tracker/internal/importer"
	"tracker/internal/log"
	"tracker/internal/report"
	"tracker/internal/services"
	"tracker/internal/storage"
)

// Params are the trackerctl arguments and flags.
type Params struct {
	Action string `descr:"What to do" alts:"import,report,changes" strict:"true" positional:"true"`
	File   string `descr:"XLSX or JSON file of table rows (import)" positional:"true" optional:"true"`
	Window string `descr:"Only report entries in this recent window, e.g. 4weeks" optional:"true"`
	Days   int    `descr:"Days shown in the moving average table" default:"14"`
	Limit  int    `descr:"Number of audit log records shown" default:"20"`
	DryRun bool   `descr:"Parse the import file without storing anything" optional:"true"`
}

func main() {
	boa.NewCmdT[Params]("trackerctl").
		WithShort("Import, report and audit tracker entries").
		WithLong("Imports table rows from XLSX or JSON files, prints the category breakdown, moving average and calendar as tables, and lists the change audit log.").
		WithRunFunc(func(params *Params) {
			if err := run(context.Background(), params, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(ctx context.Context, params *Params, out io.Writer) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentImport, Output: os.Stderr})
	log.SetDefault(logger)
	loc, _ := cfg.Location()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, loc)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	switch params.Action {
	case "import":
		return runImport(ctx, cfg, repo, params, out)
	case "report":
		return runReport(ctx, cfg, repo, params, out)
	case "changes":
		changes, err := repo.ListChanges(ctx, params.Limit)
		if err != nil {
			return err
		}
		report.Changes(out, changes, loc)
		return nil
	default:
		return fmt.Errorf("unknown action %q", params.Action)
	}
}

func runImport(ctx context.Context, cfg *config.Config, repo *storage.SQLiteRepository, params *Params, out io.Writer) error {
	if params.File == "" {
		return fmt.Errorf("import needs a file")
	}
	loc, _ := cfg.Location()
	res, err := importer.LoadFile(params.File, loc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Read %d rows: %d valid, %d rejected (%d malformed)\n",
		res.Total(), len(res.Entries), len(res.Rejected), res.Malformed())
	for _, rej := range res.Rejected {
		fmt.Fprintf(out, "  skipped %v\n", rej)
	}
	if params.DryRun {
		return nil
	}

	var publisher services.Publisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer client.Close()
		publisher = client
	}
	entries := services.NewEntryService(repo, publisher, loc)
	n, err := importer.Store(ctx, entries, res)
	fmt.Fprintf(out, "Imported %d entries\n", n)
	return err
}

func runReport(ctx context.Context, cfg *config.Config, repo *storage.SQLiteRepository, params *Params, out io.Writer) error {
	opts, err := cfg.ChartOptions()
	if err != nil {
		return err
	}
	var window *core.Period
	if params.Window != "" {
		p, err := core.ParsePeriod(params.Window)
		if err != nil {
			return err
		}
		window = &p
	}

	svc := services.NewChartService(repo, opts, cache.NewLRUCache[charts.Views](1, time.Minute))
	views, err := svc.Views(ctx, window)
	if err != nil {
		return err
	}
	ropts := report.Options{
		Days:     params.Days,
		Location: opts.Series.Location,
		Color:    os.Getenv("NO_COLOR") == "",
	}
	report.Breakdown(out, views.Breakdown)
	report.MovingAverage(out, views.Series, ropts)
	report.Heatmap(out, views.Heatmap, ropts)
	return nil
}
