// Package report renders chart views and the change log as terminal tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"tracker/internal/charts"
	"tracker/internal/core"
	"tracker/internal/storage"
)

// Options controls the rendering.
type Options struct {
	// Days limits the moving-average table to the most recent days.
	Days     int
	Location *time.Location
	// Color enables ANSI colors for the heat map.
	Color bool
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// Breakdown prints per-category totals with their share of the total.
func Breakdown(w io.Writer, rows []core.CategoryAmount) {
	var total float64
	for _, r := range rows {
		total += r.Amount
	}

	t := newTable(w, "By category")
	t.AppendHeader(table.Row{"Category", "Amount", "Share"})
	for _, r := range rows {
		share := "-"
		if total > 0 {
			share = fmt.Sprintf("%.1f%%", r.Amount/total*100)
		}
		t.AppendRow(table.Row{r.Name, core.FormatAmount(r.Amount), share})
	}
	t.AppendFooter(table.Row{text.Bold.Sprint("Total"), text.Bold.Sprint(core.FormatAmount(total)), ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
}

// MovingAverage prints the daily totals next to the moving average for the
// last opts.Days days of the series.
func MovingAverage(w io.Writer, s charts.Series, opts Options) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	totals := make(map[int64]float64, len(s.DailyTotal))
	for _, p := range s.DailyTotal {
		totals[p.TimestampMS] = p.Value
	}
	points := s.MovingAverage
	if opts.Days > 0 && len(points) > opts.Days {
		points = points[len(points)-opts.Days:]
	}

	t := newTable(w, "Moving average")
	t.AppendHeader(table.Row{"Day", "Total", "Average"})
	for _, p := range points {
		day := time.UnixMilli(p.TimestampMS).In(loc)
		t.AppendRow(table.Row{
			day.Format("Mon 2006-01-02"),
			core.FormatAmount(totals[p.TimestampMS]),
			core.FormatAmount(p.Value),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
}

// heatColors maps heat levels 1-4 to foreground colors; level 0 is dim.
var heatColors = []text.Color{text.FgHiBlack, text.FgGreen, text.FgHiGreen, text.FgYellow, text.FgHiRed}

// Heatmap prints the calendar as one row per week.
func Heatmap(w io.Writer, h charts.Heatmap, opts Options) {
	grid := h.Grid()
	max := h.Max()

	t := newTable(w, "Calendar")
	header := table.Row{"Week of"}
	if len(grid) > 0 {
		for _, d := range grid[0] {
			header = append(header, d.Date.Format("Mon"))
		}
	}
	header = append(header, "Total")
	t.AppendHeader(header)

	for _, week := range grid {
		row := table.Row{week[0].Date.Format(core.DateLayout)}
		var sum float64
		for _, d := range week {
			sum += d.Total
			cell := "."
			if d.Total > 0 {
				cell = core.FormatAmount(d.Total)
			}
			if opts.Color {
				cell = heatColors[charts.Level(d.Total, max)].Sprint(cell)
			}
			row = append(row, cell)
		}
		row = append(row, core.FormatAmount(sum))
		t.AppendRow(row)
	}
	configs := make([]table.ColumnConfig, 0, 8)
	for n := 2; n <= 9; n++ {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)
	t.Render()
}

// Changes prints the audit log.
func Changes(w io.Writer, changes []storage.Change, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	t := newTable(w, "Recent changes")
	t.AppendHeader(table.Row{"ID", "Received", "Edits", "Deletions", "Message"})
	for _, c := range changes {
		t.AppendRow(table.Row{
			c.ID,
			c.ReceivedAt.In(loc).Format("2006-01-02 15:04:05"),
			c.Edits,
			c.Deletions,
			c.MessageID,
		})
	}
	if len(changes) == 0 {
		t.AppendRow(table.Row{"", text.FgHiBlack.Sprint("no changes recorded"), "", "", ""})
	}
	t.Render()
}
