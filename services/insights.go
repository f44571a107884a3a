package services

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"jobs-scraper/models"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/jedib0t/go-pretty/v6/table"
)

const topN = 5

type Count struct {
	Name  string
	Count int
}

type Report struct {
	TotalListings      int
	PagesFetched       int
	Reason             models.TerminationReason
	WithDescription    int
	MissingDescription int
	TopOrganizations   []Count
	ListingsByLocation []Count
}

// GenerateReport summarizes a finished run.
func GenerateReport(result models.RunResult) Report {
	report := Report{
		TotalListings: result.Count(),
		PagesFetched:  result.PagesFetched,
		Reason:        result.Reason,
	}

	orgs := make(map[string]int)
	locations := make(map[string]int)
	for _, l := range result.Listings {
		if l.Description == models.NotAvailable || strings.TrimSpace(l.Description) == "" {
			report.MissingDescription++
		} else {
			report.WithDescription++
		}
		orgs[orUnknown(l.Organization)]++
		locations[orUnknown(l.Location)]++
	}

	report.TopOrganizations = ranked(orgs)
	if len(report.TopOrganizations) > topN {
		report.TopOrganizations = report.TopOrganizations[:topN]
	}
	report.ListingsByLocation = ranked(locations)
	return report
}

// ranked orders counts descending, ties by name.
func ranked(m map[string]int) []Count {
	counts := make([]Count, 0, len(m))
	for name, n := range m {
		counts = append(counts, Count{Name: name, Count: n})
	}
	slices.SortFunc(counts, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return counts
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(title)
	return t
}

func PrintReport(w io.Writer, report Report) {
	summary := newTable(w, "Job Listing Insights")
	summary.AppendRows([]table.Row{
		{"Total listings", report.TotalListings},
		{"Pages fetched", report.PagesFetched},
		{"Termination", report.Reason},
		{"With description", report.WithDescription},
		{"Description N/A", report.MissingDescription},
	})
	summary.Render()

	if len(report.TopOrganizations) > 0 {
		orgs := newTable(w, fmt.Sprintf("Top %d Organizations", topN))
		orgs.AppendHeader(table.Row{"#", "Organization", "Listings"})
		for i, c := range report.TopOrganizations {
			orgs.AppendRow(table.Row{i + 1, truncateText(c.Name, 44), c.Count})
		}
		orgs.Render()
	}

	if len(report.ListingsByLocation) > 0 {
		locs := newTable(w, "Listings per Location")
		locs.AppendHeader(table.Row{"Location", "Listings"})
		for _, c := range report.ListingsByLocation {
			locs.AppendRow(table.Row{truncateText(c.Name, 44), c.Count})
		}
		locs.Render()
	}
}

// RenderChart writes an HTML page with the organization and location charts.
func RenderChart(path string, report Report) error {
	orgBar := charts.NewBar()
	orgBar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Top Organizations"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	var orgX []string
	var orgY []opts.BarData
	for _, c := range report.TopOrganizations {
		orgX = append(orgX, c.Name)
		orgY = append(orgY, opts.BarData{Value: c.Count})
	}
	orgBar.SetXAxis(orgX).AddSeries("Listings", orgY)

	locPie := charts.NewPie()
	locPie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Listings per Location"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	var locItems []opts.PieData
	for _, c := range report.ListingsByLocation {
		locItems = append(locItems, opts.PieData{Name: c.Name, Value: c.Count})
	}
	locPie.AddSeries("Listings", locItems)

	page := components.NewPage()
	page.PageTitle = "Job Listing Insights"
	page.AddCharts(orgBar, locPie)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create chart file: %w", err)
	}
	defer file.Close()

	if err := page.Render(file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	slog.Info("saved chart", "path", path)
	return nil
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == models.NotAvailable {
		return "Unknown"
	}
	return s
}

func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
