// Package report renders run summaries and site listings as tables.
package report

import (
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/catalog-scraper/internal/orchestrator"
)

// WriteSummary renders the end-of-run counters.
func WriteSummary(w io.Writer, s orchestrator.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("run " + s.RunID)

	t.AppendHeader(table.Row{"Stage", "Counter", "Value"})
	t.AppendRows([]table.Row{
		{"run", "site", s.Site},
		{"run", "status", string(s.Status)},
		{"run", "resumed", strconv.FormatBool(s.Resumed)},
		{"run", "elapsed", s.Elapsed().Round(time.Millisecond).String()},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"admission", "new", s.Admission.New},
		{"admission", "existing", s.Admission.Existing},
		{"admission", "lookup errors", s.Admission.LookupErrors},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"fetch", "listing pages", s.Fetch.Listings},
		{"fetch", "item pages", s.Fetch.Items},
		{"fetch", "no record", s.Fetch.NoRecord},
		{"fetch", "robots skipped", s.Fetch.Skipped},
		{"fetch", "abandoned", s.Fetch.Failed},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"pipeline", "created", s.Pipeline.Created},
		{"pipeline", "updated", s.Pipeline.Updated},
		{"pipeline", "unchanged", s.Pipeline.Unchanged},
		{"pipeline", "dropped", s.Pipeline.Dropped},
		{"pipeline", "errors", s.Pipeline.Errors},
	})
	t.Render()
}

// SiteRow is one configured site.
type SiteRow struct {
	Name     string
	Platform string
	StoreID  int64
	Seeds    []string
}

// WriteSites renders the configured sites.
func WriteSites(w io.Writer, rows []SiteRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Site", "Platform", "Store", "Seeds"})
	for _, r := range rows {
		seed := ""
		if len(r.Seeds) > 0 {
			seed = r.Seeds[0]
			if len(r.Seeds) > 1 {
				seed += " (+" + strconv.Itoa(len(r.Seeds)-1) + ")"
			}
		}
		t.AppendRow(table.Row{r.Name, r.Platform, r.StoreID, seed})
	}
	t.Render()
}
