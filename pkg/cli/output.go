package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"catalog-lineage/internal/api"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(header)
	return t
}

func renderLineage(w io.Writer, res *api.LineageResponse) {
	assets := newTable(w, "Assets", table.Row{"ID", "KIND", "RESOURCE", "ROOT"})
	for _, a := range res.Assets {
		root := ""
		if a.ID == res.AssetID {
			root = "*"
		}
		assets.AppendRow(table.Row{a.ID, a.Kind, a.ResourceID, root})
	}
	assets.Render()

	if len(res.AssetLinks) > 0 {
		links := newTable(w, "Asset links", table.Row{"SOURCE", "TARGET"})
		for _, l := range res.AssetLinks {
			links.AppendRow(table.Row{l.SourceAssetID, l.TargetAssetID})
		}
		links.Render()
	}

	if len(res.ColumnLinks) > 0 {
		cols := newTable(w, "Column links", table.Row{"SOURCE", "TARGET"})
		for _, l := range res.ColumnLinks {
			cols.AppendRow(table.Row{l.Source.AssetID + "." + l.Source.ColumnID, l.Target.AssetID + "." + l.Target.ColumnID})
		}
		cols.Render()
	}
	_, _ = fmt.Fprintf(w, "%d assets, %d columns, %d asset links, %d column links\n",
		len(res.Assets), len(res.Columns), len(res.AssetLinks), len(res.ColumnLinks))
}

func renderReport(w io.Writer, r *api.ReconciliationReport) {
	t := newTable(w, "", table.Row{"FIELD", "VALUE"})
	t.AppendRows([]table.Row{
		{"run", r.ID},
		{"resource", r.ResourceID},
		{"state", r.State},
		{"succeeded", r.Succeeded},
		{"failed", r.Failed},
		{"skipped", r.Skipped},
		{"pruned assets", len(r.PrunedAssets)},
		{"pruned children", r.PrunedChildren},
		{"prune skipped", strconv.FormatBool(r.PruneSkipped)},
	})
	t.Render()

	if len(r.Failures) > 0 {
		f := newTable(w, "Dead-lettered", table.Row{"KIND", "KEY", "ATTEMPTS", "ERROR"})
		for _, e := range r.Failures {
			f.AppendRow(table.Row{e.Kind, e.Key, e.Attempts, e.Error})
		}
		f.Render()
	}
}

func renderRuns(w io.Writer, runs *api.ListReconciliationsResponse) {
	t := newTable(w, "", table.Row{"RUN", "STATE", "FULL", "OK", "FAILED", "SKIPPED", "STARTED"})
	for _, r := range runs.Data {
		t.AppendRow(table.Row{r.ID, r.State, r.FullResync, r.Succeeded, r.Failed, r.Skipped, r.StartedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
	if runs.NextPageToken != "" {
		_, _ = fmt.Fprintf(w, "next page: --page-token %s\n", runs.NextPageToken)
	}
}
