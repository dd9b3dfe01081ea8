package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"catalog-lineage/internal/api"
	"catalog-lineage/internal/domain"
	"catalog-lineage/internal/service/ingestion"
)

func newGetCmd(client *Client, opts *options) *cobra.Command {
	var upstream, downstream int
	cmd := &cobra.Command{
		Use:   "get ASSET_ID",
		Short: "Show the lineage of an asset",
		Example: `  lineage get urn:orders --upstream 2 --downstream 1
  lineage get urn:orders -w analytics -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("asset_id", args[0])
			q.Set("predecessor_depth", strconv.Itoa(upstream))
			q.Set("successor_depth", strconv.Itoa(downstream))

			var res api.LineageResponse
			if err := client.Do(cmd.Context(), http.MethodGet, workspacePath(opts.workspace)+"/lineage", q, nil, &res); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			renderLineage(cmd.OutOrStdout(), &res)
			return nil
		},
	}
	cmd.Flags().IntVarP(&upstream, "upstream", "u", 1, "Upstream depth")
	cmd.Flags().IntVarP(&downstream, "downstream", "d", 1, "Downstream depth")
	return cmd
}

func newReconcileCmd(client *Client, opts *options) *cobra.Command {
	var (
		file       string
		resource   string
		fullResync bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Submit a manifest as a reconciliation batch",
		Example: `  lineage reconcile -f dbt_manifest.yaml
  lineage reconcile -f dbt_manifest.yaml --resource dbt_core --full-resync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := ingestion.LoadManifest(file)
			if err != nil {
				return err
			}
			ws := ""
			if cmd.Flags().Changed("workspace") || m.Workspace == "" {
				ws = opts.workspace
			}
			req := m.Request(ws, resource)
			if cmd.Flags().Changed("full-resync") {
				req.FullResync = fullResync
			}
			if req.ResourceID == "" {
				return fmt.Errorf("resource is required: set it in the manifest or pass --resource")
			}

			path := workspacePath(req.WorkspaceID) + "/resources/" + url.PathEscape(req.ResourceID) + "/reconcile"
			var report api.ReconciliationReport
			if err := client.Do(cmd.Context(), http.MethodPost, path, nil, toWire(req), &report); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), report)
			}
			renderReport(cmd.OutOrStdout(), &report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Manifest file (YAML)")
	cmd.Flags().StringVar(&resource, "resource", "", "Resource id (overrides the manifest)")
	cmd.Flags().BoolVar(&fullResync, "full-resync", false, "Prune entities missing from the manifest")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRunsCmd(client *Client, opts *options) *cobra.Command {
	var (
		maxResults int
		pageToken  string
	)
	cmd := &cobra.Command{
		Use:   "runs RESOURCE_ID",
		Short: "List reconciliation runs of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if maxResults > 0 {
				q.Set("max_results", strconv.Itoa(maxResults))
			}
			if pageToken != "" {
				q.Set("page_token", pageToken)
			}
			var res api.ListReconciliationsResponse
			if err := client.Do(cmd.Context(), http.MethodGet, workspacePath(opts.workspace)+"/resources/"+url.PathEscape(args[0])+"/reconciliations", q, nil, &res); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			renderRuns(cmd.OutOrStdout(), &res)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Page size")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Continuation token")
	return cmd
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// The version command does not talk to a server.
		PersistentPreRunE: func(*cobra.Command, []string) error { return validateOutputFormat(opts.output) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": version, "commit": commit})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "lineage version %s (commit: %s)\n", version, commit)
			return err
		},
	}
}

func toWire(req domain.ReconcileRequest) api.ReconcileRequest {
	out := api.ReconcileRequest{FullResync: req.FullResync}
	for _, a := range req.Assets {
		out.Assets = append(out.Assets, api.Asset{ID: a.ID, Name: a.Name, Kind: string(a.Kind)})
	}
	for _, c := range req.Columns {
		out.Columns = append(out.Columns, api.Column{AssetID: c.AssetID, ID: c.ID, Name: c.Name, DataType: c.DataType})
	}
	for _, l := range req.AssetLinks {
		out.AssetLinks = append(out.AssetLinks, api.AssetLink{SourceAssetID: l.SourceAssetID, TargetAssetID: l.TargetAssetID})
	}
	for _, l := range req.ColumnLinks {
		out.ColumnLinks = append(out.ColumnLinks, api.ColumnLink{
			Source: api.ColumnRef{AssetID: l.Source.AssetID, ColumnID: l.Source.ColumnID},
			Target: api.ColumnRef{AssetID: l.Target.AssetID, ColumnID: l.Target.ColumnID},
		})
	}
	return out
}
