// Package cli implements the lineage command-line client.
package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{"error": err.Error()}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				errObj["http_status"] = apiErr.HTTPStatus
				errObj["code"] = apiErr.Code
			}
			_ = printJSON(stdout, errObj)
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// options carries the resolved persistent flags.
type options struct {
	host      string
	output    string
	workspace string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	client := NewClient("")

	rootCmd := &cobra.Command{
		Use:           "lineage",
		Short:         "Lineage graph CLI",
		Long:          "Query lineage and reconcile metadata against a lineage server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Precedence: flag > env > default.
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("LINEAGE_HOST"); v != "" {
					opts.host = v
				}
			}
			if !cmd.Flags().Changed("workspace") {
				if v := os.Getenv("LINEAGE_WORKSPACE"); v != "" {
					opts.workspace = v
				}
			}
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("LINEAGE_OUTPUT"); v != "" {
					opts.output = v
				}
			}
			if err := validateOutputFormat(opts.output); err != nil {
				return err
			}
			if err := validateHostURL(opts.host); err != nil {
				return err
			}
			client.BaseURL = strings.TrimRight(opts.host, "/")
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.host, "host", "http://localhost:8080", "Lineage server URL")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&opts.workspace, "workspace", "w", "default", "Workspace id")

	rootCmd.AddCommand(newGetCmd(client, opts))
	rootCmd.AddCommand(newReconcileCmd(client, opts))
	rootCmd.AddCommand(newRunsCmd(client, opts))
	rootCmd.AddCommand(newVersionCmd(opts))
	return rootCmd
}

func validateOutputFormat(output string) error {
	if output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func validateHostURL(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("invalid host %q: host URL cannot be empty", host)
	}
	u, err := url.Parse(host)
	if err != nil {
		return fmt.Errorf("invalid host %q: %w", host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid host %q: scheme must be http or https", host)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid host %q: missing host", host)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid host %q: host must not include a path", host)
	}
	return nil
}

// workspacePath returns the escaped /workspaces/{ws} prefix.
func workspacePath(ws string) string {
	return "/workspaces/" + url.PathEscape(ws)
}
