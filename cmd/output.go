package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

var outputFormat string

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table or json)")
}

// printResult writes rs as a terminal table or as a JSON array of row objects.
func printResult(w io.Writer, rs *database.ResultSet, format string) error {
	switch format {
	case "json":
		b, err := json.MarshalIndent(rs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "table", "":
		if len(rs.Columns) == 0 {
			_, err := fmt.Fprintln(w, "(no columns)")
			return err
		}
		table, err := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData(rs.Strings())).Srender()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n(%d rows)\n", table, len(rs.Rows))
		return err
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", format)
	}
}
