package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/runner"
	"github.com/JonMunkholm/schoolfacts/internal/store"
)

var (
	runsLimit  int
	runsStatus string
	runsJSON   bool
)

// runsCmd lists audit rows from the monitor table
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs from the monitor table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := core.RunStatus(strings.ToUpper(runsStatus))
		if status != "" && status != core.StatusOK && status != core.StatusFail {
			return fmt.Errorf("--status must be OK or FAIL, got %q", runsStatus)
		}

		ctx := cmd.Context()
		st, err := store.Open(ctx, runner.StoreConfig(cfg.Store))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		entries, err := st.ListRuns(ctx, core.ListRunsOptions{Limit: runsLimit, Status: status})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if runsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN ID\tRUN AT\tSTATUS\tLEIDOS\tVALIDOS\tDESCARTADOS\tPROMEDIO\tDURACION S\tMENSAJE")
		for _, e := range entries {
			m := e.Metrics
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.2f\t%.2f\t%s\n",
				e.RunID, e.RunAt.UTC().Format("2006-01-02 15:04:05"), e.Status,
				m.RegistrosLeidos, m.RegistrosValidos, m.RegistrosDescartados,
				m.MeanDisplay(), e.DurationSeconds(), core.TruncateMessage(e.Message, 60))
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", store.DefaultListLimit, "Maximum rows to show")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Only show OK or FAIL runs")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Print JSON instead of a table")
}
