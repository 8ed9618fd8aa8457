package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/firecast/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent predictions from the audit store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("history: no audit store configured (set store.driver)")
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		entries, err := st.ListPredictions(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No predictions recorded.")
			return nil
		}
		formatHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

func formatHistory(out io.Writer, entries []model.PredictionLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tOPERATION\tLOG10\tACRES\tCREATED\tINPUT")
	_, _ = fmt.Fprintln(w, "--\t---------\t-----\t-----\t-------\t-----")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.4f\t%.1f\t%s\t%s\n",
			truncateID(e.ID),
			e.Operation,
			e.PredictionLog,
			e.PredictionAcres,
			e.CreatedAt.Local().Format(time.DateTime),
			formatInput(e.Input),
		)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatInput renders features as sorted key=value pairs.
func formatInput(in map[string]float64) string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, in[k])
	}
	return strings.Join(parts, " ")
}

func init() {
	historyCmd.Flags().Int("limit", 20, "max number of predictions to display")
	historyCmd.Flags().Bool("json", false, "print entries as JSON")
	rootCmd.AddCommand(historyCmd)
}
