package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/night-consolidator/internal/records"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded consolidation outcomes",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect saved consolidation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session with all its records as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsExport,
}

func init() {
	f := historyCmd.Flags()
	f.String("source", "", "only records of this source address")
	f.Int("limit", 20, "number of records to show (0 = all)")
	f.Bool("successful", false, "only successful records")
	f.Bool("json", false, "print records as JSON")

	sessionsExportCmd.Flags().StringP("out", "o", "", "write to this file instead of stdout")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsExportCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")
	onlyOK, _ := cmd.Flags().GetBool("successful")
	asJSON, _ := cmd.Flags().GetBool("json")

	store := openRecords()
	defer store.Close()

	var recs []records.Record
	switch {
	case source != "":
		recs = store.For(source)
	case onlyOK:
		recs = store.Successful()
	default:
		recs = store.Recent(limit)
	}
	if source != "" || onlyOK {
		// Newest first, like Recent.
		for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
			recs[i], recs[j] = recs[j], recs[i]
		}
		if onlyOK && source != "" {
			kept := recs[:0]
			for _, r := range recs {
				if r.Succeeded() {
					kept = append(kept, r)
				}
			}
			recs = kept
		}
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No consolidation records.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSOURCE\tDESTINATION\tSTATUS\tSOLUTIONS\tMESSAGE")
	for _, r := range recs {
		msg := r.Message
		if r.Error != "" {
			msg = r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			types.Preview(r.SourceAddress, 24),
			types.Preview(r.DestinationAddress, 24),
			r.Status, r.SolutionsConsolidated, msg)
	}
	return w.Flush()
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	store := openRecords()
	defer store.Close()

	sessions := store.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCREATED\tTOTAL\tOK\tFAILED\tSKIPPED\tSOLUTIONS")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			s.Summary.Total, s.Summary.Successful, s.Summary.Failed,
			s.Summary.Skipped, s.Summary.TotalSolutions)
	}
	return w.Flush()
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")

	store := openRecords()
	defer store.Close()

	data, err := store.ExportSession(args[0])
	if err != nil {
		return err
	}
	if out == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Session %s exported to %s\n", args[0], out)
	return nil
}
