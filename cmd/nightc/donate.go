package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/session"
)

var donateCmd = &cobra.Command{
	Use:   "donate",
	Short: "Submit one signed donation and write the result file",
	Long: `
Donate submits a single pre-signed donation request. It is what the launcher
runs for POST /consolidate, and can also be used by hand with a signature
produced elsewhere.
`,
	Args: cobra.NoArgs,
	RunE: runDonate,
}

var donateBatchCmd = &cobra.Command{
	Use:   "donate-batch",
	Short: "Submit a file of signed donations and write the result file",
	Long: `
Donate-batch reads a JSON array of {sourceAddress, signature, sourceIndex}
from --batchfile and submits each item in order. It is what the launcher
runs for POST /consolidate-batch.
`,
	Args: cobra.NoArgs,
	RunE: runDonateBatch,
}

func init() {
	f := donateCmd.Flags()
	f.String("source", "", "source address")
	f.String("signature", "", "hex signature of the donation message")
	cobra.CheckErr(donateCmd.MarkFlagRequired("source"))
	cobra.CheckErr(donateCmd.MarkFlagRequired("signature"))

	bf := donateBatchCmd.Flags()
	bf.String("batchfile", "", "JSON batch input file")
	cobra.CheckErr(donateBatchCmd.MarkFlagRequired("batchfile"))
	cobra.CheckErr(donateBatchCmd.MarkFlagFilename("batchfile", "json"))

	for _, c := range []*cobra.Command{donateCmd, donateBatchCmd} {
		c.Flags().String("dest", "", "destination address")
		c.Flags().String("result", "", "write the JSON result to this file")
		c.Flags().String("label", "", "custom session log directory label")
		c.Flags().Bool("no-session", false, "do not write a session log directory")
		c.Flags().String("endpoint", "", "donation API base URL")
		c.Flags().Duration("timeout", 0, "per-request timeout")
		c.Flags().Duration("delay", 0, "pause between consecutive requests")
		cobra.CheckErr(c.MarkFlagRequired("dest"))
	}
}

// workerSession opens the session log of a donate command, or a no-op one.
func workerSession(cmd *cobra.Command, primary string, metadata map[string]any) session.Logger {
	if off, _ := cmd.Flags().GetBool("no-session"); off {
		return session.Noop()
	}
	label, _ := cmd.Flags().GetString("label")
	return session.Open(sessionRoot(), primary, metadata, label)
}

func runDonate(cmd *cobra.Command, _ []string) error {
	source, _ := cmd.Flags().GetString("source")
	signature, _ := cmd.Flags().GetString("signature")
	dest, _ := cmd.Flags().GetString("dest")
	resultPath, _ := cmd.Flags().GetString("result")

	sess := workerSession(cmd, dest, map[string]any{
		"status":             "running",
		"mode":               "single",
		"sourceAddress":      source,
		"destinationAddress": dest,
	})
	dc := donationConfig()
	dc.Tracer = donation.MultiTracer{donation.NewWriterTracer(os.Stdout), sess}
	client := donation.NewClient(dc)

	ctx, cancel := signalContext(nil)
	defer cancel()

	o := client.DonateSingle(ctx, dest, source, signature)
	result := donation.NewSingleResult(dest, o)
	fmt.Printf("\n%s %s\n", outcomeMark(o), o.Message)

	sess.WriteJSON("consolidation-result.json", result)
	sess.UpdateMetadata(map[string]any{"status": "completed", "success": result.Success})
	if o.Kind == donation.KindSuccess {
		sess.WriteSummary([]string{
			"Night Consolidation Summary",
			"Source:              " + source,
			"Destination:         " + dest,
			fmt.Sprintf("Solutions (est.):    %d", o.SolutionsConsolidated),
		})
	}

	if resultPath != "" {
		if err := donation.WriteResult(resultPath, result); err != nil {
			return err
		}
	}
	if !result.Success {
		return fmt.Errorf("donation failed: %s", o.Message)
	}
	return nil
}

func runDonateBatch(cmd *cobra.Command, _ []string) error {
	batchFile, _ := cmd.Flags().GetString("batchfile")
	dest, _ := cmd.Flags().GetString("dest")
	resultPath, _ := cmd.Flags().GetString("result")

	items, err := donation.ReadItems(batchFile)
	if err != nil {
		return err
	}

	sess := workerSession(cmd, dest, map[string]any{
		"status":             "running",
		"mode":               "batch",
		"destinationAddress": dest,
		"totalAddresses":     len(items),
	})
	sess.CopyArtifact(batchFile, "batch-input.json")

	dc := donationConfig()
	dc.Tracer = donation.NewWriterTracer(os.Stdout)
	client := donation.NewClient(dc)

	var stopped atomic.Bool
	ctx, cancel := signalContext(func() { stopped.Store(true) })
	defer cancel()

	outcomes, err := client.DonateBatch(ctx, dest, items, donation.BatchHooks{
		OnOutcome: func(i int, o donation.Outcome) {
			fmt.Printf("%s [%d/%d] %s\n", outcomeMark(o), i+1, len(items), o.Message)
		},
		ShouldStop: stopped.Load,
		Tracer:     sess,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Batch interrupted: %v\n", err)
	}

	result := donation.NewBatchResult(dest, outcomes, len(items))
	printSummary(dest, outcomes, len(items))

	sess.WriteJSON("consolidation-result.json", result)
	sess.WriteSummary([]string{
		"Night Consolidation Summary",
		"Destination:         " + dest,
		fmt.Sprintf("Total addresses:     %d", result.Summary.Total),
		fmt.Sprintf("Successful:          %d", result.Summary.Successful),
		fmt.Sprintf("Skipped:             %d", result.Summary.Skipped),
		fmt.Sprintf("Errors:              %d", result.Summary.Errors),
		fmt.Sprintf("Solutions (est.):    %d", result.Summary.TotalSolutions),
	})
	sess.UpdateMetadata(map[string]any{
		"status":         "completed",
		"successful":     result.Summary.Successful,
		"failed":         result.Summary.Errors,
		"totalSolutions": result.Summary.TotalSolutions,
	})

	if resultPath != "" {
		if werr := donation.WriteResult(resultPath, result); werr != nil {
			return werr
		}
	}
	return err
}
