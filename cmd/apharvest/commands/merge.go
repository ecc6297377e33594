package commands

import (
	"fmt"
	"time"

	"apharvest/lib/serviceutil"
	"apharvest/services/harvester"

	"github.com/spf13/cobra"
)

var mergeFlags struct {
	in     *string
	batch  *string
	out    *string
	label  *string
	policy *string
}

func init() {
	f := mergeCmd.Flags()
	mergeFlags.in = f.String("in", "dataset.json", "The existing dataset.")
	mergeFlags.batch = f.String("batch", "", "A dataset file whose questions are merged in.")
	mergeFlags.out = f.String("out", "", "Where to write the merged dataset; defaults to --in.")
	mergeFlags.label = f.String("label", "", "Session label recorded for this batch; defaults to the batch's own sessions.")
	mergeFlags.policy = f.String("policy", "prefer-new", "Id collision policy: prefer-new or prefer-existing.")
	mergeCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(mergeCmd)
}

var mergeCmd = &cobra.Command{
	Use:   "merge --batch <path/to/batch.json> [--in <path/to/dataset.json>]",
	Short: "Merges a previously harvested batch into the dataset without touching the network.",
	Run: func(cmd *cobra.Command, args []string) {
		policy, err := harvester.ParsePolicy(*mergeFlags.policy)
		if err != nil {
			serviceutil.Fatal("parse merge policy", err)
		}

		existing, err := harvester.LoadDataset(*mergeFlags.in)
		if err != nil {
			serviceutil.Fatal("load dataset", err)
		}
		batch, err := harvester.LoadDataset(*mergeFlags.batch)
		if err != nil {
			serviceutil.Fatal("load batch", err)
		}

		sessions := batch.SourceSessions
		if *mergeFlags.label != "" {
			sessions = []string{*mergeFlags.label}
		}

		accepted, report := harvester.Validate(batch.Questions)
		merged, result := harvester.Merge(existing, accepted, sessions, policy, time.Now())

		out := *mergeFlags.out
		if out == "" {
			out = *mergeFlags.in
		}
		err = harvester.WriteDataset(out, merged)
		if err != nil {
			serviceutil.Fatal("write dataset", err)
		}

		fmt.Printf(
			"accepted %d (rejected %d, duplicates %d), inserted %d, replaced %d, dataset v%d with %d questions\n",
			report.Total, report.Rejected, report.Duplicates,
			result.Inserted, result.Replaced, merged.Version, len(merged.Questions),
		)
	},
}
