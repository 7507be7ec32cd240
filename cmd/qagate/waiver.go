package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qagate/qagate/pkg/waiver"
)

func newWaiverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waiver",
		Short: "Issue, list and sweep gate waivers",
	}
	cmd.AddCommand(newWaiverIssueCmd())
	cmd.AddCommand(newWaiverListCmd())
	cmd.AddCommand(newWaiverSweepCmd())
	return cmd
}

var waiverHeaders = []string{"id", "target", "target id", "expires", "issued by", "reason"}

func waiverRows(ws ...waiver.Waiver) [][]string {
	rows := make([][]string, 0, len(ws))
	for _, w := range ws {
		targetID := ""
		if w.TargetID != nil {
			targetID = *w.TargetID
		}
		rows = append(rows, []string{
			w.ID,
			string(w.TargetType),
			targetID,
			w.ExpiresAt.Format(time.RFC3339),
			w.IssuedBy,
			truncate(w.Reason, 40),
		})
	}
	return rows
}

func newWaiverIssueCmd() *cobra.Command {
	var (
		targetType string
		targetID   string
		reason     string
		expires    string
	)

	cmd := &cobra.Command{
		Use:   "issue <release>",
		Short: "Issue a time-bounded waiver for a gate violation",
		Example: `  qagate waiver issue rel-1 --target-type other --reason "coverage gap tracked in QA-12" --expires "in 30 days"
  qagate waiver issue rel-1 --target-type fail_result --target-id <run-item> --reason flaky --expires 72h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				expiresAt, err := parseExpiry(expires, e.app.Waivers.Clock())
				if err != nil {
					return err
				}
				in := waiver.IssueInput{
					ReleaseID:  args[0],
					TargetType: waiver.TargetType(targetType),
					Reason:     reason,
					ExpiresAt:  expiresAt,
					Issuer:     actor(),
				}
				if targetID != "" {
					in.TargetID = &targetID
				}
				w, err := e.app.Waivers.Issue(cmd.Context(), in)
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, w, waiverHeaders, waiverRows(*w))
			})
		},
	}
	cmd.Flags().StringVar(&targetType, "target-type", "", "fail_result, unapproved_revision, unexecuted_test or other")
	cmd.Flags().StringVar(&targetID, "target-id", "", "Specific violation target; empty waives every target of the type")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the violation is accepted")
	cmd.Flags().StringVar(&expires, "expires", "", `Expiry: "in 30 days", "next friday", 72h or 2026-12-31`)
	_ = cmd.MarkFlagRequired("target-type")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("expires")
	return cmd
}

func newWaiverListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <release>",
		Short: "List the waivers of a release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				ws, err := e.app.Waivers.ListForRelease(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, ws, waiverHeaders, waiverRows(ws...))
			})
		},
	}
}

func newWaiverSweepCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Report expired waivers, optionally deleting them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				res, err := e.app.Waivers.Sweep(cmd.Context(), e.app.Waivers.Clock(), remove)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if err := printOutput(w, outputFlag, res, waiverHeaders, waiverRows(res.Expired...)); err != nil {
					return err
				}
				if outputFlag == outputTable {
					fmt.Fprintf(w, "Expired: %d, deleted: %d\n", len(res.Expired), res.Deleted)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the expired waivers")
	return cmd
}
