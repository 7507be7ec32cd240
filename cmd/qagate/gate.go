package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/qagate/qagate/pkg/gate"
)

func newGateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Evaluate release gates and inspect signals",
	}
	cmd.AddCommand(newGateEvaluateCmd())
	cmd.AddCommand(newGateSignalCmd())
	return cmd
}

func newGateEvaluateCmd() *cobra.Command {
	var conditionsFile string

	cmd := &cobra.Command{
		Use:   "evaluate <release>",
		Short: "Evaluate the gate for a release; exits non-zero when blocked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				var conditions []gate.Condition
				if conditionsFile != "" {
					c, err := gate.LoadConditions(conditionsFile)
					if err != nil {
						return err
					}
					conditions = c
				}
				res, err := e.app.Gate.Evaluate(cmd.Context(), args[0], conditions)
				if err != nil {
					return err
				}
				if err := printGateResult(cmd, res); err != nil {
					return err
				}
				if !res.Passed {
					return fmt.Errorf("release %s is blocked by %d violation(s)", res.ReleaseID, len(res.BlockingViolations()))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&conditionsFile, "conditions", "", "Gate conditions file (default: gate.conditions_file)")
	return cmd
}

func printGateResult(cmd *cobra.Command, res *gate.Result) error {
	w := cmd.OutOrStdout()
	headers := []string{"condition", "severity", "waived", "message"}
	rows := make([][]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		rows = append(rows, []string{
			v.Condition,
			string(v.Severity),
			strconv.FormatBool(v.HasWaiver),
			truncate(v.Message, 80),
		})
	}
	if err := printOutput(w, outputFlag, res, headers, rows); err != nil {
		return err
	}
	if outputFlag == outputTable {
		fmt.Fprintf(w, "Passed: %t\n", res.Passed)
	}
	return nil
}

func newGateSignalCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "signal <release> <coverage|tests|bugs|approvals|changes>",
		Short:     "Show one gate signal for a release",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"coverage", "tests", "bugs", "approvals", "changes"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				ctx := cmd.Context()
				rel, err := e.app.Releases.Get(ctx, args[0])
				if err != nil {
					return err
				}

				var out any
				switch args[1] {
				case "coverage":
					out, err = e.app.Signals.Coverage(ctx, rel.ID)
				case "tests":
					out, err = e.app.Signals.AllTestsPass(ctx, rel.ID)
				case "bugs":
					out, err = e.app.Signals.NoCriticalBugs(ctx, rel.ID)
				case "approvals":
					out, err = e.app.Signals.AllApprovalsComplete(ctx, rel.ID)
				case "changes":
					out, err = e.app.Signals.NoUnapprovedChanges(ctx, rel.ProjectID)
				default:
					return fmt.Errorf("unknown signal %q", args[1])
				}
				if err != nil {
					return err
				}
				return printObject(cmd.OutOrStdout(), outputFlag, out)
			})
		},
	}
}
