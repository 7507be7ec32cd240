package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/qagate/qagate/pkg/release"
)

func newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Manage releases",
	}
	cmd.AddCommand(newReleaseCreateCmd())
	cmd.AddCommand(newReleaseListCmd())
	cmd.AddCommand(newReleaseGetCmd())
	cmd.AddCommand(newReleaseBaselineCmd())
	cmd.AddCommand(newReleaseTransitionCmd())
	cmd.AddCommand(newReleaseApproveCmd())
	return cmd
}

func releaseRows(rs ...release.Release) [][]string {
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, []string{r.ID, r.ProjectID, r.Name, string(r.Status), r.UpdatedAt.Format(time.RFC3339)})
	}
	return rows
}

var releaseHeaders = []string{"id", "project", "name", "status", "updated"}

func newReleaseCreateCmd() *cobra.Command {
	var in release.CreateInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a release in planning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				in.Actor = actor()
				rel, err := e.app.Releases.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, rel, releaseHeaders, releaseRows(*rel))
			})
		},
	}
	cmd.Flags().StringVar(&in.ProjectID, "project", "", "Project id")
	cmd.Flags().StringVar(&in.Name, "name", "", "Release name")
	cmd.Flags().StringVar(&in.BuildRef, "build", "", "Build reference")
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	return cmd
}

func newReleaseListCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				rs, err := e.app.Releases.List(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, rs, releaseHeaders, releaseRows(rs...))
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Only releases of this project")
	return cmd
}

func newReleaseGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <release>",
		Short: "Show a release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				rel, err := e.app.Releases.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printObject(cmd.OutOrStdout(), outputFlag, rel)
			})
		},
	}
}

func newReleaseBaselineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "baseline <release> <list-revision>",
		Short: "Freeze a test scenario list revision into a release",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				_, rel, err := e.app.Releases.SetBaseline(cmd.Context(), args[0], args[1], actor())
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, rel, releaseHeaders, releaseRows(*rel))
			})
		},
	}
}

func newReleaseTransitionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transition <release> <status>",
		Short: "Move a release to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := release.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withLocal(cmd, func(e *localEnv) error {
				rel, err := e.app.Releases.Transition(cmd.Context(), args[0], to, actor())
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, rel, releaseHeaders, releaseRows(*rel))
			})
		},
	}
}

func newReleaseApproveCmd() *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "approve <release>",
		Short: "Evaluate the gate and approve the release when it passes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				out, err := e.app.Releases.Approve(cmd.Context(), args[0], actor(), comment)
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, out, releaseHeaders, releaseRows(*out.Release))
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Approval comment")
	return cmd
}
