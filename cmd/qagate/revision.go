package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/qagate/qagate/pkg/artifact"
)

type revisionAction struct {
	use   string
	short string
	run   func(s *artifact.Service, ctx context.Context, id, actor string) (*artifact.Revision, error)
}

var revisionActions = []revisionAction{
	{use: "submit", short: "Submit a draft for review", run: (*artifact.Service).SubmitForReview},
	{use: "approve", short: "Approve a revision in review", run: (*artifact.Service).Approve},
	{use: "return-to-draft", short: "Send a revision in review back to draft", run: (*artifact.Service).ReturnToDraft},
	{use: "deprecate", short: "Deprecate an approved revision", run: (*artifact.Service).Deprecate},
	{use: "restart", short: "Reopen a deprecated revision as draft", run: (*artifact.Service).Restart},
}

func newRevisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revision",
		Short: "Move artifact revisions through their lifecycle",
	}
	cmd.AddCommand(newRevisionGetCmd())
	for _, a := range revisionActions {
		cmd.AddCommand(newRevisionActionCmd(a))
	}
	return cmd
}

var revisionHeaders = []string{"id", "artifact", "number", "status", "title"}

func revisionRows(revs ...artifact.Revision) [][]string {
	rows := make([][]string, 0, len(revs))
	for _, r := range revs {
		rows = append(rows, []string{r.ID, r.ArtifactID, strconv.Itoa(r.Number), string(r.Status), truncate(r.Title, 40)})
	}
	return rows
}

func newRevisionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <revision>",
		Short: "Show a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				rev, err := e.app.Artifacts.GetRevision(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, rev, revisionHeaders, revisionRows(*rev))
			})
		},
	}
}

func newRevisionActionCmd(a revisionAction) *cobra.Command {
	return &cobra.Command{
		Use:   a.use + " <revision>",
		Short: a.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				rev, err := a.run(e.app.Artifacts, cmd.Context(), args[0], actor())
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), outputFlag, rev, revisionHeaders, revisionRows(*rev))
			})
		},
	}
}
