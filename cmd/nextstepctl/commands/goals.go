package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/benvon/nextstep/internal/config"
	"github.com/benvon/nextstep/internal/roadmap"
	"github.com/benvon/nextstep/internal/services/goals"
	"github.com/spf13/cobra"
)

// NewGoalsCmd creates the goals command with its list subcommand
func NewGoalsCmd(open StoreOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "Inspect goals",
	}
	cmd.AddCommand(newGoalsListCmd(open))
	return cmd
}

func newGoalsListCmd(open StoreOpener) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's goals with roadmap progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			store, release, err := open(cfg)
			if err != nil {
				return err
			}
			defer release()

			repo := goals.NewService(store, nil, nil, 0).Session(owner)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := repo.Refresh(ctx); err != nil {
				return fmt.Errorf("failed to list goals: %w", err)
			}

			list := repo.Goals()
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(out, "No goals for owner %s\n", owner)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tPROGRESS\tNEXT TASK\tCREATED")
			for _, g := range list {
				done := 0
				for _, t := range g.Tasks {
					if t.Completed {
						done++
					}
				}
				next := "-"
				if i := roadmap.FirstIncompleteIndex(g.Tasks); i >= 0 {
					next = g.Tasks[i].Title
				}
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
					g.ID, g.Title, done, len(g.Tasks), next, g.CreatedAt.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id")
	return cmd
}
