package main

import (
	"fmt"
	"os"

	"github.com/benvon/nextstep/cmd/nextstepctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nextstepctl",
		Short: "Administration tool for the NextStep API",
		Long:  "CLI tool for migrating the database, minting development sessions and inspecting goals",
	}

	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewTokenCmd())
	rootCmd.AddCommand(commands.NewGoalsCmd(commands.OpenGoalStore))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
