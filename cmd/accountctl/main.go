package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "accountctl",
		Short: "accman account file and database tooling",
		Long: `accountctl converts and checks account export files offline and
manages the accman database: schema migration and user blocking.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(convertCommand())
	root.AddCommand(validateCommand())
	root.AddCommand(migrateCommand())
	root.AddCommand(usersCommand())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
