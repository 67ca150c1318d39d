// cmd/rentctl runs rent-engine maintenance against the ledger database:
// migrations, schedule regeneration, late-fee assessment and summaries.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("rentctl: ")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rentctl",
		Short:         "Rent ledger maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", "", "database DSN (default DATABASE_URL or "+defaultDSN()+")")
	root.PersistentFlags().String("actor", "system", "actor recorded on changes")

	root.AddCommand(
		migrateCmd(),
		policyCmd(),
		periodsCmd(),
		regenerateCmd(),
		assessCmd(),
		assessAllCmd(),
		summaryCmd(),
	)
	return root
}
