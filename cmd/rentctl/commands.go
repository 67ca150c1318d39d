package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/config"
	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
	"github.com/matthewbaird/rentledger/internal/worker"
)

func defaultDSN() string { return config.DefaultDatabaseURL }

// env is what every command that touches the ledger needs.
type env struct {
	store *store.SQLStore
	svc   *ledger.Service
	audit types.Audit
}

func (e *env) Close() error { return e.store.Close() }

func openEnv(cmd *cobra.Command) (*env, error) {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	pol, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	feed := activity.NewSQLStore(st.Driver())
	if err := migrate(ctx, st, feed); err != nil {
		st.Close()
		return nil, err
	}

	audit := types.SystemAudit()
	audit.Source = "cli"
	if actor, _ := cmd.Flags().GetString("actor"); actor != "" {
		audit.Actor = actor
	}
	return &env{
		store: st,
		svc:   ledger.New(st, pol, ledger.WithRecorder(event.NewActivityRecorder(feed))),
		audit: audit,
	}, nil
}

func migrate(ctx context.Context, st *store.SQLStore, feed *activity.SQLStore) error {
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating ledger tables: %w", err)
	}
	if err := feed.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating activity table: %w", err)
	}
	return nil
}

func leaseArg(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid lease id %q: %w", args[0], err)
	}
	return id, nil
}

func asOfFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("as-of")
	if raw == "" {
		return time.Time{}, nil
	}
	return types.ParseDate(raw)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPeriods(w io.Writer, ps []types.RentPeriod) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DUE\tRENT\tPAID\tSTATUS\tLATE FEE\tSOURCE\tID")
	for _, p := range ps {
		fee := p.LateFeeApplied.StringFixed(2)
		if p.LateFeeWaived {
			fee += " (waived)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			types.FormatDate(p.DueDate), p.RentAmount.StringFixed(2), p.AmountPaid.StringFixed(2),
			p.Status, fee, p.LateFeeSource, p.ID)
	}
	return tw.Flush()
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database migrated")
			return nil
		},
	}
}

func policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the late-fee policy in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pol, err := cfg.Policy()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pol)
		},
	}
}

func periodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "periods <lease-id>",
		Short: "List a lease's rent periods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := leaseArg(args)
			if err != nil {
				return err
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			ps, err := e.svc.ListPeriods(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printPeriods(cmd.OutOrStdout(), ps)
		},
	}
}

func regenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <lease-id>",
		Short: "Rebuild a lease's untouched periods from its current terms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := leaseArg(args)
			if err != nil {
				return err
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			res, err := e.svc.RegeneratePeriods(cmd.Context(), id, e.audit)
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return printPeriods(cmd.OutOrStdout(), res.Periods)
		},
	}
}

func assessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess <lease-id>",
		Short: "Assess late fees on a lease now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := leaseArg(args)
			if err != nil {
				return err
			}
			asOf, err := asOfFlag(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			res, err := e.svc.AssessLease(cmd.Context(), id, asOf, force, e.audit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("as-of", "", "assessment date, YYYY-MM-DD (default today)")
	cmd.Flags().Bool("force", false, "also reassess manually set late fees")
	return cmd
}

func assessAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess-all",
		Short: "Assess late fees on every active lease",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := asOfFlag(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			report, err := worker.NewAssessSweep(e.svc, e.audit).Run(cmd.Context(), asOf, force)
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().String("as-of", "", "assessment date, YYYY-MM-DD (default today)")
	cmd.Flags().Bool("force", false, "also reassess manually set late fees")
	return cmd
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary <lease-id>",
		Short: "Show what is owed on a lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := leaseArg(args)
			if err != nil {
				return err
			}
			asOf, err := asOfFlag(cmd)
			if err != nil {
				return err
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			sum, err := e.svc.Summary(cmd.Context(), id, asOf)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().String("as-of", "", "summary date, YYYY-MM-DD (default today)")
	return cmd
}
