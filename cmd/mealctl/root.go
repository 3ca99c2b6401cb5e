package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tiffinbox/backend/internal/auth"
	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/config"
	"github.com/tiffinbox/backend/internal/middleware"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/scheduler"
)

func newRootCmd(connect connectFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mealctl",
		Short:         "Operator tools for meal subscription ledgers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// withBackend loads config, connects and closes around fn.
	withBackend := func(cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		if b.Close != nil {
			defer b.Close()
		}
		return fn(ctx, b)
	}

	rootCmd.AddCommand(
		newProjectCmd(withBackend),
		newGrantCmd(withBackend),
		newTopUpCmd(withBackend),
		newTokenCmd(withBackend),
		newAPIKeyCmd(withBackend),
		newMigrateCmd(withBackend),
	)
	return rootCmd
}

type runner func(cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error

func accountFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "account", "", "account id (UUID)")
	_ = cmd.MarkFlagRequired("account")
}

func parseAccount(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --account %q: %w", raw, err)
	}
	return id, nil
}

func newProjectCmd(run runner) *cobra.Command {
	var (
		account   string
		horizon   int
		dailyCost int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Print the delivery forecast for an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := parseAccount(account)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, b *backend) error {
				today := b.Projector.Today()
				entries, err := b.Projector.ComputeProjection(ctx, id, today, horizon, dailyCost)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}
				fmt.Fprintf(out, "today: %s  scheduled: %d\n", calendar.Format(today), scheduler.ScheduledCount(entries))
				tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", calendar.Format(e.Date), e.Date.Weekday().String()[:3], e.Status)
				}
				return tw.Flush()
			})
		},
	}
	accountFlag(cmd, &account)
	cmd.Flags().IntVar(&horizon, "horizon", 0, "days to forecast (0 uses the configured horizon)")
	cmd.Flags().IntVar(&dailyCost, "daily-cost", 0, "credits per delivery day (0 uses the active plan)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newGrantCmd(run runner) *cobra.Command {
	var (
		account string
		amount  int64
		expiry  string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant meal credits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := parseAccount(account)
			if err != nil {
				return err
			}
			exp, err := calendar.Parse(expiry)
			if err != nil {
				return fmt.Errorf("invalid --expiry: %w", err)
			}
			return run(cmd, func(ctx context.Context, b *backend) error {
				if err := b.Ledger.EnsureAccount(ctx, id); err != nil {
					return err
				}
				rec, err := b.Ledger.GrantCredits(ctx, id, amount, exp)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "credits: %d  expiry: %s\n", rec.Credits, calendar.Format(*rec.CreditExpiry))
				return nil
			})
		},
	}
	accountFlag(cmd, &account)
	cmd.Flags().Int64Var(&amount, "amount", 0, "credits to grant")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("expiry")
	return cmd
}

func newTopUpCmd(run runner) *cobra.Command {
	var (
		account string
		amount  int64
	)
	cmd := &cobra.Command{
		Use:   "topup",
		Short: "Add money to a wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := parseAccount(account)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, b *backend) error {
				if err := b.Ledger.EnsureAccount(ctx, id); err != nil {
					return err
				}
				balance, err := b.Ledger.CreditWallet(ctx, id, amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wallet_balance: %d\n", balance)
				return nil
			})
		},
	}
	accountFlag(cmd, &account)
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newTokenCmd(run runner) *cobra.Command {
	var (
		account string
		role    string
		ttl     string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := parseAccount(account)
			if err != nil {
				return err
			}
			d, err := parseTTL(ttl)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid --ttl %q", ttl)
			}
			return run(cmd, func(ctx context.Context, b *backend) error {
				token, err := b.Tokens.IssueToken(id, role, d)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	accountFlag(cmd, &account)
	cmd.Flags().StringVar(&role, "role", auth.RoleSubscriber, "token role")
	cmd.Flags().StringVar(&ttl, "ttl", "24h", "token lifetime, e.g. 90m or 7d")
	return cmd
}

func newAPIKeyCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage internal API keys",
	}

	var name, scope string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a key and print it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, key, err := middleware.NewAPIKey(name, scope)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, b *backend) error {
				if err := b.APIKeys.Create(ctx, key); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id: %s  scope: %s\n", key.ID, key.Scope)
				fmt.Fprintln(out, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "caller name, e.g. rider-app")
	create.Flags().StringVar(&scope, "scope", models.APIKeyScopeFulfillment, "fulfillment or admin")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, b *backend) error {
				keys, err := b.APIKeys.List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPREFIX\tNAME\tSCOPE\tACTIVE")
				for _, k := range keys {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", k.ID, k.KeyPrefix, k.Name, k.Scope, k.IsActive)
				}
				return tw.Flush()
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Deactivate a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q: %w", args[0], err)
			}
			return run(cmd, func(ctx context.Context, b *backend) error {
				if err := b.APIKeys.Deactivate(ctx, id); err != nil {
					return fmt.Errorf("revoke %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked: %s\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}

func newMigrateCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(_ context.Context, b *backend) error {
				if err := b.Migrate(0); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), b)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			return run(cmd, func(_ context.Context, b *backend) error {
				if err := b.Migrate(steps); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), b)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(_ context.Context, b *backend) error {
				return printVersion(cmd.OutOrStdout(), b)
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(out io.Writer, b *backend) error {
	v, dirty, err := b.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version: %d dirty: %t\n", v, dirty)
	return nil
}
