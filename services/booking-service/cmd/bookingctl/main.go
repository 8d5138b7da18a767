// Command bookingctl is the operator CLI for the booking core: it inspects and
// replays the webhook ledger, frees stale reservations and seeds tenants.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/you/wedding-booking/pkg/commission"
	"github.com/you/wedding-booking/pkg/config"
	"github.com/you/wedding-booking/pkg/db"
	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/payment"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
	"github.com/you/wedding-booking/services/booking-service/internal/service"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "bookingctl",
		Short:   "Operate the wedding booking core",
		Version: Version,
	}

	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (config.App, *repository.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	gdb, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return cfg, nil, err
	}
	store := repository.NewStore(gdb)
	return cfg, store, store.Migrate()
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and replay webhook ledger rows",
	}
	cmd.AddCommand(ledgerListCmd())
	cmd.AddCommand(ledgerReplayCmd())
	return cmd
}

func ledgerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger rows, failed ones by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			if status == "all" {
				status = ""
			}
			_, store, err := openStore()
			if err != nil {
				return err
			}
			events, err := store.Ledger.List(cmd.Context(), domain.LedgerStatus(status), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tEVENT\tTYPE\tSTATUS\tATTEMPTS\tLAST ERROR")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", e.ID, e.Provider, e.ProviderEventID, e.EventType, e.Status, e.Attempts, e.LastError)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringP("status", "s", string(domain.LedgerFailed), "received, processed, failed or all")
	cmd.Flags().IntP("limit", "n", 50, "Maximum rows")
	return cmd
}

func ledgerReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [ledger-id]",
		Short: "Re-run a ledgered event through the reconciler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openStore()
			if err != nil {
				return err
			}
			gw, err := payment.FromConfig(cfg)
			if err != nil {
				return err
			}
			out, err := service.NewReconciler(store, gw).Reprocess(cmd.Context(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", out)
			return err
		},
	}
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release PENDING reservations older than the checkout TTL plus grace",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			cfg, store, err := openStore()
			if err != nil {
				return err
			}
			n, err := service.NewCoordinator(store).ExpireStale(cmd.Context(), time.Now().UTC().Add(-cfg.StaleAfter()), limit)
			fmt.Fprintf(cmd.OutOrStdout(), "released: %d\n", n)
			return err
		},
	}
	cmd.Flags().IntP("limit", "n", 100, "Maximum bookings to release")
	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenant commission profiles",
	}
	upsert := &cobra.Command{
		Use:   "upsert [tenant-id]",
		Short: "Create or update a tenant's commission rate and payout account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			rate, _ := cmd.Flags().GetString("commission")
			account, _ := cmd.Flags().GetString("account")
			lead, _ := cmd.Flags().GetInt("min-lead-days")

			pct, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("commission: %w", err)
			}
			if _, err := commission.Calculate(0, pct); err != nil {
				return err
			}
			_, store, err := openStore()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return store.Tenants.Upsert(ctx, &domain.Tenant{
				ID:                 args[0],
				Name:               name,
				CommissionPercent:  pct,
				ConnectedAccountID: account,
				MinLeadDays:        lead,
			})
		},
	}
	upsert.Flags().String("name", "", "Display name")
	upsert.Flags().StringP("commission", "c", "10", "Commission percent, 0-100")
	upsert.Flags().String("account", "", "Connected payout account (empty for direct charge)")
	upsert.Flags().Int("min-lead-days", 0, "Minimum days between checkout and event date")
	cmd.AddCommand(upsert)
	return cmd
}
