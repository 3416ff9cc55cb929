package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-rental-settlement/internal/config"
	"github.com/ariefcatur/go-rental-settlement/internal/holds"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/postgres"
	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "rentalctl",
	Short: "Operator tooling for the rental settlement service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(purgeHoldsCmd())
	rootCmd.AddCommand(quoteCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func purgeHoldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-holds",
		Short: "Delete expired reservation holds now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			db, err := postgres.Connect(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			s, err := holds.NewSweeper(&holds.Repo{DB: db}, cfg.HoldSweepSpec)
			if err != nil {
				return err
			}
			n, err := s.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired holds\n", n)
			return nil
		},
	}
}

func quoteCmd() *cobra.Command {
	var start, end string
	var items []string
	var hourly, asJSON bool
	var hours int

	cmd := &cobra.Command{
		Use:     "quote",
		Short:   "Price a cart against the live catalog",
		Example: "  rentalctl quote --start 2025-07-01T10:00:00Z --end 2025-07-04T10:00:00Z --item A:2 --item B:1",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildQuoteRequest(start, end, items)
			if err != nil {
				return err
			}
			req.Hourly, req.Hours = hourly, hours

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			db, err := postgres.Connect(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			q, err := pricing.NewEngine(&rentals.Repo{DB: db}).Compute(ctx, req)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}
			printQuote(cmd, q)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "range end (RFC3339)")
	cmd.Flags().StringArrayVar(&items, "item", nil, "product:quantity, repeatable")
	cmd.Flags().BoolVar(&hourly, "hourly", false, "bill by the hour where products allow it")
	cmd.Flags().IntVar(&hours, "hours", 0, "hour count for hourly billing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func buildQuoteRequest(start, end string, items []string) (pricing.Request, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return pricing.Request{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return pricing.Request{}, fmt.Errorf("invalid --end: %w", err)
	}
	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		id, n, ok := strings.Cut(it, ":")
		if !ok {
			n = "1"
		}
		qty, err := strconv.Atoi(n)
		if err != nil || id == "" {
			return pricing.Request{}, fmt.Errorf("invalid --item %q, want product:quantity", it)
		}
		lines = append(lines, pricing.Line{ProductID: id, Quantity: qty})
	}
	return pricing.Request{Start: s, End: e, Lines: lines}, nil
}

func printQuote(cmd *cobra.Command, q *pricing.Quote) {
	out := cmd.OutOrStdout()
	for _, l := range q.Lines {
		fmt.Fprintf(out, "%-12s %-10s %3d x %8s x %d = %10s\n",
			l.TenantID, l.ProductID, l.Quantity, l.UnitPrice.StringFixed(2), l.Periods, l.Total.StringFixed(2))
	}
	for _, b := range q.Breakdowns {
		fmt.Fprintf(out, "tenant %-12s total %10s deposit %10s\n", b.TenantID, b.Total.StringFixed(2), b.Deposit.StringFixed(2))
	}
	fmt.Fprintf(out, "total %s deposit %s (%d billable periods)\n", q.Total.StringFixed(2), q.Deposit.StringFixed(2), q.BillablePeriods)
}
