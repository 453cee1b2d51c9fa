package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apployalty "github.com/jackyeh168/storefront_loyalty/src/internal/application/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/httpapi"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/scheduler"
)

const timeLayout = "2006-01-02 15:04:05"

// ===========================
// serve
// ===========================

func newServeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(func(a *app) error {
				return serve(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from http.addr)")
	_ = c.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, a *app) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !a.cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := httpapi.NewHandler(a.engine, a.redemptions, a.inbox)
	router := httpapi.NewRouter(handler, prometheus.DefaultGatherer, a.logger, a.cfg.HTTP.CORSOrigins...)
	server := httpapi.NewServer(a.cfg.HTTP.Addr, router, a.cfg.HTTP.ShutdownTimeout, a.logger)

	sched := scheduler.New(scheduler.Config{
		Enabled: a.cfg.Scheduler.Enabled,
		Spec:    a.cfg.Scheduler.Spec,
	}, a.expiryReminder(), a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		if err := sched.Start(ctx); err != nil {
			return err
		}
		<-sched.Done()
		return nil
	})

	err := g.Wait()
	a.logger.Info("loyalty service stopped", zap.Error(err))
	return err
}

// ===========================
// earn
// ===========================

func newEarnCommand(c *cli) *cobra.Command {
	earn := &cobra.Command{
		Use:   "earn",
		Short: "Credit points to an account",
	}

	var orderID string
	purchase := &cobra.Command{
		Use:   "purchase <owner-id> <amount>",
		Short: "Credit points for a completed purchase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			return c.withApp(func(a *app) error {
				result, err := a.engine.EarnFromPurchase(cmd.Context(), apployalty.PurchaseCommand{
					OwnerID: args[0],
					OrderID: orderID,
					Amount:  amount,
				})
				if err != nil {
					return err
				}
				printEarnResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	purchase.Flags().StringVar(&orderID, "order", "", "order reference recorded in the ledger")

	review := &cobra.Command{
		Use:   "review <owner-id> <review-id>",
		Short: "Credit the fixed review bonus",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				result, err := a.engine.EarnFromReview(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				printEarnResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	referral := &cobra.Command{
		Use:   "referral <owner-id> <referred-id>",
		Short: "Credit the fixed referral bonus",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				result, err := a.engine.EarnFromReferral(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				printEarnResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	earn.AddCommand(purchase, review, referral)
	return earn
}

func printEarnResult(w io.Writer, result *apployalty.EarnPointsResult) {
	fmt.Fprintf(w, "earned %d points, balance %d, tier %s\n", result.PointsEarned, result.Balance, result.TierID)
	if result.TierChanged {
		fmt.Fprintf(w, "tier changed: %s -> %s\n", result.PreviousTierID, result.TierID)
	}
}

// ===========================
// redeem / use
// ===========================

func newRedeemCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <owner-id> <reward-id>",
		Short: "Redeem a catalog reward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				result, err := a.redemptions.Redeem(cmd.Context(), apployalty.RedeemRewardCommand{
					OwnerID:  args[0],
					RewardID: args[1],
				})
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "redemption %s\n", result.RedemptionID)
				fmt.Fprintf(w, "spent %d points, balance %d, tier %s\n", result.PointsSpent, result.Balance, result.TierID)
				fmt.Fprintf(w, "expires at %s\n", result.ExpiresAt.Local().Format(timeLayout))
				return nil
			})
		},
	}
}

func newUseCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "use <owner-id> <redemption-id>",
		Short: "Mark a redeemed reward as used",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				result, err := a.engine.MarkRewardUsed(cmd.Context(), apployalty.MarkRewardUsedCommand{
					OwnerID:      args[0],
					RedemptionID: args[1],
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "redemption %s (%s) used at %s\n",
					result.RedemptionID, result.RewardID, result.UsedAt.Local().Format(timeLayout))
				return nil
			})
		},
	}
}

// ===========================
// 查詢
// ===========================

func newBalanceCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <owner-id>",
		Short: "Show balance and tier progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				summary, err := a.engine.Summary(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "balance %d\n", summary.Balance)
				fmt.Fprintf(w, "tier %s (%s x%s)\n", summary.Tier.ID, summary.Tier.Name, summary.Tier.Multiplier.String())
				if summary.NextTier != nil {
					fmt.Fprintf(w, "next tier %s in %d points\n", summary.NextTier.ID, summary.PointsToNextTier)
				} else {
					fmt.Fprintln(w, "highest tier reached")
				}
				return nil
			})
		},
	}
}

func newHistoryCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history <owner-id>",
		Short: "List ledger entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				entries, err := a.engine.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
}

func printHistory(w io.Writer, entries []loyalty.LedgerEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no transactions")
		return
	}
	for _, entry := range entries {
		fmt.Fprintf(w, "%s  %-6s %+6d  %s\n",
			entry.Timestamp().Local().Format(timeLayout),
			entry.Kind(),
			entry.PointsDelta(),
			entry.Source(),
		)
	}
}

func newTiersCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List membership tiers and the reward catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(func(a *app) error {
				w := cmd.OutOrStdout()
				for _, tier := range a.engine.Tiers() {
					fmt.Fprintf(w, "%-8s %6d+  x%s\n", tier.ID, tier.MinPoints, tier.Multiplier.String())
				}
				fmt.Fprintln(w)
				for _, reward := range a.engine.Catalog() {
					fmt.Fprintf(w, "%-14s %6d  %s\n", reward.ID, reward.PointCost, reward.Name)
				}
				return nil
			})
		},
	}
}

// ===========================
// remind
// ===========================

func newRemindCommand(c *cli) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send expiry reminders once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(func(a *app) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				sent, err := a.expiryReminder().RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d reminders\n", sent)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "scan timeout")
	return cmd
}
