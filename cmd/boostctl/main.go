// Command boostctl runs operator tasks against the boost billing data.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"vowlist-service/internal/billing/stripe"
	"vowlist-service/internal/config"
	"vowlist-service/internal/db"
	"vowlist-service/internal/domain/subscription"
	"vowlist-service/internal/pkg/jwt"
	"vowlist-service/internal/pkg/lock"
	"vowlist-service/internal/repository/postgres"
	subscriptionUsecase "vowlist-service/internal/service/subscription"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "boostctl",
		Short:         "Operator tools for boost subscriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(reconcileCmd(), entitlementCmd(), tokenCmd())
	return cmd
}

type deps struct {
	cfg        config.AppConfig
	logger     *zap.Logger
	subs       *postgres.SubscriptionRepository
	providers  *postgres.ProviderRepository
	reconciler *subscriptionUsecase.Reconciler
	close      func()
}

func connect(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	pool, err := db.ConnectDB(ctx, db.PostgresConfig{URL: cfg.DatabaseURL, MaxConns: 2})
	if err != nil {
		return nil, err
	}
	redisClient, err := db.NewRedisClient(ctx, db.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}

	subs := postgres.NewSubscriptionRepository(pool)
	users := postgres.NewUserRepository(pool)
	billingClient := stripe.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil, logger)
	locker := lock.NewLocker(redisClient, cfg.ReconcileLockTTL, cfg.ReconcileLockWait)

	return &deps{
		cfg:        cfg,
		logger:     logger,
		subs:       subs,
		providers:  postgres.NewProviderRepository(pool),
		reconciler: subscriptionUsecase.NewReconciler(subs, users, billingClient, locker, logger),
		close: func() {
			_ = redisClient.Close()
			pool.Close()
			_ = logger.Sync()
		},
	}, nil
}

func parseUserIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reconcileCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile USER_ID...",
		Short: "Reconcile boost subscriptions against billing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseUserIDs(args)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d, err := connect(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			failed := 0
			for _, id := range ids {
				sub, err := d.reconciler.Reconcile(ctx, id)
				if err != nil {
					failed++
					d.logger.Error("reconcile failed", zap.Int64("user_id", id), zap.Error(err))
					continue
				}
				fmt.Printf("user %d: status=%s limit=%d\n",
					id, sub.Status, subscription.UsableEntitlement(sub, time.Now()))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d reconciles failed", failed, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout")
	return cmd
}

func entitlementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entitlement USER_ID",
		Short: "Show the stored boost row and derived entitlement without calling billing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseUserIDs(args)
			if err != nil {
				return err
			}

			d, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			sub, err := d.subs.FindByUserAndType(cmd.Context(), ids[0], subscription.ProductLineBoost)
			if err != nil {
				return fmt.Errorf("failed to load subscription: %w", err)
			}
			used, err := d.providers.CountBoostedByOwner(cmd.Context(), ids[0])
			if err != nil {
				return err
			}

			return printJSON(subscription.BoostSubscriptionResponse{
				Subscription: sub,
				Entitlement:  subscription.Summarize(sub, used, time.Now()),
			})
		},
	}
}

// tokenCmd mints an access token for local testing; it needs JWT_PRIVATE_KEY_PATH.
func tokenCmd() *cobra.Command {
	var (
		email string
		roles string
	)

	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint a development access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseUserIDs(args)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			manager, err := jwt.LoadAndBuild(cfg.JWT)
			if err != nil {
				return err
			}
			if manager.Generator == nil {
				return fmt.Errorf("JWT_PRIVATE_KEY_PATH is not set")
			}

			token, _, err := manager.Generator.GenerateAccessToken(ids[0], email, strings.Split(roles, ","))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&roles, "roles", "user", "Comma separated roles")
	return cmd
}
