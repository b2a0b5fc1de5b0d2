package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	"storefront/internal/infra/gateway"
	"storefront/internal/infra/mailer"
	"storefront/internal/infra/rabbitmq"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

// ゲストカートの保持期間
const guestCartTTL = 30 * 24 * time.Hour

func main() {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Order and payment API for the 3D print storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			//.envは無くてもよい（本番は環境変数）
			_ = godotenv.Load()
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
		},
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			gormDB, err := db.Connect(cfg)
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			if err := db.Migrate(gormDB); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			slog.Info("migration finished")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "run migrations before serving")
	return cmd
}

func runServer(ctx context.Context, autoMigrate bool) error {
	log := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if autoMigrate {
		if err := db.Migrate(gormDB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	//Repository（GORM実装）生成
	catalogRepo := infraRepo.NewCatalogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)
	userCarts := infraRepo.NewCartGormRepository(gormDB)

	//ゲストカート（Redisが無ければ使えない）
	var guestCarts repository.CartStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, guest carts disabled", "error", err)
		} else {
			guestCarts = infraRepo.NewCartRedisRepository(rdb, guestCartTTL)
		}
	}

	//イベント送信（RabbitMQが無ければ捨てる）
	var events usecase.EventPublisher = rabbitmq.NopPublisher{}
	if cfg.AMQPURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Warn("rabbitmq unavailable, events disabled", "error", err)
		} else {
			defer pub.Close()
			events = pub
		}
	}

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}

	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayTimeout)
	mail := mailer.NewClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom, cfg.GatewayTimeout)
	notifier := usecase.NewNotifier(mail, usecase.DefaultEmailTemplates(), log, 0)

	//Usecase生成
	pricer := usecase.NewPricer(catalogRepo, cfg.MaxLineQuantity)
	orderUC := usecase.NewOrderUsecase(pricer, txm, idGen, clock, events, log)
	checkoutUC := usecase.NewCheckoutUsecase(txm, gw, usecase.CheckoutConfig{
		Currency:              cfg.GatewayCurrency,
		DefaultSuccessURL:     cfg.FEURL + "/checkout/success",
		DefaultFailureURL:     cfg.FEURL + "/checkout/failure",
		WebhookURL:            cfg.WebhookURL(),
		AllowedRedirectOrigin: cfg.FEURL,
	}, log)
	webhookUC := usecase.NewWebhookUsecase(txm, cfg.GatewaySecretKey, cfg.PaymentMethod, clock, events, log)
	cartUC := usecase.NewCartUsecase(userCarts, guestCarts, pricer)

	//トリガー経由で通知する構成なら、管理APIからは送らない（二重送信になる）
	var adminNotifier usecase.StatusNotifier = notifier
	var notifyH *handler.NotifyHandler
	if cfg.NotifyHookSecret != "" {
		adminNotifier = nil
		notifyH = handler.NewNotifyHandler(notifier, cfg.NotifyHookSecret, log)
	}
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, adminNotifier, clock)

	//Handler生成
	e := server.New(cfg, server.Handlers{
		Order:      handler.NewOrderHandler(orderUC),
		Checkout:   handler.NewCheckoutHandler(checkoutUC),
		Webhook:    handler.NewWebhookHandler(webhookUC),
		Cart:       handler.NewCartHandler(cartUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
		Notify:     notifyH,
	}, log)

	return server.Start(ctx, e, cfg.Port, log)
}
