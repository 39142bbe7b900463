package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/loyalty-rewards/internal/api"
	"github.com/ignite/loyalty-rewards/internal/config"
	"github.com/ignite/loyalty-rewards/internal/ledger"
	"github.com/ignite/loyalty-rewards/internal/loyalty"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
	"github.com/ignite/loyalty-rewards/internal/shopify"
	"github.com/ignite/loyalty-rewards/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	once := flag.Bool("once", false, "run the reward pipeline once and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatal("failed to load configuration", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting loyalty rewards worker", "shop", cfg.Shopify.ShopName, "ledger", cfg.Ledger.Type)

	// Ledger
	store, closeStore, err := ledger.NewStore(ctx, cfg.Ledger, cfg.Rewards.RecordMaxAge())
	if err != nil {
		fatal("failed to initialize ledger store", err)
	}
	defer closeStore()

	sendLedger, err := ledger.Open(ctx, store)
	if err != nil {
		fatal("failed to load ledger", err)
	}

	// Shopify: the run cannot do anything useful without it
	shop := shopify.NewClient(shopify.Config{
		ShopName:       cfg.Shopify.ShopName,
		AccessToken:    cfg.Shopify.AccessToken,
		APIVersion:     cfg.Shopify.APIVersion,
		BaseURL:        cfg.Shopify.BaseURL,
		CouponValidity: cfg.Rewards.CouponValidity(),
		Timeout:        cfg.Shopify.Timeout(),
		MaxRetries:     cfg.Shopify.MaxRetries,
	})
	if err := shop.Ping(ctx); err != nil {
		fatal("could not connect to shopify", err)
	}

	// Offers and delivery
	tiers := cfg.Rewards.LoyaltyTiers()
	renderer, err := loyalty.NewMessageRenderer(loyalty.MessageOptions{
		Template:     cfg.Rewards.MessageTemplate,
		StoreName:    cfg.Rewards.StoreName,
		SupportPhone: cfg.Rewards.SupportPhone,
		DateLayout:   cfg.Rewards.DateLayout,
	})
	if err != nil {
		fatal("invalid message template", err)
	}
	generator := loyalty.NewOfferGenerator(tiers, sendLedger, shop, renderer, cfg.Shopify.ShopURL)

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		fatal("failed to initialize notifier", err)
	}
	pacer := worker.NewPacer(generator, notifier, cfg.Pacing.MinDelay(), cfg.Pacing.MaxDelay())
	pacer.SetSubject(cfg.SES.Subject)

	lock, closeLock, err := buildLock(ctx, cfg.Lock)
	if err != nil {
		fatal("failed to initialize run lock", err)
	}
	defer closeLock()

	runner := worker.NewRunner(shop, pacer, sendLedger, worker.RunnerOptions{
		Lock:        lock,
		LockTTL:     cfg.Lock.TTL(),
		MaxAge:      cfg.Rewards.RecordMaxAge(),
		CountryCode: cfg.Rewards.PhoneCountryCode,
	})

	if *once {
		if _, err := runner.RunOnce(ctx); err != nil {
			fatal("reward run failed", err)
		}
		return
	}

	loc, _ := cfg.Schedule.Location()
	scheduler, err := worker.NewScheduler(runner.RunOnce, cfg.Schedule.At, loc)
	if err != nil {
		fatal("invalid schedule", err)
	}
	scheduler.Start(ctx)

	var server *api.Server
	if cfg.Server.Enabled {
		handlers := api.NewHandlers(ctx, sendLedger, tiers, runner, cfg.Rewards.RecordMaxAge())
		server = api.NewServer(cfg.Server, handlers)
		go func() {
			logger.Info("admin server listening", "addr", cfg.Server.Addr())
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server error", "error", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown error", "error", err)
		}
		shutdownCancel()
	}
	scheduler.Stop()
	logger.Info("stopped")
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
