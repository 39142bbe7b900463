package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ignite/loyalty-rewards/internal/config"
	"github.com/ignite/loyalty-rewards/internal/ledger"
	"github.com/ignite/loyalty-rewards/internal/shopify"
)

// migrate copies a JSON ledger file into the store configured in
// config.yaml, creating the Postgres table when needed.
func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	from := flag.String("from", "sent_offers.json", "JSON ledger file to import; the ledger is keyed by Shopify customer id, so files keyed by e-mail need -resolve-emails")
	resolveEmails := flag.Bool("resolve-emails", false, "map e-mail keys to Shopify customer ids, dropping unknown customers")
	listOnly := flag.Bool("list", false, "print the destination ledger and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dst, closeDst, err := ledger.NewStore(ctx, cfg.Ledger, cfg.Rewards.RecordMaxAge())
	if err != nil {
		log.Fatalf("open %s ledger: %v", cfg.Ledger.Type, err)
	}
	defer closeDst()

	if *listOnly {
		l, err := ledger.Open(ctx, dst)
		if err != nil {
			log.Fatalf("load ledger: %v", err)
		}
		for _, rec := range l.Records() {
			fmt.Printf("  %-20s %s\n", rec.CustomerID, rec.SentAt.Format(time.RFC3339))
		}
		fmt.Printf("Total: %d records\n", l.Len())
		return
	}

	if cfg.Ledger.Type == "file" && cfg.Ledger.Path == *from {
		log.Fatalf("source and destination are the same file: %s", *from)
	}

	var resolve ledger.KeyResolver
	if *resolveEmails {
		shop := shopify.NewClient(shopify.Config{
			ShopName:    cfg.Shopify.ShopName,
			AccessToken: cfg.Shopify.AccessToken,
			APIVersion:  cfg.Shopify.APIVersion,
			BaseURL:     cfg.Shopify.BaseURL,
			Timeout:     cfg.Shopify.Timeout(),
			MaxRetries:  cfg.Shopify.MaxRetries,
		})
		resolve = shop.CustomerIDByEmail
	}

	rep, err := ledger.MigrateResolved(ctx, ledger.NewFileStore(*from), dst, resolve)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("Migrated ledger from %s into %s store: %d records (%d e-mails resolved, %d dropped)",
		*from, cfg.Ledger.Type, rep.Written, rep.Resolved, rep.Dropped)
}
