package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/app/bootstrap"
	"github.com/fridahub/retrieval-go/internal/di"
	"github.com/fridahub/retrieval-go/internal/logger"
)

func main() {
	var source = flag.String("source", "all", "Sync source: address, prompt, wiki, all")
	flag.Parse()

	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := di.Invoke(func(syncers *di.Syncers) error {
		return runSync(ctx, syncers, *source)
	}); err != nil {
		logger.Error("Sync failed", zap.String("source", *source), zap.Error(err))
		app.Shutdown()
		os.Exit(1)
	}
}

func runSync(ctx context.Context, syncers *di.Syncers, source string) error {
	switch source {
	case "address":
		return syncAddresses(ctx, syncers)
	case "prompt":
		return syncPrompts(ctx, syncers)
	case "wiki":
		return syncWiki(ctx, syncers)
	case "all":
		if err := syncAddresses(ctx, syncers); err != nil {
			return err
		}
		if err := syncPrompts(ctx, syncers); err != nil {
			return err
		}
		return syncWiki(ctx, syncers)
	default:
		fmt.Println("Available sources: address, prompt, wiki, all")
		return fmt.Errorf("unknown source: %s", source)
	}
}

func syncAddresses(ctx context.Context, syncers *di.Syncers) error {
	report, err := syncers.Address.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Addresses: fetched=%d inserted=%d skipped=%d\n",
		report.Fetched, report.Inserted, report.Skipped)
	return nil
}

func syncPrompts(ctx context.Context, syncers *di.Syncers) error {
	inserted, err := syncers.Prompt.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Prompts: inserted=%d\n", inserted)
	return nil
}

func syncWiki(ctx context.Context, syncers *di.Syncers) error {
	report, err := syncers.Wiki.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Wiki: imported=%d topics=%d deduplicated=%d\n",
		report.Imported, report.TopicCount, report.Deleted)
	return nil
}
