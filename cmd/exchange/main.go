package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"exchange_go/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/exchange.yaml", "path to the match configuration file")
	replayMode := flag.Bool("replay", false, "re-derive results from the recorded event log instead of running a match")
	flag.Parse()

	// Pprof server (for performance profiling), localhost only
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if *replayMode {
		if err := bootstrap.Replay(); err != nil {
			slog.Error("❌ Replay failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("✨ Exchange ready. Press Ctrl+C to stop the match.")
	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("❌ Match failed", slog.Any("error", err))
		os.Exit(1)
	}
}
