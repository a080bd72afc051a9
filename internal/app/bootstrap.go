package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"exchange_go/internal/book"
	"exchange_go/internal/domain"
	"exchange_go/internal/engine"
	"exchange_go/internal/event"
	"exchange_go/internal/feed"
	"exchange_go/internal/infra"
	"exchange_go/internal/replay"
	"exchange_go/internal/scoring"
	"exchange_go/internal/session"
	"exchange_go/internal/storage"
)

const inboxSize = 1024

// Bootstrap orchestrates the exchange startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Store     *storage.EventStore
	Publisher *feed.Publisher
	Reader    *replay.MarketEventsReader
	Sequencer *engine.Sequencer
	Server    *session.Server
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration and wires every component of a match.
// Any error here is fatal: no trader connection is accepted.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping the exchange...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	b.Logger = logger

	event.Warmup()

	store, err := storage.NewEventStore(cfg.Engine.MatchDatabase)
	if err != nil {
		return fmt.Errorf("open match database: %w", err)
	}
	b.Store = store
	slog.Info("✅ Match database initialized", "path", cfg.Engine.MatchDatabase)

	publisher, err := feed.NewPublisher(cfg.Information.Name)
	if err != nil {
		return fmt.Errorf("open information channel: %w", err)
	}
	b.Publisher = publisher
	slog.Info("✅ Information channel ready", "path", cfg.Information.Name)

	// The future book trades without fees; only the ETF book charges the
	// configured maker and taker rates.
	futureBook := book.New(domain.InstrumentFuture, decimal.Zero, decimal.Zero)
	etfBook := book.New(domain.InstrumentEtf, cfg.Fees.Maker, cfg.Fees.Taker)

	recorder := storage.NewMatchRecorder(store)
	scoreBoard := scoring.NewScoreBoard(store)

	b.Reader = replay.NewMarketEventsReader(cfg.Engine.MarketDataFile, logger, futureBook, etfBook, recorder)

	roster := make(map[string]string, len(cfg.Traders))
	for _, t := range cfg.Traders {
		roster[t.Name] = t.Secret
	}

	b.Sequencer = engine.NewSequencer(engine.SequencerConfig{
		InboxSize:           inboxSize,
		Speed:               cfg.Engine.Speed,
		TickInterval:        cfg.Engine.TickInterval,
		MarketEventInterval: cfg.Engine.MarketEventInterval,
		MatchDuration:       cfg.Engine.MatchDuration,
		FutureBook:          futureBook,
		EtfBook:             etfBook,
		Reader:              b.Reader,
		Recorder:            recorder,
		ScoreBoard:          scoreBoard,
		Publisher:           publisher,
		Spec:                cfg.InstrumentSpec(),
		Limits:              cfg.RiskLimits(),
		Roster:              roster,
		Clock:               infra.RealClock{},
		Logger:              logger,
	})

	b.Server = session.NewServer(cfg.Execution.Host, cfg.Execution.Port, b.Sequencer, logger)
	return nil
}

// Run plays the match to completion. It blocks until the match ends or the
// context is cancelled, then flushes and closes every writer.
func (b *Bootstrap) Run(ctx context.Context) error {
	if err := b.Reader.Start(); err != nil {
		return err
	}

	go func() {
		if err := b.Server.Start(); err != nil {
			slog.Error("execution server failed", slog.Any("error", err))
		}
	}()

	// Give the autotraders time to start up and connect
	delay := time.Duration(b.Config.Engine.MarketOpenDelay * float64(time.Second))
	slog.Info("waiting for autotraders", "delay", delay)
	select {
	case <-ctx.Done():
		return b.shutdown(ctx.Err())
	case <-time.After(delay):
	}

	err := b.Sequencer.Run(ctx)
	return b.shutdown(err)
}

func (b *Bootstrap) shutdown(runErr error) error {
	slog.Info("👋 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.Any("error", err))
	}
	if err := b.Store.Close(); err != nil {
		slog.Error("match database close failed", slog.Any("error", err))
	}
	if err := b.Publisher.Close(); err != nil {
		slog.Error("information channel close failed", slog.Any("error", err))
	}

	snap := infra.GlobalMetrics.Snapshot()
	slog.Info("match summary",
		"events", snap.EventsProcessed,
		"trades", snap.TradesExecuted,
		"rejections", snap.OrdersRejected,
		"errors", snap.ErrorsTotal,
		"avg_latency_ns", snap.AvgLatencyNs)

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

// Replay re-derives every team's result from the recorded event log and
// checks it against the recorded scoreboard.
func (b *Bootstrap) Replay() error {
	results, err := replay.NewReplayer(b.Store, b.Config.InstrumentSpec(), b.Logger).Run()
	if err != nil {
		return err
	}
	for team, res := range results {
		slog.Info("replayed result",
			"team", team,
			"profit", res.Account.ProfitOrLoss,
			"balance", res.Account.Balance,
			"fees", res.Account.TotalFees,
			"etf_position", res.Account.EtfPosition,
			"future_position", res.Account.FuturePosition)
	}
	if err := replay.NewReplayer(b.Store, b.Config.InstrumentSpec(), b.Logger).Verify(); err != nil {
		return fmt.Errorf("replay verification: %w", err)
	}
	slog.Info("✅ Replay matches the recorded scoreboard")
	return nil
}
