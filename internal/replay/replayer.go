package replay

import (
	"fmt"
	"log/slog"

	"exchange_go/internal/domain"
	"exchange_go/internal/scoring"
	"exchange_go/internal/storage"
)

// Replayer re-derives per-team results from the match event log alone. A
// second run over the same log must produce identical results; any drift
// against the recorded scoreboard means the log and the live match disagree.
type Replayer struct {
	store  *storage.EventStore
	spec   domain.InstrumentSpec
	logger *slog.Logger
}

// ReplayResult is the outcome of replaying one team's events.
type ReplayResult struct {
	Team    string
	Account *scoring.Account
}

func NewReplayer(store *storage.EventStore, spec domain.InstrumentSpec, logger *slog.Logger) *Replayer {
	return &Replayer{store: store, spec: spec, logger: logger.With("component", "replayer")}
}

// Run walks the event log in sequence order and rebuilds every team's
// account, then marks each to market at the last observed prices.
func (r *Replayer) Run() (map[string]*ReplayResult, error) {
	rows, err := r.store.LoadMatchEvents()
	if err != nil {
		return nil, fmt.Errorf("load match events: %w", err)
	}

	results := make(map[string]*ReplayResult)
	var lastFuturePrice, lastEtfPrice int64

	for _, row := range rows {
		if row.Operation == domain.OpTrade {
			if row.Instrument == domain.InstrumentFuture.String() {
				lastFuturePrice = row.Price
			} else {
				lastEtfPrice = row.Price
			}
		}
		if row.Competitor == "" {
			continue
		}

		res, ok := results[row.Competitor]
		if !ok {
			res = &ReplayResult{Team: row.Competitor, Account: scoring.NewAccount(r.spec)}
			results[row.Competitor] = res
		}

		switch row.Operation {
		case domain.OpTrade:
			res.Account.Transact(parseInstrument(row.Instrument), parseRowSide(row.Side),
				row.Price, abs64(row.Volume), row.Fee)
		case domain.OpHedge:
			res.Account.Transact(domain.InstrumentFuture, parseRowSide(row.Side),
				row.Price, row.Volume, 0)
			lastFuturePrice = row.Price
		}
	}

	for _, res := range results {
		res.Account.MarkToMarket(lastFuturePrice, lastEtfPrice)
	}

	r.logger.Info("replay complete", "events", len(rows), "teams", len(results))
	return results, nil
}

// Verify replays the log and compares each team's recomputed profit against
// the recorded final scoreboard row.
func (r *Replayer) Verify() error {
	results, err := r.Run()
	if err != nil {
		return err
	}
	finals, err := r.store.FinalScores()
	if err != nil {
		return fmt.Errorf("load final scores: %w", err)
	}

	for team, final := range finals {
		res, ok := results[team]
		if !ok {
			if final.ProfitLoss != 0 {
				return fmt.Errorf("team %s: no events in log but recorded profit %d", team, final.ProfitLoss)
			}
			continue
		}
		// Revalue at the prices the live run recorded so the comparison
		// only tests the event log itself.
		res.Account.MarkToMarket(final.FuturePrice, final.EtfPrice)
		if res.Account.ProfitOrLoss != final.ProfitLoss {
			return fmt.Errorf("team %s: replayed profit %d does not match recorded %d",
				team, res.Account.ProfitOrLoss, final.ProfitLoss)
		}
	}
	return nil
}

func parseInstrument(s string) domain.Instrument {
	if s == domain.InstrumentEtf.String() {
		return domain.InstrumentEtf
	}
	return domain.InstrumentFuture
}

func parseRowSide(s string) domain.Side {
	if s == domain.SideBuy.String() {
		return domain.SideBuy
	}
	return domain.SideSell
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
