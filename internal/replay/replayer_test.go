package replay

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"exchange_go/internal/domain"
	"exchange_go/internal/storage"
)

func testSpec() domain.InstrumentSpec {
	return domain.InstrumentSpec{
		TickSizeCents: 10,
		EtfClamp:      decimal.RequireFromString("0.002"),
	}
}

func newReplayStore(t *testing.T) *storage.EventStore {
	t.Helper()
	s, err := storage.NewEventStore(filepath.Join(t.TempDir(), "match.db"))
	if err != nil {
		t.Fatalf("NewEventStore: %v", err)
	}
	return s
}

func TestReplayRebuildsAccounts(t *testing.T) {
	store := newReplayStore(t)

	// Team A buys 10 ETF at 100.00 paying a 20 cent fee, then hedges by
	// selling 10 futures at 100.10.
	store.AppendMatchEvent(domain.MatchEventRow{
		Seq: 1, Time: 1.0, Competitor: "A", Operation: domain.OpTrade,
		OrderID: 1, Instrument: "ETF", Side: "B", Volume: 10, Price: 10000, Fee: 20,
	})
	store.AppendMatchEvent(domain.MatchEventRow{
		Seq: 2, Time: 1.5, Competitor: "A", Operation: domain.OpHedge,
		OrderID: 2, Instrument: "FUTURE", Side: "A", Volume: 10, Price: 10010,
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	results, err := NewReplayer(store, testSpec(), slog.Default()).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res, ok := results["A"]
	if !ok {
		t.Fatal("no result for team A")
	}
	if res.Account.EtfPosition != 10 || res.Account.FuturePosition != -10 {
		t.Errorf("positions = %d etf / %d future, want 10/-10",
			res.Account.EtfPosition, res.Account.FuturePosition)
	}
	if res.Account.Balance != -100020+100100 {
		t.Errorf("balance = %d, want 80", res.Account.Balance)
	}
	if res.Account.TotalFees != 20 {
		t.Errorf("fees = %d, want 20", res.Account.TotalFees)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	store := newReplayStore(t)

	rows := []domain.MatchEventRow{
		{Seq: 1, Time: 0.5, Competitor: "A", Operation: domain.OpTrade, OrderID: 1,
			Instrument: "ETF", Side: "B", Volume: 5, Price: 9990, Fee: 10},
		{Seq: 2, Time: 0.7, Competitor: "B", Operation: domain.OpTrade, OrderID: 1,
			Instrument: "ETF", Side: "A", Volume: -5, Price: 9990, Fee: -5},
		{Seq: 3, Time: 0.9, Competitor: "A", Operation: domain.OpHedge, OrderID: 2,
			Instrument: "FUTURE", Side: "A", Volume: 5, Price: 10000},
	}
	for _, row := range rows {
		store.AppendMatchEvent(row)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	spec := testSpec()
	first, err := NewReplayer(store, spec, slog.Default()).Run()
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := NewReplayer(store, spec, slog.Default()).Run()
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	for team, res := range first {
		other, ok := second[team]
		if !ok {
			t.Fatalf("team %s missing from the second run", team)
		}
		a, b := res.Account, other.Account
		if a.Balance != b.Balance || a.ProfitOrLoss != b.ProfitOrLoss ||
			a.EtfPosition != b.EtfPosition || a.FuturePosition != b.FuturePosition ||
			a.TotalFees != b.TotalFees {
			t.Errorf("team %s: runs diverge: %+v vs %+v", team, a, b)
		}
	}
}

func TestVerifyAgainstRecordedScores(t *testing.T) {
	store := newReplayStore(t)

	store.AppendMatchEvent(domain.MatchEventRow{
		Seq: 1, Time: 1.0, Competitor: "A", Operation: domain.OpTrade,
		OrderID: 1, Instrument: "ETF", Side: "B", Volume: 10, Price: 10000, Fee: 0,
	})
	// Final recorded score: balance -100000 + 10 * clamped mark.
	spec := testSpec()
	clamped := spec.ClampEtfPrice(10000, 10005)
	store.AppendScore(domain.ScoreRow{
		Time: 2.0, Team: "A", Operation: domain.ScoreOpTick,
		EtfPrice: 10005, FuturePrice: 10000, ProfitLoss: -100000 + 10*clamped,
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := NewReplayer(store, spec, slog.Default()).Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	store := newReplayStore(t)

	store.AppendMatchEvent(domain.MatchEventRow{
		Seq: 1, Time: 1.0, Competitor: "A", Operation: domain.OpTrade,
		OrderID: 1, Instrument: "ETF", Side: "B", Volume: 10, Price: 10000, Fee: 0,
	})
	store.AppendScore(domain.ScoreRow{
		Time: 2.0, Team: "A", Operation: domain.ScoreOpTick,
		EtfPrice: 10000, FuturePrice: 10000, ProfitLoss: 999999,
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := NewReplayer(store, testSpec(), slog.Default()).Verify(); err == nil {
		t.Error("Verify must fail when the scoreboard disagrees with the log")
	}
}
