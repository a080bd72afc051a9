package scoring

import "exchange_go/internal/domain"

// ScoreSink receives append-only scoreboard rows. Implemented by the event
// store; a no-op sink is used in tests.
type ScoreSink interface {
	AppendScore(row domain.ScoreRow)
}

// ScoreBoard turns account state into scoreboard rows at a fixed cadence
// and on terminal events. Rows are never revised after being written.
type ScoreBoard struct {
	sink ScoreSink
}

// NewScoreBoard creates a scoreboard writing to the given sink.
func NewScoreBoard(sink ScoreSink) *ScoreBoard {
	return &ScoreBoard{sink: sink}
}

func (s *ScoreBoard) row(now float64, team, op string, a *Account, etfPrice, futurePrice int64, status string) domain.ScoreRow {
	return domain.ScoreRow{
		Time:           now,
		Team:           team,
		Operation:      op,
		BuyVolume:      a.BuyVolume,
		SellVolume:     a.SellVolume,
		EtfPosition:    a.EtfPosition,
		FuturePosition: a.FuturePosition,
		EtfPrice:       etfPrice,
		FuturePrice:    futurePrice,
		TotalFees:      a.TotalFees,
		Balance:        a.Balance,
		ProfitLoss:     a.ProfitOrLoss,
		Status:         status,
	}
}

// Tick appends the periodic snapshot for one team.
func (s *ScoreBoard) Tick(now float64, team string, a *Account, etfPrice, futurePrice int64, status string) {
	s.sink.AppendScore(s.row(now, team, domain.ScoreOpTick, a, etfPrice, futurePrice, status))
}

// Disconnect appends the row recorded when a team's session closes.
func (s *ScoreBoard) Disconnect(now float64, team string, a *Account, etfPrice, futurePrice int64) {
	s.sink.AppendScore(s.row(now, team, domain.ScoreOpDisconnect, a, etfPrice, futurePrice, ""))
}

// Breach appends the row recorded when a team breaches a hard limit.
func (s *ScoreBoard) Breach(now float64, team string, a *Account, etfPrice, futurePrice int64) {
	s.sink.AppendScore(s.row(now, team, domain.ScoreOpBreach, a, etfPrice, futurePrice, "BREACH"))
}
