package domain

// Match event operations as stored in the event log.
const (
	OpInsert = "Insert"
	OpAmend  = "Amend"
	OpCancel = "Cancel"
	OpHedge  = "Hedge"
	OpTrade  = "Trade"
)

// MatchEventRow is one row of the append-only match event log. Rows are
// written in the exact order the matching loop processes events; Seq is the
// loop's monotonic sequence number. The log is the sole input to replay.
type MatchEventRow struct {
	Seq        uint64  `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Time       float64 `json:"time"`
	Competitor string  `gorm:"index" json:"competitor"` // empty for market data
	Operation  string  `json:"operation"`
	OrderID    uint32  `json:"order_id"`
	Instrument string  `json:"instrument,omitempty"`
	Side       string  `json:"side,omitempty"`
	Volume     int64   `json:"volume"`
	Price      int64   `json:"price,omitempty"`
	Lifespan   string  `json:"lifespan,omitempty"`
	Fee        int64   `json:"fee,omitempty"`
}

// Scoreboard operations.
const (
	ScoreOpTick       = "Tick"
	ScoreOpDisconnect = "Disconnect"
	ScoreOpBreach     = "Breach"
)

// ScoreRow is one scoreboard snapshot for one team. Appended at a fixed
// cadence and on disconnect/breach; never revised after write.
type ScoreRow struct {
	ID             uint64  `gorm:"primaryKey" json:"id"`
	Time           float64 `json:"time"`
	Team           string  `gorm:"index" json:"team"`
	Operation      string  `json:"operation"`
	BuyVolume      int64   `json:"buy_volume"`
	SellVolume     int64   `json:"sell_volume"`
	EtfPosition    int64   `json:"etf_position"`
	FuturePosition int64   `json:"future_position"`
	EtfPrice       int64   `json:"etf_price"`
	FuturePrice    int64   `json:"future_price"`
	TotalFees      int64   `json:"total_fees"`
	Balance        int64   `json:"balance"`
	ProfitLoss     int64   `json:"profit_loss"`
	Status         string  `json:"status"`
}
