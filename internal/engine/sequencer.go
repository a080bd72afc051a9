package engine

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"exchange_go/internal/book"
	"exchange_go/internal/codec"
	"exchange_go/internal/domain"
	"exchange_go/internal/event"
	"exchange_go/internal/feed"
	"exchange_go/internal/infra"
	"exchange_go/internal/replay"
	"exchange_go/internal/risk"
	"exchange_go/internal/scoring"
	"exchange_go/internal/storage"
)

// session is the engine-side state of one execution connection.
type session struct {
	trader  *Trader
	limiter *risk.FrequencyLimiter
}

// Sequencer is the core single-threaded event processor. Every order
// request, login and disconnect arrives as an event on the inbox; the loop
// is the only goroutine that touches the books, the traders and the risk
// state. Between events it drains due market data so replayed history and
// trader activity interleave at the same match times on every run.
type Sequencer struct {
	inbox  chan event.Event
	logger *slog.Logger

	matchClock *infra.MatchClock
	speed      float64

	tickInterval        float64 // match seconds
	marketEventInterval float64 // match seconds
	matchDuration       float64 // match seconds, 0 = until data ends

	futureBook *book.OrderBook
	etfBook    *book.OrderBook
	reader     *replay.MarketEventsReader
	recorder   *storage.MatchRecorder
	scoreBoard *scoring.ScoreBoard
	publisher  *feed.Publisher

	spec   domain.InstrumentSpec
	limits risk.Limits
	roster map[string]string

	traders  map[string]*Trader
	sessions map[domain.ExecutionConnection]*session

	infoSeq [2]uint32
	infoBuf []byte

	finished bool
}

// SequencerConfig collects the wiring for a match.
type SequencerConfig struct {
	InboxSize           int
	Speed               float64
	TickInterval        float64
	MarketEventInterval float64
	MatchDuration       float64
	FutureBook          *book.OrderBook
	EtfBook             *book.OrderBook
	Reader              *replay.MarketEventsReader
	Recorder            *storage.MatchRecorder
	ScoreBoard          *scoring.ScoreBoard
	Publisher           *feed.Publisher
	Spec                domain.InstrumentSpec
	Limits              risk.Limits
	Roster              map[string]string
	Clock               infra.Clock
	Logger              *slog.Logger
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	return &Sequencer{
		inbox:               make(chan event.Event, cfg.InboxSize),
		logger:              cfg.Logger.With("component", "sequencer"),
		matchClock:          infra.NewMatchClock(cfg.Clock, cfg.Speed),
		speed:               cfg.Speed,
		tickInterval:        cfg.TickInterval,
		marketEventInterval: cfg.MarketEventInterval,
		matchDuration:       cfg.MatchDuration,
		futureBook:          cfg.FutureBook,
		etfBook:             cfg.EtfBook,
		reader:              cfg.Reader,
		recorder:            cfg.Recorder,
		scoreBoard:          cfg.ScoreBoard,
		publisher:           cfg.Publisher,
		spec:                cfg.Spec,
		limits:              cfg.Limits,
		roster:              cfg.Roster,
		traders:             make(map[string]*Trader),
		sessions:            make(map[domain.ExecutionConnection]*session),
	}
}

// Inbox returns the event channel. Session goroutines send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Now returns the current match time. Safe from any goroutine; sessions use
// it to stamp events at arrival.
func (s *Sequencer) Now() float64 {
	return s.matchClock.Now()
}

// Run starts the match and processes events until the match ends or the
// context is cancelled. MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("matching loop panic", slog.Any("panic", r))
			panic(fmt.Sprintf("halted: %v", r))
		}
	}()

	s.matchClock.Start()
	s.logger.Info("market open")

	tick := time.NewTicker(s.wallDuration(s.tickInterval))
	defer tick.Stop()
	market := time.NewTicker(s.wallDuration(s.marketEventInterval))
	defer market.Stop()

	for !s.finished {
		select {
		case <-ctx.Done():
			s.shutdown(s.advanceTime())
			return ctx.Err()
		case ev := <-s.inbox:
			s.processEvent(ev)
		case <-market.C:
			s.advanceTime()
		case <-tick.C:
			s.onTick(s.advanceTime())
		}
	}
	return nil
}

// wallDuration converts a match-time interval to wall time.
func (s *Sequencer) wallDuration(matchSeconds float64) time.Duration {
	return time.Duration(matchSeconds / s.speed * float64(time.Second))
}

// advanceTime reads the match clock and applies every market event due
// before it.
func (s *Sequencer) advanceTime() float64 {
	now := s.matchClock.Now()
	s.reader.ProcessUntil(now)
	return now
}

func (s *Sequencer) processEvent(ev event.Event) {
	start := time.Now()
	now := s.advanceTime()

	if login, ok := ev.(*event.LoginEvent); ok {
		s.handleLogin(now, login)
		infra.GlobalMetrics.RecordEvent(time.Since(start).Nanoseconds())
		return
	}

	sess, ok := s.sessions[ev.GetConn()]
	if !ok {
		// Order traffic before a successful login closes the connection.
		if _, isDisconnect := ev.(*event.DisconnectEvent); !isDisconnect {
			ev.GetConn().Close()
		}
		s.release(ev)
		return
	}

	switch e := ev.(type) {
	case *event.DisconnectEvent:
		s.handleDisconnect(now, e)
	case *event.InsertEvent:
		if s.rateLimited(now, sess, e.ClientOrderID, e.GetTs()) {
			break
		}
		sess.trader.OnInsert(now, e.ClientOrderID, e.Side, e.Price, e.Volume, e.Lifespan)
	case *event.AmendEvent:
		if s.rateLimited(now, sess, e.ClientOrderID, e.GetTs()) {
			break
		}
		sess.trader.OnAmend(now, e.ClientOrderID, e.Volume)
	case *event.CancelEvent:
		if s.rateLimited(now, sess, e.ClientOrderID, e.GetTs()) {
			break
		}
		sess.trader.OnCancel(now, e.ClientOrderID)
	case *event.HedgeEvent:
		if s.rateLimited(now, sess, e.ClientOrderID, e.GetTs()) {
			break
		}
		sess.trader.OnHedge(now, e.ClientOrderID, e.Side, e.Price, e.Volume)
	default:
		s.logger.Warn("unknown event type", slog.Any("type", ev.GetType()))
	}

	s.release(ev)
	infra.GlobalMetrics.RecordEvent(time.Since(start).Nanoseconds())
}

// rateLimited counts one message against the session's frequency window and
// rejects it if the window is full. The session stays open.
func (s *Sequencer) rateLimited(now float64, sess *session, clientOrderID uint32, arrival float64) bool {
	if !sess.limiter.CheckEvent(arrival) {
		return false
	}
	infra.GlobalMetrics.RecordRejection()
	rej := domain.NewReject(domain.RejectRateLimit, clientOrderID)
	sess.trader.logger.Info("message frequency limit breached",
		"time", now, "count", sess.limiter.Value(), "limit", sess.limiter.Limit())
	if sess.trader.conn != nil {
		sess.trader.conn.SendError(clientOrderID, rej.Error())
	}
	return true
}

func (s *Sequencer) handleLogin(now float64, e *event.LoginEvent) {
	conn := e.GetConn()

	secret, ok := s.roster[e.Name]
	if !ok || subtle.ConstantTimeCompare([]byte(secret), []byte(e.Secret)) != 1 {
		s.logger.Info("login failed", "team", e.Name, "time", now)
		conn.SendError(0, domain.ErrLoginFailed.Error())
		conn.Close()
		return
	}
	if existing, ok := s.traders[e.Name]; ok && existing.Connected() {
		s.logger.Info("login rejected, team already connected", "team", e.Name, "time", now)
		conn.SendError(0, domain.ErrLoginFailed.Error())
		conn.Close()
		return
	}
	if existing, ok := s.traders[e.Name]; ok && !existing.Connected() {
		// One session per team per match. A team that disconnected may not
		// resume with a fresh account.
		s.logger.Info("login rejected, team already played", "team", e.Name, "time", now)
		conn.SendError(0, domain.ErrLoginFailed.Error())
		conn.Close()
		return
	}

	trader := NewTrader(e.Name, conn, s.etfBook, s.futureBook, s.spec, s.limits,
		s.recorder, s.scoreBoard, s.logger)
	s.traders[e.Name] = trader
	s.sessions[conn] = &session{
		trader:  trader,
		limiter: risk.NewFrequencyLimiter(s.limits.MessageFrequencyInterval, s.limits.MessageFrequencyLimit),
	}
	infra.GlobalMetrics.IncrementSessions()
	s.logger.Info("team logged in", "team", e.Name, "time", now)
}

func (s *Sequencer) handleDisconnect(now float64, e *event.DisconnectEvent) {
	sess, ok := s.sessions[e.GetConn()]
	if !ok {
		return
	}
	delete(s.sessions, e.GetConn())
	infra.GlobalMetrics.DecrementSessions()
	s.logger.Info("team disconnected", "team", sess.trader.Name(), "time", now)
	sess.trader.OnConnectionLost(now)

	if s.activeTraders() == 0 && len(s.traders) > 0 {
		s.logger.Info("no competitors remaining", "time", now)
		s.shutdown(now)
	}
}

func (s *Sequencer) activeTraders() int {
	n := 0
	for _, t := range s.traders {
		if t.Connected() {
			n++
		}
	}
	return n
}

// onTick publishes the information feed and scores every team.
func (s *Sequencer) onTick(now float64) {
	if s.finished {
		return
	}
	if s.matchDuration > 0 && now >= s.matchDuration {
		s.logger.Info("match duration reached", "time", now)
		s.shutdown(now)
		return
	}
	if s.reader.Done() {
		s.logger.Info("match complete", "time", now)
		s.shutdown(now)
		return
	}

	s.publishBook(s.futureBook, domain.InstrumentFuture)
	s.publishBook(s.etfBook, domain.InstrumentEtf)
	s.publishTicks(s.futureBook, domain.InstrumentFuture)
	s.publishTicks(s.etfBook, domain.InstrumentEtf)

	futurePrice := refPrice(s.futureBook)
	etfPrice := refPrice(s.etfBook)
	for _, name := range s.teamNames() {
		s.traders[name].OnTimerTick(now, futurePrice, etfPrice)
	}
}

// teamNames returns the registered teams in name order so scoreboard rows
// land in the same order on every run.
func (s *Sequencer) teamNames() []string {
	names := make([]string, 0, len(s.traders))
	for name := range s.traders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func refPrice(b *book.OrderBook) int64 {
	if p := b.LastTradedPrice(); p != 0 {
		return p
	}
	return b.MidpointPrice()
}

func (s *Sequencer) publishBook(b *book.OrderBook, inst domain.Instrument) {
	var askPrices, askVolumes, bidPrices, bidVolumes [book.TopLevelCount]int64
	b.TopLevels(askPrices[:], askVolumes[:], bidPrices[:], bidVolumes[:])

	s.infoSeq[inst]++
	snap := makeSnapshot(inst, s.infoSeq[inst], askPrices, askVolumes, bidPrices, bidVolumes)
	s.infoBuf = codec.EncodeBookUpdate(s.infoBuf, snap)
	if err := s.publisher.Publish(s.infoBuf); err != nil {
		s.logger.Error("failed to publish order book update", "error", err)
	}
}

func (s *Sequencer) publishTicks(b *book.OrderBook, inst domain.Instrument) {
	var askPrices, askVolumes, bidPrices, bidVolumes [book.TopLevelCount]int64
	if !b.TradeTicks(askPrices[:], askVolumes[:], bidPrices[:], bidVolumes[:]) {
		return
	}

	s.infoSeq[inst]++
	snap := makeSnapshot(inst, s.infoSeq[inst], askPrices, askVolumes, bidPrices, bidVolumes)
	s.infoBuf = codec.EncodeTradeTicks(s.infoBuf, snap)
	if err := s.publisher.Publish(s.infoBuf); err != nil {
		s.logger.Error("failed to publish trade ticks", "error", err)
	}
}

func makeSnapshot(inst domain.Instrument, seq uint32,
	askPrices, askVolumes, bidPrices, bidVolumes [book.TopLevelCount]int64) codec.BookSnapshot {
	snap := codec.BookSnapshot{Instrument: uint8(inst), Sequence: seq}
	for i := 0; i < book.TopLevelCount; i++ {
		snap.AskPrices[i] = uint32(askPrices[i])
		snap.AskVolumes[i] = uint32(askVolumes[i])
		snap.BidPrices[i] = uint32(bidPrices[i])
		snap.BidVolumes[i] = uint32(bidVolumes[i])
	}
	return snap
}

// shutdown ends the match: every team gets a final scoreboard row and its
// execution channel is closed.
func (s *Sequencer) shutdown(now float64) {
	if s.finished {
		return
	}
	s.finished = true

	futurePrice := refPrice(s.futureBook)
	etfPrice := refPrice(s.etfBook)
	for _, name := range s.teamNames() {
		t := s.traders[name]
		t.OnTimerTick(now, futurePrice, etfPrice)
		t.Disconnect(now)
	}
	s.logger.Info("match finished", "time", now, "teams", len(s.traders))
}

// release returns pooled events to their pools.
func (s *Sequencer) release(ev event.Event) {
	switch e := ev.(type) {
	case *event.InsertEvent:
		event.ReleaseInsertEvent(e)
	case *event.CancelEvent:
		event.ReleaseCancelEvent(e)
	}
}
