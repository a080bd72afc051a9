package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"exchange_go/internal/domain"
)

const appendBuffer = 4096

// EventStore persists the append-only match event log and scoreboard in a
// single SQLite file. Appends are queued and written by a background
// goroutine so the matching loop never waits on disk; Close drains the
// queue before returning.
type EventStore struct {
	db   *gorm.DB
	rows chan any
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewEventStore opens (or creates) the match database at path and starts
// the writer goroutine.
func NewEventStore(path string) (*EventStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open match database: %w", err)
	}

	if err := db.AutoMigrate(&domain.MatchEventRow{}, &domain.ScoreRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate match database: %w", err)
	}

	s := &EventStore{
		db:   db,
		rows: make(chan any, appendBuffer),
	}
	s.wg.Add(1)
	go s.writer()
	return s, nil
}

// AppendMatchEvent queues one match event row. Blocks only if the writer
// has fallen appendBuffer rows behind.
func (s *EventStore) AppendMatchEvent(row domain.MatchEventRow) {
	s.rows <- row
}

// AppendScore queues one scoreboard row.
func (s *EventStore) AppendScore(row domain.ScoreRow) {
	s.rows <- row
}

// writer consumes queued rows and writes them in batches. Rows arrive in
// processing order and are written in that order; a write failure halts the
// match rather than losing part of the log.
func (s *EventStore) writer() {
	defer s.wg.Done()

	var events []domain.MatchEventRow
	var scores []domain.ScoreRow

	flush := func() {
		if len(events) > 0 {
			if err := s.db.Create(&events).Error; err != nil {
				panic(fmt.Sprintf("event log write failed: %v", err))
			}
			events = events[:0]
		}
		if len(scores) > 0 {
			if err := s.db.Create(&scores).Error; err != nil {
				panic(fmt.Sprintf("score log write failed: %v", err))
			}
			scores = scores[:0]
		}
	}

	for row := range s.rows {
		switch r := row.(type) {
		case domain.MatchEventRow:
			events = append(events, r)
		case domain.ScoreRow:
			scores = append(scores, r)
		}

		// Drain whatever else is already queued into the same batch.
		for drained := false; !drained; {
			select {
			case next, ok := <-s.rows:
				if !ok {
					flush()
					return
				}
				switch r := next.(type) {
				case domain.MatchEventRow:
					events = append(events, r)
				case domain.ScoreRow:
					scores = append(scores, r)
				}
			default:
				drained = true
			}
		}
		flush()
	}
	flush()
}

// Close drains the append queue and waits for the writer to finish.
func (s *EventStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.rows)
	})
	s.wg.Wait()
	slog.Info("event store closed")
	return nil
}

// ======================================================================
// Read side: replay and scoreboard inspection
// ======================================================================

// LoadMatchEvents returns the full match event log in sequence order. This
// is the sole input for replaying a match.
func (s *EventStore) LoadMatchEvents() ([]domain.MatchEventRow, error) {
	var rows []domain.MatchEventRow
	err := s.db.Order("seq").Find(&rows).Error
	return rows, err
}

// LoadScores returns all scoreboard rows in insertion order.
func (s *EventStore) LoadScores() ([]domain.ScoreRow, error) {
	var rows []domain.ScoreRow
	err := s.db.Order("id").Find(&rows).Error
	return rows, err
}

// FinalScores returns the last scoreboard row per team.
func (s *EventStore) FinalScores() (map[string]domain.ScoreRow, error) {
	rows, err := s.LoadScores()
	if err != nil {
		return nil, err
	}
	final := make(map[string]domain.ScoreRow)
	for _, row := range rows {
		final[row.Team] = row
	}
	return final, nil
}
