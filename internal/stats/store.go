// Package stats keeps process-wide message counters and a bounded log of
// recent dispatch outcomes. Nothing is persisted; counters reset on restart.
package stats

import (
	"sync"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

const DefaultRecentSize = 100

type Store struct {
	mu       sync.RWMutex
	incoming int64
	outgoing int64
	failed   int64

	recent []model.DispatchOutcome
	next   int
	full   bool
}

func New(recentSize int) *Store {
	if recentSize <= 0 {
		recentSize = DefaultRecentSize
	}
	return &Store{recent: make([]model.DispatchOutcome, recentSize)}
}

func (s *Store) RecordIncoming() {
	s.mu.Lock()
	s.incoming++
	s.mu.Unlock()
}

// RecordOutcome ignores outcomes of cleared messages; they never reached
// the gateway.
func (s *Store) RecordOutcome(o model.DispatchOutcome) {
	if !o.Terminal() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Success {
		s.outgoing++
	} else {
		s.failed++
	}

	s.recent[s.next] = o
	s.next = (s.next + 1) % len(s.recent)
	if s.next == 0 {
		s.full = true
	}
}

func (s *Store) Snapshot() model.Statistics {
	s.mu.RLock()
	in, out, failed := s.incoming, s.outgoing, s.failed
	s.mu.RUnlock()

	var rate float64
	if out+failed > 0 {
		rate = float64(out) / float64(out+failed)
	}
	return model.Statistics{
		TotalIncoming: in,
		TotalOutgoing: out,
		TotalFailed:   failed,
		SuccessRate:   rate,
		TotalMessages: in + out + failed,
	}
}

// Recent returns the logged outcomes, oldest first.
func (s *Store) Recent() []model.DispatchOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.full {
		return append([]model.DispatchOutcome(nil), s.recent[:s.next]...)
	}
	out := make([]model.DispatchOutcome, 0, len(s.recent))
	out = append(out, s.recent[s.next:]...)
	return append(out, s.recent[:s.next]...)
}
