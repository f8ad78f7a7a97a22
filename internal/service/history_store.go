package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"messenger-llm/internal/domain"
)

var ErrHistoryInvalidInput = errors.New("history invalid input")

// HistoryStore guarda el historial corto de cada usuario con un tope de turnos.
type HistoryStore interface {
	// Read devuelve los turnos en orden de inserción, vacío si el usuario no tiene sesión.
	Read(ctx context.Context, userID string) ([]domain.Turn, error)
	// Append agrega turnos y descarta los más viejos si se supera el tope.
	Append(ctx context.Context, userID string, turns ...domain.Turn) error
}

// IdleEvicter lo implementan los stores que necesitan limpieza periódica.
type IdleEvicter interface {
	EvictIdle() int
}

const (
	DefaultHistoryMaxTurns = 10
	DefaultHistoryIdleTTL  = 30 * time.Minute
)

// MemoryHistoryOptions configura el store en memoria.
type MemoryHistoryOptions struct {
	MaxTurns    int
	MaxSessions int
	IdleTTL     time.Duration
}

type historySession struct {
	turns        []domain.Turn
	lastActivity time.Time
}

// MemoryHistoryStore mantiene las sesiones en el proceso; se pierden al reiniciar.
type MemoryHistoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*historySession
	maxTurns    int
	maxSessions int
	idleTTL     time.Duration
	now         func() time.Time
}

func NewMemoryHistoryStore(opts MemoryHistoryOptions) *MemoryHistoryStore {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultHistoryMaxTurns
	}
	return &MemoryHistoryStore{
		sessions:    make(map[string]*historySession),
		maxTurns:    opts.MaxTurns,
		maxSessions: opts.MaxSessions,
		idleTTL:     opts.IdleTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryHistoryStore) Read(_ context.Context, userID string) ([]domain.Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrHistoryInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok || s.expired(sess, s.now()) {
		return []domain.Turn{}, nil
	}
	out := make([]domain.Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

func (s *MemoryHistoryStore) Append(_ context.Context, userID string, turns ...domain.Turn) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrHistoryInvalidInput
	}
	for _, t := range turns {
		if !t.Role.Valid() {
			return ErrHistoryInvalidInput
		}
	}
	if len(turns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[userID]
	switch {
	case !ok:
		if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
			s.evictLeastRecentLocked()
		}
		sess = &historySession{}
		s.sessions[userID] = sess
	case s.expired(sess, now):
		sess.turns = nil
	}

	sess.turns = append(sess.turns, turns...)
	if over := len(sess.turns) - s.maxTurns; over > 0 {
		kept := make([]domain.Turn, s.maxTurns)
		copy(kept, sess.turns[over:])
		sess.turns = kept
	}
	sess.lastActivity = now
	return nil
}

// EvictIdle elimina sesiones completas sin actividad dentro del TTL.
func (s *MemoryHistoryStore) EvictIdle() int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for userID, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, userID)
			removed++
		}
	}
	return removed
}

// Len devuelve la cantidad de sesiones activas en memoria.
func (s *MemoryHistoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryHistoryStore) expired(sess *historySession, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(sess.lastActivity) > s.idleTTL
}

func (s *MemoryHistoryStore) evictLeastRecentLocked() {
	var (
		oldestID string
		oldestAt time.Time
	)
	for userID, sess := range s.sessions {
		if oldestID == "" || sess.lastActivity.Before(oldestAt) {
			oldestID = userID
			oldestAt = sess.lastActivity
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}
