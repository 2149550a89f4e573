package lobby

import (
	"errors"
	"fmt"
	"sync"

	"github.com/park285/chess-match-server/internal/game"
)

// ErrSessionFull is a defensive failure: matchmaking never offers a full
// session, so color assignment on a full session indicates a racing join
// that lost.
var ErrSessionFull = errors.New("game is already full")

// Lobby tracks all live sessions and the FIFO queue of sessions still
// accepting a second player. Its lock is short-held and covers only
// registry mutation; it is never taken while a session lock is wanted, so
// there is no ordering with per-session locks.
type Lobby struct {
	mu      sync.Mutex
	games   map[string]*game.Session
	waiting []string // session ids, insertion order
	nextID  int
	rules   game.Rules
}

func New(ru game.Rules) *Lobby {
	return &Lobby{games: make(map[string]*game.Session), nextID: 1, rules: ru}
}

// Get returns the session by id, or nil.
func (l *Lobby) Get(id string) *game.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.games[id]
}

// FindOrCreate returns the first waiting session that still has an open
// seat and is not on the caller's avoid-list, creating a fresh one when
// none qualifies. First-created-first-offered, so no open session starves.
func (l *Lobby) FindOrCreate(avoid map[string]bool) *game.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.waiting {
		s, ok := l.games[id]
		if !ok {
			continue
		}
		if s.Seats() >= 2 || avoid[id] {
			continue
		}
		return s
	}
	id := fmt.Sprintf("game_%d", l.nextID)
	l.nextID++
	s := game.New(id, l.rules)
	l.games[id] = s
	l.waiting = append(l.waiting, id)
	return s
}

// AssignColor seats the identity on the first open color, white before
// black, and returns the assigned color. Fails with ErrSessionFull when a
// concurrent join took the last seat.
func (l *Lobby) AssignColor(s *game.Session, token, name string) (game.Color, error) {
	s.Lock()
	defer s.Unlock()
	var color game.Color
	switch {
	case s.PlayerByColor(game.White) == nil:
		color = game.White
	case s.PlayerByColor(game.Black) == nil:
		color = game.Black
	default:
		return "", ErrSessionFull
	}
	s.AddPlayer(token, name, color, "")
	return color, nil
}

// RetireFromWaiting removes a now-full session from the queue. Idempotent.
func (l *Lobby) RetireFromWaiting(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeWaiting(id)
}

// Requeue returns a session that dropped below two players back to the
// waiting queue. Idempotent.
func (l *Lobby) Requeue(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.games[id]; !ok {
		return
	}
	for _, w := range l.waiting {
		if w == id {
			return
		}
	}
	l.waiting = append(l.waiting, id)
}

// Delete removes the session from the registry and the waiting queue.
// Idempotent and callable from any trigger path.
func (l *Lobby) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.games, id)
	l.removeWaiting(id)
}

// Len returns the number of live sessions.
func (l *Lobby) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.games)
}

// Waiting returns a copy of the waiting queue, oldest first.
func (l *Lobby) Waiting() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.waiting))
	copy(out, l.waiting)
	return out
}

func (l *Lobby) removeWaiting(id string) {
	for i, w := range l.waiting {
		if w == id {
			l.waiting = append(l.waiting[:i], l.waiting[i+1:]...)
			return
		}
	}
}
