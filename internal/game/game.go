package game

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/chess-match-server/internal/rules"
	"github.com/park285/chess-match-server/pkg/matchdto"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

var (
	ErrAlreadyOver = errors.New("game is already over")
	ErrWrongTurn   = errors.New("not your turn")
	ErrIllegalMove = errors.New("invalid move")
)

// Rules validates a proposed move against the position reached by the given
// UCI move list. Consumed as a pure function; the session never inspects the
// board itself.
type Rules interface {
	Apply(movesUCI []string, input string) (*rules.Verdict, error)
}

// Player is the durable occupancy of one color slot by one identity. ConnID
// is the ephemeral live-connection binding and may be empty while the player
// is disconnected; the seat survives until an explicit leave or a timeout.
type Player struct {
	Token  string
	Name   string
	Color  Color
	ConnID string
}

// Session owns one match's authoritative state. All methods except ID reads
// and Seats must be called with the session locked; handlers hold the lock
// across a whole read-modify-write transition so that a move and a racing
// timeout can never both apply.
type Session struct {
	sync.Mutex

	ID string

	rules    Rules
	players  map[string]*Player // identity token → seat
	movesSAN []string
	movesUCI []string
	turn     Color
	over     bool
	result   string

	seats atomic.Int32 // occupancy mirror for lock-free matchmaking scans

	turnTimer *time.Timer
	turnSeq   uint64
	delTimer  *time.Timer
	delSeq    uint64
}

// New creates a session waiting for players. White moves first.
func New(id string, ru Rules) *Session {
	return &Session{
		ID:      id,
		rules:   ru,
		players: make(map[string]*Player),
		turn:    White,
	}
}

// AddPlayer upserts the seat for token. A reconnecting identity keeps its
// color and display name and only rebinds the connection.
func (s *Session) AddPlayer(token, name string, color Color, connID string) {
	if p, ok := s.players[token]; ok {
		p.ConnID = connID
		if name != "" {
			p.Name = name
		}
		return
	}
	s.players[token] = &Player{Token: token, Name: name, Color: color, ConnID: connID}
	s.seats.Store(int32(len(s.players)))
}

// RemovePlayer deletes the seat. Game-over consequences are the caller's
// decision.
func (s *Session) RemovePlayer(token string) *Player {
	p, ok := s.players[token]
	if !ok {
		return nil
	}
	delete(s.players, token)
	s.seats.Store(int32(len(s.players)))
	return p
}

// PlayerByToken returns the seat held by an identity, or nil.
func (s *Session) PlayerByToken(token string) *Player { return s.players[token] }

// PlayerByColor returns the occupant of a color, or nil.
func (s *Session) PlayerByColor(c Color) *Player {
	for _, p := range s.players {
		if p.Color == c {
			return p
		}
	}
	return nil
}

// Players returns the current seats in no particular order.
func (s *Session) Players() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	return out
}

func (s *Session) IsFull() bool {
	return s.PlayerByColor(White) != nil && s.PlayerByColor(Black) != nil
}

func (s *Session) IsEmpty() bool { return len(s.players) == 0 }

// Seats reports current occupancy without the session lock. Used by the
// lobby to scan the waiting queue while holding only its own lock.
func (s *Session) Seats() int { return int(s.seats.Load()) }

func (s *Session) Turn() Color    { return s.turn }
func (s *Session) IsOver() bool   { return s.over }
func (s *Session) Result() string { return s.result }

// ApplyMove validates and applies one move for actingColor. On success the
// move notation is appended, the turn flips, and a terminal position marks
// the session over with its result string.
func (s *Session) ApplyMove(actingColor Color, input string) (string, error) {
	if s.over {
		return "", ErrAlreadyOver
	}
	if actingColor != s.turn {
		return "", ErrWrongTurn
	}
	v, err := s.rules.Apply(s.movesUCI, input)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			return "", ErrIllegalMove
		}
		return "", err
	}
	s.movesSAN = append(s.movesSAN, v.SAN)
	s.movesUCI = append(s.movesUCI, v.UCI)
	s.turn = s.turn.Other()

	if v.Terminal != rules.TerminalNone {
		// The winner of a checkmate is the color that just moved: the turn
		// has already flipped, so the side now to move is the loser.
		s.over = true
		s.result = resultFor(v.Terminal, actingColor)
	}
	return v.SAN, nil
}

// SetOver force-ends the game with the given result. No-op once over.
func (s *Session) SetOver(result string) {
	if s.over {
		return
	}
	s.over = true
	s.result = result
}

func resultFor(t rules.Terminal, mover Color) string {
	switch t {
	case rules.TerminalCheckmate:
		return string(mover) + " wins by checkmate"
	case rules.TerminalStalemate:
		return "Draw by stalemate"
	case rules.TerminalRepetition:
		return "Draw by threefold repetition"
	case rules.TerminalInsufficient:
		return "Draw by insufficient material"
	case rules.TerminalOtherDraw:
		return "Draw"
	default:
		return "Game over"
	}
}

// Snapshot produces the immutable transmission view of the session.
func (s *Session) Snapshot() *matchdto.Snapshot {
	players := make([]matchdto.Seat, 0, len(s.players))
	for _, c := range []Color{White, Black} {
		if p := s.PlayerByColor(c); p != nil {
			players = append(players, matchdto.Seat{UserName: p.Name, Color: string(p.Color)})
		}
	}
	moves := make([]string, len(s.movesSAN))
	copy(moves, s.movesSAN)
	return &matchdto.Snapshot{
		GameID:           s.ID,
		Players:          players,
		Moves:            moves,
		IsOver:           s.over,
		Result:           s.result,
		CurrentTurnColor: string(s.turn),
	}
}
