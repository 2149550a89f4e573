package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Terminal classifies how a position ended, if it did.
type Terminal int

const (
	TerminalNone Terminal = iota
	TerminalCheckmate
	TerminalStalemate
	TerminalRepetition
	TerminalInsufficient
	TerminalOtherDraw
)

// ErrIllegalMove is returned for any input that does not decode to a legal
// move in the current position.
var ErrIllegalMove = errors.New("illegal move")

// Verdict is the outcome of applying one move to a position.
type Verdict struct {
	SAN      string
	UCI      string
	FEN      string
	Terminal Terminal
}

// Engine validates and applies moves using the chess library. It keeps no
// state of its own; positions are reconstructed from the stored UCI move
// list on every call.
type Engine struct{}

// Apply replays movesUCI from the start position and then applies input.
// UCI is tried first, SAN as a fallback, so clients may send either.
func (Engine) Apply(movesUCI []string, input string) (*Verdict, error) {
	g, err := reconstruct(movesUCI)
	if err != nil {
		return nil, err
	}
	pos := g.Position()

	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil, ErrIllegalMove
	}

	var san, uci string
	if mv, derr := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); derr == nil {
		if err := g.Move(mv, nil); err != nil {
			return nil, ErrIllegalMove
		}
		san = nchess.AlgebraicNotation{}.Encode(pos, mv)
		uci = mv.String()
	} else {
		if err := g.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, ErrIllegalMove
		}
		last := lastMove(g)
		if last == nil {
			return nil, ErrIllegalMove
		}
		san = nchess.AlgebraicNotation{}.Encode(pos, last)
		uci = last.String()
	}

	claimDraws(g)

	return &Verdict{SAN: san, UCI: uci, FEN: g.FEN(), Terminal: terminalOf(g)}, nil
}

// claimDraws invokes draw rules the library treats as claim-based, so
// threefold repetition and the fifty-move rule end the game immediately.
func claimDraws(g *nchess.Game) {
	if g.Outcome() != nchess.NoOutcome {
		return
	}
	for _, m := range g.EligibleDraws() {
		if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
			_ = g.Draw(m)
			return
		}
	}
}

func terminalOf(g *nchess.Game) Terminal {
	if g.Outcome() == nchess.NoOutcome {
		return TerminalNone
	}
	switch g.Method() {
	case nchess.Checkmate:
		return TerminalCheckmate
	case nchess.Stalemate:
		return TerminalStalemate
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return TerminalRepetition
	case nchess.InsufficientMaterial:
		return TerminalInsufficient
	default:
		return TerminalOtherDraw
	}
}

// reconstruct rebuilds a game from the start position by applying stored UCI
// moves. Applying a stored FEN instead can double-apply moves.
func reconstruct(moves []string) (*nchess.Game, error) {
	g := nchess.NewGame()
	for i, mv := range moves {
		if err := g.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i, mv, err)
		}
	}
	return g, nil
}

func lastMove(g *nchess.Game) *nchess.Move {
	moves := g.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}
