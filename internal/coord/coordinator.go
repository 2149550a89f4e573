package coord

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-match-server/internal/game"
	"github.com/park285/chess-match-server/internal/lobby"
	"github.com/park285/chess-match-server/internal/msgcat"
	"github.com/park285/chess-match-server/internal/obslog"
	"github.com/park285/chess-match-server/internal/store"
	"github.com/park285/chess-match-server/pkg/matchdto"
)

var (
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrNotInSession    = errors.New("user is not in a game")
	ErrSessionNotFound = errors.New("game does not exist")
)

// Coordinator binds live connections to identities and sessions, relays
// inbound actions into the owning session, and fans state out to every
// connection subscribed to that session. All mutating work for one session
// runs under that session's lock, including timer callbacks, so broadcasts
// always reflect a fully settled state.
type Coordinator struct {
	lobby *lobby.Lobby
	store *store.Store
	cat   *msgcat.Catalog

	turnTimeout time.Duration
	deleteAfter time.Duration

	groups groupTable
}

func New(lb *lobby.Lobby, st *store.Store, cat *msgcat.Catalog, turnTimeout, deleteAfter time.Duration) *Coordinator {
	return &Coordinator{
		lobby:       lb,
		store:       st,
		cat:         cat,
		turnTimeout: turnTimeout,
		deleteAfter: deleteAfter,
		groups:      newGroupTable(),
	}
}

// connect resolves the identity's bound session and attaches the connection
// to it: seat upserted with this connection handle (fresh join and
// reconnection are the same operation), full snapshot pushed to the caller,
// snapshot pushed to the rest of the group.
func (c *Coordinator) connect(ctx context.Context, sub *subscriber) error {
	rec, err := c.store.Get(ctx, sub.token)
	if err != nil {
		obslog.L().Error("session_store_read_error", zap.String("conn_id", sub.id), zap.Error(err))
		return err
	}
	if sub.token == "" || rec.DisplayName == "" {
		return ErrUnauthenticated
	}
	if !rec.InGame() {
		return ErrNotInSession
	}

	s := c.lobby.Get(rec.GameID)
	if s == nil {
		// Stale binding: the session is gone, clear it so the next
		// matchmaking request starts clean.
		if serr := c.store.ClearGame(ctx, sub.token, ""); serr != nil {
			obslog.L().Error("session_store_write_error", zap.String("token", sub.token), zap.Error(serr))
		}
		return ErrSessionNotFound
	}

	color := game.Color(rec.Color)

	s.Lock()
	defer s.Unlock()

	s.AddPlayer(sub.token, rec.DisplayName, color, sub.id)
	sub.session = s.ID
	sub.name = rec.DisplayName
	c.groups.join(s.ID, sub)

	snap := s.Snapshot()
	sub.deliver(matchdto.ServerEvent{Type: matchdto.EvState, State: snap})
	sub.deliver(matchdto.ServerEvent{Type: matchdto.EvPersonalInfo, YourColor: string(color), YourName: rec.DisplayName})
	c.broadcastExcept(s.ID, sub.id, matchdto.ServerEvent{Type: matchdto.EvState, State: snap})

	if s.Turn() == color && !s.TurnTimerPending() {
		c.armTurnTimer(s)
	}

	obslog.L().Info("match_connect",
		zap.String("game_id", s.ID),
		zap.String("conn_id", sub.id),
		zap.String("color", string(color)),
		zap.String("name", rec.DisplayName),
	)
	return nil
}

// handleMove applies one move for the connection's seat. Failures go back
// to the originating connection only; success broadcasts the settled
// snapshot and manages the timers.
func (c *Coordinator) handleMove(ctx context.Context, sub *subscriber, move string) {
	s := c.lobby.Get(sub.session)
	if s == nil {
		sub.deliver(matchdto.ServerEvent{Type: matchdto.EvActionError, Message: c.cat.MustRender("error.game_not_found", nil)})
		return
	}

	s.Lock()
	defer s.Unlock()

	p := s.PlayerByToken(sub.token)
	if p == nil {
		sub.deliver(matchdto.ServerEvent{Type: matchdto.EvActionError, Message: c.cat.MustRender("error.not_in_game", nil)})
		return
	}

	san, err := s.ApplyMove(p.Color, move)
	if err != nil {
		sub.deliver(matchdto.ServerEvent{Type: matchdto.EvActionError, Message: c.moveErrMessage(err)})
		return
	}

	snap := s.Snapshot()
	c.broadcast(s.ID, matchdto.ServerEvent{Type: matchdto.EvState, State: snap})
	obslog.L().Info("match_move",
		zap.String("game_id", s.ID),
		zap.String("color", string(p.Color)),
		zap.String("san", san),
		zap.Bool("over", s.IsOver()),
	)

	if s.IsOver() {
		s.CancelTurnTimer()
		c.broadcast(s.ID, matchdto.ServerEvent{Type: matchdto.EvGameOver, Result: s.Result()})
		c.scheduleDeletion(s)
		return
	}
	c.armTurnTimer(s)
}

// handleLeave removes the acting identity's seat. An emptied session is
// deleted on the spot; otherwise the remaining color wins by opponent
// leaving. The leaver's store binding is cleared and the session id joins
// their avoid-list either way.
func (c *Coordinator) handleLeave(ctx context.Context, sub *subscriber) {
	s := c.lobby.Get(sub.session)
	if s == nil {
		sub.deliver(matchdto.ServerEvent{Type: matchdto.EvActionError, Message: c.cat.MustRender("error.not_in_game", nil)})
		return
	}

	s.Lock()
	p := s.RemovePlayer(sub.token)
	if p == nil {
		s.Unlock()
		sub.deliver(matchdto.ServerEvent{Type: matchdto.EvActionError, Message: c.cat.MustRender("error.not_in_game", nil)})
		return
	}
	if p.Color == s.Turn() {
		s.CancelTurnTimer()
	}

	c.broadcastExcept(s.ID, sub.id, matchdto.ServerEvent{
		Type:    matchdto.EvOpponentLeft,
		Message: c.cat.MustRender("notice.opponent_left", map[string]string{"Name": p.Name}),
	})

	if s.IsEmpty() {
		c.deleteSessionLocked(s)
	} else {
		if !s.IsOver() {
			remaining := s.Players()[0]
			s.SetOver(string(remaining.Color) + " wins by opponent leaving")
			c.broadcast(s.ID, matchdto.ServerEvent{Type: matchdto.EvGameOver, Result: s.Result()})
			c.scheduleDeletion(s)
		}
		s.Unlock()
	}

	if err := c.store.ClearGame(ctx, sub.token, s.ID); err != nil {
		// Best-effort bookkeeping; live state already moved on.
		obslog.L().Error("session_store_write_error", zap.String("token", sub.token), zap.Error(err))
	}

	c.groups.leave(s.ID, sub.id)
	sub.deliver(matchdto.ServerEvent{Type: matchdto.EvLeftGame})
	sub.session = ""
	obslog.L().Info("match_leave", zap.String("game_id", s.ID), zap.String("color", string(p.Color)))
}

// handleDisconnect clears only the live-connection binding: the seat, its
// color, and turn ownership are retained until an explicit leave or a
// timeout. No game-state change, no broadcast.
func (c *Coordinator) handleDisconnect(sub *subscriber) {
	sub.shutdown()
	if sub.session == "" {
		return
	}
	if s := c.lobby.Get(sub.session); s != nil {
		s.Lock()
		if p := s.PlayerByToken(sub.token); p != nil && p.ConnID == sub.id {
			p.ConnID = ""
		}
		s.Unlock()
	}
	c.groups.leave(sub.session, sub.id)
	obslog.L().Info("match_disconnect", zap.String("game_id", sub.session), zap.String("conn_id", sub.id))
}

// onTurnTimeout is delivered by the scheduler, not by a connection. A stale
// generation, a deleted session, or an already-empty seat are all no-ops.
func (c *Coordinator) onTurnTimeout(sessionID string, seq uint64, expired game.Color) {
	s := c.lobby.Get(sessionID)
	if s == nil {
		return
	}

	s.Lock()
	if !s.TurnSeqValid(seq) || s.IsOver() {
		s.Unlock()
		return
	}
	p := s.PlayerByColor(expired)
	if p == nil {
		s.Unlock()
		return
	}

	ctx := context.Background()
	if err := c.store.ClearGame(ctx, p.Token, s.ID); err != nil {
		obslog.L().Error("session_store_write_error", zap.String("token", p.Token), zap.Error(err))
	}

	if victim := c.groups.get(s.ID, p.ConnID); victim != nil {
		victim.deliver(matchdto.ServerEvent{Type: matchdto.EvKicked, Message: c.cat.MustRender("notice.kicked", nil)})
		victim.shutdown()
	}

	s.RemovePlayer(p.Token)
	c.broadcastExcept(s.ID, p.ConnID, matchdto.ServerEvent{
		Type:    matchdto.EvOpponentKicked,
		Message: c.cat.MustRender("notice.opponent_kicked", map[string]string{"Color": string(expired)}),
	})
	s.CancelTurnTimer()
	obslog.L().Info("match_kick", zap.String("game_id", s.ID), zap.String("color", string(expired)))

	if s.IsEmpty() {
		c.deleteSessionLocked(s)
		return
	}
	remaining := s.Players()[0]
	s.SetOver(string(remaining.Color) + " wins by opponent timeout")
	c.broadcast(s.ID, matchdto.ServerEvent{Type: matchdto.EvGameOver, Result: s.Result()})
	c.scheduleDeletion(s)
	s.Unlock()
}

// onSessionExpired tears the session down once the post-game countdown
// elapses: every remaining connection is told, unbound in the store, and
// closed.
func (c *Coordinator) onSessionExpired(sessionID string, seq uint64) {
	s := c.lobby.Get(sessionID)
	if s == nil {
		return
	}

	s.Lock()
	if !s.DelSeqValid(seq) {
		s.Unlock()
		return
	}
	s.CancelTimers()

	c.broadcast(s.ID, matchdto.ServerEvent{Type: matchdto.EvGameDeleted, Message: c.cat.MustRender("notice.game_deleted", nil)})

	ctx := context.Background()
	for _, member := range c.groups.drop(s.ID) {
		if err := c.store.ClearGame(ctx, member.token, ""); err != nil {
			obslog.L().Error("session_store_write_error", zap.String("token", member.token), zap.Error(err))
		}
		member.shutdown()
	}
	s.Unlock()

	c.lobby.Delete(sessionID)
	obslog.L().Info("match_expire", zap.String("game_id", sessionID))
}

// deleteSessionLocked removes an emptied session immediately. Takes
// ownership of the held session lock and releases it.
func (c *Coordinator) deleteSessionLocked(s *game.Session) {
	s.CancelTimers()
	id := s.ID
	s.Unlock()

	for _, member := range c.groups.drop(id) {
		member.shutdown()
	}
	c.lobby.Delete(id)
	obslog.L().Info("match_delete", zap.String("game_id", id))
}

// armTurnTimer arms the countdown for the color to move, subject to the
// seat-occupancy rule. Call with the session locked.
func (c *Coordinator) armTurnTimer(s *game.Session) {
	id := s.ID
	s.ArmTurnTimer(c.turnTimeout, func(seq uint64, expired game.Color) {
		c.onTurnTimeout(id, seq, expired)
	})
}

// scheduleDeletion arms the post-game deletion countdown and tells the
// group. Call with the session locked.
func (c *Coordinator) scheduleDeletion(s *game.Session) {
	id := s.ID
	s.ArmDeletionTimer(c.deleteAfter, func(seq uint64) {
		c.onSessionExpired(id, seq)
	})
	c.broadcast(s.ID, matchdto.ServerEvent{
		Type:    matchdto.EvInfo,
		Message: c.cat.MustRender("notice.deletion_scheduled", map[string]int{"Minutes": int(c.deleteAfter.Minutes())}),
	})
}

func (c *Coordinator) broadcast(sessionID string, ev matchdto.ServerEvent) {
	for _, sub := range c.groups.members(sessionID) {
		sub.deliver(ev)
	}
}

func (c *Coordinator) broadcastExcept(sessionID, exceptConnID string, ev matchdto.ServerEvent) {
	for _, sub := range c.groups.members(sessionID) {
		if sub.id == exceptConnID {
			continue
		}
		sub.deliver(ev)
	}
}

func (c *Coordinator) connectErrMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return c.cat.MustRender("error.unauthenticated", nil)
	case errors.Is(err, ErrNotInSession):
		return c.cat.MustRender("error.not_in_game", nil)
	case errors.Is(err, ErrSessionNotFound):
		return c.cat.MustRender("error.game_not_found", nil)
	default:
		return c.cat.MustRender("error.session", nil)
	}
}

func (c *Coordinator) moveErrMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrAlreadyOver):
		return c.cat.MustRender("error.already_over", nil)
	case errors.Is(err, game.ErrWrongTurn):
		return c.cat.MustRender("error.wrong_turn", nil)
	case errors.Is(err, game.ErrIllegalMove):
		return c.cat.MustRender("error.illegal_move", nil)
	default:
		return c.cat.MustRender("error.session", nil)
	}
}
