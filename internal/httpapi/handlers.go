package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/chess-match-server/internal/lobby"
	"github.com/park285/chess-match-server/internal/obslog"
	"github.com/park285/chess-match-server/internal/store"
	"github.com/park285/chess-match-server/pkg/matchdto"
)

type API struct {
	lobby *lobby.Lobby
	store *store.Store
}

type setNameRequest struct {
	UserName string `json:"userName"`
}

// SetName stores the caller's display name, required before matchmaking.
func (a *API) SetName(w http.ResponseWriter, r *http.Request) {
	var req setNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, matchdto.NameResponse{Success: false, Message: "Invalid userName"})
		return
	}
	name := strings.TrimSpace(req.UserName)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, matchdto.NameResponse{Success: false, Message: "Invalid userName"})
		return
	}
	token := TokenFrom(r.Context())
	if err := a.store.SetName(r.Context(), token, name); err != nil {
		obslog.L().Error("session_store_write_error", zap.String("token", token), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, matchdto.NameResponse{Success: false, Message: "Session error."})
		return
	}
	writeJSON(w, http.StatusOK, matchdto.NameResponse{Success: true})
}

// GetName returns the stored display name, if any.
func (a *API) GetName(w http.ResponseWriter, r *http.Request) {
	rec, err := a.store.Get(r.Context(), TokenFrom(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, matchdto.NameResponse{Success: false, Message: "Session error."})
		return
	}
	if rec.DisplayName == "" {
		writeJSON(w, http.StatusOK, matchdto.NameResponse{Success: false, Message: "No userName in session"})
		return
	}
	writeJSON(w, http.StatusOK, matchdto.NameResponse{Success: true, UserName: rec.DisplayName})
}

// Join is the matchmaking request: leave the current game if bound to one,
// then take a seat in the earliest open session the caller has not avoided,
// creating a fresh session when none qualifies.
func (a *API) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := TokenFrom(ctx)

	rec, err := a.store.Get(ctx, token)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, matchdto.JoinResponse{Success: false, Message: "Session error."})
		return
	}
	if rec.DisplayName == "" {
		writeJSON(w, http.StatusBadRequest, matchdto.JoinResponse{
			Success: false,
			Message: "No userName in session. Please set your name first.",
		})
		return
	}

	avoid := make(map[string]bool, len(rec.AvoidList)+1)
	for _, id := range rec.AvoidList {
		avoid[id] = true
	}

	// Leave the current game first. Leaving over HTTP vacates the seat
	// quietly: an emptied session is deleted, an underfull one goes back to
	// the waiting queue. Ending the game with a winner is the live
	// channel's leave semantics, not this one's.
	if rec.InGame() {
		if s := a.lobby.Get(rec.GameID); s != nil {
			s.Lock()
			s.RemovePlayer(token)
			if s.IsEmpty() {
				s.CancelTimers()
				s.Unlock()
				a.lobby.Delete(s.ID)
			} else {
				if !s.IsFull() && !s.IsOver() {
					a.lobby.Requeue(s.ID)
				}
				s.Unlock()
			}
		}
		avoid[rec.GameID] = true
		if err := a.store.ClearGame(ctx, token, rec.GameID); err != nil {
			obslog.L().Error("session_store_write_error", zap.String("token", token), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, matchdto.JoinResponse{Success: false, Message: "Session error."})
			return
		}
	}

	s := a.lobby.FindOrCreate(avoid)
	color, err := a.lobby.AssignColor(s, token, rec.DisplayName)
	if err != nil {
		if errors.Is(err, lobby.ErrSessionFull) {
			writeJSON(w, http.StatusBadRequest, matchdto.JoinResponse{Success: false, Message: "Game is already full."})
			return
		}
		writeJSON(w, http.StatusInternalServerError, matchdto.JoinResponse{Success: false, Message: "Session error."})
		return
	}

	s.Lock()
	full := s.IsFull()
	s.Unlock()
	if full {
		a.lobby.RetireFromWaiting(s.ID)
	}

	if err := a.store.BindGame(ctx, token, s.ID, string(color)); err != nil {
		obslog.L().Error("session_store_write_error", zap.String("token", token), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, matchdto.JoinResponse{Success: false, Message: "Session error."})
		return
	}

	obslog.L().Info("match_join",
		zap.String("game_id", s.ID),
		zap.String("color", string(color)),
		zap.String("name", rec.DisplayName),
	)
	writeJSON(w, http.StatusOK, matchdto.JoinResponse{Success: true, GameID: s.ID, Color: string(color)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
