package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/park285/chess-match-server/internal/coord"
	"github.com/park285/chess-match-server/internal/lobby"
	"github.com/park285/chess-match-server/internal/store"
)

// SetupRoutes builds the router with the matchmaking API and the live
// websocket endpoint.
func SetupRoutes(lb *lobby.Lobby, st *store.Store, co *coord.Coordinator, originPatterns []string) http.Handler {
	api := &API{lobby: lb, store: st}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(Identity)

	r.Post("/set-name", api.SetName)
	r.Get("/get-name", api.GetName)
	r.Post("/leave-and-join-new-game", api.Join)
	r.Get("/healthz", Healthz)

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		co.ServeConn(w, req, TokenFrom(req.Context()), originPatterns)
	})
	return r
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
