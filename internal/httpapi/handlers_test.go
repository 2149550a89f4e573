package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-match-server/internal/coord"
	"github.com/park285/chess-match-server/internal/lobby"
	"github.com/park285/chess-match-server/internal/msgcat"
	"github.com/park285/chess-match-server/internal/rules"
	"github.com/park285/chess-match-server/internal/store"
	"github.com/park285/chess-match-server/pkg/matchdto"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.New(rdb, time.Hour)
	lb := lobby.New(rules.Engine{})
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	co := coord.New(lb, st, cat, time.Hour, time.Hour)

	srv := httptest.NewServer(SetupRoutes(lb, st, co, nil))
	t.Cleanup(srv.Close)
	return srv
}

// newClient returns an http client with its own cookie jar, i.e. a distinct
// anonymous identity.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func postJSON(t *testing.T, cl *http.Client, url string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := cl.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func setName(t *testing.T, cl *http.Client, base, name string) {
	t.Helper()
	var out matchdto.NameResponse
	code := postJSON(t, cl, base+"/set-name", map[string]string{"userName": name}, &out)
	if code != http.StatusOK || !out.Success {
		t.Fatalf("set-name(%s): code=%d resp=%+v", name, code, out)
	}
}

func join(t *testing.T, cl *http.Client, base string) matchdto.JoinResponse {
	t.Helper()
	var out matchdto.JoinResponse
	code := postJSON(t, cl, base+"/leave-and-join-new-game", nil, &out)
	if code != http.StatusOK || !out.Success {
		t.Fatalf("join: code=%d resp=%+v", code, out)
	}
	return out
}

func TestSetAndGetName(t *testing.T) {
	srv := newTestServer(t)
	cl := newClient(t)

	setName(t, cl, srv.URL, "  Alice  ")

	resp, err := cl.Get(srv.URL + "/get-name")
	if err != nil {
		t.Fatalf("get-name: %v", err)
	}
	defer resp.Body.Close()
	var out matchdto.NameResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || out.UserName != "Alice" {
		t.Fatalf("get-name resp=%+v", out)
	}
}

func TestGetNameBeforeSet(t *testing.T) {
	srv := newTestServer(t)
	cl := newClient(t)

	resp, err := cl.Get(srv.URL + "/get-name")
	if err != nil {
		t.Fatalf("get-name: %v", err)
	}
	defer resp.Body.Close()
	var out matchdto.NameResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Success || out.Message != "No userName in session" {
		t.Fatalf("resp=%+v", out)
	}
}

func TestSetNameRejectsBlank(t *testing.T) {
	srv := newTestServer(t)
	cl := newClient(t)

	var out matchdto.NameResponse
	code := postJSON(t, cl, srv.URL+"/set-name", map[string]string{"userName": "   "}, &out)
	if code != http.StatusBadRequest || out.Message != "Invalid userName" {
		t.Fatalf("code=%d resp=%+v", code, out)
	}
}

func TestJoinRequiresName(t *testing.T) {
	srv := newTestServer(t)
	cl := newClient(t)

	var out matchdto.JoinResponse
	code := postJSON(t, cl, srv.URL+"/leave-and-join-new-game", nil, &out)
	if code != http.StatusBadRequest || out.Message != "No userName in session. Please set your name first." {
		t.Fatalf("code=%d resp=%+v", code, out)
	}
}

func TestJoinPairsPlayersInOrder(t *testing.T) {
	srv := newTestServer(t)

	a, b, c := newClient(t), newClient(t), newClient(t)
	setName(t, a, srv.URL, "Alice")
	setName(t, b, srv.URL, "Bob")
	setName(t, c, srv.URL, "Carol")

	ra := join(t, a, srv.URL)
	if ra.GameID != "game_1" || ra.Color != "white" {
		t.Fatalf("first join: %+v", ra)
	}
	rb := join(t, b, srv.URL)
	if rb.GameID != "game_1" || rb.Color != "black" {
		t.Fatalf("second join: %+v", rb)
	}
	// game_1 is full; the third client opens a new session.
	rc := join(t, c, srv.URL)
	if rc.GameID == "game_1" || rc.Color != "white" {
		t.Fatalf("third join: %+v", rc)
	}
}

func TestRejoinAvoidsPreviousGame(t *testing.T) {
	srv := newTestServer(t)
	cl := newClient(t)
	setName(t, cl, srv.URL, "Alice")

	first := join(t, cl, srv.URL)
	second := join(t, cl, srv.URL)
	if second.GameID == first.GameID {
		t.Fatalf("rematched into the avoided session %q", first.GameID)
	}
	if second.Color != "white" {
		t.Fatalf("second join: %+v", second)
	}

	// The abandoned session was emptied, so it must be gone; a newcomer must
	// not be seated in it either.
	other := newClient(t)
	setName(t, other, srv.URL, "Bob")
	ro := join(t, other, srv.URL)
	if ro.GameID != second.GameID || ro.Color != "black" {
		t.Fatalf("newcomer not paired with the rejoiner: %+v", ro)
	}
}

func TestRejoinRequeuesAbandonedSeat(t *testing.T) {
	srv := newTestServer(t)

	a, b := newClient(t), newClient(t)
	setName(t, a, srv.URL, "Alice")
	setName(t, b, srv.URL, "Bob")

	ra := join(t, a, srv.URL)
	rb := join(t, b, srv.URL)
	if ra.GameID != rb.GameID {
		t.Fatalf("players not paired: %+v vs %+v", ra, rb)
	}

	// Alice walks away over HTTP. The session keeps Bob, reopens for
	// matchmaking, and a newcomer takes the vacated white seat.
	ra2 := join(t, a, srv.URL)
	if ra2.GameID == ra.GameID {
		t.Fatalf("rejoin landed in the avoided session")
	}

	c := newClient(t)
	setName(t, c, srv.URL, "Carol")
	rc := join(t, c, srv.URL)
	if rc.GameID != rb.GameID || rc.Color != "white" {
		t.Fatalf("vacated seat not reoffered: %+v", rc)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz code=%d", resp.StatusCode)
	}
}
