package coord

import (
	"sync"

	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/park285/chess-match-server/internal/obslog"
	"github.com/park285/chess-match-server/pkg/matchdto"
)

const outboxSize = 16

// subscriber is one live connection's membership in a session's broadcast
// group: a buffered outbox drained by the transport's writer, and a done
// channel the coordinator closes to force the transport shut.
type subscriber struct {
	id      string
	token   string
	name    string
	session string

	ch   chan matchdto.ServerEvent
	done chan struct{}
	once sync.Once
}

func newSubscriber(token string) *subscriber {
	return &subscriber{
		id:    uuid.NewString(),
		token: token,
		ch:    make(chan matchdto.ServerEvent, outboxSize),
		done:  make(chan struct{}),
	}
}

// deliver is a fire-and-forget send. A full outbox drops the event rather
// than blocking a session handler on a slow client.
func (sub *subscriber) deliver(ev matchdto.ServerEvent) {
	select {
	case sub.ch <- ev:
	default:
		obslog.L().Warn("outbox_full_drop", zap.String("conn_id", sub.id), zap.String("event", ev.Type))
	}
}

// shutdown asks the transport to close after flushing the outbox.
func (sub *subscriber) shutdown() {
	sub.once.Do(func() { close(sub.done) })
}

// groupTable maps session ids to their broadcast groups. Guarded by its own
// short-held lock; safe to use while a session lock is held because nothing
// here ever takes a session lock.
type groupTable struct {
	mu     sync.Mutex
	groups map[string]map[string]*subscriber // session id → conn id → sub
}

func newGroupTable() groupTable {
	return groupTable{groups: make(map[string]map[string]*subscriber)}
}

func (g *groupTable) join(sessionID string, sub *subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[sessionID]
	if !ok {
		grp = make(map[string]*subscriber)
		g.groups[sessionID] = grp
	}
	grp[sub.id] = sub
}

func (g *groupTable) leave(sessionID, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[sessionID]
	if !ok {
		return
	}
	delete(grp, connID)
	if len(grp) == 0 {
		delete(g.groups, sessionID)
	}
}

func (g *groupTable) get(sessionID, connID string) *subscriber {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.groups[sessionID][connID]
}

func (g *groupTable) members(sessionID string) []*subscriber {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*subscriber, 0, len(g.groups[sessionID]))
	for _, sub := range g.groups[sessionID] {
		out = append(out, sub)
	}
	return out
}

// drop removes the whole group and returns its former members.
func (g *groupTable) drop(sessionID string) []*subscriber {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp := g.groups[sessionID]
	delete(g.groups, sessionID)
	out := make([]*subscriber, 0, len(grp))
	for _, sub := range grp {
		out = append(out, sub)
	}
	return out
}
