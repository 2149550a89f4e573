package coord

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-match-server/internal/obslog"
	"github.com/park285/chess-match-server/pkg/matchdto"
)

const writeTimeout = 5 * time.Second

// ServeConn upgrades the request and runs the connection's read loop until
// disconnect. The identity token is resolved by the HTTP layer; every
// failure after the upgrade is delivered as an event on the channel, never
// as a transport-level error.
func (c *Coordinator) ServeConn(w http.ResponseWriter, r *http.Request, token string, originPatterns []string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	sub := newSubscriber(token)
	go c.writeLoop(conn, sub)

	if err := c.connect(r.Context(), sub); err != nil {
		sub.deliver(matchdto.ServerEvent{Type: matchdto.EvActionError, Message: c.connectErrMessage(err)})
		sub.shutdown()
		return
	}
	defer c.handleDisconnect(sub)

	readCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-sub.done
		cancel()
	}()

	for {
		var ev matchdto.ClientEvent
		if err := wsjson.Read(readCtx, conn, &ev); err != nil {
			return
		}
		switch ev.Type {
		case matchdto.CmdMove:
			c.handleMove(readCtx, sub, ev.Move)
		case matchdto.CmdLeave:
			c.handleLeave(readCtx, sub)
		default:
			sub.deliver(matchdto.ServerEvent{Type: matchdto.EvActionError, Message: "unknown event: " + ev.Type})
		}
	}
}

// writeLoop drains the subscriber's outbox onto the wire. When shutdown is
// requested it flushes whatever is already queued, so a kicked notice is
// written before the close frame.
func (c *Coordinator) writeLoop(conn *websocket.Conn, sub *subscriber) {
	for {
		select {
		case ev := <-sub.ch:
			c.writeEvent(conn, sub, ev)
		case <-sub.done:
			for {
				select {
				case ev := <-sub.ch:
					c.writeEvent(conn, sub, ev)
				default:
					_ = conn.Close(websocket.StatusNormalClosure, "bye")
					return
				}
			}
		}
	}
}

func (c *Coordinator) writeEvent(conn *websocket.Conn, sub *subscriber, ev matchdto.ServerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		obslog.L().Debug("ws_write_error", zap.String("conn_id", sub.id), zap.Error(err))
	}
}
