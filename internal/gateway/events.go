package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/jsonx"
)

const eventWriteTimeout = 5 * time.Second

// handleEvents streams commit events over a websocket: those of one session
// under /api/sessions/{id}/events, every session under /api/events.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id != "" {
			if _, err := g.engine.History(r.Context(), id); err != nil {
				g.writeEngineError(w, r, err)
				return
			}
		}

		// Subscribe before the handshake so no commit after it is missed.
		events, cancel := g.engine.Subscribe(id)
		defer cancel()

		// Long-lived stream: lift the server's read and write deadlines.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		g.streams.Add(1)
		defer g.streams.Done()
		g.metrics.streams.Inc()
		defer g.metrics.streams.Dec()

		// The feed is one-way; CloseRead handles control frames and
		// cancels ctx when the peer goes away.
		ctx := conn.CloseRead(r.Context())
		g.logger.Debug("event stream opened", "session", id)

		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.Close(websocket.StatusGoingAway, "engine closed")
					return
				}
				if err := writeEvent(ctx, conn, ev); err != nil {
					g.logger.Debug("event stream closed", "session", id, "error", err)
					return
				}
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev engine.CommitEvent) error {
	fields := make([]any, len(ev.FloatFields))
	for i, f := range ev.FloatFields {
		fields[i] = f
	}
	data, err := jsonx.Encode(map[string]any{
		"session_id":   ev.SessionID,
		"seq":          int64(ev.Seq),
		"tool":         ev.Tool,
		"arguments":    ev.Arguments,
		"output":       ev.Output,
		"float_fields": fields,
		"at":           ev.At,
	})
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
