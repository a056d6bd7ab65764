package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/toolbench/internal/jsonx"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestEvents_StreamsCommits(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, AuthConfig{})
	srv := httptest.NewServer(g.buildRouter())
	defer srv.Close()

	for _, id := range []string{"s1", "s2"} {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/sessions", `{"session_id":"`+id+`","environment":"shop","interface":"a"}`, "")
		_ = resp.Body.Close()
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/sessions/s1/events"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// A commit on another session and a rejected call are not streamed.
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/sessions/s2/invoke", `{"tool":"restock","arguments":{"item":"apple","amount":1}}`, "")
	_ = resp.Body.Close()
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/sessions/s1/invoke", `{"tool":"restock","arguments":{"item":"kiwi","amount":1}}`, "")
	_ = resp.Body.Close()
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/sessions/s1/invoke", `{"tool":"reprice","arguments":{"item":"apple","price":2}}`, "")
	_ = resp.Body.Close()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}
	v, err := jsonx.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	ev := v.(map[string]any)
	if ev["session_id"] != "s1" || ev["tool"] != "reprice" || ev["seq"] != int64(0) {
		t.Errorf("event = %v", ev)
	}
	out := ev["output"].(map[string]any)
	if out["price"] != float64(2) {
		t.Errorf("output price = %#v, want float 2", out["price"])
	}
}

func TestEvents_UnknownSession(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, AuthConfig{})
	srv := httptest.NewServer(g.buildRouter())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsURL(srv, "/api/sessions/ghost/events"), nil)
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		t.Fatal("expected handshake failure for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
}

func TestEvents_StopEndsStreams(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, AuthConfig{})
	srv := httptest.NewUnstartedServer(g.buildRouter())
	srv.Config.BaseContext = g.baseContext
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/events"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	stopped := make(chan error, 1)
	go func() { stopped <- g.Stop(context.Background()) }()

	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("read after stop = %v, want going away", err)
	}
	if err := <-stopped; err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
