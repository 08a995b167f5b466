package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridquest.io/internal/game/grid"
	"gridquest.io/internal/game/registry"
	"gridquest.io/internal/protocol"
)

func testFeed(t *testing.T) (*Feed, *registry.Registry, *httptest.Server) {
	t.Helper()
	g, err := grid.New(3, 3, map[grid.Vec]grid.Tile{
		{X: 1, Y: 0}: grid.MustTile(grid.TrapGlyph),
	})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	reg := registry.New("vis", g, true, registry.DefaultSettings(), registry.NewReservedSet(g, true), nil)
	feed := NewFeed(reg, nil)
	srv := httptest.NewServer(feed.Handler())
	t.Cleanup(srv.Close)
	return feed, reg, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(b, &frame); err != nil {
		t.Fatalf("unmarshal frame %q: %v", b, err)
	}
	return frame
}

func waitFrame(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	for i := 0; i < 16; i++ {
		frame := readFrame(t, conn)
		if frame["type"] == frameType {
			return frame
		}
	}
	t.Fatalf("frame %q never arrived", frameType)
	return nil
}

func TestFeedBootstrapFrame(t *testing.T) {
	_, reg, srv := testFeed(t)

	ident, err := registry.NewVisualIdentifier("[]", protocol.ColorMagenta)
	if err != nil {
		t.Fatalf("ident: %v", err)
	}
	sid, err := reg.Connect(registry.ConnectInput{ClientID: "c:1", Username: "a", Identifier: &ident})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	conn := dial(t, srv)
	frame := readFrame(t, conn)
	if frame["type"] != "bootstrap" {
		t.Fatalf("first frame = %v", frame)
	}
	if frame["world"] != "vis" || frame["width"] != float64(3) || frame["height"] != float64(3) {
		t.Fatalf("bootstrap = %v", frame)
	}
	traps, _ := frame["traps"].([]any)
	if len(traps) != 1 {
		t.Fatalf("traps = %v", traps)
	}
	agents, _ := frame["agents"].([]any)
	if len(agents) != 1 {
		t.Fatalf("agents = %v", agents)
	}
	agent, _ := agents[0].(map[string]any)
	if agent["sid"] != sid || agent["text"] != "[]" || agent["color"] != "Magenta" {
		t.Fatalf("agent = %v", agent)
	}
}

func TestFeedStreamsEvents(t *testing.T) {
	_, reg, srv := testFeed(t)
	conn := dial(t, srv)
	if frame := readFrame(t, conn); frame["type"] != "bootstrap" {
		t.Fatalf("first frame = %v", frame)
	}

	ident, err := registry.NewVisualIdentifier("ab", protocol.ColorGreen)
	if err != nil {
		t.Fatalf("ident: %v", err)
	}
	sid, err := reg.Connect(registry.ConnectInput{ClientID: "c:1", Username: "bob", Identifier: &ident})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	frame := waitFrame(t, conn, "connected")
	if frame["sid"] != sid || frame["username"] != "bob" {
		t.Fatalf("connected frame = %v", frame)
	}

	if out, ok := reg.Move(sid, grid.Vec{X: 0, Y: 1}); !ok || !out.Moved {
		t.Fatalf("move = %+v,%v", out, ok)
	}
	frame = waitFrame(t, conn, "moved")
	to, _ := frame["to"].([]any)
	if len(to) != 2 || to[0] != float64(0) || to[1] != float64(1) {
		t.Fatalf("moved frame = %v", frame)
	}

	if out, ok := reg.Move(sid, grid.Vec{X: 1, Y: -1}); ok && out.Moved {
		t.Fatalf("inadmissible vector moved")
	}

	// Kill via the map edge; the death frame follows the final move frame.
	if out, ok := reg.Move(sid, grid.Vec{X: 0, Y: -2}); !ok || out.Alive {
		t.Fatalf("fatal move = %+v,%v", out, ok)
	}
	frame = waitFrame(t, conn, "died")
	if frame["sid"] != sid || frame["reason"] != "Wandered out of the map" {
		t.Fatalf("died frame = %v", frame)
	}
}
