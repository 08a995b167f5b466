// Package observer streams world presentation frames over WebSocket. It is
// the visualization sink a world may carry; attaching it is what makes that
// world demand VSIDs at /connect.
package observer

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gridquest.io/internal/game/registry"
)

// Frame shapes. A client first receives one bootstrap frame, then
// incremental connected/moved/died frames in event order.
type BootstrapFrame struct {
	Type   string      `json:"type"`
	World  string      `json:"world"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Traps  []TrapCell  `json:"traps"`
	Agents []AgentCell `json:"agents"`
}

type TrapCell struct {
	X   int    `json:"x"`
	Y   int    `json:"y"`
	Str string `json:"str"`
}

type AgentCell struct {
	SID   string `json:"sid"`
	Text  string `json:"text,omitempty"`
	Color string `json:"color,omitempty"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

type ConnectedFrame struct {
	Type     string `json:"type"`
	SID      string `json:"sid"`
	Username string `json:"username"`
	Text     string `json:"text,omitempty"`
	Color    string `json:"color,omitempty"`
}

type MovedFrame struct {
	Type string `json:"type"`
	SID  string `json:"sid"`
	From [2]int `json:"from"`
	To   [2]int `json:"to"`
}

type DiedFrame struct {
	Type   string `json:"type"`
	SID    string `json:"sid"`
	Reason string `json:"reason"`
}

// Feed fans registry events out to any number of WebSocket spectators. Event
// publication never blocks: a spectator that cannot keep up loses frames.
type Feed struct {
	reg *registry.Registry
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	clients map[uint64]chan []byte
}

func NewFeed(reg *registry.Registry, logger *log.Logger) *Feed {
	f := &Feed{
		reg: reg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[uint64]chan []byte{},
	}
	reg.OnSessionConnected(func(ev registry.ConnectedEvent) {
		frame := ConnectedFrame{Type: "connected", SID: ev.SID, Username: ev.Username}
		if ev.Identifier != nil {
			frame.Text = ev.Identifier.Text
			frame.Color = string(ev.Identifier.Color)
		}
		f.broadcast(frame)
	})
	reg.OnAgentMoved(func(ev registry.AgentMovedEvent) {
		f.broadcast(MovedFrame{
			Type: "moved",
			SID:  ev.SID,
			From: [2]int{ev.From.X, ev.From.Y},
			To:   [2]int{ev.To.X, ev.To.Y},
		})
	})
	reg.OnAgentDied(func(ev registry.AgentDiedEvent) {
		f.broadcast(DiedFrame{Type: "died", SID: ev.SID, Reason: string(ev.Reason)})
	})
	return f
}

// Handler upgrades GET requests into a spectator stream.
func (f *Feed) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		conn, err := f.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := f.addClient()
		defer f.removeClient(id)

		if err := f.writeFrame(conn, f.bootstrap()); err != nil {
			return
		}

		// Writer: drains the spectator's queue until the read side notices a
		// disconnect and closes done.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, _, err := conn.ReadMessage()
				if err != nil {
					return
				}
			}
		}()
		for {
			select {
			case <-done:
				return
			case b := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}

func (f *Feed) bootstrap() BootstrapFrame {
	g := f.reg.Grid()
	frame := BootstrapFrame{
		Type:   "bootstrap",
		World:  f.reg.World(),
		Width:  g.Width(),
		Height: g.Height(),
		Traps:  []TrapCell{},
		Agents: []AgentCell{},
	}
	for v, tile := range g.Traps() {
		frame.Traps = append(frame.Traps, TrapCell{X: v.X, Y: v.Y, Str: tile.String()})
	}
	for _, info := range f.reg.Snapshot() {
		cell := AgentCell{SID: info.SID, X: info.Location.X, Y: info.Location.Y}
		if info.Identifier != nil {
			cell.Text = info.Identifier.Text
			cell.Color = string(info.Identifier.Color)
		}
		frame.Agents = append(frame.Agents, cell)
	}
	return frame
}

func (f *Feed) addClient() (uint64, chan []byte) {
	id := f.nextID.Add(1)
	out := make(chan []byte, 256)
	f.mu.Lock()
	f.clients[id] = out
	f.mu.Unlock()
	return id, out
}

func (f *Feed) removeClient(id uint64) {
	f.mu.Lock()
	delete(f.clients, id)
	f.mu.Unlock()
}

func (f *Feed) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		if f.log != nil {
			f.log.Printf("observer (%s): marshal frame: %v", f.reg.World(), err)
		}
		return
	}
	f.mu.Lock()
	for _, out := range f.clients {
		select {
		case out <- b:
		default:
			// Slow spectator: drop the frame rather than stall the game path.
		}
	}
	f.mu.Unlock()
}

func (f *Feed) writeFrame(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
