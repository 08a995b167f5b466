// Package httpapi is the per-world HTTP front-end: it parses and routes
// /connect and /move, derives client identity from the peer address, and
// funnels every fault into the uniform failure shape.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"gridquest.io/internal/game/grid"
	"gridquest.io/internal/game/registry"
	"gridquest.io/internal/protocol"
)

const DefaultBodyTimeout = 2 * time.Second

// Handler serves one world's port. Only POST is routable; everything else is
// a bare 404.
type Handler struct {
	reg         *registry.Registry
	log         *log.Logger
	bodyTimeout time.Duration

	// shutdown drops queued move continuations that have not started yet.
	shutdown context.Context
}

func New(reg *registry.Registry, shutdown context.Context, bodyTimeout time.Duration, logger *log.Logger) *Handler {
	if bodyTimeout <= 0 {
		bodyTimeout = DefaultBodyTimeout
	}
	if shutdown == nil {
		shutdown = context.Background()
	}
	return &Handler{reg: reg, log: logger, bodyTimeout: bodyTimeout, shutdown: shutdown}
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusNotFound)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			if h.log != nil {
				h.log.Printf("httpapi (%s): panic in %s: %v", h.reg.World(), r.URL.Path, rec)
			}
			h.writeJSON(rw, protocol.ExceptionFailure(fmt.Errorf("%v", rec)))
		}
	}()

	body, err := h.readBody(r)
	if err != nil {
		h.writeJSON(rw, protocol.ExceptionFailure(err))
		return
	}

	switch r.URL.Path {
	case "/connect":
		h.handleConnect(rw, r, body)
	case "/move":
		h.handleMove(rw, body)
	default:
		h.writeJSON(rw, protocol.NewFailure(protocol.MsgUnknownRequest))
	}
}

func (h *Handler) handleConnect(rw http.ResponseWriter, r *http.Request, body []byte) {
	var req protocol.ConnectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeJSON(rw, protocol.ExceptionFailure(err))
		return
	}

	var ident *registry.VisualIdentifier
	if req.VSID != nil {
		text := SanitizeIdentifierText(req.VSID.IdentifierStr)
		vi, err := registry.NewVisualIdentifier(text, protocol.Color(req.VSID.Color))
		if err != nil {
			h.writeJSON(rw, protocol.ExceptionFailure(err))
			return
		}
		ident = &vi
	}

	// Client identity comes from the peer endpoint, never the body.
	sid, err := h.reg.Connect(registry.ConnectInput{
		ClientID:   r.RemoteAddr,
		Username:   SanitizeUsername(req.Username),
		Identifier: ident,
	})
	if err != nil {
		if errors.Is(err, registry.ErrVSIDRequired) ||
			errors.Is(err, registry.ErrIdentifierInUse) ||
			errors.Is(err, registry.ErrTooManySessions) {
			h.writeJSON(rw, protocol.NewFailure(err.Error()))
			return
		}
		h.writeJSON(rw, protocol.ExceptionFailure(err))
		return
	}
	h.writeJSON(rw, protocol.ConnectAccepted{Success: true, SID: sid})
}

func (h *Handler) handleMove(rw http.ResponseWriter, body []byte) {
	var req protocol.MoveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeJSON(rw, protocol.ExceptionFailure(err))
		return
	}

	move := grid.Vec{X: req.DX, Y: req.DY}
	answered := false
	done, ok := h.reg.Enqueue(h.shutdown, req.SID, func() {
		out, live := h.reg.Move(req.SID, move)
		var payload any
		if !live {
			// The session died between enqueue and execution.
			payload = protocol.NewFailure(protocol.MsgNoLivingAgent)
		} else {
			payload = protocol.MoveResult{
				Success:    true,
				Moved:      out.Moved,
				Alive:      out.Alive,
				Discovered: tileJSON(out.Discovered),
			}
		}
		// Per-session throttle: hold the computed response for the cooldown.
		time.Sleep(h.reg.Cooldown())
		h.writeJSON(rw, payload)
		answered = true
	})
	if !ok {
		// Unknown or absent sid: answered inline, no queueing, no cooldown.
		h.writeJSON(rw, protocol.NewFailure(protocol.MsgNoLivingAgent))
		return
	}
	// The continuation owns the response; a shutdown drop closes done without
	// writing and the connection is torn down unanswered.
	<-done
	if !answered {
		if hj, ok := rw.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
			}
		}
	}
}

func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := io.ReadAll(r.Body)
		ch <- result{b: b, err: err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("read request body: %w", res.err)
		}
		return res.b, nil
	case <-time.After(h.bodyTimeout):
		return nil, errors.New("timed out reading request body")
	}
}

func (h *Handler) writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil && h.log != nil {
		h.log.Printf("httpapi (%s): write response: %v", h.reg.World(), err)
	}
}

func tileJSON(t *grid.Tile) *protocol.TileJSON {
	if t == nil {
		return nil
	}
	return t.JSON()
}
