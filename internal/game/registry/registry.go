// Package registry tracks the live sessions of one world: admission,
// per-client quotas, identifier uniqueness, action serialization and idle
// eviction.
package registry

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gridquest.io/internal/game/grid"
	"gridquest.io/internal/game/session"
	"gridquest.io/internal/protocol"
)

// Connect rejections carrying their exact wire message.
var (
	ErrVSIDRequired    = errors.New(protocol.MsgVSIDRequired)
	ErrIdentifierInUse = errors.New(protocol.MsgIdentifierInUse)
	ErrTooManySessions = errors.New(protocol.MsgTooManySessions)
)

// Settings bounds per-client and per-session behavior. Zero or negative
// values are replaced by the defaults below, except ActionCooldown: zero
// there means no cooldown, and only a negative value takes the default.
type Settings struct {
	MaxSessionsPerClient int
	IdleTimeout          time.Duration
	ActionCooldown       time.Duration
	SweepInterval        time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MaxSessionsPerClient: 20,
		IdleTimeout:          5 * time.Second,
		ActionCooldown:       50 * time.Millisecond,
		SweepInterval:        time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.MaxSessionsPerClient <= 0 {
		s.MaxSessionsPerClient = def.MaxSessionsPerClient
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = def.IdleTimeout
	}
	if s.ActionCooldown < 0 {
		s.ActionCooldown = def.ActionCooldown
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = def.SweepInterval
	}
	return s
}

// ConnectInput carries an admission request. Username arrives already
// sanitized by the connection handler.
type ConnectInput struct {
	ClientID   string
	Username   string
	Identifier *VisualIdentifier
}

// ConnectedEvent fans out to presentation sinks after a successful admission.
type ConnectedEvent struct {
	World      string
	SID        string
	ClientID   string
	Username   string
	Identifier *VisualIdentifier
	Session    *session.LocalSession
}

// AgentMovedEvent republishes a session's step with its sid attached.
type AgentMovedEvent struct {
	World string
	SID   string
	From  grid.Vec
	To    grid.Vec
}

// AgentDiedEvent fires exactly once per session, after deregistration.
type AgentDiedEvent struct {
	World      string
	SID        string
	ClientID   string
	Identifier *VisualIdentifier
	Reason     session.DeathReason
}

type record struct {
	sid          string
	clientID     string
	sess         *session.LocalSession
	ident        *VisualIdentifier
	lastActivity time.Time
	tail         chan struct{}
}

// Registry is the per-world session table. One mutex guards both maps; queue
// continuations and event fan-out run outside it.
type Registry struct {
	world       string
	g           *grid.Grid
	requireVSID bool
	cfg         Settings
	log         *log.Logger
	reserved    *ReservedSet

	now func() time.Time

	mu             sync.Mutex
	sessions       map[string]*record
	clientSessions map[string]map[string]struct{}

	connectedSubs []func(ConnectedEvent)
	movedSubs     []func(AgentMovedEvent)
	diedSubs      []func(AgentDiedEvent)

	connectsTotal atomic.Uint64
	deathsTotal   atomic.Uint64
}

// New builds a registry over g. requireVSID is set for the world carrying the
// visualization sink.
func New(world string, g *grid.Grid, requireVSID bool, cfg Settings, reserved *ReservedSet, logger *log.Logger) *Registry {
	if reserved == nil {
		reserved = NewReservedSet(g, false)
	}
	return &Registry{
		world:          world,
		g:              g,
		requireVSID:    requireVSID,
		cfg:            cfg.withDefaults(),
		log:            logger,
		reserved:       reserved,
		now:            time.Now,
		sessions:       map[string]*record{},
		clientSessions: map[string]map[string]struct{}{},
	}
}

func (r *Registry) World() string           { return r.world }
func (r *Registry) Grid() *grid.Grid        { return r.g }
func (r *Registry) RequiresVSID() bool      { return r.requireVSID }
func (r *Registry) Cooldown() time.Duration { return r.cfg.ActionCooldown }

// Subscriptions are wired at boot, before the listener accepts traffic.
// Subscribers must not block.

func (r *Registry) OnSessionConnected(fn func(ConnectedEvent)) {
	r.connectedSubs = append(r.connectedSubs, fn)
}

func (r *Registry) OnAgentMoved(fn func(AgentMovedEvent)) {
	r.movedSubs = append(r.movedSubs, fn)
}

func (r *Registry) OnAgentDied(fn func(AgentDiedEvent)) {
	r.diedSubs = append(r.diedSubs, fn)
}

// Connect admits a new session and returns its sid. The error, when one of
// the exported sentinels, carries the exact client-visible message.
func (r *Registry) Connect(in ConnectInput) (string, error) {
	if r.requireVSID && in.Identifier == nil {
		return "", ErrVSIDRequired
	}
	if in.Identifier != nil && r.reserved.Blocked(*in.Identifier) {
		return "", fmt.Errorf("identifier %s is reserved", *in.Identifier)
	}

	sid := uuid.NewString()
	sess := session.New(r.g)

	// Wire the observers before the session becomes reachable so no event can
	// fire unseen.
	sess.OnMoved(func(ev session.MovedEvent) {
		r.publishMoved(AgentMovedEvent{World: r.world, SID: sid, From: ev.From, To: ev.To})
	})
	sess.OnDied(func(ev session.DiedEvent) {
		r.deregister(sid)
		r.deathsTotal.Add(1)
		r.publishDied(AgentDiedEvent{
			World:      r.world,
			SID:        sid,
			ClientID:   in.ClientID,
			Identifier: in.Identifier,
			Reason:     ev.Reason,
		})
	})

	r.mu.Lock()
	if in.Identifier != nil {
		for _, rec := range r.sessions {
			if rec.ident != nil && *rec.ident == *in.Identifier {
				r.mu.Unlock()
				return "", ErrIdentifierInUse
			}
		}
	}
	if len(r.clientSessions[in.ClientID]) >= r.cfg.MaxSessionsPerClient {
		r.mu.Unlock()
		return "", ErrTooManySessions
	}

	rec := &record{
		sid:          sid,
		clientID:     in.ClientID,
		sess:         sess,
		ident:        in.Identifier,
		lastActivity: r.now(),
		tail:         closedChan(),
	}
	r.sessions[sid] = rec
	owned := r.clientSessions[in.ClientID]
	if owned == nil {
		owned = map[string]struct{}{}
		r.clientSessions[in.ClientID] = owned
	}
	owned[sid] = struct{}{}
	r.mu.Unlock()

	r.connectsTotal.Add(1)
	for _, fn := range r.connectedSubs {
		fn(ConnectedEvent{
			World:      r.world,
			SID:        sid,
			ClientID:   in.ClientID,
			Username:   in.Username,
			Identifier: in.Identifier,
			Session:    sess,
		})
	}
	return sid, nil
}

// Move executes one step for sid. ok is false when no living session holds
// the sid. Activity advances only on a step that executed and left the agent
// alive.
func (r *Registry) Move(sid string, v grid.Vec) (session.MoveOutcome, bool) {
	r.mu.Lock()
	rec, ok := r.sessions[sid]
	r.mu.Unlock()
	if !ok {
		return session.MoveOutcome{}, false
	}

	out := rec.sess.Move(v)

	if out.Moved && out.Alive {
		r.mu.Lock()
		if rec2, still := r.sessions[sid]; still {
			rec2.lastActivity = r.now()
		}
		r.mu.Unlock()
	}
	return out, true
}

func (r *Registry) deregister(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[sid]
	if !ok {
		if r.log != nil {
			r.log.Printf("registry (%s): deregister unknown sid %s", r.world, sid)
		}
		return
	}
	delete(r.sessions, sid)
	if owned := r.clientSessions[rec.clientID]; owned != nil {
		delete(owned, sid)
		if len(owned) == 0 {
			delete(r.clientSessions, rec.clientID)
		}
	}
}

func (r *Registry) publishMoved(ev AgentMovedEvent) {
	for _, fn := range r.movedSubs {
		fn(ev)
	}
}

func (r *Registry) publishDied(ev AgentDiedEvent) {
	for _, fn := range r.diedSubs {
		fn(ev)
	}
}

// SessionInfo is a point-in-time view used by the observer bootstrap frame.
type SessionInfo struct {
	SID        string
	Identifier *VisualIdentifier
	Location   grid.Vec
	Alive      bool
}

func (r *Registry) Snapshot() []SessionInfo {
	r.mu.Lock()
	recs := make([]*record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		recs = append(recs, rec)
	}
	r.mu.Unlock()

	out := make([]SessionInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, SessionInfo{
			SID:        rec.sid,
			Identifier: rec.ident,
			Location:   rec.sess.Location(),
			Alive:      rec.sess.Alive(),
		})
	}
	return out
}

func (r *Registry) LiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) ConnectsTotal() uint64 { return r.connectsTotal.Load() }
func (r *Registry) DeathsTotal() uint64   { return r.deathsTotal.Load() }

var closed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func closedChan() chan struct{} { return closed }
