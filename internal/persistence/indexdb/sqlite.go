// Package indexdb keeps a SQLite read-model of session history. It is a
// side-channel for admin queries and never feeds back into game state.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqConnect reqKind = iota + 1
	reqDeath
)

type req struct {
	kind    reqKind
	connect connectRow
	death   deathRow
}

type connectRow struct {
	World      string
	SID        string
	ClientID   string
	Username   string
	IdentText  string
	IdentColor string
	At         string
}

type deathRow struct {
	SID    string
	Reason string
	At     string
}

// SessionRow is the admin-facing projection of one session.
type SessionRow struct {
	World       string `json:"world"`
	SID         string `json:"sid"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	IdentText   string `json:"ident_text,omitempty"`
	IdentColor  string `json:"ident_color,omitempty"`
	ConnectedAt string `json:"connected_at"`
	DiedAt      string `json:"died_at,omitempty"`
	DeathReason string `json:"death_reason,omitempty"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
    sid          TEXT PRIMARY KEY,
    world        TEXT NOT NULL,
    client_id    TEXT NOT NULL,
    username     TEXT NOT NULL DEFAULT '',
    ident_text   TEXT NOT NULL DEFAULT '',
    ident_color  TEXT NOT NULL DEFAULT '',
    connected_at TEXT NOT NULL,
    died_at      TEXT,
    death_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_world ON sessions(world);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	idx := &SQLiteIndex{
		db: db,
		ch: make(chan req, 1024),
	}
	idx.wg.Add(1)
	go idx.writer()
	return idx, nil
}

func (i *SQLiteIndex) writer() {
	defer i.wg.Done()
	for r := range i.ch {
		switch r.kind {
		case reqConnect:
			_, _ = i.db.Exec(
				`INSERT OR REPLACE INTO sessions (sid, world, client_id, username, ident_text, ident_color, connected_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.connect.SID, r.connect.World, r.connect.ClientID, r.connect.Username,
				r.connect.IdentText, r.connect.IdentColor, r.connect.At,
			)
		case reqDeath:
			_, _ = i.db.Exec(
				`UPDATE sessions SET died_at = ?, death_reason = ? WHERE sid = ?`,
				r.death.At, r.death.Reason, r.death.SID,
			)
		}
	}
}

// RecordConnect is fire-and-forget; writes are serialized by the writer
// goroutine and dropped once the index is closed or saturated.
func (i *SQLiteIndex) RecordConnect(world, sid, clientID, username, identText, identColor string) {
	if i == nil || i.closed.Load() {
		return
	}
	i.enqueue(req{kind: reqConnect, connect: connectRow{
		World: world, SID: sid, ClientID: clientID, Username: username,
		IdentText: identText, IdentColor: identColor,
		At: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (i *SQLiteIndex) RecordDeath(sid, reason string) {
	if i == nil || i.closed.Load() {
		return
	}
	i.enqueue(req{kind: reqDeath, death: deathRow{
		SID: sid, Reason: reason,
		At: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (i *SQLiteIndex) enqueue(r req) {
	defer func() {
		// Losing the race with Close is fine; the row is dropped.
		_ = recover()
	}()
	select {
	case i.ch <- r:
	default:
	}
}

// RecentSessions lists the newest sessions first.
func (i *SQLiteIndex) RecentSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := i.db.QueryContext(ctx,
		`SELECT world, sid, client_id, username, ident_text, ident_color, connected_at,
		        COALESCE(died_at, ''), COALESCE(death_reason, '')
		 FROM sessions ORDER BY connected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.World, &r.SID, &r.ClientID, &r.Username,
			&r.IdentText, &r.IdentColor, &r.ConnectedAt, &r.DiedAt, &r.DeathReason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeathCounts aggregates recorded deaths per reason.
func (i *SQLiteIndex) DeathCounts(ctx context.Context) (map[string]int, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT death_reason, COUNT(*) FROM sessions WHERE death_reason IS NOT NULL AND death_reason != '' GROUP BY death_reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

func (i *SQLiteIndex) Close() error {
	i.once.Do(func() {
		i.closed.Store(true)
		close(i.ch)
	})
	i.wg.Wait()
	return i.db.Close()
}
