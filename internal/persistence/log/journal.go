// Package log persists per-world session events as hour-rotated,
// zstd-compressed JSONL files.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one journal line. From/To are set on move entries, Reason on
// death entries.
type Entry struct {
	TS       string  `json:"ts"`
	World    string  `json:"world"`
	Kind     string  `json:"kind"` // connected | moved | died
	SID      string  `json:"sid"`
	ClientID string  `json:"client_id,omitempty"`
	Username string  `json:"username,omitempty"`
	Ident    string  `json:"ident,omitempty"`
	Color    string  `json:"color,omitempty"`
	From     *[2]int `json:"from,omitempty"`
	To       *[2]int `json:"to,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

const (
	KindConnected = "connected"
	KindMoved     = "moved"
	KindDied      = "died"
)

type jsonlZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func newJSONLZstdWriter(baseDir, prefix string) *jsonlZstdWriter {
	return &jsonlZstdWriter{baseDir: baseDir, prefix: prefix}
}

func (w *jsonlZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *jsonlZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *jsonlZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *jsonlZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *jsonlZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// SessionJournal decouples the event path from disk: Record never blocks, a
// single goroutine drains to the compressed writer.
type SessionJournal struct {
	w  *jsonlZstdWriter
	ch chan Entry
	wg sync.WaitGroup

	closeOnce sync.Once
	dropped   atomic.Uint64
	writeErrs atomic.Uint64
}

func NewSessionJournal(worldDir string) *SessionJournal {
	j := &SessionJournal{
		w:  newJSONLZstdWriter(filepath.Join(worldDir, "events"), "events"),
		ch: make(chan Entry, 1024),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for e := range j.ch {
			if err := j.w.Write(e); err != nil {
				j.writeErrs.Add(1)
			}
		}
	}()
	return j
}

// Record enqueues an entry, stamping it with the current wall clock. Entries
// are dropped when the journal cannot keep up.
func (j *SessionJournal) Record(e Entry) {
	e.TS = time.Now().UTC().Format(time.RFC3339Nano)
	select {
	case j.ch <- e:
	default:
		j.dropped.Add(1)
	}
}

func (j *SessionJournal) Dropped() uint64 { return j.dropped.Load() }

func (j *SessionJournal) Close() error {
	j.closeOnce.Do(func() {
		close(j.ch)
	})
	j.wg.Wait()
	return j.w.Close()
}
