package multiworld

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"gridquest.io/internal/game/grid"
	"gridquest.io/internal/game/registry"
	"gridquest.io/internal/persistence/indexdb"
	persistlog "gridquest.io/internal/persistence/log"
	"gridquest.io/internal/transport/httpapi"
	"gridquest.io/internal/transport/observer"
)

type Options struct {
	// NoVisualizer suppresses the observer feed; no world demands VSIDs.
	NoVisualizer bool
	DisableDB    bool
	DataDir      string
}

type WorldRuntime struct {
	Spec     WorldSpec
	Grid     *grid.Grid
	Registry *registry.Registry
	Journal  *persistlog.SessionJournal
}

// Host owns every world of the process: grids, registries, sinks, listeners.
type Host struct {
	cfg  Config
	opts Options
	log  *log.Logger

	worlds []*WorldRuntime
	feed   *observer.Feed
	idx    *indexdb.SQLiteIndex
}

// NewHost loads each world's map, builds its registry and attaches the
// sinks: the process logger everywhere, the journal per world, the shared
// session index, and the observer feed on the (single) visualized world.
func NewHost(cfg Config, opts Options, logger *log.Logger) (*Host, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.DataDir == "" {
		opts.DataDir = "./data"
	}

	h := &Host{cfg: cfg, opts: opts, log: logger}

	if !opts.DisableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(opts.DataDir, "index", "sessions.sqlite"))
		if err != nil {
			return nil, fmt.Errorf("open session index: %w", err)
		}
		h.idx = idx
	}

	for _, spec := range cfg.Worlds {
		g, err := grid.LoadImage(filepath.Join(cfg.ResourcesPath, spec.Map))
		if err != nil {
			h.closeSinks()
			return nil, fmt.Errorf("world %s: %w", spec.Name, err)
		}

		requireVSID := spec.Visualize && !opts.NoVisualizer
		reserved := registry.NewReservedSet(g, requireVSID)
		reg := registry.New(spec.Name, g, requireVSID, cfg.RegistrySettings(), reserved, logger)

		journal := persistlog.NewSessionJournal(filepath.Join(opts.DataDir, "worlds", spec.Name))
		h.attachSinks(reg, journal)

		if requireVSID {
			h.feed = observer.NewFeed(reg, logger)
		}

		h.worlds = append(h.worlds, &WorldRuntime{
			Spec:     spec,
			Grid:     g,
			Registry: reg,
			Journal:  journal,
		})
	}
	return h, nil
}

func (h *Host) attachSinks(reg *registry.Registry, journal *persistlog.SessionJournal) {
	reg.OnSessionConnected(func(ev registry.ConnectedEvent) {
		ident := ""
		color := ""
		if ev.Identifier != nil {
			ident = ev.Identifier.Text
			color = string(ev.Identifier.Color)
		}
		h.log.Printf("world %s: session connected sid=%s client=%s user=%q ident=%q",
			ev.World, ev.SID, ev.ClientID, ev.Username, ident)
		journal.Record(persistlog.Entry{
			World: ev.World, Kind: persistlog.KindConnected, SID: ev.SID,
			ClientID: ev.ClientID, Username: ev.Username, Ident: ident, Color: color,
		})
		if h.idx != nil {
			h.idx.RecordConnect(ev.World, ev.SID, ev.ClientID, ev.Username, ident, color)
		}
	})
	reg.OnAgentMoved(func(ev registry.AgentMovedEvent) {
		from := [2]int{ev.From.X, ev.From.Y}
		to := [2]int{ev.To.X, ev.To.Y}
		journal.Record(persistlog.Entry{
			World: ev.World, Kind: persistlog.KindMoved, SID: ev.SID, From: &from, To: &to,
		})
	})
	reg.OnAgentDied(func(ev registry.AgentDiedEvent) {
		h.log.Printf("world %s: agent died sid=%s reason=%q", ev.World, ev.SID, ev.Reason)
		journal.Record(persistlog.Entry{
			World: ev.World, Kind: persistlog.KindDied, SID: ev.SID, Reason: string(ev.Reason),
		})
		if h.idx != nil {
			h.idx.RecordDeath(ev.SID, string(ev.Reason))
		}
	})
}

// Worlds exposes the runtimes, newest configuration order preserved.
func (h *Host) Worlds() []*WorldRuntime { return h.worlds }

// Run serves every world plus the ops listener until ctx fires, then shuts
// the listeners down and flushes the sinks.
func (h *Host) Run(ctx context.Context) error {
	errCh := make(chan error, len(h.worlds)+1)
	var servers []*http.Server

	for _, rt := range h.worlds {
		handler := httpapi.New(rt.Registry, ctx, h.cfg.BodyTimeout(), h.log)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", rt.Spec.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, srv)
		go func(rt *WorldRuntime, srv *http.Server) {
			h.log.Printf("world %s listening on %s (visualize=%v)", rt.Spec.Name, srv.Addr, rt.Spec.Visualize)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("world %s: %w", rt.Spec.Name, err)
			}
		}(rt, srv)
		go rt.Registry.RunSweeper(ctx)
	}

	opsSrv := &http.Server{
		Addr:              h.cfg.OpsAddr,
		Handler:           h.opsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	servers = append(servers, opsSrv)
	go func() {
		h.log.Printf("ops listening on %s", opsSrv.Addr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops listener: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	for _, srv := range servers {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}
	h.closeSinks()
	return runErr
}

func (h *Host) closeSinks() {
	for _, rt := range h.worlds {
		if rt.Journal != nil {
			if err := rt.Journal.Close(); err != nil {
				h.log.Printf("world %s: close journal: %v", rt.Spec.Name, err)
			}
		}
	}
	if h.idx != nil {
		if err := h.idx.Close(); err != nil {
			h.log.Printf("close session index: %v", err)
		}
		h.idx = nil
	}
}
