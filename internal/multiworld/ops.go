package multiworld

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// opsMux serves the non-game endpoints on their own port so that the world
// listeners stay POST-only.
func (h *Host) opsMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})

	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP gridquest_world_sessions Current live sessions per world.\n")
		fmt.Fprintf(rw, "# TYPE gridquest_world_sessions gauge\n")
		for _, rt := range h.worlds {
			fmt.Fprintf(rw, "gridquest_world_sessions{world=%q} %d\n", rt.Spec.Name, rt.Registry.LiveSessions())
		}

		fmt.Fprintf(rw, "# HELP gridquest_world_connects_total Total admitted sessions per world.\n")
		fmt.Fprintf(rw, "# TYPE gridquest_world_connects_total counter\n")
		for _, rt := range h.worlds {
			fmt.Fprintf(rw, "gridquest_world_connects_total{world=%q} %d\n", rt.Spec.Name, rt.Registry.ConnectsTotal())
		}

		fmt.Fprintf(rw, "# HELP gridquest_world_deaths_total Total agent deaths per world.\n")
		fmt.Fprintf(rw, "# TYPE gridquest_world_deaths_total counter\n")
		for _, rt := range h.worlds {
			fmt.Fprintf(rw, "gridquest_world_deaths_total{world=%q} %d\n", rt.Spec.Name, rt.Registry.DeathsTotal())
		}

		fmt.Fprintf(rw, "# HELP gridquest_journal_dropped_total Journal entries dropped per world.\n")
		fmt.Fprintf(rw, "# TYPE gridquest_journal_dropped_total counter\n")
		for _, rt := range h.worlds {
			fmt.Fprintf(rw, "gridquest_journal_dropped_total{world=%q} %d\n", rt.Spec.Name, rt.Journal.Dropped())
		}
	})

	if h.feed != nil {
		mux.HandleFunc("/observe", h.feed.Handler())
	}

	// Local-only admin read-model over the session index.
	mux.HandleFunc("/admin/v1/sessions", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if h.idx == nil {
			http.Error(rw, "session index disabled", http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel2()
		sessions, err := h.idx.RecentSessions(ctx2, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		deaths, err := h.idx.DeathCounts(ctx2)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"sessions": sessions,
			"deaths":   deaths,
		})
	})

	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if hst, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = hst
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
