package registry

import (
	"context"
	"time"

	"gridquest.io/internal/game/session"
)

// RunSweeper evicts sessions with no successful action for longer than the
// idle timeout. One sweep per interval until ctx fires.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*session.LocalSession
	for _, rec := range r.sessions {
		if rec.lastActivity.Before(cutoff) {
			idle = append(idle, rec.sess)
		}
	}
	r.mu.Unlock()

	// Kill outside the mutex: the Died handler deregisters and re-acquires it.
	for _, sess := range idle {
		sess.Kill(session.ReasonIdle)
	}
}
