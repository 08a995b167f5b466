package registry

import "context"

// Enqueue appends fn to sid's action chain and returns a channel closed when
// the continuation finishes. The append happens under the world mutex; fn
// runs outside it, strictly after the previously queued action completes.
// ok is false when sid has no living session, in which case nothing was
// queued and the caller handles the request inline.
//
// A continuation that has not started when ctx fires is dropped without
// running fn; in-flight ones run to completion.
func (r *Registry) Enqueue(ctx context.Context, sid string, fn func()) (done <-chan struct{}, ok bool) {
	r.mu.Lock()
	rec, found := r.sessions[sid]
	if !found {
		r.mu.Unlock()
		return nil, false
	}
	prev := rec.tail
	next := make(chan struct{})
	rec.tail = next
	r.mu.Unlock()

	go func() {
		defer close(next)
		select {
		case <-ctx.Done():
			return
		case <-prev:
		}
		fn()
	}()
	return next, true
}
