package transcript

import (
	"strings"
	"sync"
)

// Reconciler folds a sequence of partial recognition updates into one
// coherent string. The backend tags each update as either an append (new
// speech) or a replace (a correction of the previous guess).
//
// committed holds the confirmed stable prefix; pending holds the latest
// uncommitted extension. The rendered value is always committed+pending.
// Safe to call from the socket receive path while audio keeps flowing.
type Reconciler struct {
	mu        sync.Mutex
	committed strings.Builder
	pending   string
}

// NewReconciler returns an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Apply folds one tagged segment into the running transcript.
//
// replace means "this corrects the previous guess": whatever was last
// rendered becomes the committed baseline and the new segment is the pending
// extension on top of it. An append concatenates onto the committed text
// directly and clears any pending extension it supersedes.
func (r *Reconciler) Apply(segment string, replace bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if replace {
		r.committed.WriteString(r.pending)
		r.pending = segment
		return
	}
	r.committed.WriteString(segment)
	r.pending = ""
}

// Display returns the currently rendered transcript.
func (r *Reconciler) Display() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed.String() + r.pending
}

// Finalize returns the full transcript and resets the reconciler to the
// empty state, ready for the next session.
func (r *Reconciler) Finalize() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.committed.String() + r.pending
	r.committed.Reset()
	r.pending = ""
	return out
}
