package reconcile

import (
	"sync"
)

// Reconciler holds the last known good view of one session and applies inputs from
// both sources to it. onChange runs under the reconciler's lock, so observers see
// views in the order they were produced.
type Reconciler struct {
	mu       sync.Mutex
	view     View
	onChange func(View)
}

func NewReconciler(code string, onChange func(View)) *Reconciler {
	return &Reconciler{view: NewView(code), onChange: onChange}
}

// Apply merges one input and reports whether the view changed.
func (r *Reconciler) Apply(in Input) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, changed := Reduce(r.view, in)
	if !changed {
		return false
	}
	r.view = next
	if r.onChange != nil {
		r.onChange(next)
	}
	return true
}

// View returns the current view.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}
