package runner

// reconciler joins the two completion signals of a child: process exit
// and closure of its output streams. They may arrive in either order.
// The outcome is decided once, on whichever arrives second.
type reconciler struct {
	exited bool
	closed bool
	done   bool
	code   int
}

// exit records the exit code. It reports true if this completes the pair.
func (r *reconciler) exit(code int) bool {
	if r.exited {
		return false
	}
	r.exited = true
	r.code = code
	return r.ready()
}

// close records stream closure. It reports true if this completes the pair.
func (r *reconciler) close() bool {
	if r.closed {
		return false
	}
	r.closed = true
	return r.ready()
}

func (r *reconciler) ready() bool {
	if r.done || !r.exited || !r.closed {
		return false
	}
	r.done = true
	return true
}
