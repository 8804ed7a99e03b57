package runner

import (
	"os"
)

// Handle is given to a SpawnObserver once the child has started. It lets
// the observer terminate the child early.
type Handle struct {
	PID     int
	Process *os.Process

	kill func(sig os.Signal) error
}

// Kill closes the child's output pipes and then sends sig. A nil sig
// sends the default kill signal. Sending to a child that has already
// exited is not an error.
func (h *Handle) Kill(sig os.Signal) error {
	if sig == nil {
		sig = defaultKillSignal
	}
	return h.kill(sig)
}
