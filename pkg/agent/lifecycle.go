package agent

import "sync/atomic"

// ListenerState tracks how post-attach listener dispatch progressed.
// Exactly one transition path is taken per process:
//
//	Pending -> RunningSync -> Done                          (synchronous)
//	Pending -> WaitingForTrigger -> RunningAsync -> Done    (deferred)
//
// Once Done, listeners are never re-invoked.
type ListenerState int32

const (
	StatePending ListenerState = iota
	StateRunningSync
	StateWaitingForTrigger
	StateRunningAsync
	StateDone
)

// String returns the state name.
func (s ListenerState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunningSync:
		return "RUNNING_SYNC"
	case StateWaitingForTrigger:
		return "WAITING_FOR_TRIGGER"
	case StateRunningAsync:
		return "RUNNING_ASYNC"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// lifecycle is the listener dispatch state machine. Transitions are
// compare-and-swap so an illegal transition can never be recorded, even with
// the deferred worker racing a reader.
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) current() ListenerState {
	return ListenerState(l.state.Load())
}

func (l *lifecycle) transition(from, to ListenerState) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}
