package rtos

import (
	"github.com/openembed/frdbg/target"
)

// State is the single-letter run state of a task. Running tasks stay
// linked into their ready list while they execute, so Running renders with
// the ready letter plus a CPU number; the enum still keeps the states
// distinct so classification is mutually exclusive.
type State int

const (
	StateRunning State = iota
	StateReady
	StateBlocked
	StateSuspended
	StateDeleted
)

func (s State) Letter() string {
	switch s {
	case StateRunning, StateReady:
		return "R"
	case StateBlocked:
		return "B"
	case StateSuspended:
		return "S"
	case StateDeleted:
		return "D"
	}
	return "?"
}

// ReadCurrentTCBs reads the running TCB address for each core. Index is
// the core number. This is the most time-sensitive state in the system and
// is never cached: the breakpoint predicate and the classifier both call
// it fresh.
func ReadCurrentTCBs(mr target.MemReader, l *KernelLayout) ([]uint64, error) {
	cur := make([]uint64, l.NumCores)
	for i := 0; i < l.NumCores; i++ {
		addr := l.CurrentTCB + uint64(i*l.PointerSize)
		tcb, err := readPointer(mr, l, addr)
		if err != nil {
			return nil, err
		}
		cur[i] = tcb
	}
	return cur, nil
}

// Classify maps a walked list entry plus the per-core running state to a
// run state, returning the core index for running tasks and -1 otherwise.
// Precedence: running beats everything, because an executing task is
// transiently off the wait lists by kernel design; a terminated entry is
// Deleted; suspension (explicit, or a delayed entry whose wake tick is the
// "never" sentinel - blocked with no timeout is suspension in all but
// bookkeeping) beats Blocked; delayed entries are Blocked; everything left
// is Ready.
func Classify(l *KernelLayout, e ListEntry, current []uint64) (State, int) {
	for cpu, tcb := range current {
		if tcb != 0 && tcb == e.TCB {
			return StateRunning, cpu
		}
	}
	switch e.List {
	case ListTerminated:
		return StateDeleted, -1
	case ListSuspended:
		return StateSuspended, -1
	case ListDelayed, ListOverflowDelayed:
		if e.ItemValue == l.NeverWake() {
			return StateSuspended, -1
		}
		return StateBlocked, -1
	}
	return StateReady, -1
}
