package rtos

import (
	"github.com/openembed/frdbg/api"
	"github.com/openembed/frdbg/target"
)

// DecodeTCB reads one task control block at addr into an api.Task. Optional
// members are read only when the layout carries them; an absent member
// leaves the field nil rather than zero. State and CPU are left for the
// classifier, which needs list membership this function does not have.
func DecodeTCB(mr target.MemReader, l *KernelLayout, addr uint64) (*api.Task, error) {
	name, err := readString(mr, l, addr+l.TCBName, l.NameLen)
	if err != nil {
		return nil, err
	}
	prio, err := readUint(mr, l, addr+l.TCBPriority.Offset, l.TCBPriority.Size)
	if err != nil {
		return nil, err
	}
	stack, err := readPointer(mr, l, addr+l.TCBStack)
	if err != nil {
		return nil, err
	}

	t := &api.Task{
		Address:  addr,
		Name:     name,
		Priority: prio,
		Stack:    stack,
	}

	if t.StackEnd, err = readOptional(mr, l, addr, l.StackEnd); err != nil {
		return nil, err
	}
	if t.CriticalNesting, err = readOptional(mr, l, addr, l.CriticalNesting); err != nil {
		return nil, err
	}
	if t.TaskNumber, err = readOptional(mr, l, addr, l.TaskNumber); err != nil {
		return nil, err
	}
	if t.MutexesHeld, err = readOptional(mr, l, addr, l.MutexesHeld); err != nil {
		return nil, err
	}
	if t.RunTimeCounter, err = readOptional(mr, l, addr, l.RunTimeCounter); err != nil {
		return nil, err
	}
	return t, nil
}

func readOptional(mr target.MemReader, l *KernelLayout, base uint64, f *Field) (*uint64, error) {
	if f == nil {
		return nil, nil
	}
	v, err := readUint(mr, l, base+f.Offset, f.Size)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// TaskName reads only the name of the TCB at addr. The breakpoint stop
// predicate uses this to avoid decoding a full record on every hit.
func TaskName(mr target.MemReader, l *KernelLayout, addr uint64) (string, error) {
	return readString(mr, l, addr+l.TCBName, l.NameLen)
}
