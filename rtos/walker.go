package rtos

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/openembed/frdbg/target"
)

// ListKind identifies which kernel list a TCB was found on.
type ListKind int

const (
	ListReady ListKind = iota
	ListDelayed
	ListOverflowDelayed
	ListSuspended
	ListTerminated
)

func (k ListKind) String() string {
	switch k {
	case ListReady:
		return "ready"
	case ListDelayed:
		return "delayed"
	case ListOverflowDelayed:
		return "overflow-delayed"
	case ListSuspended:
		return "suspended"
	case ListTerminated:
		return "terminated"
	}
	return "unknown"
}

// ListEntry is one TCB discovered on a kernel list.
type ListEntry struct {
	TCB  uint64
	List ListKind
	// ItemValue is the xItemValue stored in the task's state list item.
	// For the delayed lists it is the wake tick; the all-ones tick is
	// the "never wake" sentinel.
	ItemValue uint64
}

// DefaultMaxListItems caps a single list traversal. FreeRTOS systems run
// tens of tasks, not thousands; anything past the cap means the snapshot
// is inconsistent.
const DefaultMaxListItems = 1024

// WalkResult carries the entries found plus non-fatal per-list warnings.
type WalkResult struct {
	Entries  []ListEntry
	Warnings []string
}

// WalkTasks traverses every kernel task list and returns the TCBs linked
// into each. A failure on a root list head aborts the whole walk; a
// corrupt or unreadable list body abandons that list with a warning and
// the remaining lists are still walked.
func WalkTasks(mr target.MemReader, l *KernelLayout, maxItems int) (*WalkResult, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxListItems
	}
	res := &WalkResult{}

	for p := 0; p < l.NumPriority; p++ {
		root := l.ReadyLists + uint64(p)*l.ListSize
		if err := walkList(mr, l, root, ListReady, fmt.Sprintf("ready[%d]", p), maxItems, res); err != nil {
			return nil, err
		}
	}

	roots := []struct {
		addr uint64
		kind ListKind
		name string
	}{
		{l.Delayed1, ListDelayed, "delayed"},
		{l.Delayed2, ListOverflowDelayed, "overflow-delayed"},
		{l.Suspended, ListSuspended, "suspended"},
		{l.Terminated, ListTerminated, "terminated"},
	}
	for _, r := range roots {
		if r.addr == 0 {
			continue
		}
		if err := walkList(mr, l, r.addr, r.kind, r.name, maxItems, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// walkList traverses one circular kernel list starting and ending at the
// xListEnd sentinel. The sentinel is the sole terminal condition; the item
// cap is the defense against a snapshot whose next pointers never lead
// back to it.
func walkList(mr target.MemReader, l *KernelLayout, root uint64, kind ListKind, name string, maxItems int, res *WalkResult) error {
	numItems, err := readUint(mr, l, root+l.ListNumItems.Offset, l.ListNumItems.Size)
	if err != nil {
		// Root list heads are resolved kernel globals; if one is
		// unreadable nothing else about the target can be trusted.
		return err
	}
	if numItems == 0 {
		return nil
	}

	sentinel := root + l.ListEnd
	node, err := readPointer(mr, l, sentinel+l.ItemNext)
	if err != nil {
		return err
	}

	for n := 0; node != sentinel; n++ {
		if n >= maxItems {
			err := CorruptListError{List: name, Cap: maxItems}
			glog.Warning(err.Error())
			res.Warnings = append(res.Warnings, err.Error())
			return nil
		}

		owner, err := readPointer(mr, l, node+l.ItemOwner)
		if err != nil {
			glog.Warningf("abandoning %s list: %v", name, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("abandoning %s list: %v", name, err))
			return nil
		}
		value, err := readUint(mr, l, node+l.ItemValue.Offset, l.ItemValue.Size)
		if err != nil {
			glog.Warningf("abandoning %s list: %v", name, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("abandoning %s list: %v", name, err))
			return nil
		}

		if owner == 0 {
			// A linked item with no owning TCB points at stack
			// corruption on the target.
			warn := fmt.Sprintf("%s list item at %#x has a NULL owner; stack corruption?", name, node)
			glog.Warning(warn)
			res.Warnings = append(res.Warnings, warn)
		} else {
			res.Entries = append(res.Entries, ListEntry{TCB: owner, List: kind, ItemValue: value})
		}

		if node, err = readPointer(mr, l, node+l.ItemNext); err != nil {
			glog.Warningf("abandoning %s list: %v", name, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("abandoning %s list: %v", name, err))
			return nil
		}
	}
	return nil
}
