// Package rtos decodes FreeRTOS kernel state from raw target memory. It
// knows nothing about the transport: everything is read through the
// target.MemReader and target.SymbolTable capability surfaces.
package rtos

import (
	"encoding/binary"

	"github.com/golang/glog"

	"github.com/openembed/frdbg/api"
	"github.com/openembed/frdbg/target"
)

// Field locates one struct member in target memory.
type Field struct {
	Offset uint64
	Size   uint64
}

// KernelLayout captures everything about the target kernel build that the
// decoder and walker need: root list addresses, struct member offsets, and
// which optional TCB fields this configuration compiled in. It is resolved
// once per debug session and must be rebuilt after a reattach, since a new
// image may be configured differently.
type KernelLayout struct {
	PointerSize int
	Order       binary.ByteOrder

	// Root kernel lists. Suspended and Terminated are zero when the
	// kernel was built without task suspension or deletion.
	ReadyLists   uint64
	NumPriority  int
	ListSize     uint64
	Delayed1     uint64
	Delayed2     uint64
	Suspended    uint64
	Terminated   uint64

	// pxCurrentTCB, or pxCurrentTCBs[0] on SMP kernels.
	CurrentTCB uint64
	NumCores   int

	// List_t member offsets.
	ListNumItems Field
	ListEnd      uint64

	// ListItem_t member offsets. These also apply to the xListEnd mini
	// list item, which shares the leading members.
	ItemValue Field
	ItemNext  uint64
	ItemOwner uint64

	// Mandatory TCB_t members.
	TCBName     uint64
	NameLen     int
	TCBPriority Field
	TCBStack    uint64

	// Optional TCB_t members, nil when the config option is off.
	StackEnd        *Field
	CriticalNesting *Field
	TaskNumber      *Field
	MutexesHeld     *Field
	RunTimeCounter  *Field
}

// Struct type names probed in order: the typedef name, then the tag name
// DWARF emits when the typedef was optimized away.
var (
	tcbTypeNames  = []string{"TCB_t", "tskTaskControlBlock", "tskTCB"}
	listTypeNames = []string{"List_t", "xLIST"}
	itemTypeNames = []string{"ListItem_t", "xLIST_ITEM"}
)

// ResolveLayout probes the target image for the kernel's task-list layout.
// It fails with SymbolNotFoundError when a mandatory symbol or member is
// absent; optional members merely clear their capability flag.
func ResolveLayout(st target.SymbolTable) (*KernelLayout, error) {
	l := &KernelLayout{
		PointerSize: st.PointerSize(),
		Order:       st.ByteOrder(),
	}

	var err error
	if l.ReadyLists, err = st.SymbolAddr("pxReadyTasksLists"); err != nil {
		return nil, SymbolNotFoundError{Symbol: "pxReadyTasksLists"}
	}
	n, ok := st.SymbolElemCount("pxReadyTasksLists")
	if !ok || n == 0 {
		return nil, SymbolNotFoundError{Symbol: "pxReadyTasksLists[] element type"}
	}
	l.NumPriority = n
	size, err := st.SymbolSize("pxReadyTasksLists")
	if err != nil || size == 0 {
		return nil, SymbolNotFoundError{Symbol: "pxReadyTasksLists size"}
	}
	l.ListSize = size / uint64(n)

	if l.Delayed1, err = st.SymbolAddr("xDelayedTaskList1"); err != nil {
		return nil, SymbolNotFoundError{Symbol: "xDelayedTaskList1"}
	}
	if l.Delayed2, err = st.SymbolAddr("xDelayedTaskList2"); err != nil {
		return nil, SymbolNotFoundError{Symbol: "xDelayedTaskList2"}
	}

	// Optional lists: absent when INCLUDE_vTaskSuspend / INCLUDE_vTaskDelete
	// are off.
	if addr, err := st.SymbolAddr("xSuspendedTaskList"); err == nil {
		l.Suspended = addr
	} else {
		glog.V(1).Info("no xSuspendedTaskList; task suspension disabled in this build")
	}
	if addr, err := st.SymbolAddr("xTasksWaitingTermination"); err == nil {
		l.Terminated = addr
	} else {
		glog.V(1).Info("no xTasksWaitingTermination; task deletion disabled in this build")
	}

	if err := resolveCurrentTCB(st, l); err != nil {
		return nil, err
	}
	if err := resolveListTypes(st, l); err != nil {
		return nil, err
	}
	if err := resolveTCBType(st, l); err != nil {
		return nil, err
	}

	glog.V(1).Infof("kernel layout resolved: %d priorities, %d core(s), name cap %d",
		l.NumPriority, l.NumCores, l.NameLen)
	return l, nil
}

// resolveCurrentTCB locates the per-core running-task pointer. Single-core
// kernels export a scalar pxCurrentTCB; SMP kernels export an array, under
// either the same name or pxCurrentTCBs.
func resolveCurrentTCB(st target.SymbolTable, l *KernelLayout) error {
	for _, name := range []string{"pxCurrentTCB", "pxCurrentTCBs"} {
		addr, err := st.SymbolAddr(name)
		if err != nil {
			continue
		}
		l.CurrentTCB = addr
		l.NumCores = 1
		if n, ok := st.SymbolElemCount(name); ok && n > 0 {
			l.NumCores = n
		}
		return nil
	}
	return SymbolNotFoundError{Symbol: "pxCurrentTCB"}
}

func resolveListTypes(st target.SymbolTable, l *KernelLayout) error {
	numItems, ok := member(st, listTypeNames, "uxNumberOfItems")
	if !ok {
		return SymbolNotFoundError{Symbol: "List_t.uxNumberOfItems"}
	}
	l.ListNumItems = Field{Offset: numItems.Offset, Size: numItems.Size}

	listEnd, ok := member(st, listTypeNames, "xListEnd")
	if !ok {
		return SymbolNotFoundError{Symbol: "List_t.xListEnd"}
	}
	l.ListEnd = listEnd.Offset

	value, ok := member(st, itemTypeNames, "xItemValue")
	if !ok {
		return SymbolNotFoundError{Symbol: "ListItem_t.xItemValue"}
	}
	l.ItemValue = Field{Offset: value.Offset, Size: value.Size}

	next, ok := member(st, itemTypeNames, "pxNext")
	if !ok {
		return SymbolNotFoundError{Symbol: "ListItem_t.pxNext"}
	}
	l.ItemNext = next.Offset

	owner, ok := member(st, itemTypeNames, "pvOwner")
	if !ok {
		return SymbolNotFoundError{Symbol: "ListItem_t.pvOwner"}
	}
	l.ItemOwner = owner.Offset
	return nil
}

func resolveTCBType(st target.SymbolTable, l *KernelLayout) error {
	name, ok := member(st, tcbTypeNames, "pcTaskName")
	if !ok {
		return SymbolNotFoundError{Symbol: "TCB_t.pcTaskName"}
	}
	if name.ArrayLen == 0 {
		return SymbolNotFoundError{Symbol: "TCB_t.pcTaskName[] length"}
	}
	l.TCBName = name.Offset
	l.NameLen = name.ArrayLen

	prio, ok := member(st, tcbTypeNames, "uxPriority")
	if !ok {
		return SymbolNotFoundError{Symbol: "TCB_t.uxPriority"}
	}
	l.TCBPriority = Field{Offset: prio.Offset, Size: prio.Size}

	stack, ok := member(st, tcbTypeNames, "pxStack")
	if !ok {
		return SymbolNotFoundError{Symbol: "TCB_t.pxStack"}
	}
	l.TCBStack = stack.Offset

	// Optional members, each present only under its kernel config option.
	l.StackEnd = optionalMember(st, "pxEndOfStack")
	l.CriticalNesting = optionalMember(st, "uxCriticalNesting")
	l.TaskNumber = optionalMember(st, "uxTCBNumber")
	l.MutexesHeld = optionalMember(st, "uxMutexesHeld")
	l.RunTimeCounter = optionalMember(st, "ulRunTimeCounter")
	return nil
}

func optionalMember(st target.SymbolTable, name string) *Field {
	m, ok := member(st, tcbTypeNames, name)
	if !ok {
		glog.V(2).Infof("TCB member %s not present in this build", name)
		return nil
	}
	return &Field{Offset: m.Offset, Size: m.Size}
}

func member(st target.SymbolTable, typeNames []string, name string) (target.MemberInfo, bool) {
	for _, tn := range typeNames {
		if m, ok := st.Member(tn, name); ok {
			return m, true
		}
	}
	return target.MemberInfo{}, false
}

// Info summarizes the layout for clients deciding which columns to render.
func (l *KernelLayout) Info() api.KernelInfo {
	return api.KernelInfo{
		Cores:              l.NumCores,
		Priorities:         l.NumPriority,
		TaskNameLen:        l.NameLen,
		HasStackEnd:        l.StackEnd != nil,
		HasCriticalNesting: l.CriticalNesting != nil,
		HasTaskNumber:      l.TaskNumber != nil,
		HasMutexesHeld:     l.MutexesHeld != nil,
		HasRunTimeCounter:  l.RunTimeCounter != nil,
	}
}

// TruncateName applies the kernel's task-name cap to name. The kernel
// reserves the final array slot for the NUL terminator, so names longer
// than NameLen-1 characters are cut to fit, exactly as xTaskCreate does.
func (l *KernelLayout) TruncateName(name string) string {
	if l.NameLen <= 0 || len(name) < l.NameLen {
		return name
	}
	return name[:l.NameLen-1]
}

// NeverWake is the xItemValue sentinel meaning "block forever": the
// all-ones value of the tick type.
func (l *KernelLayout) NeverWake() uint64 {
	if l.ItemValue.Size >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * l.ItemValue.Size)) - 1
}
