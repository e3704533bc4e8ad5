package rtos

// Test fixtures: a fake memory image laid out like a live 32-bit
// little-endian FreeRTOS target, with the kernel globals and TCBs at fixed
// addresses. The layout constants mirror a typical Cortex-M build of the
// kernel (List_t of 20 bytes, full ListItem_t of 20 bytes, name cap 16).

import (
	"encoding/binary"
	"fmt"
	"testing"
)

const (
	imgBase = uint64(0x20000000)
	imgSize = 0x10000

	readyBase   = imgBase + 0x1000
	delayed1At  = imgBase + 0x1200
	delayed2At  = imgBase + 0x1240
	suspendedAt = imgBase + 0x1280
	terminatedAt = imgBase + 0x12c0
	currentAt   = imgBase + 0x1300
	tcbBase     = imgBase + 0x2000

	listSize     = 20
	offListNum   = 0
	offListEnd   = 8
	offItemValue = 0
	offItemNext  = 4
	offItemOwner = 12

	offStateItem = 4
	offStack     = 44
	offName      = 48
	taskNameLen  = 16
	offPriority  = 64
	offTaskNum   = 68
	offMutexes   = 72
)

type fakeMem struct {
	base uint64
	data []byte
	bad  []badRange
}

type badRange struct{ lo, hi uint64 }

func (m *fakeMem) ReadMem(addr uint64, buf []byte) error {
	end := addr + uint64(len(buf))
	for _, r := range m.bad {
		if addr < r.hi && end > r.lo {
			return fmt.Errorf("memory access fault at %#x", addr)
		}
	}
	if addr < m.base || end > m.base+uint64(len(m.data)) {
		return fmt.Errorf("unmapped address %#x", addr)
	}
	copy(buf, m.data[addr-m.base:end-m.base])
	return nil
}

// markUnreadable makes [addr, addr+size) fault, simulating a target that
// resumed or an invalid pointer.
func (m *fakeMem) markUnreadable(addr, size uint64) {
	m.bad = append(m.bad, badRange{lo: addr, hi: addr + size})
}

type img struct {
	mem    *fakeMem
	layout *KernelLayout
	nTasks int
}

func newImg(cores int, withOptionals bool) *img {
	im := &img{
		mem: &fakeMem{base: imgBase, data: make([]byte, imgSize)},
		layout: &KernelLayout{
			PointerSize:  4,
			Order:        binary.LittleEndian,
			ReadyLists:   readyBase,
			NumPriority:  8,
			ListSize:     listSize,
			Delayed1:     delayed1At,
			Delayed2:     delayed2At,
			Suspended:    suspendedAt,
			Terminated:   terminatedAt,
			CurrentTCB:   currentAt,
			NumCores:     cores,
			ListNumItems: Field{Offset: offListNum, Size: 4},
			ListEnd:      offListEnd,
			ItemValue:    Field{Offset: offItemValue, Size: 4},
			ItemNext:     offItemNext,
			ItemOwner:    offItemOwner,
			TCBName:      offName,
			NameLen:      taskNameLen,
			TCBPriority:  Field{Offset: offPriority, Size: 4},
			TCBStack:     offStack,
		},
	}
	if withOptionals {
		im.layout.TaskNumber = &Field{Offset: offTaskNum, Size: 4}
		im.layout.MutexesHeld = &Field{Offset: offMutexes, Size: 4}
	}

	for p := 0; p < im.layout.NumPriority; p++ {
		im.initList(readyBase + uint64(p)*listSize)
	}
	im.initList(delayed1At)
	im.initList(delayed2At)
	im.initList(suspendedAt)
	im.initList(terminatedAt)
	return im
}

func (im *img) put32(addr uint64, v uint32) {
	binary.LittleEndian.PutUint32(im.mem.data[addr-imgBase:], v)
}

// initList writes an empty circular list: the sentinel's next pointer is
// the sentinel itself.
func (im *img) initList(root uint64) {
	sentinel := root + offListEnd
	im.put32(root+offListNum, 0)
	im.put32(sentinel+offItemNext, uint32(sentinel))
}

func (im *img) readyList(prio int) uint64 {
	return readyBase + uint64(prio)*listSize
}

// addTask writes a TCB and its state list item into the image and returns
// the TCB address. The task is not linked into any list yet.
func (im *img) addTask(name string, prio uint32) uint64 {
	tcb := tcbBase + uint64(im.nTasks)*0x100
	im.nTasks++

	copy(im.mem.data[tcb+offName-imgBase:], name)
	im.put32(tcb+offPriority, prio)
	im.put32(tcb+offStack, uint32(tcb+0x80))
	im.put32(tcb+offTaskNum, uint32(im.nTasks))
	im.put32(tcb+offMutexes, 0)
	im.put32(tcb+offStateItem+offItemOwner, uint32(tcb))
	return tcb
}

// link places the tasks' state list items on the list at root, in order.
func (im *img) link(root uint64, tcbs ...uint64) {
	sentinel := root + offListEnd
	im.put32(root+offListNum, uint32(len(tcbs)))
	prev := sentinel
	for _, tcb := range tcbs {
		item := tcb + offStateItem
		im.put32(prev+offItemNext, uint32(item))
		prev = item
	}
	im.put32(prev+offItemNext, uint32(sentinel))
}

func (im *img) setItemValue(tcb uint64, v uint32) {
	im.put32(tcb+offStateItem+offItemValue, v)
}

func (im *img) setCurrent(core int, tcb uint64) {
	im.put32(currentAt+uint64(core*4), uint32(tcb))
}

func entryAddrs(entries []ListEntry) []uint64 {
	addrs := make([]uint64, len(entries))
	for i, e := range entries {
		addrs[i] = e.TCB
	}
	return addrs
}

func TestFixtureSelfCheck(t *testing.T) {
	im := newImg(1, false)
	idle := im.addTask("IDLE", 0)
	im.link(im.readyList(0), idle)

	name, err := TaskName(im.mem, im.layout, idle)
	if err != nil {
		t.Fatalf("TaskName: %v", err)
	}
	if name != "IDLE" {
		t.Fatalf("got name %q, want IDLE", name)
	}
}
