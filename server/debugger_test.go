package server

import (
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/openembed/frdbg/api"
	"github.com/openembed/frdbg/rtos"
	"github.com/openembed/frdbg/target"
)

const (
	curTCBAt = uint64(0x20000100)
	tcbRx    = uint64(0x20001000)
	tcbIdle  = uint64(0x20002000)
	bpAddr   = uint64(0x08000100)

	tOffName = 8
	tNameLen = 16
)

// segMem is a sparse fake memory of independent segments.
type segMem struct {
	segs map[uint64][]byte
}

func newSegMem() *segMem { return &segMem{segs: make(map[uint64][]byte)} }

func (m *segMem) put(addr uint64, data []byte) { m.segs[addr] = data }

func (m *segMem) put32(addr uint64, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	m.put(addr, b)
}

func (m *segMem) ReadMem(addr uint64, buf []byte) error {
	for base, seg := range m.segs {
		if addr >= base && addr+uint64(len(buf)) <= base+uint64(len(seg)) {
			copy(buf, seg[addr-base:])
			return nil
		}
	}
	return fmt.Errorf("unmapped address %#x", addr)
}

// fakeRun scripts the stub's run control. onResume runs before each stop
// is returned, so tests can change "which task is running" between hits.
type fakeRun struct {
	stops    []*target.StopEvent
	resumes  int
	bps      map[uint64]bool
	onResume func(n int)
}

func newFakeRun(stops ...*target.StopEvent) *fakeRun {
	return &fakeRun{stops: stops, bps: make(map[uint64]bool)}
}

func (r *fakeRun) SetBreakpoint(addr uint64) error   { r.bps[addr] = true; return nil }
func (r *fakeRun) ClearBreakpoint(addr uint64) error { delete(r.bps, addr); return nil }
func (r *fakeRun) Interrupt() error                  { return nil }
func (r *fakeRun) Detach() error                     { return nil }
func (r *fakeRun) Close() error                      { return nil }

func (r *fakeRun) Resume() (*target.StopEvent, error) {
	r.resumes++
	if r.onResume != nil {
		r.onResume(r.resumes)
	}
	if len(r.stops) == 0 {
		return &target.StopEvent{Reason: target.StopExited}, nil
	}
	ev := r.stops[0]
	r.stops = r.stops[1:]
	return ev, nil
}

func testLayout(cores int) *rtos.KernelLayout {
	return &rtos.KernelLayout{
		PointerSize: 4,
		Order:       binary.LittleEndian,
		CurrentTCB:  curTCBAt,
		NumCores:    cores,
		TCBName:     tOffName,
		NameLen:     tNameLen,
	}
}

func newTestDebugger(mem *segMem, run *fakeRun, cores int) *Debugger {
	d := NewDebugger(mem, nil, run, 0, make(chan bool))
	d.layout = testLayout(cores)
	d.resolved = true
	return d
}

func putTask(mem *segMem, tcb uint64, name string) {
	seg := make([]byte, tOffName+tNameLen)
	copy(seg[tOffName:], name)
	mem.put(tcb, seg)
}

func drainEvents(d *Debugger) []*api.Event {
	var events []*api.Event
	for {
		select {
		case ev := <-d.Events:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func messages(events []*api.Event) []string {
	var msgs []string
	for _, ev := range events {
		if ev.Name == api.Message {
			msgs = append(msgs, ev.Message.Body)
		}
	}
	return msgs
}

func hasStop(events []*api.Event) bool {
	for _, ev := range events {
		if ev.Name == api.TargetStopped {
			return true
		}
	}
	return false
}

// The defining behaviour: a task-scoped breakpoint hit in the wrong task
// resumes silently; the same location hit while the right task runs stops.
func TestContinueTaskScopedBreakpoint(t *testing.T) {
	mem := newSegMem()
	putTask(mem, tcbRx, "Rx")
	putTask(mem, tcbIdle, "IDLE")
	mem.put32(curTCBAt, uint32(tcbIdle))

	hit := &target.StopEvent{PC: bpAddr, Reason: target.StopBreakpoint, Thread: 1}
	run := newFakeRun(hit, hit)
	// Rx becomes the running task before the second hit.
	run.onResume = func(n int) {
		if n == 2 {
			mem.put32(curTCBAt, uint32(tcbRx))
		}
	}

	d := newTestDebugger(mem, run, 1)
	d.breakpoints[bpAddr] = &breakpoint{id: 1, addr: bpAddr, location: "xQueueReceive", taskName: "Rx"}

	if err := d.Continue(&api.Command{Name: api.Continue}); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if run.resumes != 2 {
		t.Errorf("resumes = %d, want 2 (one silent resume, one stop)", run.resumes)
	}
	events := drainEvents(d)
	if !hasStop(events) {
		t.Error("no TargetStopped event after matching hit")
	}
	for _, ev := range events {
		if ev.Name == api.TargetStopped && ev.TargetStopped.Task != "Rx" {
			t.Errorf("stopped task = %q, want Rx", ev.TargetStopped.Task)
		}
	}
}

func TestContinueUnconditionalBreakpointStops(t *testing.T) {
	mem := newSegMem()
	putTask(mem, tcbIdle, "IDLE")
	mem.put32(curTCBAt, uint32(tcbIdle))

	run := newFakeRun(&target.StopEvent{PC: bpAddr, Reason: target.StopBreakpoint, Thread: 1})
	d := newTestDebugger(mem, run, 1)
	d.breakpoints[bpAddr] = &breakpoint{id: 1, addr: bpAddr, location: "main"}

	if err := d.Continue(&api.Command{Name: api.Continue}); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if run.resumes != 1 {
		t.Errorf("resumes = %d, want 1", run.resumes)
	}
	if !hasStop(drainEvents(d)) {
		t.Error("no TargetStopped event")
	}
}

// Task names are compared after kernel-cap truncation: a breakpoint task
// name longer than the cap still matches the task stored truncated.
func TestTaskMatchTruncation(t *testing.T) {
	mem := newSegMem()
	putTask(mem, tcbRx, "LongNameTas") // 11 chars: cap 12 keeps 11
	mem.put32(curTCBAt, uint32(tcbRx))

	d := newTestDebugger(mem, newFakeRun(), 1)
	d.layout.NameLen = 12

	bp := &breakpoint{id: 1, taskName: "LongNameTaskX"}
	ev := &target.StopEvent{Thread: 1}
	if !d.taskMatches(bp, ev) {
		t.Error("truncated name did not match")
	}

	bp2 := &breakpoint{id: 2, taskName: "Other"}
	if d.taskMatches(bp2, ev) {
		t.Error("mismatched name matched")
	}
}

// Without core attribution on a multi-core target the predicate checks
// every core and reports the ambiguity once.
func TestTaskMatchAmbiguousCore(t *testing.T) {
	mem := newSegMem()
	putTask(mem, tcbRx, "Rx")
	putTask(mem, tcbIdle, "IDLE")
	mem.put32(curTCBAt, uint32(tcbIdle))
	mem.put32(curTCBAt+4, uint32(tcbRx))

	d := newTestDebugger(mem, newFakeRun(), 2)
	bp := &breakpoint{id: 1, taskName: "Rx"}
	ev := &target.StopEvent{Thread: 0}

	if !d.taskMatches(bp, ev) {
		t.Error("task running on core 1 did not match with ambiguous trap")
	}
	msgs := messages(drainEvents(d))
	if len(msgs) != 1 || !strings.Contains(msgs[0], "trapping core") {
		t.Fatalf("expected one ambiguity diagnostic, got %v", msgs)
	}

	// Second evaluation stays quiet.
	d.taskMatches(bp, ev)
	if msgs := messages(drainEvents(d)); len(msgs) != 0 {
		t.Errorf("ambiguity diagnostic repeated: %v", msgs)
	}
}

// Unreadable current-task state counts as a mismatch (resume, don't wedge)
// and is reported once per breakpoint.
func TestTaskMatchUnreadableResumes(t *testing.T) {
	mem := newSegMem() // nothing mapped: every read fails

	d := newTestDebugger(mem, newFakeRun(), 1)
	bp := &breakpoint{id: 1, taskName: "Rx"}
	ev := &target.StopEvent{Thread: 1}

	if d.taskMatches(bp, ev) {
		t.Error("unreadable target matched")
	}
	if msgs := messages(drainEvents(d)); len(msgs) != 1 {
		t.Fatalf("expected one read diagnostic, got %v", msgs)
	}
	if d.taskMatches(bp, ev) {
		t.Error("unreadable target matched")
	}
	if msgs := messages(drainEvents(d)); len(msgs) != 0 {
		t.Errorf("read diagnostic repeated: %v", msgs)
	}
}

func TestSetBreakpointResolvesLocation(t *testing.T) {
	mem := newSegMem()
	run := newFakeRun()
	d := newTestDebugger(mem, run, 1)

	bp, err := d.setBreakpoint("*0x8000100", "")
	if err != nil {
		t.Fatalf("setBreakpoint: %v", err)
	}
	if bp.addr != 0x8000100 {
		t.Errorf("addr = %#x, want 0x8000100", bp.addr)
	}
	if !run.bps[0x8000100] {
		t.Error("stub breakpoint not installed")
	}

	if _, err := d.setBreakpoint("0x8000100", ""); err == nil {
		t.Error("duplicate breakpoint accepted")
	}
	if _, err := d.setBreakpoint("main.c:42", ""); err == nil {
		t.Error("file:line location accepted")
	}
}

func TestClearBreakPoints(t *testing.T) {
	run := newFakeRun()
	d := newTestDebugger(newSegMem(), run, 1)
	if _, err := d.setBreakpoint("0x100", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := d.setBreakpoint("0x200", "Rx"); err != nil {
		t.Fatal(err)
	}

	if err := d.ClearBreakPoints(&api.Command{Name: api.ClearBreakPoints}); err != nil {
		t.Fatalf("ClearBreakPoints: %v", err)
	}
	if len(d.breakpoints) != 0 || len(run.bps) != 0 {
		t.Errorf("breakpoints remain: %d local, %d stub", len(d.breakpoints), len(run.bps))
	}
}
