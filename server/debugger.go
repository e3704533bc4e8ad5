package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/openembed/frdbg/api"
	"github.com/openembed/frdbg/rtos"
	"github.com/openembed/frdbg/target"
)

// Debugger owns the stub connection and executes commands one at a time in
// its run loop, so none of the state below needs locking. The one
// exception is Halt, which only writes the break-in byte and may run while
// Continue blocks in Resume.
type Debugger struct {
	Commands chan *api.Command
	Events   chan *api.Event

	shutdown           chan bool
	fullNotifyInterval time.Duration

	mem  target.MemReader
	syms target.SymbolTable
	run  target.RunControl

	// layout is session state: resolved on first use, thrown away on
	// detach so a reattach against a rebuilt image starts clean.
	layout    *rtos.KernelLayout
	layoutErr error
	resolved  bool

	maxListItems int

	// CoresOverride forces the core count when the image's probe is
	// wrong for the running hardware. Zero means trust the probe. Set
	// before Run.
	CoresOverride int

	bpSeq       atomic.Int64
	breakpoints map[uint64]*breakpoint
	running     atomic.Bool

	commandHandlers map[api.CommandName]commandHandler
}

type commandHandler func(*api.Command) error

// breakpoint is a stub breakpoint plus the optional task predicate. The
// warned flags keep the predicate's failure diagnostics to one per
// breakpoint so a wedged read does not flood the operator on every hit.
type breakpoint struct {
	id       int64
	addr     uint64
	location string
	taskName string

	warnedRead      bool
	warnedAmbiguous bool
}

func NewDebugger(mem target.MemReader, syms target.SymbolTable, run target.RunControl, maxListItems int, shutdown chan bool) *Debugger {
	d := &Debugger{
		Commands:           make(chan *api.Command),
		Events:             make(chan *api.Event, 64),
		shutdown:           shutdown,
		fullNotifyInterval: 1 * time.Second,
		mem:                mem,
		syms:               syms,
		run:                run,
		maxListItems:       maxListItems,
		breakpoints:        make(map[uint64]*breakpoint),
	}
	d.commandHandlers = map[api.CommandName]commandHandler{
		api.Tasks:            d.Tasks,
		api.TaskBreak:        d.TaskBreak,
		api.AddBreakPoint:    d.AddBreakPoint,
		api.ClearBreakPoints: d.ClearBreakPoints,
		api.Continue:         d.Continue,
		api.Halt:             d.Halt,
		api.Detach:           d.Detach,
	}
	return d
}

func (d *Debugger) Run() error {
	if err := d.ensureLayout(); err != nil {
		d.sendMessage(err.Error())
	}

	ticker := time.NewTicker(d.fullNotifyInterval)
	defer ticker.Stop()

runLoop:
	for {
		select {
		case command := <-d.Commands:
			handler, hasHandler := d.commandHandlers[command.Name]
			if !hasHandler {
				glog.Errorf("no handler for command %s", command.Name)
				continue
			}

			glog.V(1).Infof("handling command: %s", command.Name)
			if err := handler(command); err != nil {
				glog.Errorf("handler error: %s", err)
				d.sendMessage(fmt.Sprintf("%s failed: %s", command.Name, err))
			}
		case <-ticker.C:
			if !d.running.Load() && d.layoutOK() {
				glog.V(5).Info("performing full notify")
				d.NotifyTasksUpdated()
			}
		case <-d.shutdown:
			break runLoop
		}
	}
	glog.Info("debugger stopping")
	return d.run.Close()
}

// ensureLayout resolves the kernel layout once per session. The resolution
// failure is cached too: a missing mandatory symbol will not appear by
// retrying, only by reattaching with a different image.
func (d *Debugger) ensureLayout() error {
	if !d.resolved {
		d.layout, d.layoutErr = rtos.ResolveLayout(d.syms)
		d.resolved = true
		if d.layoutErr == nil && d.CoresOverride > 0 {
			d.layout.NumCores = d.CoresOverride
		}
	}
	return d.layoutErr
}

func (d *Debugger) layoutOK() bool {
	return d.resolved && d.layoutErr == nil
}

// invalidateLayout drops the session layout; the next command re-resolves.
func (d *Debugger) invalidateLayout() {
	d.layout = nil
	d.layoutErr = nil
	d.resolved = false
}

func (d *Debugger) sendMessage(body string) {
	d.Events <- &api.Event{
		Name: api.Message,
		Message: &api.MessageData{
			Body: body,
		},
	}
}

func (d *Debugger) Tasks(command *api.Command) error {
	if err := d.ensureLayout(); err != nil {
		d.sendMessage(err.Error())
		return nil
	}
	return d.NotifyTasksUpdated()
}

func (d *Debugger) TaskBreak(command *api.Command) error {
	if err := d.ensureLayout(); err != nil {
		d.sendMessage(err.Error())
		return nil
	}
	taskName := command.TaskBreak.TaskName
	bp, err := d.setBreakpoint(command.TaskBreak.Location, taskName)
	if err != nil {
		d.sendMessage(fmt.Sprintf("Error setting breakpoint: %s", err))
		return nil
	}
	if truncated := d.layout.TruncateName(taskName); truncated != taskName {
		d.sendMessage(fmt.Sprintf(
			"Task name %q exceeds the kernel's cap and was truncated to %q", taskName, truncated))
	}
	d.sendMessage(fmt.Sprintf(
		"Breakpoint %d set at %#x for %s, stopping only in task %q", bp.id, bp.addr, bp.location, taskName))
	return d.NotifyBreakPointsUpdated()
}

func (d *Debugger) AddBreakPoint(command *api.Command) error {
	bp, err := d.setBreakpoint(command.AddBreakPoint.Location, "")
	if err != nil {
		d.sendMessage(fmt.Sprintf("Error setting breakpoint: %s", err))
		return nil
	}
	d.sendMessage(fmt.Sprintf("Breakpoint %d set at %#x for %s", bp.id, bp.addr, bp.location))
	return d.NotifyBreakPointsUpdated()
}

func (d *Debugger) setBreakpoint(location, taskName string) (*breakpoint, error) {
	addr, err := d.resolveLocation(location)
	if err != nil {
		return nil, err
	}
	if _, exists := d.breakpoints[addr]; exists {
		return nil, fmt.Errorf("breakpoint already set at %#x", addr)
	}
	if err := d.run.SetBreakpoint(addr); err != nil {
		return nil, err
	}
	bp := &breakpoint{
		id:       d.bpSeq.Inc(),
		addr:     addr,
		location: location,
		taskName: taskName,
	}
	d.breakpoints[addr] = bp
	return bp, nil
}

// resolveLocation accepts a function name or a hex address literal.
func (d *Debugger) resolveLocation(location string) (uint64, error) {
	spec := strings.TrimPrefix(location, "*")
	if strings.HasPrefix(spec, "0x") || strings.HasPrefix(spec, "0X") {
		return strconv.ParseUint(spec[2:], 16, 64)
	}
	if strings.Contains(spec, ":") {
		return 0, fmt.Errorf("file:line locations are not supported; use a function name or *0xADDR")
	}
	addr, err := d.syms.SymbolAddr(spec)
	if err != nil {
		return 0, fmt.Errorf("cannot resolve %q: %w", spec, err)
	}
	return addr, nil
}

func (d *Debugger) ClearBreakPoints(command *api.Command) error {
	for addr := range d.breakpoints {
		if err := d.run.ClearBreakpoint(addr); err != nil {
			glog.Errorf("can't clear breakpoint @%x: %s", addr, err)
			d.sendMessage(fmt.Sprintf("Can't clear breakpoint @%x: %s", addr, err))
			continue
		}
		delete(d.breakpoints, addr)
	}
	d.sendMessage("Cleared all breakpoints")
	return d.NotifyBreakPointsUpdated()
}

// Continue resumes the target. Stops at task-scoped breakpoints whose task
// is not the one running are swallowed: the target resumes immediately and
// the operator sees nothing, which is the entire point of a task-scoped
// breakpoint.
func (d *Debugger) Continue(command *api.Command) error {
	for {
		d.running.Store(true)
		ev, err := d.run.Resume()
		d.running.Store(false)
		if err != nil {
			return err
		}

		if ev.Reason == target.StopExited {
			d.sendMessage(fmt.Sprintf("Target exited with status %d", ev.Code))
			return nil
		}

		if bp := d.breakpoints[ev.PC]; bp != nil && bp.taskName != "" && ev.Reason == target.StopBreakpoint {
			if !d.taskMatches(bp, ev) {
				glog.V(2).Infof("breakpoint %d hit in the wrong task, resuming", bp.id)
				continue
			}
		}

		d.notifyStopped(ev)
		if d.layoutOK() {
			d.NotifyTasksUpdated()
		}
		return nil
	}
}

// taskMatches is the task-scoped stop predicate. It re-reads the running
// TCB of the trapping core on every hit and compares its name to the
// breakpoint's task, truncated to the kernel cap. Transient read failures
// count as a mismatch so a half-readable target resumes instead of
// wedging; the first such failure is reported.
func (d *Debugger) taskMatches(bp *breakpoint, ev *target.StopEvent) bool {
	if err := d.ensureLayout(); err != nil {
		// Without a layout the predicate cannot run at all; stopping
		// is the only behaviour that doesn't lose the hit.
		if !bp.warnedRead {
			bp.warnedRead = true
			d.sendMessage(fmt.Sprintf("Breakpoint %d cannot check its task: %s", bp.id, err))
		}
		return true
	}

	current, err := rtos.ReadCurrentTCBs(d.mem, d.layout)
	if err != nil {
		if !bp.warnedRead {
			bp.warnedRead = true
			d.sendMessage(fmt.Sprintf("Breakpoint %d: %s; resuming", bp.id, err))
		}
		return false
	}

	// Stub thread N is core N-1 for RTOS-aware stubs. Without that
	// attribution on a multi-core target, every core is checked; the
	// ambiguity is reported once and is documented undefined behaviour
	// on true multiprocessor targets.
	cores := current
	if ev.Thread > 0 && ev.Thread-1 < len(current) {
		cores = current[ev.Thread-1 : ev.Thread]
	} else if len(current) > 1 && !bp.warnedAmbiguous {
		bp.warnedAmbiguous = true
		d.sendMessage(rtos.AmbiguousCoreError{Cores: len(current)}.Error())
	}

	want := d.layout.TruncateName(bp.taskName)
	for _, tcb := range cores {
		if tcb == 0 {
			continue
		}
		name, err := rtos.TaskName(d.mem, d.layout, tcb)
		if err != nil {
			if !bp.warnedRead {
				bp.warnedRead = true
				d.sendMessage(fmt.Sprintf("Breakpoint %d: %s; resuming", bp.id, err))
			}
			continue
		}
		if name == want {
			return true
		}
	}
	return false
}

// Halt is dispatched directly by the websocket reader rather than through
// the command loop: while the target runs, the loop is blocked inside
// Continue, and the break-in byte is the one thing safe to send from
// another goroutine.
func (d *Debugger) Halt(command *api.Command) error {
	if !d.running.Load() {
		d.sendMessage("Target is not running")
		return nil
	}
	return d.run.Interrupt()
}

func (d *Debugger) Detach(command *api.Command) error {
	d.sendMessage("Detaching from target")
	err := d.run.Detach()
	glog.V(0).Infof("attempted detach with result: %v", err)
	d.invalidateLayout()
	return err
}

func (d *Debugger) notifyStopped(ev *target.StopEvent) {
	data := &api.TargetStoppedData{
		PC:     ev.PC,
		Reason: string(ev.Reason),
	}
	if d.layoutOK() {
		if current, err := rtos.ReadCurrentTCBs(d.mem, d.layout); err == nil {
			core := 0
			if ev.Thread > 0 && ev.Thread-1 < len(current) {
				core = ev.Thread - 1
			}
			if current[core] != 0 {
				if name, err := rtos.TaskName(d.mem, d.layout, current[core]); err == nil {
					data.Task = name
				}
			}
		}
	}
	d.Events <- &api.Event{Name: api.TargetStopped, TargetStopped: data}
}

func (d *Debugger) NotifyTasksUpdated() error {
	tasks, warnings, err := rtos.Snapshot(d.mem, d.layout, d.maxListItems)
	if err != nil {
		d.sendMessage(fmt.Sprintf("Cannot list tasks: %s", err))
		return nil
	}

	d.Events <- &api.Event{
		Name: api.TasksUpdated,
		TasksUpdated: &api.TasksUpdatedData{
			Timestamp: time.Now().UnixNano(),
			Kernel:    d.layout.Info(),
			Tasks:     tasks,
			Warnings:  warnings,
		},
	}
	return nil
}

func (d *Debugger) NotifyBreakPointsUpdated() error {
	bps := []*api.BreakPoint{}
	for _, bp := range d.breakpoints {
		bps = append(bps, &api.BreakPoint{
			ID:       int(bp.id),
			Location: bp.location,
			Addr:     bp.addr,
			TaskName: bp.taskName,
		})
	}

	d.Events <- &api.Event{
		Name: api.BreakPointsUpdated,
		BreakPointsUpdated: &api.BreakPointsUpdatedData{
			Timestamp:   time.Now().UnixNano(),
			BreakPoints: bps,
		},
	}
	return nil
}
