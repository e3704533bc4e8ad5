package rtos

import (
	"fmt"
	"sort"

	"github.com/golang/glog"

	"github.com/openembed/frdbg/api"
	"github.com/openembed/frdbg/target"
)

// Snapshot walks every kernel list and decodes each task it finds,
// classified against the running TCB of each core. A task whose TCB cannot
// be read is skipped with a warning; the remaining rows still come back.
// Nothing is cached: two snapshots of a halted target produce identical
// results, and a snapshot after the target ran reflects the new state.
func Snapshot(mr target.MemReader, l *KernelLayout, maxListItems int) ([]*api.Task, []string, error) {
	current, err := ReadCurrentTCBs(mr, l)
	if err != nil {
		return nil, nil, err
	}

	walk, err := WalkTasks(mr, l, maxListItems)
	if err != nil {
		return nil, walk.warningsOrNil(), err
	}

	tasks := make([]*api.Task, 0, len(walk.Entries))
	warnings := walk.Warnings
	for _, e := range walk.Entries {
		t, err := DecodeTCB(mr, l, e.TCB)
		if err != nil {
			// Target may have resumed mid-listing; keep the rest.
			warn := fmt.Sprintf("skipping task at %#x: %v", e.TCB, err)
			glog.Warning(warn)
			warnings = append(warnings, warn)
			continue
		}
		state, cpu := Classify(l, e, current)
		t.State = state.Letter()
		if state == StateRunning {
			c := cpu
			t.CPU = &c
		}
		tasks = append(tasks, t)
	}

	// Stable order: priority descending, then TCB address, so repeated
	// snapshots of an unchanged target are byte-identical.
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].Address < tasks[j].Address
	})
	return tasks, warnings, nil
}

func (r *WalkResult) warningsOrNil() []string {
	if r == nil {
		return nil
	}
	return r.Warnings
}
