package rtos

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/openembed/frdbg/api"
)

// RenderTable writes the task list as an aligned table. The column set is
// the mandatory columns plus every optional column the kernel build
// carries; a column is driven by the layout flags, never by whether a
// particular row happens to have a value.
func RenderTable(w io.Writer, info api.KernelInfo, tasks []*api.Task) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, "There are currently no tasks. The program may not have created any tasks yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	cols := []string{"ID", "STATE", "CPU", "PRIORITY", "STACK", "NAME"}
	if info.HasStackEnd {
		cols = append(cols, "STACK_END")
	}
	if info.HasCriticalNesting {
		cols = append(cols, "CRITICAL_NESTING")
	}
	if info.HasTaskNumber {
		cols = append(cols, "TCB_NUM")
	}
	if info.HasMutexesHeld {
		cols = append(cols, "MUTEXES")
	}
	if info.HasRunTimeCounter {
		cols = append(cols, "RUN_TIME")
	}
	writeRow(tw, cols)

	for _, t := range tasks {
		cpu := ""
		if t.CPU != nil {
			cpu = fmt.Sprintf("%d", *t.CPU)
		}
		row := []string{
			fmt.Sprintf("%#x", t.Address),
			t.State,
			cpu,
			fmt.Sprintf("%d", t.Priority),
			fmt.Sprintf("%#x", t.Stack),
			t.Name,
		}
		if info.HasStackEnd {
			row = append(row, optHex(t.StackEnd))
		}
		if info.HasCriticalNesting {
			row = append(row, optDec(t.CriticalNesting))
		}
		if info.HasTaskNumber {
			row = append(row, optDec(t.TaskNumber))
		}
		if info.HasMutexesHeld {
			row = append(row, optDec(t.MutexesHeld))
		}
		if info.HasRunTimeCounter {
			row = append(row, optDec(t.RunTimeCounter))
		}
		writeRow(tw, row)
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

func optHex(v *uint64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%#x", *v)
}

func optDec(v *uint64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}
