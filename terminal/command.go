package terminal

import (
	"fmt"
	"sort"

	client "github.com/openembed/frdbg/client"
)

type cmdfunc func(client client.Interface, cache *cache, args ...string) error

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

type Commands struct {
	cmds []command
}

// DebugCommands returns the command table bound to cache and client.
func DebugCommands(cache *cache, client client.Interface) *Commands {
	c := &Commands{}
	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: "Print the available commands."},
		{aliases: []string{"tasks", "t"}, cmdFn: tasks, helpMsg: "Print the FreeRTOS task table."},
		{aliases: []string{"break"}, cmdFn: taskBreak, helpMsg: "break <task_name> <location>. Breakpoint that only stops the named task."},
		{aliases: []string{"breakpoint", "b"}, cmdFn: breakPoint, helpMsg: "breakpoint <location>. Unconditional breakpoint."},
		{aliases: []string{"breakpoints", "bps"}, cmdFn: breakPoints, helpMsg: "List the current breakpoints."},
		{aliases: []string{"clear-all", "clear"}, cmdFn: clearAll, helpMsg: "Delete all breakpoints."},
		{aliases: []string{"continue", "c"}, cmdFn: cont, helpMsg: "Resume the target."},
		{aliases: []string{"halt"}, cmdFn: halt, helpMsg: "Break into a running target."},
		{aliases: []string{"detach"}, cmdFn: detach, helpMsg: "Detach, leaving the target running."},
	}
	return c
}

// Find returns the command with the given alias, or a handler that reports
// an unknown command.
func (c *Commands) Find(cmdstr string) cmdfunc {
	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}
	return notFound(cmdstr)
}

func notFound(cmdstr string) cmdfunc {
	return func(client client.Interface, cache *cache, args ...string) error {
		return fmt.Errorf("command %q not available; try help", cmdstr)
	}
}

func (c *Commands) help(client client.Interface, cache *cache, args ...string) error {
	for _, cmd := range c.cmds {
		fmt.Printf("  %-18s %s\n", cmd.aliases[0], cmd.helpMsg)
	}
	fmt.Printf("  %-18s Exit the debugger.\n", "exit")
	return nil
}

func tasks(client client.Interface, cache *cache, args ...string) error {
	return client.Tasks()
}

func taskBreak(client client.Interface, cache *cache, args ...string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: break <task_name> <location>")
	}
	return client.TaskBreak(args[0], args[1])
}

func breakPoint(client client.Interface, cache *cache, args ...string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: breakpoint <location>")
	}
	return client.AddBreakPoint(args[0])
}

func breakPoints(client client.Interface, cache *cache, args ...string) error {
	if len(cache.breakPoints) == 0 {
		fmt.Println("No breakpoints set.")
		return nil
	}
	sorted := make([]int, 0, len(cache.breakPoints))
	for i := range cache.breakPoints {
		sorted = append(sorted, i)
	}
	sort.Slice(sorted, func(a, b int) bool {
		return cache.breakPoints[sorted[a]].ID < cache.breakPoints[sorted[b]].ID
	})
	for _, i := range sorted {
		bp := cache.breakPoints[i]
		if bp.TaskName != "" {
			fmt.Printf("  %d: %s at %#x (task %q)\n", bp.ID, bp.Location, bp.Addr, bp.TaskName)
		} else {
			fmt.Printf("  %d: %s at %#x\n", bp.ID, bp.Location, bp.Addr)
		}
	}
	return nil
}

func clearAll(client client.Interface, cache *cache, args ...string) error {
	return client.ClearBreakPoints()
}

func cont(client client.Interface, cache *cache, args ...string) error {
	return client.Continue()
}

func halt(client client.Interface, cache *cache, args ...string) error {
	return client.Halt()
}

func detach(client client.Interface, cache *cache, args ...string) error {
	return client.Detach()
}
