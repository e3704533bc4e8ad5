package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	api "github.com/openembed/frdbg/api"
	client "github.com/openembed/frdbg/client"
	rtos "github.com/openembed/frdbg/rtos"
)

const defaultHistoryFile string = ".frdbg_history"

type Term struct {
	client      client.Interface
	prompt      string
	historyFile string
	line        *liner.State
	cache       *cache
}

// cache holds the latest state the server pushed, so commands like help
// never need a round trip.
type cache struct {
	breakPoints []*api.BreakPoint
	kernel      api.KernelInfo
}

func New(client client.Interface, historyFile string) *Term {
	if historyFile == "" {
		historyFile = defaultHistoryFile
	}
	return &Term{
		prompt:      "(frdbg) ",
		historyFile: historyFile,
		line:        liner.NewLiner(),
		client:      client,
		cache:       &cache{},
	}
}

func (t *Term) die(status int, args ...interface{}) {
	if t.line != nil {
		t.line.Close()
	}

	fmt.Fprint(os.Stderr, args...)
	fmt.Fprint(os.Stderr, "\n")
	os.Exit(status)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) Run() int {
	defer t.line.Close()

	go t.handleEvents()

	cmds := DebugCommands(t.cache, t.client)
	f, err := os.Open(t.historyFile)
	if err != nil {
		f, _ = os.Create(t.historyFile)
	}
	t.line.ReadHistory(f)
	f.Close()
	fmt.Println("Type 'help' for list of commands.")

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				return handleExit(t.client, t, 0)
			}
			t.die(1, "Prompt for input failed.\n")
		}
		if len(cmdstr) == 0 {
			continue
		}

		cmdstr, args := parseCommand(cmdstr)

		if cmdstr == "exit" {
			return handleExit(t.client, t, 0)
		}

		cmd := cmds.Find(cmdstr)
		if err := cmd(t.client, t.cache, args...); err != nil {
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

func (t *Term) handleEvents() {
	for {
		event, err := t.client.NextEvent()
		if err != nil {
			fmt.Printf("event error: %s\n", err)
			continue
		}

		switch event.Name {
		case api.TasksUpdated:
			t.cache.kernel = event.TasksUpdated.Kernel
			printTasks(event.TasksUpdated)
		case api.BreakPointsUpdated:
			t.cache.breakPoints = event.BreakPointsUpdated.BreakPoints
		case api.TargetStopped:
			s := event.TargetStopped
			if s.Task != "" {
				fmt.Printf("Target stopped at %#x (%s) in task %q\n", s.PC, s.Reason, s.Task)
			} else {
				fmt.Printf("Target stopped at %#x (%s)\n", s.PC, s.Reason)
			}
		case api.Message:
			fmt.Println(event.Message.Body)
		default:
			fmt.Printf("unsupported event %s\n", event.Name)
		}
	}
}

func printTasks(data *api.TasksUpdatedData) {
	for _, warning := range data.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	if err := rtos.RenderTable(os.Stdout, data.Kernel, data.Tasks); err != nil {
		fmt.Fprintf(os.Stderr, "render error: %s\n", err)
	}
}

func handleExit(client client.Interface, t *Term, status int) int {
	if f, err := os.OpenFile(t.historyFile, os.O_RDWR, 0666); err == nil {
		_, err := t.line.WriteHistory(f)
		if err != nil {
			fmt.Println("readline history error: ", err)
		}
		f.Close()
	}

	answer, err := t.line.Prompt("Clear breakpoints and detach, leaving the target running? [y/n]")
	if err != nil {
		t.die(2, io.EOF)
	}
	answer = strings.TrimSuffix(answer, "\n")

	if answer == "y" {
		client.ClearBreakPoints()
		fmt.Println("Detaching from target...")
		client.Detach()
	}

	fmt.Println("Happy debugging!")
	return status
}

func parseCommand(cmdstr string) (string, []string) {
	vals := strings.Split(cmdstr, " ")
	return vals[0], vals[1:]
}
