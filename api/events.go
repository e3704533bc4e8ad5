package api

type Command struct {
	Name             CommandName              `json:"name"`
	Tasks            *TasksCommand            `json:"tasks,omitempty"`
	TaskBreak        *TaskBreakCommand        `json:"taskBreak,omitempty"`
	AddBreakPoint    *AddBreakPointCommand    `json:"addBreakPoint,omitempty"`
	ClearBreakPoints *ClearBreakPointsCommand `json:"clearBreakPoints,omitempty"`
	Continue         *ContinueCommand         `json:"continue,omitempty"`
	Halt             *HaltCommand             `json:"halt,omitempty"`
	Detach           *DetachCommand           `json:"detach,omitempty"`
}

type CommandName string

const (
	Tasks            CommandName = "Tasks"
	TaskBreak        CommandName = "TaskBreak"
	AddBreakPoint    CommandName = "AddBreakPoint"
	ClearBreakPoints CommandName = "ClearBreakPoints"
	Continue         CommandName = "Continue"
	Halt             CommandName = "Halt"
	Detach           CommandName = "Detach"
)

type TasksCommand struct{}

type TaskBreakCommand struct {
	TaskName string `json:"taskName"`
	Location string `json:"location"`
}

type AddBreakPointCommand struct {
	Location string `json:"location"`
}

type ClearBreakPointsCommand struct{}
type ContinueCommand struct{}
type HaltCommand struct{}
type DetachCommand struct{}

type Event struct {
	Name               EventName               `json:"name"`
	TasksUpdated       *TasksUpdatedData       `json:"tasksUpdated,omitempty"`
	BreakPointsUpdated *BreakPointsUpdatedData `json:"breakPointsUpdated,omitempty"`
	TargetStopped      *TargetStoppedData      `json:"targetStopped,omitempty"`
	Message            *MessageData            `json:"message,omitempty"`
}

type EventName string

const (
	TasksUpdated       EventName = "TasksUpdated"
	BreakPointsUpdated EventName = "BreakPointsUpdated"
	TargetStopped      EventName = "TargetStopped"
	Message            EventName = "Message"
)

type TasksUpdatedData struct {
	Timestamp int64      `json:"timestamp"`
	Kernel    KernelInfo `json:"kernel"`
	Tasks     []*Task    `json:"tasks"`
	Warnings  []string   `json:"warnings,omitempty"`
}

type BreakPointsUpdatedData struct {
	Timestamp   int64         `json:"timestamp"`
	BreakPoints []*BreakPoint `json:"breakPoints"`
}

type TargetStoppedData struct {
	PC     uint64 `json:"pc"`
	Reason string `json:"reason"`
	// Task is the name of the task running on the trapping core at stop
	// time, when it could be read.
	Task string `json:"task,omitempty"`
}

type MessageData struct {
	Body string `json:"body"`
}
