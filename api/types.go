package api

// Task is one decoded FreeRTOS task control block. Optional fields are
// pointers: a kernel built without the corresponding config option produces
// no value at all, and omitempty keeps absence visible on the wire.
type Task struct {
	Address  uint64 `json:"address"`
	Name     string `json:"name"`
	State    string `json:"state"`
	CPU      *int   `json:"cpu,omitempty"`
	Priority uint64 `json:"priority"`
	Stack    uint64 `json:"stack"`

	StackEnd        *uint64 `json:"stackEnd,omitempty"`
	CriticalNesting *uint64 `json:"criticalNesting,omitempty"`
	TaskNumber      *uint64 `json:"taskNumber,omitempty"`
	MutexesHeld     *uint64 `json:"mutexesHeld,omitempty"`
	RunTimeCounter  *uint64 `json:"runTimeCounter,omitempty"`
}

// KernelInfo summarizes the resolved kernel configuration for one session.
type KernelInfo struct {
	Cores       int `json:"cores"`
	Priorities  int `json:"priorities"`
	TaskNameLen int `json:"taskNameLen"`

	HasStackEnd        bool `json:"hasStackEnd"`
	HasCriticalNesting bool `json:"hasCriticalNesting"`
	HasTaskNumber      bool `json:"hasTaskNumber"`
	HasMutexesHeld     bool `json:"hasMutexesHeld"`
	HasRunTimeCounter  bool `json:"hasRunTimeCounter"`
}

type BreakPoint struct {
	ID       int    `json:"id"`
	Location string `json:"location"`
	Addr     uint64 `json:"addr"`
	// TaskName is set for task-scoped breakpoints; the target only stops
	// when the named task is the one running on the trapping core.
	TaskName string `json:"taskName,omitempty"`
}
