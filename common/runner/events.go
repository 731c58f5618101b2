package runner

import (
	"fmt"
	"time"
)

// Event types emitted over the observer callback, in the order a healthy
// run produces them. execution:complete is always last, errors or not.
const (
	EventExecutionStart    = "execution:start"
	EventNodeStart         = "node:start"
	EventNodeComplete      = "node:complete"
	EventNodeError         = "node:error"
	EventExecutionError    = "execution:error"
	EventExecutionComplete = "execution:complete"
)

// Progress counts distinct completed nodes against the workflow size.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Event is one entry of the execution event stream. Fields beyond the first
// three are populated where they make sense for the type.
type Event struct {
	Type        string      `json:"type"`
	ExecutionID string      `json:"executionId"`
	Timestamp   time.Time   `json:"timestamp"`
	NodeName    string      `json:"nodeName,omitempty"`
	NodeType    string      `json:"nodeType,omitempty"`
	Progress    *Progress   `json:"progress,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Observer receives events during a run. It is invoked inline on the run's
// goroutine; expensive observers should hand off to their own channel.
type Observer func(Event)

// emit guards the observer so a panicking callback cannot influence the run.
func (r *Runner) emit(observer Observer, event Event) {
	if observer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("execution observer panicked",
				"event_type", event.Type,
				"execution_id", event.ExecutionID,
				"panic", fmt.Sprintf("%v", rec))
		}
	}()
	observer(event)
}
