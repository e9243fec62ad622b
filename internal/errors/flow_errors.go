package errors

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	// ErrorCategorySerialization represents payloads that cannot be decoded by their serializer
	ErrorCategorySerialization ErrorCategory = "SERIALIZATION"
	// ErrorCategoryComputation represents failures raised by a task's compute function
	ErrorCategoryComputation ErrorCategory = "COMPUTATION"
	// ErrorCategoryStall represents reductions that can make no further progress
	ErrorCategoryStall ErrorCategory = "STALL"
	// ErrorCategoryProtocol represents completions that reference unknown flows or tasks
	ErrorCategoryProtocol ErrorCategory = "PROTOCOL"
	// ErrorCategoryValidation represents invalid configuration or arguments
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	// ErrorCategoryQueue represents failures talking to the queue collaborator
	ErrorCategoryQueue ErrorCategory = "QUEUE"
)

// Sentinels usable with errors.Is. A FlowError matches the sentinel of its category.
var (
	ErrSerialization = &FlowError{Category: ErrorCategorySerialization}
	ErrComputation   = &FlowError{Category: ErrorCategoryComputation}
	ErrStall         = &FlowError{Category: ErrorCategoryStall}
	ErrProtocol      = &FlowError{Category: ErrorCategoryProtocol}
	ErrValidation    = &FlowError{Category: ErrorCategoryValidation}
	ErrQueue         = &FlowError{Category: ErrorCategoryQueue}
)

// FlowError represents a structured error carrying the queue, flow and task it originated from
type FlowError struct {
	Category      ErrorCategory
	Code          string
	Message       string
	Queue         string
	FlowID        string
	TaskID        uint64
	HasTask       bool
	Context       map[string]interface{}
	OriginalError error
}

// Error implements the error interface
func (e *FlowError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s-%s: %s", e.Category, e.Code, e.Message))

	var ids []string
	if e.Queue != "" {
		ids = append(ids, "queue="+e.Queue)
	}
	if e.FlowID != "" {
		ids = append(ids, "flow="+e.FlowID)
	}
	if e.HasTask {
		ids = append(ids, fmt.Sprintf("task=%d", e.TaskID))
	}
	if len(ids) > 0 {
		sb.WriteString(" (" + strings.Join(ids, " ") + ")")
	}

	if e.OriginalError != nil {
		sb.WriteString(": ")
		sb.WriteString(e.OriginalError.Error())
	}
	return sb.String()
}

// Unwrap returns the original error for error chain compatibility
func (e *FlowError) Unwrap() error {
	return e.OriginalError
}

// Is reports whether target is a FlowError of the same category.
// A target without a code matches any code in that category.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	if !ok {
		return false
	}
	if t.Category != e.Category {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewFlowError creates a new flow error with the specified parameters
func NewFlowError(category ErrorCategory, code, message string) *FlowError {
	return &FlowError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *FlowError) WithContext(key string, value interface{}) *FlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithOriginalError adds the underlying cause
func (e *FlowError) WithOriginalError(err error) *FlowError {
	e.OriginalError = err
	return e
}

// WithTask records the queue, flow and task identifiers the error belongs to
func (e *FlowError) WithTask(queue, flowID string, taskID uint64) *FlowError {
	e.Queue = queue
	e.FlowID = flowID
	e.TaskID = taskID
	e.HasTask = true
	return e
}

// WithFlow records the flow identifier without a task
func (e *FlowError) WithFlow(flowID string) *FlowError {
	e.FlowID = flowID
	return e
}

// ToLogFields returns fields suitable for structured logging
func (e *FlowError) ToLogFields() map[string]interface{} {
	fields := map[string]interface{}{
		"error_category": string(e.Category),
		"error_code":     e.Code,
		"error_message":  e.Message,
	}
	if e.Queue != "" {
		fields["queue"] = e.Queue
	}
	if e.FlowID != "" {
		fields["flow_id"] = e.FlowID
	}
	if e.HasTask {
		fields["task_id"] = e.TaskID
	}
	if e.OriginalError != nil {
		fields["underlying_error"] = e.OriginalError.Error()
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields["detail_"+k] = e.Context[k]
	}
	return fields
}
