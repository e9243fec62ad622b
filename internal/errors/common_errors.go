package errors

import (
	goerrors "errors"
	"fmt"
)

// Common error codes
const (
	CodeDecodeInput  = "001"
	CodeDecodeResult = "002"
	CodeEncode       = "003"
	CodeEncodeInput  = "004"

	CodeComputeFailed = "001"
	CodeComputePanic  = "002"
	CodeRemoteFailure = "003"

	CodeStalled      = "001"
	CodeStallTimeout = "002"

	CodeUnknownTask     = "001"
	CodeUnknownListener = "002"

	CodeInvalidInput  = "001"
	CodeInvalidConfig = "002"

	CodeSubmitFailed = "001"
	CodeQueueClosed  = "002"
)

// NewSerializationError creates an error for a payload its serializer rejected
func NewSerializationError(code, taskName string, originalErr error) *FlowError {
	msg := fmt.Sprintf("cannot decode payload of task %q", taskName)
	switch code {
	case CodeEncode:
		msg = fmt.Sprintf("cannot encode result of task %q", taskName)
	case CodeEncodeInput:
		msg = fmt.Sprintf("cannot encode input of task %q", taskName)
	}
	return NewFlowError(ErrorCategorySerialization, code, msg).
		WithContext("task_name", taskName).
		WithOriginalError(originalErr)
}

// NewComputationError creates an error for a failed compute call on a worker
func NewComputationError(taskName, flowID string, taskID uint64, originalErr error) *FlowError {
	return NewFlowError(ErrorCategoryComputation, CodeComputeFailed,
		fmt.Sprintf("task %q failed", taskName)).
		WithTask(taskName, flowID, taskID).
		WithContext("task_name", taskName).
		WithOriginalError(originalErr)
}

// NewRemoteFailureError wraps an error payload reported back through a queue
func NewRemoteFailureError(queue, flowID string, taskID uint64, message string) *FlowError {
	return NewFlowError(ErrorCategoryComputation, CodeRemoteFailure,
		fmt.Sprintf("worker reported failure on queue %q", queue)).
		WithTask(queue, flowID, taskID).
		WithOriginalError(goerrors.New(message))
}

// NewStallError creates an error for a reduction that cannot converge
func NewStallError(flowID string, remaining, merges, inputLength int) *FlowError {
	return NewFlowError(ErrorCategoryStall, CodeStalled,
		fmt.Sprintf("reduction stalled with %d unmergeable elements", remaining)).
		WithFlow(flowID).
		WithContext("remaining", remaining).
		WithContext("merges_completed", merges).
		WithContext("input_length", inputLength)
}

// NewProtocolError creates an error for a completion that references nothing we know
func NewProtocolError(code, queue, flowID string, taskID uint64) *FlowError {
	msg := "completion references unknown task"
	if code == CodeUnknownListener {
		msg = "completion references a flow with no listener"
	}
	return NewFlowError(ErrorCategoryProtocol, code, msg).
		WithTask(queue, flowID, taskID)
}

// NewValidationError creates an error for invalid input or configuration
func NewValidationError(code, message string) *FlowError {
	return NewFlowError(ErrorCategoryValidation, code, message)
}

// NewQueueError creates an error for a failed queue interaction
func NewQueueError(code, queue string, originalErr error) *FlowError {
	return NewFlowError(ErrorCategoryQueue, code,
		fmt.Sprintf("queue %q rejected the operation", queue)).
		WithContext("queue", queue).
		WithOriginalError(originalErr)
}

// Category returns the category of err if it is a FlowError, or "" otherwise
func Category(err error) ErrorCategory {
	var fe *FlowError
	if goerrors.As(err, &fe) {
		return fe.Category
	}
	return ""
}
