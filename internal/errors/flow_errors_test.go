package errors

import (
	goerrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FlowError
		contains []string
	}{
		{
			name:     "computation carries task identity",
			err:      NewComputationError("double", "flow-1", 7, goerrors.New("boom")),
			contains: []string{"COMPUTATION-001", `task "double" failed`, "queue=double", "flow=flow-1", "task=7", "boom"},
		},
		{
			name:     "stall without task",
			err:      NewStallError("flow-2", 3, 0, 3),
			contains: []string{"STALL-001", "3 unmergeable", "flow=flow-2"},
		},
		{
			name:     "validation has no origin",
			err:      NewValidationError(CodeInvalidInput, "input length must be positive"),
			contains: []string{"VALIDATION-001: input length must be positive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, c := range tt.contains {
				assert.Contains(t, msg, c)
			}
		})
	}

	assert.NotContains(t, NewStallError("f", 2, 0, 2).Error(), "task=")
}

func TestFlowError_IsAndUnwrap(t *testing.T) {
	cause := goerrors.New("bad json")
	err := NewSerializationError(CodeDecodeResult, "sum", cause)
	wrapped := fmt.Errorf("flow failed: %w", err)

	assert.True(t, goerrors.Is(wrapped, ErrSerialization))
	assert.False(t, goerrors.Is(wrapped, ErrComputation))
	assert.True(t, goerrors.Is(wrapped, cause))
	assert.True(t, goerrors.Is(wrapped, &FlowError{Category: ErrorCategorySerialization, Code: CodeDecodeResult}))
	assert.False(t, goerrors.Is(wrapped, &FlowError{Category: ErrorCategorySerialization, Code: CodeEncode}))

	assert.Equal(t, ErrorCategorySerialization, Category(wrapped))
	assert.Equal(t, ErrorCategory(""), Category(goerrors.New("plain")))
}

func TestFlowError_ToLogFields(t *testing.T) {
	err := NewProtocolError(CodeUnknownTask, "double", "flow-9", 12)
	fields := err.ToLogFields()

	assert.Equal(t, "PROTOCOL", fields["error_category"])
	assert.Equal(t, "double", fields["queue"])
	assert.Equal(t, "flow-9", fields["flow_id"])
	assert.Equal(t, uint64(12), fields["task_id"])

	stall := NewStallError("flow-3", 2, 1, 3).ToLogFields()
	assert.Equal(t, 2, stall["detail_remaining"])
	assert.Equal(t, 1, stall["detail_merges_completed"])
	_, hasTask := stall["task_id"]
	assert.False(t, hasTask)
}

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(NewComputationError("sum", "flow-1", 3, goerrors.New("overflow")))
	assert.Contains(t, out, "Computation Error [COMPUTATION-001]")
	assert.Contains(t, out, "queue: sum")
	assert.Contains(t, out, "task:  3")
	assert.Contains(t, out, "Technical details: overflow")

	plain := FormatForCLI(goerrors.New("boom"))
	assert.Equal(t, "\nError: boom\n", plain)
}

func TestDisplayErrorSummary(t *testing.T) {
	assert.Equal(t, "QUEUE-002: queue \"double\" rejected the operation",
		DisplayErrorSummary(NewQueueError(CodeQueueClosed, "double", goerrors.New("closed"))))

	long := goerrors.New(strings.Repeat("x", 150))
	summary := DisplayErrorSummary(long)
	assert.Len(t, summary, 100)
	assert.True(t, strings.HasSuffix(summary, "..."))
}
