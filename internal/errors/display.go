package errors

import (
	goerrors "errors"
	"fmt"
	"sort"
	"strings"
)

// DisplayErrorSummary provides a brief summary of the error for logs
func DisplayErrorSummary(err error) string {
	var fe *FlowError
	if goerrors.As(err, &fe) {
		return fmt.Sprintf("%s-%s: %s", fe.Category, fe.Code, fe.Message)
	}

	errStr := err.Error()
	if len(errStr) > 100 {
		return errStr[:97] + "..."
	}
	return errStr
}

// FormatForCLI formats an error for command-line display with proper spacing
func FormatForCLI(err error) string {
	var fe *FlowError
	if !goerrors.As(err, &fe) {
		return fmt.Sprintf("\nError: %v\n", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n%s Error [%s-%s]\n", categoryLabel(fe.Category), fe.Category, fe.Code))
	sb.WriteString(fmt.Sprintf("  %s\n", fe.Message))

	if fe.Queue != "" || fe.FlowID != "" {
		sb.WriteString("\nOrigin:\n")
		if fe.Queue != "" {
			sb.WriteString(fmt.Sprintf("  queue: %s\n", fe.Queue))
		}
		if fe.FlowID != "" {
			sb.WriteString(fmt.Sprintf("  flow:  %s\n", fe.FlowID))
		}
		if fe.HasTask {
			sb.WriteString(fmt.Sprintf("  task:  %d\n", fe.TaskID))
		}
	}

	if len(fe.Context) > 0 {
		keys := make([]string, 0, len(fe.Context))
		for k := range fe.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fe.Context[k]))
		}
	}

	if fe.OriginalError != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", fe.OriginalError))
	}
	return sb.String()
}

func categoryLabel(c ErrorCategory) string {
	s := strings.ToLower(string(c))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
