package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputRouterHook routes log entries to different outputs based on log_type
type OutputRouterHook struct {
	UserFormatter logrus.Formatter
	OpFormatter   logrus.Formatter
	UserWriter    io.Writer
	OpWriter      io.Writer
}

// NewOutputRouterHook creates a new output router hook
func NewOutputRouterHook() *OutputRouterHook {
	return &OutputRouterHook{
		UserFormatter: &CLIFormatter{
			DisableTimestamp: true,
			DisableLevel:     true,
		},
		OpFormatter: &CLIFormatter{},
		UserWriter:  os.Stdout,
		OpWriter:    os.Stderr,
	}
}

// Levels returns all log levels (this hook processes all levels)
func (h *OutputRouterHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire writes the entry to the user or op stream depending on its log_type
func (h *OutputRouterHook) Fire(entry *logrus.Entry) error {
	logType, _ := entry.Data["log_type"].(string)

	formatter := h.OpFormatter
	writer := h.OpWriter
	if logType == string(UserLog) {
		formatter = h.UserFormatter
		writer = h.UserWriter
	}

	// Format a copy so the emoji prefix never leaks into other hooks.
	out := entry.Dup()
	out.Level = entry.Level
	out.Message = entry.Message
	if emoji, ok := entry.Data["emoji"].(string); ok && emoji != "" && logType == string(UserLog) {
		out.Message = emoji + " " + entry.Message
	}

	bytes, err := formatter.Format(out)
	if err != nil {
		return err
	}
	_, err = writer.Write(bytes)
	return err
}
