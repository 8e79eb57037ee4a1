// Package analysis holds the result contract shared by all analysis
// components: every operation returns a result carrying a success flag and,
// on failure, a human-readable message. Documented failure conditions
// (empty input, missing column, untrained model) never cross a component
// boundary as errors.
package analysis

import "fmt"

// Status is embedded in every component result.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK returns a successful status.
func OK() Status {
	return Status{Success: true}
}

// Fail returns a failure status with the given message.
func Fail(msg string) Status {
	return Status{Success: false, Message: msg}
}

// Failf returns a failure status with a formatted message.
func Failf(format string, args ...interface{}) Status {
	return Status{Success: false, Message: fmt.Sprintf(format, args...)}
}

// FailErr returns a failure status carrying the error's message.
func FailErr(err error) Status {
	return Status{Success: false, Message: err.Error()}
}
