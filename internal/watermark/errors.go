package watermark

import "errors"

var (
	// ErrInputNotFound is returned when the input path does not exist.
	ErrInputNotFound = errors.New("input not found")
	// ErrInputUnreadable is returned for corrupt or unsupported input.
	ErrInputUnreadable = errors.New("input unreadable")
	// ErrProcessing wraps unexpected internal faults, including recovered panics.
	ErrProcessing = errors.New("processing failure")
)

// Result is the structured outcome of a file-level operation. Failures are
// reported through OK and Message; nothing escapes as a panic.
type Result struct {
	OK          bool
	Message     string
	Path        string
	Diagnostics Diagnostics
}
