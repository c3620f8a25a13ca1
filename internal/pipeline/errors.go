package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
)

var (
	// ErrMissingInput: a stage prerequisite (input file, earlier stage
	// artifact, term map) does not exist. The stage writes nothing.
	ErrMissingInput = errors.New("missing input")
	// ErrIO: reading or writing an artifact failed.
	ErrIO = errors.New("i/o failure")
	// ErrConfig: the configured paths contradict each other, e.g. the
	// output directory is the corpus. Nothing is written.
	ErrConfig = errors.New("invalid configuration")
)

// Code is a coarse error category for logs and banners.
type Code string

const (
	CodeUnknown      Code = "unknown"
	CodeMissingInput Code = "missing_input"
	CodeIO           Code = "io"
	CodeConfig       Code = "config"
	CodeCancel       Code = "cancel"
)

// Classify maps err onto a Code using sentinel errors and standard library
// error types only.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, ErrMissingInput) || errors.Is(err, fs.ErrNotExist) {
		return CodeMissingInput
	}
	if errors.Is(err, ErrConfig) {
		return CodeConfig
	}
	if errors.Is(err, ErrIO) {
		return CodeIO
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
