package pipeline

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrStallTimeout   = errors.New("no data forwarded within stall window")
	ErrUnexpectedExit = errors.New("unexpected exit code")
	ErrClosed         = errors.New("stream closed")
)

// Stage identifies a subprocess of the pipeline.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTranscode Stage = "transcode"
)

// PipelineError reports a subprocess that failed to start, exited with an
// unaccepted code, or was killed by the stall watchdog.
type PipelineError struct {
	Stage    Stage
	ExitCode int // -1 when the process never ran
	Stderr   string
	Cause    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s failed (exit %d): %v", e.Stage, e.ExitCode, e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}
