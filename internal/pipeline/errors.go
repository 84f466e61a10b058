package pipeline

import (
	"errors"
	"fmt"
)

// Stage names used in StageError and stage-tagged logs.
const (
	StageProducer = "producer"
	StageConsumer = "consumer"
)

// ErrStopped is returned when starting a pipeline that is already
// running or has been stopped.
var ErrStopped = errors.New("pipeline stopped")

// StageError reports a fatal failure in one pipeline stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
