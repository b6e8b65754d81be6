package orchestration

import "errors"

// ErrValidation is returned by control operations that receive an invalid
// argument, such as SetConcurrency(n) with n <= 0.
var ErrValidation = errors.New("invalid argument")

// ErrReset is returned to a Stop(waitForRunning=true) caller still parked
// waiting for in-flight tasks to settle when a Reset arrives first.
var ErrReset = errors.New("scheduler reset while stop was pending")
