package utils

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// PanicError is produced when a panic is recovered by RecoverToError.
type PanicError struct {
	What  string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("got panic %s: %v", e.What, e.Value)
}

// RecoverToError turns a panic of the calling goroutine into a *PanicError stored in errp. It must
// be deferred directly by the function that may panic, e.g.
//
//	defer utils.RecoverToError(&err, "traversing node")
func RecoverToError(errp *error, what string) {
	if thePanic := recover(); thePanic != nil {
		*errp = errors.WithStack(&PanicError{What: what, Value: thePanic})
	}
}
