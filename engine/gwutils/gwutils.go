package gwutils

import (
	"fmt"

	"github.com/xiaonanln/gostream/engine/gwlog"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("%v panic: %s", f, err)
			paniced = true
		}
	}()

	f()
	return
}

// CatchPanic runs f and converts a panic into an error
func CatchPanic(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			gwlog.TraceError("catched panic: %v", r)
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()

	f()
	return
}

// RepeatUntilPanicless runs the function repeatly until there is no panic
func RepeatUntilPanicless(f func()) {
	for !RunPanicless(f) {
	}
}
