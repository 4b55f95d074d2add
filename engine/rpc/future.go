// Package rpc implements answer-id correlated remote calls with futures and timeouts
package rpc

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/gwutils"
)

var (
	// ErrTimeout rejects calls that got no answer in time
	ErrTimeout = errors.New("rpc timeout")
	// ErrTargetGone rejects calls whose target disconnected
	ErrTargetGone = errors.New("rpc target disconnected")
)

// AnswerError is the rejection carrying the error message of the remote side
type AnswerError struct {
	Msg string
}

func (e *AnswerError) Error() string {
	return e.Msg
}

// Callback receives the outcome of a future
type Callback func(value interface{}, err error)

// Future is the pending result of a call; it is resolved or rejected exactly once on the main routine
type Future struct {
	done      bool
	value     interface{}
	err       error
	callbacks []Callback
}

// NewFuture creates an unresolved future
func NewFuture() *Future {
	return &Future{}
}

// Then runs cb when the future completes, or right away if it already did
func (f *Future) Then(cb Callback) *Future {
	if f.done {
		gwutils.RunPanicless(func() {
			cb(f.value, f.err)
		})
		return f
	}
	f.callbacks = append(f.callbacks, cb)
	return f
}

// Done returns if the future completed
func (f *Future) Done() bool {
	return f.done
}

// Result returns the value and error of a completed future
func (f *Future) Result() (interface{}, error) {
	return f.value, f.err
}

// Resolve completes the future with a value; returns false if it already completed
func (f *Future) Resolve(value interface{}) bool {
	return f.complete(value, nil)
}

// Reject completes the future with an error; returns false if it already completed
func (f *Future) Reject(err error) bool {
	return f.complete(nil, err)
}

func (f *Future) complete(value interface{}, err error) bool {
	if f.done {
		return false
	}
	f.done, f.value, f.err = true, value, err
	callbacks := f.callbacks
	f.callbacks = nil
	for _, cb := range callbacks {
		cb := cb
		gwutils.RunPanicless(func() {
			cb(value, err)
		})
	}
	return true
}
