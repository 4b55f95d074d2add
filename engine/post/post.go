package post

import (
	"sync"

	"github.com/xiaonanln/gostream/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue is an effect queue: callbacks posted from any goroutine run on the main routine when it calls Tick
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
}

// NewQueue creates an empty effect queue
func NewQueue() *Queue {
	return &Queue{}
}

// Post a callback which will be executed when other things are done in the main routine
//
// Post might be called from other goroutine, so we use a lock to protect the data
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Len returns the number of callbacks waiting to be run
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs all posted callbacks, including callbacks posted by callbacks, in posting order
func (q *Queue) Tick() {
	for { // loop until there is no callbacks posted anymore
		q.lock.Lock()
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			break
		}
		// switch callbacks in locked section
		callbacksCopy := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(callbacksCopy))
		q.lock.Unlock()

		for _, f := range callbacksCopy {
			gwutils.RunPanicless(f)
		}
	}
}

var defaultQueue = NewQueue()

// Post a callback to the process-wide queue
func Post(f PostCallback) {
	defaultQueue.Post(f)
}

// Tick is called by the main routine to run all callbacks posted to the process-wide queue
func Tick() {
	defaultQueue.Tick()
}
