// Package event dispatches server events to script handlers in registration order
package event

import (
	"github.com/xiaonanln/gostream/engine/gwutils"
)

// Event is anything that can be emitted
type Event interface {
	EventName() string
}

// Canceller is implemented by cancellable events
type Canceller interface {
	Cancel()
	IsCancelled() bool
}

// Cancellable is embedded by events whose originating action can be suppressed by a handler
type Cancellable struct {
	cancelled bool
}

// Cancel suppresses the originating action once all handlers ran
func (c *Cancellable) Cancel() {
	c.cancelled = true
}

// IsCancelled returns if any handler cancelled the event
func (c *Cancellable) IsCancelled() bool {
	return c.cancelled
}

// Handler handles one event
type Handler func(ev Event)

type registration struct {
	id      uint64
	name    string
	handler Handler
	once    bool
	active  bool
}

// Handle is returned by registrations; Destroy removes the handler
type Handle struct {
	d   *Dispatcher
	reg *registration
}

// Destroy deregisters the handler; destroying twice is a no-op
func (h *Handle) Destroy() {
	if h == nil || !h.reg.active {
		return
	}
	h.d.remove(h.reg)
}

// Active returns if the handler is still registered
func (h *Handle) Active() bool {
	return h != nil && h.reg.active
}

// Dispatcher holds handlers by event name; it is used from the main routine only
type Dispatcher struct {
	nextID   uint64
	handlers map[string][]*registration
	any      []*registration
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: map[string][]*registration{},
	}
}

func (d *Dispatcher) add(name string, h Handler, once bool, anyEvent bool) *Handle {
	d.nextID++
	reg := &registration{id: d.nextID, name: name, handler: h, once: once, active: true}
	if anyEvent {
		d.any = append(d.any, reg)
	} else {
		d.handlers[name] = append(d.handlers[name], reg)
	}
	return &Handle{d: d, reg: reg}
}

func (d *Dispatcher) remove(reg *registration) {
	reg.active = false
	list := d.any
	if reg.name != "" {
		list = d.handlers[reg.name]
	}
	for i, r := range list {
		if r == reg {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if reg.name == "" {
		d.any = list
	} else if len(list) == 0 {
		delete(d.handlers, reg.name)
	} else {
		d.handlers[reg.name] = list
	}
}

// On registers h for events named name
func (d *Dispatcher) On(name string, h Handler) *Handle {
	return d.add(name, h, false, false)
}

// Once registers h for the next event named name only
func (d *Dispatcher) Once(name string, h Handler) *Handle {
	return d.add(name, h, true, false)
}

// OnAny registers h for every event; any-handlers run after the named handlers
func (d *Dispatcher) OnAny(h Handler) *Handle {
	return d.add("", h, false, true)
}

// HasHandlers returns if any handler would receive an event named name
func (d *Dispatcher) HasHandlers(name string) bool {
	return len(d.handlers[name]) > 0 || len(d.any) > 0
}

// Emit runs the handlers of ev in registration order and returns if ev was cancelled.
// Handlers registered while emitting do not see the event; a panicking handler does not stop the others.
func (d *Dispatcher) Emit(ev Event) (cancelled bool) {
	name := ev.EventName()
	regs := make([]*registration, 0, len(d.handlers[name])+len(d.any))
	regs = append(regs, d.handlers[name]...)
	regs = append(regs, d.any...)

	for _, reg := range regs {
		if !reg.active {
			continue
		}
		if reg.once {
			d.remove(reg)
		}
		h := reg.handler
		gwutils.RunPanicless(func() {
			h(ev)
		})
	}
	if c, ok := ev.(Canceller); ok {
		return c.IsCancelled()
	}
	return false
}
