package event

import (
	"sync"
	"time"
)

// NotifyFunc is called the first time a player exceeds the limit of an event within an interval
type NotifyFunc func(player uint32, eventName string, count int)

type counterKey struct {
	player uint32
	event  string
}

type counter struct {
	windowStart time.Time
	count       int
	notified    bool
}

// ProtectorOptions configure a Protector
type ProtectorOptions struct {
	Enabled              bool
	CleanupInterval      time.Duration
	MaxEventsPerInterval int
	CustomEventMax       map[string]int
}

// Protector limits the number of client events a player may send per interval.
// Checks run on the main routine when client events are handled; it is still safe for concurrent use.
type Protector struct {
	mu       sync.Mutex
	opts     ProtectorOptions
	now      func() time.Time
	notify   NotifyFunc
	counters map[counterKey]*counter

	ignoredPlayers map[uint32]struct{}
	ignoredEvents  map[string]struct{}
}

// NewProtector creates a protector; notify may be nil
func NewProtector(opts ProtectorOptions, notify NotifyFunc) *Protector {
	custom := make(map[string]int, len(opts.CustomEventMax))
	for name, max := range opts.CustomEventMax {
		custom[name] = max
	}
	opts.CustomEventMax = custom
	return &Protector{
		opts:           opts,
		now:            time.Now,
		notify:         notify,
		counters:       map[counterKey]*counter{},
		ignoredPlayers: map[uint32]struct{}{},
		ignoredEvents:  map[string]struct{}{},
	}
}

// SetClock replaces the time source
func (p *Protector) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// SetEnabled turns protection on or off
func (p *Protector) SetEnabled(v bool) {
	p.mu.Lock()
	p.opts.Enabled = v
	p.mu.Unlock()
}

// Enabled returns if protection is on
func (p *Protector) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.Enabled
}

// IgnorePlayer exempts a player from protection
func (p *Protector) IgnorePlayer(player uint32) {
	p.mu.Lock()
	p.ignoredPlayers[player] = struct{}{}
	p.mu.Unlock()
}

// UnignorePlayer removes a player exemption
func (p *Protector) UnignorePlayer(player uint32) {
	p.mu.Lock()
	delete(p.ignoredPlayers, player)
	p.mu.Unlock()
}

// IgnoreEvent exempts an event from protection
func (p *Protector) IgnoreEvent(name string) {
	p.mu.Lock()
	p.ignoredEvents[name] = struct{}{}
	p.mu.Unlock()
}

// UnignoreEvent removes an event exemption
func (p *Protector) UnignoreEvent(name string) {
	p.mu.Lock()
	delete(p.ignoredEvents, name)
	p.mu.Unlock()
}

// AddCustomEventMax sets a dedicated limit for one event
func (p *Protector) AddCustomEventMax(name string, max int) {
	p.mu.Lock()
	p.opts.CustomEventMax[name] = max
	p.mu.Unlock()
}

// RemoveCustomEventMax restores the default limit for one event
func (p *Protector) RemoveCustomEventMax(name string) {
	p.mu.Lock()
	delete(p.opts.CustomEventMax, name)
	p.mu.Unlock()
}

func (p *Protector) limit(name string) int {
	if max, ok := p.opts.CustomEventMax[name]; ok {
		return max
	}
	return p.opts.MaxEventsPerInterval
}

// Allow counts one event and returns false if it must be suppressed
func (p *Protector) Allow(player uint32, name string) bool {
	p.mu.Lock()
	if !p.opts.Enabled {
		p.mu.Unlock()
		return true
	}
	if _, ok := p.ignoredPlayers[player]; ok {
		p.mu.Unlock()
		return true
	}
	if _, ok := p.ignoredEvents[name]; ok {
		p.mu.Unlock()
		return true
	}

	now := p.now()
	key := counterKey{player, name}
	c := p.counters[key]
	if c == nil || now.Sub(c.windowStart) >= p.opts.CleanupInterval {
		c = &counter{windowStart: now}
		p.counters[key] = c
	}
	c.count++
	if c.count <= p.limit(name) {
		p.mu.Unlock()
		return true
	}
	first := !c.notified
	c.notified = true
	count := c.count
	notify := p.notify
	p.mu.Unlock()

	if first && notify != nil {
		notify(player, name, count)
	}
	return false
}

// Cleanup drops counters whose interval is over
func (p *Protector) Cleanup() {
	p.mu.Lock()
	now := p.now()
	for key, c := range p.counters {
		if now.Sub(c.windowStart) >= p.opts.CleanupInterval {
			delete(p.counters, key)
		}
	}
	p.mu.Unlock()
}

// ForgetPlayer drops the counters of a disconnected player
func (p *Protector) ForgetPlayer(player uint32) {
	p.mu.Lock()
	for key := range p.counters {
		if key.player == player {
			delete(p.counters, key)
		}
	}
	delete(p.ignoredPlayers, player)
	p.mu.Unlock()
}
