package rpc

import (
	"sort"
	"time"

	"github.com/petar/GoLLRB/llrb"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/gwlog"
)

// SendFunc writes a call carrying answerID to the wire
type SendFunc func(answerID uint32) error

type pendingCall struct {
	id       uint32
	target   entity.ObjectID
	name     string
	deadline time.Time
	future   *Future
}

// deadlineItem orders pending calls by deadline, then id
type deadlineItem struct {
	deadline time.Time
	id       uint32
}

func (it *deadlineItem) Less(_other llrb.Item) bool {
	other := _other.(*deadlineItem)
	return it.deadline.Before(other.deadline) || (it.deadline.Equal(other.deadline) && it.id < other.id)
}

// Manager tracks outgoing calls until they are answered, time out or lose their target
type Manager struct {
	timeout   time.Duration
	now       func() time.Time
	nextID    uint32
	pending   map[uint32]*pendingCall
	deadlines *llrb.LLRB
}

// NewManager creates a manager; timeout applies to calls made without their own
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		timeout:   timeout,
		now:       time.Now,
		pending:   map[uint32]*pendingCall{},
		deadlines: llrb.New(),
	}
}

// SetClock replaces the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Pending returns the number of unanswered calls
func (m *Manager) Pending() int {
	return len(m.pending)
}

func (m *Manager) allocID() uint32 {
	for {
		m.nextID++
		if m.nextID == 0 {
			continue
		}
		if _, used := m.pending[m.nextID]; !used {
			return m.nextID
		}
	}
}

// Call sends a call to target and returns its future; timeout <= 0 selects the default
func (m *Manager) Call(target entity.ObjectID, name string, timeout time.Duration, send SendFunc) *Future {
	f := NewFuture()
	if timeout <= 0 {
		timeout = m.timeout
	}
	id := m.allocID()
	if err := send(id); err != nil {
		f.Reject(errors.Wrapf(err, "rpc %s to %d", name, target))
		return f
	}
	pc := &pendingCall{
		id:       id,
		target:   target,
		name:     name,
		deadline: m.now().Add(timeout),
		future:   f,
	}
	m.pending[id] = pc
	m.deadlines.ReplaceOrInsert(&deadlineItem{deadline: pc.deadline, id: id})
	if consts.DEBUG_RPC {
		gwlog.Debugf("rpc: call %s#%d to %d", name, id, target)
	}
	return f
}

func (m *Manager) take(id uint32) *pendingCall {
	pc := m.pending[id]
	if pc == nil {
		return nil
	}
	delete(m.pending, id)
	m.deadlines.Delete(&deadlineItem{deadline: pc.deadline, id: id})
	return pc
}

// Answer completes the call id answered by from; late, duplicate or misdirected answers are discarded
func (m *Manager) Answer(from entity.ObjectID, id uint32, value interface{}, errMsg string) bool {
	pc := m.pending[id]
	if pc == nil || pc.target != from {
		if consts.DEBUG_RPC {
			gwlog.Debugf("rpc: discarded answer #%d from %d", id, from)
		}
		return false
	}
	m.take(id)
	if errMsg != "" {
		return pc.future.Reject(&AnswerError{Msg: errMsg})
	}
	return pc.future.Resolve(value)
}

// Expire rejects every call whose deadline passed and returns how many
func (m *Manager) Expire() int {
	now := m.now()
	var expired []uint32
	m.deadlines.AscendLessThan(&deadlineItem{deadline: now, id: ^uint32(0)}, func(_item llrb.Item) bool {
		expired = append(expired, _item.(*deadlineItem).id)
		return true
	})
	for _, id := range expired {
		if pc := m.take(id); pc != nil {
			pc.future.Reject(errors.Wrapf(ErrTimeout, "rpc %s to %d", pc.name, pc.target))
		}
	}
	return len(expired)
}

// DropTarget rejects every pending call to a disconnected target
func (m *Manager) DropTarget(target entity.ObjectID) int {
	var ids []uint32
	for id, pc := range m.pending {
		if pc.target == target {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		if pc := m.take(id); pc != nil {
			pc.future.Reject(errors.Wrapf(ErrTargetGone, "rpc %s to %d", pc.name, target))
		}
	}
	return len(ids)
}
