package rpc

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/gwutils"
	"github.com/xiaonanln/typeconv"
)

// ReplyFunc writes the answer of an incoming call to the wire
type ReplyFunc func(answerID uint32, value interface{}, errMsg string)

// Call is one incoming call from a client
type Call struct {
	Player   *entity.Object
	Name     string
	Args     []interface{}
	answerID uint32
	reply    ReplyFunc

	willAnswer bool
	answered   bool
}

// NewCall creates an incoming call; answerID 0 means the caller expects no answer
func NewCall(player *entity.Object, name string, args []interface{}, answerID uint32, reply ReplyFunc) *Call {
	return &Call{
		Player:   player,
		Name:     name,
		Args:     args,
		answerID: answerID,
		reply:    reply,
	}
}

// AnswerID returns the correlation id chosen by the caller
func (c *Call) AnswerID() uint32 {
	return c.answerID
}

// WillAnswer tells the dispatcher that the handler answers later
func (c *Call) WillAnswer() {
	c.willAnswer = true
}

// Answered returns if an answer was sent
func (c *Call) Answered() bool {
	return c.answered
}

// Answer resolves the remote future; only the first answer is sent
func (c *Call) Answer(value interface{}) bool {
	return c.send(value, "")
}

// AnswerWithError rejects the remote future; only the first answer is sent
func (c *Call) AnswerWithError(msg string) bool {
	if msg == "" {
		msg = "unknown error"
	}
	return c.send(nil, msg)
}

func (c *Call) send(value interface{}, errMsg string) bool {
	if c.answered {
		return false
	}
	c.answered = true
	if c.answerID != 0 && c.reply != nil {
		c.reply(c.answerID, value, errMsg)
	}
	return true
}

// ArgInt returns argument i converted to int64
func (c *Call) ArgInt(i int) int64 {
	if i >= len(c.Args) || c.Args[i] == nil {
		return 0
	}
	return typeconv.Int(c.Args[i])
}

var float64Type = reflect.TypeOf(float64(0))

// ArgFloat returns argument i converted to float64
func (c *Call) ArgFloat(i int) float64 {
	if i >= len(c.Args) || c.Args[i] == nil {
		return 0
	}
	return typeconv.Convert(c.Args[i], float64Type).Float()
}

// ArgString returns argument i if it is a string
func (c *Call) ArgString(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	s, _ := c.Args[i].(string)
	return s
}

// HandlerFunc serves incoming calls of one name
type HandlerFunc func(c *Call)

// Handlers maps rpc names to handlers
type Handlers struct {
	handlers map[string]HandlerFunc
}

// NewHandlers creates an empty handler table
func NewHandlers() *Handlers {
	return &Handlers{handlers: map[string]HandlerFunc{}}
}

// Register adds the handler of name
func (hs *Handlers) Register(name string, h HandlerFunc) error {
	if _, ok := hs.handlers[name]; ok {
		return errors.Errorf("rpc %s already registered", name)
	}
	hs.handlers[name] = h
	return nil
}

// Unregister removes the handler of name
func (hs *Handlers) Unregister(name string) {
	delete(hs.handlers, name)
}

// Dispatch serves c. Unknown names and panicking handlers answer with an error;
// a handler that neither answered nor called WillAnswer answers nil.
func (hs *Handlers) Dispatch(c *Call) {
	if consts.DEBUG_RPC {
		gwlog.Debugf("rpc: %s calls %s#%d %v", c.Player, c.Name, c.answerID, c.Args)
	}
	h := hs.handlers[c.Name]
	if h == nil {
		c.AnswerWithError(fmt.Sprintf("rpc %s not found", c.Name))
		return
	}
	if err := gwutils.CatchPanic(func() { h(c) }); err != nil {
		c.AnswerWithError(err.Error())
		return
	}
	if !c.willAnswer {
		c.Answer(nil)
	}
}
