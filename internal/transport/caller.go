package transport

import (
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"auctionnet/internal/protocol"
)

// Caller layers synchronous request/response on top of a Conn. Each request
// is tagged with a fresh request id and the caller parks on a channel until
// the reply with the matching id arrives, so any number of concurrent
// callers can share one connection. Inbound messages without a matching id
// (server pushes) go to the fallback handler.
type Caller struct {
	conn *Conn

	pending chan pendingOp
	done    chan struct{}
}

type pendingOp struct {
	id   string
	ch   chan protocol.Message
	drop bool
}

func NewCaller(ws *websocket.Conn, logger *log.Logger) *Caller {
	return &Caller{
		conn:    NewConn(ws, logger),
		pending: make(chan pendingOp),
		done:    make(chan struct{}),
	}
}

// Start runs the reader loop, routing replies to waiting callers and
// everything else to fallback. Blocks until the connection dies.
func (c *Caller) Start(fallback Handler, onClose func(error)) {
	waiting := make(map[string]chan protocol.Message)

	dispatch := make(chan protocol.Message)
	go func() {
		for {
			select {
			case op := <-c.pending:
				if op.drop {
					delete(waiting, op.id)
				} else {
					waiting[op.id] = op.ch
				}
			case m := <-dispatch:
				if ch, ok := waiting[m.RequestID]; ok && m.RequestID != "" {
					delete(waiting, m.RequestID)
					ch <- m
				} else if fallback != nil {
					fallback(m)
				}
			case <-c.conn.Closed():
				// Fail everyone still waiting.
				for id, ch := range waiting {
					delete(waiting, id)
					close(ch)
				}
				close(c.done)
				return
			}
		}
	}()

	c.conn.Start(func(m protocol.Message) {
		select {
		case dispatch <- m:
		case <-c.conn.Closed():
		}
	}, onClose)
}

// Call sends the request and blocks until its reply arrives or the
// connection dies. The request id is assigned here.
func (c *Caller) Call(m protocol.Message) (protocol.Message, error) {
	m.RequestID = uuid.NewString()
	ch := make(chan protocol.Message, 1)

	select {
	case c.pending <- pendingOp{id: m.RequestID, ch: ch}:
	case <-c.done:
		return protocol.Message{}, ErrClosed
	}

	if err := c.conn.Send(m); err != nil {
		select {
		case c.pending <- pendingOp{id: m.RequestID, drop: true}:
		case <-c.done:
		}
		return protocol.Message{}, err
	}

	reply, ok := <-ch
	if !ok {
		return protocol.Message{}, ErrClosed
	}
	return reply, nil
}

// Send is fire-and-forget through the underlying connection.
func (c *Caller) Send(m protocol.Message) error { return c.conn.Send(m) }

func (c *Caller) Close()                 { c.conn.Close() }
func (c *Caller) Closed() <-chan struct{} { return c.conn.Closed() }
