package transport

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"auctionnet/internal/protocol"
)

const (
	// DefaultOutboxSize bounds the per-connection send queue. A peer that
	// stops reading costs us one full queue, never a stalled producer.
	DefaultOutboxSize = 64

	writeDeadline = 5 * time.Second
)

var ErrClosed = errors.New("transport: connection closed")

// Handler receives every inbound message, on the connection's reader
// goroutine. It must not block on the same connection's Send.
type Handler func(protocol.Message)

// Conn pairs one websocket with a dedicated reader loop and a writer
// goroutine draining an ordered outbox. Both directions of every
// bank/house/agent link go through a Conn.
type Conn struct {
	ws  *websocket.Conn
	out chan []byte
	log *log.Logger

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func NewConn(ws *websocket.Conn, logger *log.Logger) *Conn {
	return &Conn{
		ws:     ws,
		out:    make(chan []byte, DefaultOutboxSize),
		log:    logger,
		closed: make(chan struct{}),
	}
}

// Start spawns the writer goroutine and runs the reader loop until the
// connection dies. onClose fires exactly once, with nil for an orderly
// remote close and the terminal error otherwise. Start blocks; run it on
// its own goroutine when the caller has other work.
func (c *Conn) Start(handle Handler, onClose func(error)) {
	go c.writeLoop()

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.teardown(err)
			break
		}
		m, err := protocol.Decode(b)
		if err != nil {
			// Protocol violation: fatal to this connection only.
			c.log.Printf("protocol violation from %s: %v", c.ws.RemoteAddr(), err)
			c.teardown(fmt.Errorf("protocol violation: %w", err))
			break
		}
		handle(m)
	}

	if onClose != nil {
		onClose(c.closeErr)
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case b := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.teardown(err)
				return
			}
		}
	}
}

// Send enqueues a message on the outbox. It blocks only when the outbox is
// full, and fails once the connection is closed.
func (c *Conn) Send(m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	case <-c.closed:
		return ErrClosed
	}
}

// Close tears the connection down locally. The reader loop observes the
// socket close and unwinds through the usual path.
func (c *Conn) Close() {
	c.teardown(nil)
}

func (c *Conn) Closed() <-chan struct{} { return c.closed }

func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

func (c *Conn) teardown(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}
