package transport

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Dial is a one-shot dial for peers expected to be up (a listed auction
// house).
func Dial(url string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(url, nil)
}

// DialRetry polls the peer at a fixed interval until it accepts the
// connection or the context is cancelled. Used by auction houses (and
// agents) that may start before the bank is up.
func DialRetry(ctx context.Context, url string, delay time.Duration, logger *log.Logger) (*websocket.Conn, error) {
	for {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			return ws, nil
		}
		logger.Printf("connect %s: %v (retrying in %s)", url, err, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
