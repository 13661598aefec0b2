package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// FrameHandler consumes the frames read from one connection.
type FrameHandler interface {
	HandleFrame(ctx context.Context, data []byte)
	Disconnect()
}

// PumpOptions bound reads and keep the connection alive.
type PumpOptions struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
}

func (o PumpOptions) withDefaults() PumpOptions {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	return o
}

// pongWait must exceed the ping period so a healthy peer is never timed out.
func (o PumpOptions) pongWait() time.Duration {
	return o.PingPeriod * 10 / 9
}

// Serve starts the read and write pumps of a registered client. The read pump
// hands every frame to handler in order and, once the socket fails, calls
// handler.Disconnect and unregisters the client.
func Serve(ctx context.Context, hub *Hub, client *Client, handler FrameHandler, opts PumpOptions) {
	opts = opts.withDefaults()
	go writePump(client, opts)
	go readPump(ctx, hub, client, handler, opts)
}

func readPump(ctx context.Context, hub *Hub, client *Client, handler FrameHandler, opts PumpOptions) {
	conn := client.Conn
	defer func() {
		handler.Disconnect()
		hub.Unregister(client)
		conn.Close()
		log.Debug().Str("module", "ws").Str("client", client.ID).Msg("read pump closed")
	}()

	conn.SetReadLimit(opts.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(opts.pongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.pongWait()))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("module", "ws").Str("client", client.ID).Msg("read error")
			}
			return
		}
		handler.HandleFrame(ctx, data)
	}
}

func writePump(client *Client, opts PumpOptions) {
	conn := client.Conn
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		log.Debug().Str("module", "ws").Str("client", client.ID).Msg("write pump closed")
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				// The hub closed the channel.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("client", client.ID).Msg("write error")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
