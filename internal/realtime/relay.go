package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var activeConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "devspace_ws_connections",
	Help: "Open WebSocket relay connections.",
}, []string{"kind"})

// InboundFunc handles one message read from the client.
type InboundFunc func(ctx context.Context, msg []byte)

// Relay pumps a subscription out to one WebSocket and hands inbound frames to
// onInbound. It blocks until the client disconnects or ctx is cancelled, then
// closes both the socket and the subscription.
//
// One goroutine writes (subscription messages and pings), the calling
// goroutine reads. gorilla/websocket allows exactly one of each.
func Relay(ctx context.Context, conn *websocket.Conn, sub *Subscription, kind string, onInbound InboundFunc, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	activeConnections.WithLabelValues(kind).Inc()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Closing the socket unblocks readPump once the writer gives up.
		defer conn.Close()
		defer cancel()
		writePump(ctx, conn, sub.Messages())
	}()

	readPump(ctx, conn, onInbound, logger)

	cancel()
	sub.Close()
	conn.Close()
	wg.Wait()
	activeConnections.WithLabelValues(kind).Dec()
}

func readPump(ctx context.Context, conn *websocket.Conn, onInbound InboundFunc, logger *slog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if onInbound != nil {
			onInbound(ctx, msg)
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, msgs <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
