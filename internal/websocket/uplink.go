package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

// Uplink is the auto-reconnecting status connection from this gate
// node up to the backend. On connect it sends REGISTER with the
// node's source identifier, then forwards queued status messages.
// Messages arriving while disconnected are dropped; the local hub
// remains the durable view.
type Uplink struct {
	cfg    config.UplinkConfig
	logger *zap.Logger

	out    chan []byte
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu        sync.RWMutex
	connected bool
}

func NewUplink(cfg config.UplinkConfig) *Uplink {
	return &Uplink{
		cfg:    cfg,
		logger: logger.WithModule("websocket"),
		out:    make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Start runs the connect/forward loop. No-op when disabled.
func (u *Uplink) Start(ctx context.Context) {
	if !u.cfg.Enabled || u.cfg.URL == "" {
		u.logger.Info("uplink disabled")
		return
	}
	u.wg.Add(1)
	go u.loop(ctx)
}

// Stop shuts the uplink down and waits for the loop.
func (u *Uplink) Stop() {
	u.once.Do(func() { close(u.done) })
	u.wg.Wait()
}

// IsConnected reports the current link state.
func (u *Uplink) IsConnected() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.connected
}

// Send queues a message for the backend, dropping when the buffer is
// full or the uplink is disabled.
func (u *Uplink) Send(msg *Message) {
	if !u.cfg.Enabled {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		u.logger.Error("marshal uplink message failed", zap.Error(err))
		return
	}
	select {
	case u.out <- data:
	default:
		u.logger.Warn("uplink buffer full, message dropped", zap.String("type", msg.Type))
	}
}

func (u *Uplink) loop(ctx context.Context) {
	defer u.wg.Done()

	wait := u.cfg.ReconnectInterval
	if wait <= 0 {
		wait = time.Second
	}
	maxWait := u.cfg.MaxReconnectWait
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	backoff := wait

	for {
		select {
		case <-ctx.Done():
			return
		case <-u.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.cfg.URL, nil)
		if err != nil {
			u.logger.Warn("uplink connect failed",
				zap.String("url", u.cfg.URL),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-u.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxWait {
				backoff = maxWait
			}
			continue
		}

		backoff = wait
		u.setConnected(true)
		u.logger.Info("uplink connected", zap.String("url", u.cfg.URL))

		u.serve(ctx, conn)

		u.setConnected(false)
		conn.Close()
		u.logger.Warn("uplink disconnected, reconnecting")
	}
}

// serve registers and forwards until the connection breaks.
func (u *Uplink) serve(ctx context.Context, conn *websocket.Conn) {
	reg, err := NewMessage(MessageTypeRegister, RegisterData{Source: u.cfg.Source})
	if err == nil {
		data, _ := json.Marshal(reg)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	// inbound frames keep the connection healthy; anything outside the
	// closed type set is rejected here, never re-broadcast
	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := ParseMessage(raw)
			if err != nil {
				u.logger.Warn("uplink message rejected", zap.Error(err))
				continue
			}
			u.logger.Debug("uplink message received", zap.String("type", msg.Type))
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-u.done:
			return
		case <-readErr:
			return
		case data := <-u.out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (u *Uplink) setConnected(v bool) {
	u.mu.Lock()
	u.connected = v
	u.mu.Unlock()
}
