package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/stellarlinkco/haiemet/internal/bus"
	"github.com/stellarlinkco/haiemet/internal/config"
)

const (
	webSocketChannelName = "websocket"
	wsWriteTimeout       = 5 * time.Second
	// wsUserPrefix keeps browser identities apart from other transports' user ids.
	wsUserPrefix = "ws:"
)

// wsInbound is a frame sent by a browser client.
type wsInbound struct {
	Type      string `json:"type"` // "message" or "callback"
	Content   string `json:"content,omitempty"`
	Data      string `json:"data,omitempty"`
	MessageID int    `json:"messageId,omitempty"`
}

// wsOutbound is a frame sent to a browser client.
type wsOutbound struct {
	Type      string        `json:"type"` // "hello", "message" or "edit"
	MessageID int           `json:"messageId,omitempty"`
	ChatID    string        `json:"chatId,omitempty"`
	Content   string        `json:"content,omitempty"`
	ParseMode string        `json:"parseMode,omitempty"`
	Keyboard  *bus.Keyboard `json:"keyboard,omitempty"`
}

type wsClient struct {
	conn   *websocket.Conn
	id     string
	userID string
}

// WebSocketChannel serves browser chats. Clients connect with
// ?user=<id>&name=<display name> and are known as "ws:<id>"; without a user id
// the connection id is used. AllowFrom entries match the prefixed id.
type WebSocketChannel struct {
	BaseChannel
	mu      sync.RWMutex
	ctx     context.Context
	clients sync.Map // connection id -> *wsClient
	nextID  atomic.Int64
	nextMsg atomic.Int64
}

func NewWebSocketChannel(cfg config.WebSocketConfig, b *bus.MessageBus) *WebSocketChannel {
	return &WebSocketChannel{
		BaseChannel: NewBaseChannel(webSocketChannelName, b, cfg.AllowFrom),
		ctx:         context.Background(),
	}
}

// Start records ctx for client read loops. Connections are accepted by
// ServeHTTP, which the status server mounts.
func (w *WebSocketChannel) Start(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
	w.log.Info("ready")
	return nil
}

func (w *WebSocketChannel) runContext() context.Context {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ctx
}

func (w *WebSocketChannel) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		w.log.Warn("websocket accept failed", "error", err)
		return
	}

	clientID := fmt.Sprintf("conn-%d", w.nextID.Add(1))
	userID := wsUserID(r.URL.Query().Get("user"), clientID)
	name := r.URL.Query().Get("name")
	client := &wsClient{conn: conn, id: clientID, userID: userID}
	w.clients.Store(clientID, client)
	w.log.Info("client connected", "client", clientID, "user", userID)

	defer func() {
		w.clients.Delete(clientID)
		conn.CloseNow()
		w.log.Info("client disconnected", "client", clientID)
	}()

	ctx := w.runContext()
	if err := w.write(client, wsOutbound{Type: "hello", ChatID: clientID}); err != nil {
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame wsInbound
		if err := json.Unmarshal(data, &frame); err != nil {
			w.log.Debug("bad frame", "client", clientID, "error", err)
			continue
		}
		if !w.IsAllowed(userID) {
			w.log.Warn("rejected sender", "user", userID)
			continue
		}
		msg, ok := w.toInbound(frame, client, name)
		if !ok {
			continue
		}
		select {
		case w.bus.Inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func wsUserID(requested, clientID string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		requested = clientID
	}
	return wsUserPrefix + requested
}

func (w *WebSocketChannel) toInbound(frame wsInbound, c *wsClient, name string) (bus.InboundMessage, bool) {
	msg := bus.InboundMessage{
		Channel:    webSocketChannelName,
		SenderID:   c.userID,
		SenderName: name,
		ChatID:     c.id,
		MessageID:  frame.MessageID,
		Timestamp:  time.Now(),
	}
	switch frame.Type {
	case "message":
		text := strings.TrimSpace(frame.Content)
		if text == "" {
			return msg, false
		}
		if cmd, args, ok := parseCommand(text); ok {
			msg.Kind = bus.KindCommand
			msg.Content = cmd
			msg.Args = args
		} else {
			msg.Kind = bus.KindText
			msg.Content = text
		}
	case "callback":
		if frame.Data == "" {
			return msg, false
		}
		msg.Kind = bus.KindCallback
		msg.Content = frame.Data
		msg.CallbackID = fmt.Sprintf("%s-%d", c.id, time.Now().UnixNano())
	default:
		return msg, false
	}
	return msg, true
}

// Send delivers msg to the connection it came from, or to every connection
// of the user when ChatID is a user id.
func (w *WebSocketChannel) Send(msg bus.OutboundMessage) error {
	frame := wsOutbound{
		Type:      "message",
		Content:   msg.Content,
		ParseMode: msg.ParseMode,
		Keyboard:  msg.Keyboard,
	}
	if msg.EditMessageID != 0 {
		frame.Type = "edit"
		frame.MessageID = msg.EditMessageID
	} else {
		frame.MessageID = int(w.nextMsg.Add(1))
	}

	var targets []*wsClient
	w.clients.Range(func(_, value any) bool {
		c := value.(*wsClient)
		if c.id == msg.ChatID || c.userID == msg.ChatID {
			targets = append(targets, c)
		}
		return true
	})
	if len(targets) == 0 {
		return fmt.Errorf("no websocket client for chat %s", msg.ChatID)
	}

	var firstErr error
	for _, c := range targets {
		if err := w.write(c, frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *WebSocketChannel) write(c *wsClient, frame wsOutbound) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (w *WebSocketChannel) Stop() error {
	w.clients.Range(func(_, value any) bool {
		value.(*wsClient).conn.CloseNow()
		return true
	})
	w.log.Info("stopped")
	return nil
}
