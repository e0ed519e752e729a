package channel

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/stellarlinkco/haiemet/internal/bus"
	"github.com/stellarlinkco/haiemet/internal/config"
)

func dialWS(t *testing.T, ch *WebSocketChannel, query string) (*websocket.Conn, wsOutbound) {
	t.Helper()
	srv := httptest.NewServer(ch)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+query, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn, readFrame(t, conn)
}

func readFrame(t *testing.T, conn *websocket.Conn) wsOutbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var frame wsOutbound
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame wsInbound) {
	t.Helper()
	data, _ := json.Marshal(frame)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func readInbound(t *testing.T, b *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	select {
	case msg := <-b.Inbound:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for inbound message")
	}
	return bus.InboundMessage{}
}

func TestWebSocketChannel_Name(t *testing.T) {
	ch := NewWebSocketChannel(config.WebSocketConfig{}, bus.NewMessageBus(1))
	if ch.Name() != "websocket" {
		t.Errorf("Name() = %q", ch.Name())
	}
}

func TestWebSocketChannel_InboundEvents(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewWebSocketChannel(config.WebSocketConfig{}, b)
	ch.Start(context.Background())

	conn, hello := dialWS(t, ch, "?user=42&name=Dana")
	if hello.Type != "hello" || hello.ChatID == "" {
		t.Fatalf("hello = %+v", hello)
	}

	writeFrame(t, conn, wsInbound{Type: "message", Content: "/stats@bot now"})
	msg := readInbound(t, b)
	if msg.Kind != bus.KindCommand || msg.Content != "stats" || msg.Args != "now" {
		t.Errorf("command = %+v", msg)
	}
	if msg.SenderID != "ws:42" || msg.SenderName != "Dana" || msg.ChatID != hello.ChatID {
		t.Errorf("addressing = %+v", msg)
	}

	writeFrame(t, conn, wsInbound{Type: "message", Content: "  "})
	writeFrame(t, conn, wsInbound{Type: "message", Content: "hello"})
	if msg := readInbound(t, b); msg.Kind != bus.KindText || msg.Content != "hello" {
		t.Errorf("text = %+v", msg)
	}

	writeFrame(t, conn, wsInbound{Type: "callback", Data: "emotion_calm", MessageID: 3})
	msg = readInbound(t, b)
	if msg.Kind != bus.KindCallback || msg.Content != "emotion_calm" || msg.MessageID != 3 || msg.CallbackID == "" {
		t.Errorf("callback = %+v", msg)
	}
}

func TestWebSocketChannel_AnonymousUsesConnectionID(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewWebSocketChannel(config.WebSocketConfig{}, b)

	conn, hello := dialWS(t, ch, "")
	writeFrame(t, conn, wsInbound{Type: "message", Content: "hi"})
	if msg := readInbound(t, b); msg.SenderID != "ws:"+hello.ChatID {
		t.Errorf("SenderID = %q, want %q", msg.SenderID, "ws:"+hello.ChatID)
	}
}

func TestWebSocketChannel_RejectsSender(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewWebSocketChannel(config.WebSocketConfig{AllowFrom: []string{"7"}}, b)

	conn, _ := dialWS(t, ch, "?user=42")
	writeFrame(t, conn, wsInbound{Type: "message", Content: "hi"})

	select {
	case msg := <-b.Inbound:
		t.Errorf("rejected sender produced %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWebSocketChannel_CannotClaimForeignID(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewWebSocketChannel(config.WebSocketConfig{AllowFrom: []string{"123456789"}}, b)

	conn, _ := dialWS(t, ch, "?user=123456789")
	writeFrame(t, conn, wsInbound{Type: "message", Content: "/sync"})

	select {
	case msg := <-b.Inbound:
		t.Errorf("browser client accepted as %q: %+v", msg.SenderID, msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWebSocketChannel_AllowsPrefixedID(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewWebSocketChannel(config.WebSocketConfig{AllowFrom: []string{"ws:42"}}, b)

	conn, _ := dialWS(t, ch, "?user=42")
	writeFrame(t, conn, wsInbound{Type: "message", Content: "hi"})
	if msg := readInbound(t, b); msg.SenderID != "ws:42" {
		t.Errorf("SenderID = %q, want ws:42", msg.SenderID)
	}
}

func TestWebSocketChannel_KeyboardFrameFields(t *testing.T) {
	ch := NewWebSocketChannel(config.WebSocketConfig{}, bus.NewMessageBus(1))
	conn, hello := dialWS(t, ch, "")

	kb := &bus.Keyboard{Kind: bus.KeyboardInline, Rows: [][]bus.Button{{{Label: "😊 Happy", Data: "emotion_happy"}}}}
	if err := ch.Send(bus.OutboundMessage{ChatID: hello.ChatID, Content: "pick", Keyboard: kb}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	raw := string(data)
	want := `"keyboard":{"kind":"inline","rows":[[{"label":"😊 Happy","data":"emotion_happy"}]]}`
	if !strings.Contains(raw, want) {
		t.Errorf("frame = %s, want it to contain %s", raw, want)
	}
}

func TestWebSocketChannel_Send(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewWebSocketChannel(config.WebSocketConfig{}, b)
	conn, hello := dialWS(t, ch, "?user=42")

	kb := &bus.Keyboard{Kind: bus.KeyboardInline, Rows: [][]bus.Button{{{Label: "🔙 Back", Data: "back_main"}}}}
	if err := ch.Send(bus.OutboundMessage{ChatID: hello.ChatID, Content: "**hi**", ParseMode: bus.ParseModeMarkdown, Keyboard: kb}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Type != "message" || frame.Content != "**hi**" || frame.ParseMode != bus.ParseModeMarkdown || frame.MessageID == 0 {
		t.Errorf("frame = %+v", frame)
	}
	if frame.Keyboard == nil || frame.Keyboard.Rows[0][0].Data != "back_main" {
		t.Errorf("keyboard = %+v", frame.Keyboard)
	}

	// addressed by user id, as broadcasts are
	if err := ch.Send(bus.OutboundMessage{ChatID: "ws:42", Content: "menu", EditMessageID: frame.MessageID}); err != nil {
		t.Fatalf("Send edit: %v", err)
	}
	edit := readFrame(t, conn)
	if edit.Type != "edit" || edit.MessageID != frame.MessageID {
		t.Errorf("edit frame = %+v", edit)
	}

	if err := ch.Send(bus.OutboundMessage{ChatID: "nobody", Content: "x"}); err == nil {
		t.Error("expected error for unknown chat")
	}
}

func TestWebSocketChannel_Stop(t *testing.T) {
	ch := NewWebSocketChannel(config.WebSocketConfig{}, bus.NewMessageBus(1))
	conn, _ := dialWS(t, ch, "")
	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("read should fail after Stop")
	}
}
