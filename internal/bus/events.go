package bus

import "time"

// Kind tells the dispatcher which lookup table resolves an inbound event.
type Kind string

const (
	KindCommand  Kind = "command"
	KindText     Kind = "text"
	KindCallback Kind = "callback"
)

type InboundMessage struct {
	Channel      string
	SenderID     string
	SenderHandle string
	SenderName   string
	ChatID       string
	MessageID    int
	Kind         Kind
	// Content is the command name without the slash for KindCommand, the raw
	// text for KindText, and the callback data for KindCallback.
	Content    string
	Args       string
	CallbackID string
	Timestamp  time.Time
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// Parse modes understood by transports.
const (
	ParseModeNone     = ""
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// KeyboardKind selects how a keyboard is attached to a message.
type KeyboardKind string

const (
	// KeyboardReply is a persistent keyboard whose buttons send their label as text.
	KeyboardReply KeyboardKind = "reply"
	// KeyboardInline is attached to a single message; buttons fire callbacks.
	KeyboardInline KeyboardKind = "inline"
)

type Button struct {
	Label string `json:"label"`
	// Data is the callback id for inline buttons; unused for reply buttons.
	Data string `json:"data,omitempty"`
}

// Keyboard is a transport-neutral keyboard descriptor.
type Keyboard struct {
	Kind KeyboardKind `json:"kind"`
	Rows [][]Button   `json:"rows"`
}

type OutboundMessage struct {
	Channel   string
	ChatID    string
	Content   string
	ParseMode string
	Keyboard  *Keyboard
	// EditMessageID, when non-zero, replaces that message instead of sending a new one.
	EditMessageID int
}
