package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/haiemet/internal/bus"
)

const consoleChannelName = "console"

// ConsoleChannel is a local line-oriented transport. Each input line is one
// event: "/cmd args" is a command, "!data" presses an inline button, and
// anything else is plain text. It acts as a single fixed user.
type ConsoleChannel struct {
	in  io.Reader
	out io.Writer

	userID string
	handle string
	name   string

	mu     sync.Mutex
	nextID int
	lastID int
}

func NewConsoleChannel(in io.Reader, out io.Writer, userID, handle, name string) *ConsoleChannel {
	return &ConsoleChannel{
		in:     in,
		out:    out,
		userID: userID,
		handle: handle,
		name:   name,
	}
}

func (c *ConsoleChannel) Name() string {
	return consoleChannelName
}

// Run reads lines until EOF or ctx is done and hands each event to handle.
// Events are processed one at a time, so every reply is printed before the
// next line is read.
func (c *ConsoleChannel) Run(ctx context.Context, handle func(bus.InboundMessage)) error {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, ok := c.parseLine(scanner.Text())
		if !ok {
			continue
		}
		handle(msg)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read console input: %w", err)
	}
	return nil
}

func (c *ConsoleChannel) parseLine(line string) (bus.InboundMessage, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return bus.InboundMessage{}, false
	}

	c.mu.Lock()
	lastID := c.lastID
	c.mu.Unlock()

	msg := bus.InboundMessage{
		Channel:      consoleChannelName,
		SenderID:     c.userID,
		SenderHandle: c.handle,
		SenderName:   c.name,
		ChatID:       c.userID,
		Kind:         bus.KindText,
		Content:      line,
		Timestamp:    time.Now(),
	}

	if cmd, args, ok := parseCommand(line); ok {
		msg.Kind = bus.KindCommand
		msg.Content = cmd
		msg.Args = args
		return msg, true
	}
	if strings.HasPrefix(line, "!") && len(line) > 1 {
		msg.Kind = bus.KindCallback
		msg.Content = line[1:]
		msg.CallbackID = fmt.Sprintf("console-%d", time.Now().UnixNano())
		msg.MessageID = lastID
	}
	return msg, true
}

// Send prints a reply with its keyboard. Edits are printed as new blocks
// tagged with the message they replace.
func (c *ConsoleChannel) Send(msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	if msg.EditMessageID != 0 {
		fmt.Fprintf(&sb, "── edit #%d ──\n", msg.EditMessageID)
	} else {
		c.nextID++
		c.lastID = c.nextID
		fmt.Fprintf(&sb, "── #%d ──\n", c.nextID)
	}
	sb.WriteString(msg.Content)
	sb.WriteString("\n")
	if kb := msg.Keyboard; kb != nil {
		for _, row := range kb.Rows {
			labels := make([]string, 0, len(row))
			for _, b := range row {
				if kb.Kind == bus.KeyboardInline {
					labels = append(labels, fmt.Sprintf("%s (!%s)", b.Label, b.Data))
				} else {
					labels = append(labels, b.Label)
				}
			}
			fmt.Fprintf(&sb, "[ %s ]\n", strings.Join(labels, " | "))
		}
	}
	sb.WriteString("\n")

	if _, err := io.WriteString(c.out, sb.String()); err != nil {
		return fmt.Errorf("write console output: %w", err)
	}
	return nil
}
