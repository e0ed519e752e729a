package channel

import (
	"context"
	"strings"

	"github.com/stellarlinkco/haiemet/internal/bus"
	"github.com/stellarlinkco/haiemet/internal/logger"
)

// Channel is a chat transport driven by the gateway.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel carries what every transport shares: its name, the bus, and
// the sender allow-list.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
	log       *logger.Logger
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		if id != "" {
			allowed[id] = true
		}
	}
	return BaseChannel{
		name:      name,
		bus:       b,
		allowFrom: allowed,
		log:       logger.NewNop(),
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsAllowed reports whether senderID may talk to the bot. An empty allow-list
// admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[senderID]
}

func (c *BaseChannel) SetLogger(l *logger.Logger) {
	if l != nil {
		c.log = l.Named(c.name)
	}
}

// parseCommand splits "/cmd@bot args" into its command and arguments. ok is
// false when line is not a command.
func parseCommand(line string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(line, "/") || len(line) < 2 {
		return "", "", false
	}
	cmd, args, _ = strings.Cut(line[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	if cmd == "" {
		return "", "", false
	}
	return cmd, strings.TrimSpace(args), true
}
