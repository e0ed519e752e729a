package dispatcher

import (
	"errors"
	"strings"
	"time"

	"github.com/stellarlinkco/haiemet/internal/bus"
	"github.com/stellarlinkco/haiemet/internal/config"
	"github.com/stellarlinkco/haiemet/internal/logger"
	"github.com/stellarlinkco/haiemet/internal/registry"
)

// Command is a slash-command name without the leading slash.
type Command string

const (
	CmdStart    Command = "start"
	CmdHelp     Command = "help"
	CmdStats    Command = "stats"
	CmdStatus   Command = "status"
	CmdPower    Command = "power"
	CmdSync     Command = "sync"
	CmdEmotion  Command = "emotion"
	CmdHET      Command = "het"
	CmdProjects Command = "projects"
	CmdVerify   Command = "verify"
)

// Point rewards per action.
const (
	actionPoints = 10
	powerPoints  = 50
	syncPoints   = 100
)

var commandHelp = []struct {
	cmd  Command
	desc string
}{
	{CmdStart, "start and register"},
	{CmdHelp, "this guide"},
	{CmdStats, "your stats"},
	{CmdStatus, "system status"},
	{CmdPower, "activate cosmic power"},
	{CmdSync, "quantum sync"},
	{CmdEmotion, "share your mood"},
	{CmdHET, "HET Token info"},
	{CmdProjects, "project list"},
	{CmdVerify, "system verification"},
}

// Registry is the subset of *registry.Registry the dispatcher drives.
type Registry interface {
	Register(id, handle, displayName string) bool
	Touch(id string) error
	AddPoints(id string, amount int64) error
	AddEmotion(id string, delta int64) error
	Get(id string) (registry.UserRecord, bool)
	Snapshot() registry.Snapshot
	IncrementCoreBeat() int64
	SyncQuantum() int64
	ActivateCosmicPower() registry.SystemState
}

// Reply is what a handler produces before it is addressed.
type Reply struct {
	Text      string
	ParseMode string
	Keyboard  *bus.Keyboard
	// Edit replaces the message the callback came from.
	Edit bool
}

type handler func(msg bus.InboundMessage) Reply

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// Dispatcher maps inbound events to registry operations and a rendered reply.
// All lookup tables are built once in New and never change afterwards.
type Dispatcher struct {
	reg Registry
	bot config.BotConfig
	log *logger.Logger
	now func() time.Time

	commands  map[Command]handler
	buttons   map[string]Command
	callbacks map[string]handler
}

func New(reg Registry, bot config.BotConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg: reg,
		bot: bot,
		log: logger.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.commands = map[Command]handler{
		CmdStart:    d.start,
		CmdHelp:     d.help,
		CmdStats:    d.stats,
		CmdStatus:   d.status,
		CmdPower:    d.power,
		CmdSync:     d.sync,
		CmdEmotion:  d.emotionMenu,
		CmdHET:      d.het,
		CmdProjects: d.projectsMenu,
		CmdVerify:   d.verify,
	}

	d.buttons = make(map[string]Command, len(buttonLabels))
	for cmd, label := range buttonLabels {
		d.buttons[label] = cmd
	}

	d.callbacks = make(map[string]handler, len(emotions)+len(projects)+1)
	for _, e := range emotions {
		d.callbacks[e.callback] = d.emotionCallback(e)
	}
	for _, p := range projects {
		d.callbacks[p.callback] = projectCallback(p)
	}
	d.callbacks[callbackBackMain] = backMain
	return d
}

// Dispatch resolves msg to a handler and returns the addressed response. The
// second result is false when nothing should be sent.
func (d *Dispatcher) Dispatch(msg bus.InboundMessage) (bus.OutboundMessage, bool) {
	var (
		r  Reply
		ok bool
	)
	switch msg.Kind {
	case bus.KindCommand:
		r, ok = d.dispatchCommand(msg)
	case bus.KindText:
		r, ok = d.dispatchText(msg)
	case bus.KindCallback:
		r, ok = d.dispatchCallback(msg)
	default:
		d.log.Warn("unknown event kind", "kind", msg.Kind, "sender", msg.SenderID)
	}
	if !ok {
		return bus.OutboundMessage{}, false
	}

	out := bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Content:   r.Text,
		ParseMode: r.ParseMode,
		Keyboard:  r.Keyboard,
	}
	if r.Edit {
		out.EditMessageID = msg.MessageID
	}
	return out, true
}

func (d *Dispatcher) dispatchCommand(msg bus.InboundMessage) (Reply, bool) {
	if h, ok := d.commands[Command(strings.ToLower(msg.Content))]; ok {
		return h(msg), true
	}
	text := "/" + msg.Content
	if msg.Args != "" {
		text += " " + msg.Args
	}
	return d.fallback(msg, text), true
}

func (d *Dispatcher) dispatchText(msg bus.InboundMessage) (Reply, bool) {
	if cmd, ok := d.buttons[strings.TrimSpace(msg.Content)]; ok {
		return d.commands[cmd](msg), true
	}
	return d.fallback(msg, msg.Content), true
}

func (d *Dispatcher) dispatchCallback(msg bus.InboundMessage) (Reply, bool) {
	h, ok := d.callbacks[msg.Content]
	if !ok {
		d.log.Debug("ignoring unknown callback", "data", msg.Content, "sender", msg.SenderID)
		return Reply{}, false
	}
	return h(msg), true
}

// fallback counts the interaction and acknowledges it verbatim.
func (d *Dispatcher) fallback(msg bus.InboundMessage, text string) Reply {
	d.track(d.reg.Touch(msg.SenderID), msg)
	return Reply{Text: RenderAcknowledgment(d.bot, text)}
}

// reward is the standard activity accrual: one touch plus points.
func (d *Dispatcher) reward(msg bus.InboundMessage, points int64) {
	d.track(d.reg.Touch(msg.SenderID), msg)
	d.track(d.reg.AddPoints(msg.SenderID, points), msg)
}

// track logs registry errors. Unregistered senders still get a reply.
func (d *Dispatcher) track(err error, msg bus.InboundMessage) {
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrUnknownUser):
		d.log.Debug("activity from unregistered sender", "sender", msg.SenderID)
	default:
		d.log.Warn("registry update failed", "sender", msg.SenderID, "error", err)
	}
}

func (d *Dispatcher) start(msg bus.InboundMessage) Reply {
	handle := senderHandle(msg)
	isNew := d.reg.Register(msg.SenderID, handle, msg.SenderName)
	if isNew {
		d.log.Info("new user", "sender", msg.SenderID, "handle", handle)
	}
	snap := d.reg.Snapshot()
	return Reply{
		Text:      RenderWelcome(d.bot, msg.SenderName, isNew, snap.System),
		ParseMode: bus.ParseModeMarkdown,
		Keyboard:  MainKeyboard(),
	}
}

// senderHandle is the username, else the first name, else "Unknown".
func senderHandle(msg bus.InboundMessage) string {
	if msg.SenderHandle != "" {
		return msg.SenderHandle
	}
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return "Unknown"
}

func (d *Dispatcher) help(bus.InboundMessage) Reply {
	return Reply{Text: RenderHelp(d.bot), ParseMode: bus.ParseModeMarkdown}
}

func (d *Dispatcher) stats(msg bus.InboundMessage) Reply {
	u, ok := d.reg.Get(msg.SenderID)
	if !ok {
		return Reply{Text: RenderNotRegistered()}
	}
	return Reply{Text: RenderStats(u), ParseMode: bus.ParseModeMarkdown}
}

func (d *Dispatcher) status(msg bus.InboundMessage) Reply {
	d.reg.IncrementCoreBeat()
	d.reward(msg, actionPoints)
	return Reply{Text: RenderStatus(d.bot, d.reg.Snapshot()), ParseMode: bus.ParseModeMarkdown}
}

func (d *Dispatcher) power(msg bus.InboundMessage) Reply {
	sys := d.reg.ActivateCosmicPower()
	d.reward(msg, powerPoints)
	return Reply{Text: RenderPower(sys), ParseMode: bus.ParseModeMarkdown}
}

func (d *Dispatcher) sync(msg bus.InboundMessage) Reply {
	value := d.reg.SyncQuantum()
	d.reward(msg, syncPoints)
	return Reply{Text: RenderSync(value), ParseMode: bus.ParseModeMarkdown}
}

func (d *Dispatcher) emotionMenu(bus.InboundMessage) Reply {
	return Reply{Text: RenderEmotionPrompt(), ParseMode: bus.ParseModeMarkdown, Keyboard: EmotionKeyboard()}
}

func (d *Dispatcher) het(msg bus.InboundMessage) Reply {
	d.reward(msg, actionPoints)
	return Reply{Text: RenderHET(), ParseMode: bus.ParseModeMarkdown}
}

func (d *Dispatcher) projectsMenu(bus.InboundMessage) Reply {
	return Reply{Text: RenderProjectsPrompt(), ParseMode: bus.ParseModeMarkdown, Keyboard: ProjectsKeyboard()}
}

func (d *Dispatcher) verify(bus.InboundMessage) Reply {
	return Reply{Text: RenderVerify(d.bot, d.now()), ParseMode: bus.ParseModeMarkdown}
}

func (d *Dispatcher) emotionCallback(e emotion) handler {
	return func(msg bus.InboundMessage) Reply {
		d.track(d.reg.AddEmotion(msg.SenderID, e.delta), msg)
		d.track(d.reg.AddPoints(msg.SenderID, actionPoints), msg)
		return Reply{
			Text:      renderEmotionThanks(e),
			ParseMode: bus.ParseModeMarkdown,
			Keyboard:  EmotionKeyboard(),
			Edit:      true,
		}
	}
}

func projectCallback(p project) handler {
	return func(bus.InboundMessage) Reply {
		return Reply{Text: p.blurb, ParseMode: bus.ParseModeMarkdown, Keyboard: ProjectsKeyboard(), Edit: true}
	}
}

func backMain(bus.InboundMessage) Reply {
	return Reply{Text: RenderMainMenu(), Edit: true}
}
