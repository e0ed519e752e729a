package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stellarlinkco/haiemet/internal/bus"
	"github.com/stellarlinkco/haiemet/internal/config"
)

const telegramChannelName = "telegram"

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetSelf() tgbotapi.User
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return w.bot.Request(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

// defaultBotFactory creates real telegram bot
var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

type TelegramChannel struct {
	BaseChannel
	token      string
	bot        TelegramBot
	proxy      string
	cancel     context.CancelFunc
	botFactory BotFactory
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	ch := &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		proxy:       cfg.Proxy,
		botFactory:  factory,
	}
	return ch, nil
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	t.log.Info("authorized", "bot", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			case <-ctx.Done():
				return
			}
		}
	}()

	t.log.Info("polling started")
	return nil
}

func (t *TelegramChannel) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var (
		msg bus.InboundMessage
		ok  bool
	)
	switch {
	case update.CallbackQuery != nil:
		msg, ok = t.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		msg, ok = t.handleMessage(update.Message)
	}
	if !ok {
		return
	}

	select {
	case t.bus.Inbound <- msg:
	case <-ctx.Done():
	}
}

// handleMessage converts a chat message into a command or text event.
func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) (bus.InboundMessage, bool) {
	if msg.From == nil || msg.Chat == nil {
		return bus.InboundMessage{}, false
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)

	if !t.IsAllowed(senderID) {
		t.log.Warn("rejected message", "sender", senderID, "handle", msg.From.UserName)
		return bus.InboundMessage{}, false
	}

	content := msg.Text
	if content == "" && msg.Caption != "" {
		content = msg.Caption
	}
	if strings.TrimSpace(content) == "" {
		return bus.InboundMessage{}, false
	}

	inbound := bus.InboundMessage{
		Channel:      telegramChannelName,
		SenderID:     senderID,
		SenderHandle: msg.From.UserName,
		SenderName:   msg.From.FirstName,
		ChatID:       strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:    msg.MessageID,
		Kind:         bus.KindText,
		Content:      content,
		Timestamp:    time.Unix(int64(msg.Date), 0),
	}
	if msg.IsCommand() {
		inbound.Kind = bus.KindCommand
		inbound.Content = msg.Command()
		inbound.Args = msg.CommandArguments()
	}
	return inbound, true
}

// handleCallback answers the query straight away so the client stops its
// spinner, then converts it into a callback event.
func (t *TelegramChannel) handleCallback(q *tgbotapi.CallbackQuery) (bus.InboundMessage, bool) {
	if t.bot != nil {
		if _, err := t.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			t.log.Warn("answer callback failed", "callback", q.ID, "error", err)
		}
	}
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return bus.InboundMessage{}, false
	}
	senderID := strconv.FormatInt(q.From.ID, 10)
	if !t.IsAllowed(senderID) {
		t.log.Warn("rejected callback", "sender", senderID, "handle", q.From.UserName)
		return bus.InboundMessage{}, false
	}

	return bus.InboundMessage{
		Channel:      telegramChannelName,
		SenderID:     senderID,
		SenderHandle: q.From.UserName,
		SenderName:   q.From.FirstName,
		ChatID:       strconv.FormatInt(q.Message.Chat.ID, 10),
		MessageID:    q.Message.MessageID,
		Kind:         bus.KindCallback,
		Content:      q.Data,
		CallbackID:   q.ID,
		Timestamp:    time.Now(),
	}, true
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	t.log.Info("stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	if msg.EditMessageID != 0 {
		return t.edit(chatID, msg)
	}

	content, parseMode := formatContent(msg)
	markup := replyMarkup(msg.Keyboard)

	// Telegram has a 4096 char limit per message
	const maxLen = 4000
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			// Try to split at last newline before maxLen
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		tgMsg.ParseMode = parseMode
		// the keyboard rides on the last chunk
		if content == "" && markup != nil {
			tgMsg.ReplyMarkup = markup
		}
		if _, err := t.bot.Send(tgMsg); err != nil {
			if parseMode == "" {
				return fmt.Errorf("send telegram message: %w", err)
			}
			// Retry without parse mode
			tgMsg.ParseMode = ""
			tgMsg.Text = msg.Content
			tgMsg.ReplyMarkup = markup
			if _, err2 := t.bot.Send(tgMsg); err2 != nil {
				return fmt.Errorf("send telegram message: %w", err2)
			}
			return nil
		}
	}
	return nil
}

// edit replaces the text (and inline keyboard) of an earlier message.
func (t *TelegramChannel) edit(chatID int64, msg bus.OutboundMessage) error {
	content, parseMode := formatContent(msg)

	var edit tgbotapi.EditMessageTextConfig
	if msg.Keyboard != nil && msg.Keyboard.Kind == bus.KeyboardInline {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, msg.EditMessageID, content, inlineMarkup(msg.Keyboard))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, msg.EditMessageID, content)
	}
	edit.ParseMode = parseMode

	if _, err := t.bot.Request(edit); err != nil {
		// pressing the same button twice yields identical content
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit telegram message %d: %w", msg.EditMessageID, err)
	}
	return nil
}

func formatContent(msg bus.OutboundMessage) (string, string) {
	switch msg.ParseMode {
	case bus.ParseModeMarkdown:
		return toTelegramHTML(msg.Content), tgbotapi.ModeHTML
	case bus.ParseModeHTML:
		return msg.Content, tgbotapi.ModeHTML
	default:
		return msg.Content, ""
	}
}

func replyMarkup(kb *bus.Keyboard) any {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	switch kb.Kind {
	case bus.KeyboardReply:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Label))
			}
			rows = append(rows, buttons)
		}
		markup := tgbotapi.NewReplyKeyboard(rows...)
		markup.ResizeKeyboard = true
		return markup
	case bus.KeyboardInline:
		return inlineMarkup(kb)
	default:
		return nil
	}
}

func inlineMarkup(kb *bus.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// toTelegramHTML converts basic markdown to Telegram HTML.
func toTelegramHTML(s string) string {
	// Escape HTML entities first
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	// Code blocks: ```...``` -> <pre>...</pre>
	for {
		start := strings.Index(s, "```")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+3:], "```")
		if end == -1 {
			break
		}
		end += start + 3
		code := s[start+3 : end]
		// Strip optional language tag on first line
		if nl := strings.Index(code, "\n"); nl >= 0 {
			firstLine := strings.TrimSpace(code[:nl])
			if len(firstLine) > 0 && !strings.Contains(firstLine, " ") {
				code = code[nl+1:]
			}
		}
		s = s[:start] + "<pre>" + code + "</pre>" + s[end+3:]
	}

	s = replacePairs(s, "`", "<code>", "</code>")
	s = replacePairs(s, "**", "<b>", "</b>")
	// Italic after bold to avoid conflicts
	s = replacePairs(s, "*", "<i>", "</i>")
	return s
}

// replacePairs wraps text between matching delimiters in open/close tags.
func replacePairs(s, delim, openTag, closeTag string) string {
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			return s
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			return s
		}
		end += start + len(delim)
		s = s[:start] + openTag + s[start+len(delim):end] + closeTag + s[end+len(delim):]
	}
}
