package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	tb "gopkg.in/tucnak/telebot.v2"
)

// Bot sends notifications to a control chat and reads messages from chats.
type Bot struct {
	bot      *tb.Bot
	chat     *tb.Chat
	boot     time.Time
	messages chan string
	log      *zap.Logger
}

// New connects to telegram with token and resolves the control chat, where
// notifications are sent and commands are accepted.
func New(token string, chatID int, log *zap.Logger) (*Bot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: couldn't create bot: %w", err)
	}
	chat, err := b.ChatByID(strconv.Itoa(chatID))
	if err != nil {
		return nil, fmt.Errorf("telegram: couldn't create chat %d: %w", chatID, err)
	}
	return &Bot{
		bot:      b,
		chat:     chat,
		boot:     time.Now(),
		messages: make(chan string, 100),
		log:      log,
	}, nil
}

// accepts reports whether m was posted after the bot started in one of chats.
func (b *Bot) accepts(m *tb.Message, chats ...int64) bool {
	if m.Time().Before(b.boot) {
		return false
	}
	for _, id := range chats {
		if m.Chat.ID == id {
			return true
		}
	}
	return false
}

// HandleChat calls handler for every text message posted to signalChat, or to
// the control chat, after the bot started. Replies are ignored when skipReply
// is set, so answers to notifications are not executed as signals.
func (b *Bot) HandleChat(signalChat int64, skipReply bool, handler func(string)) {
	b.bot.Handle(tb.OnText, func(m *tb.Message) {
		if !b.accepts(m, signalChat, b.chat.ID) {
			return
		}
		if skipReply && m.IsReply() {
			return
		}
		b.log.Debug("telegram message", zap.Int64("chat", m.Chat.ID), zap.Int("bytes", len(m.Text)))
		handler(m.Text)
	})
}

// HandleCommand calls handler with the payload of /command when it is sent
// to the control chat.
func (b *Bot) HandleCommand(command string, handler func(payload string)) {
	b.bot.Handle("/"+command, func(m *tb.Message) {
		if !b.accepts(m, b.chat.ID) {
			return
		}
		handler(m.Payload)
	})
}

// Run polls telegram and delivers the queued notifications until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	go b.bot.Start()
	defer b.bot.Stop()
	defer b.deliver("🛑 tradehook stopping")

	// Pace the sends to stay under the telegram rate limits
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.messages:
			b.deliver(msg)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (b *Bot) deliver(msg string) {
	mode := tb.ModeDefault
	if strings.Contains(msg, "`") {
		mode = tb.ModeMarkdown
	}
	if _, err := b.bot.Send(b.chat, msg, mode); err != nil {
		b.log.Warn("couldn't send telegram message", zap.Error(err))
	}
}

// Send queues text for the control chat. Messages are dropped when the queue
// is full.
func (b *Bot) Send(text string) {
	select {
	case b.messages <- text:
	default:
		b.log.Warn("telegram queue full, message dropped", zap.String("text", text))
	}
}
