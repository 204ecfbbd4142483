package bot

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tb "gopkg.in/tucnak/telebot.v2"
)

const defaultPollTimeout = 10 * time.Second

// TelegramOptions configure the chat transport.
type TelegramOptions struct {
	Token          string
	ChatID         string
	APIBase        string
	PollTimeout    time.Duration
	RequestTimeout time.Duration
}

// Telegram serves Commands over the Telegram Bot API with long polling.
// Only updates from the configured chat are handled.
type Telegram struct {
	client   *tb.Bot
	commands *Commands
	markup   *tb.ReplyMarkup
	chat     chatMatcher
	logger   zerolog.Logger
}

// NewTelegram connects to the Bot API and registers handlers.
func NewTelegram(commands *Commands, opts TelegramOptions, logger zerolog.Logger) (*Telegram, error) {
	log := logger.With().Str("component", "telegram_bot").Logger()

	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= pollTimeout {
		requestTimeout = pollTimeout + 10*time.Second
	}

	chat := newChatMatcher(opts.ChatID)
	poller := tb.NewMiddlewarePoller(&tb.LongPoller{Timeout: pollTimeout}, func(u *tb.Update) bool {
		if chat.allows(updateChat(u)) {
			return true
		}
		log.Warn().Int("update_id", u.ID).Msg("ignoring update from unauthorised chat")
		return false
	})

	client, err := tb.NewBot(tb.Settings{
		URL:       opts.APIBase,
		Token:     opts.Token,
		Poller:    poller,
		ParseMode: tb.ModeMarkdown,
		Client:    &http.Client{Timeout: requestTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	t := newTelegram(client, commands, chat, log)
	if err := t.setupCommands(); err != nil {
		log.Warn().Err(err).Msg("set bot commands failed")
	}
	return t, nil
}

func newTelegram(client *tb.Bot, commands *Commands, chat chatMatcher, logger zerolog.Logger) *Telegram {
	t := &Telegram{
		client:   client,
		commands: commands,
		markup:   &tb.ReplyMarkup{},
		chat:     chat,
		logger:   logger,
	}
	t.registerHandlers()
	return t
}

func (t *Telegram) setupCommands() error {
	return t.client.SetCommands([]tb.Command{
		{Text: "start", Description: "Show the control panel"},
		{Text: "status", Description: "Current settings and today's stats"},
		{Text: "all", Description: "Top pairs by absolute funding rate"},
		{Text: "history", Description: "Recent samples for a pair"},
		{Text: "add", Description: "Start monitoring a pair"},
		{Text: "remove", Description: "Stop monitoring a pair"},
		{Text: "help", Description: "List commands"},
	})
}

func (t *Telegram) registerHandlers() {
	t.handleText("/start", func(ctx context.Context, _ string) Reply { return t.commands.Start(ctx) })
	t.handleText("/help", func(ctx context.Context, _ string) Reply { return t.commands.Help(ctx) })
	t.handleText("/status", func(ctx context.Context, _ string) Reply { return t.commands.Status(ctx) })
	t.handleText("/all", func(ctx context.Context, _ string) Reply { return t.commands.All(ctx) })
	t.handleText("/history", t.commands.History)
	t.handleText("/add", t.commands.AddPair)
	t.handleText("/remove", t.commands.RemovePair)

	for _, action := range Actions {
		action := action
		btn := t.markup.Data(string(action), string(action))
		t.client.Handle(&btn, func(c *tb.Callback) {
			ctx := context.Background()
			reply := t.commands.Press(ctx, action, c.Data)
			if err := t.client.Respond(c, &tb.CallbackResponse{}); err != nil {
				t.logger.Debug().Err(err).Msg("answer callback failed")
			}
			if c.Message == nil {
				return
			}
			if _, err := t.client.Edit(c.Message, reply.Text, t.sendOptions(reply)); err != nil {
				// Telegram rejects edits that leave the message unchanged.
				if !strings.Contains(err.Error(), "message is not modified") {
					t.logger.Warn().Err(err).Str("action", string(action)).Msg("edit panel failed")
				}
			}
		})
	}
}

func (t *Telegram) handleText(endpoint string, fn func(ctx context.Context, payload string) Reply) {
	t.client.Handle(endpoint, func(m *tb.Message) {
		t.logger.Debug().Str("command", endpoint).Str("payload", m.Payload).Msg("command received")
		reply := fn(context.Background(), m.Payload)
		t.deliver(m.Chat, reply)
	})
}

func (t *Telegram) deliver(to tb.Recipient, reply Reply) {
	if _, err := t.client.Send(to, reply.Text, t.sendOptions(reply)); err != nil {
		t.logger.Error().Err(err).Msg("send reply failed")
		return
	}
	if len(reply.Chart) == 0 {
		return
	}
	photo := &tb.Photo{File: tb.FromReader(bytes.NewReader(reply.Chart))}
	if _, err := t.client.Send(to, photo); err != nil {
		t.logger.Warn().Err(err).Msg("send chart failed")
	}
}

func (t *Telegram) sendOptions(reply Reply) *tb.SendOptions {
	opts := &tb.SendOptions{ParseMode: tb.ModeMarkdown}
	if len(reply.Keyboard) == 0 {
		return opts
	}

	markup := &tb.ReplyMarkup{}
	rows := make([]tb.Row, 0, len(reply.Keyboard))
	for _, line := range reply.Keyboard {
		btns := make([]tb.Btn, 0, len(line))
		for _, b := range line {
			if b.Arg != "" {
				btns = append(btns, markup.Data(b.Label, string(b.Action), b.Arg))
			} else {
				btns = append(btns, markup.Data(b.Label, string(b.Action)))
			}
		}
		rows = append(rows, markup.Row(btns...))
	}
	markup.Inline(rows...)
	opts.ReplyMarkup = markup
	return opts
}

// Run polls for updates until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) error {
	t.logger.Info().Msg("telegram command interface started")
	go t.client.Start()
	<-ctx.Done()
	t.client.Stop()
	t.logger.Info().Msg("telegram command interface stopped")
	return nil
}

func updateChat(u *tb.Update) *tb.Chat {
	switch {
	case u.Message != nil:
		return u.Message.Chat
	case u.Callback != nil && u.Callback.Message != nil:
		return u.Callback.Message.Chat
	default:
		return nil
	}
}

// chatMatcher accepts a numeric chat id or an @username.
type chatMatcher struct {
	id       int64
	username string
}

func newChatMatcher(raw string) chatMatcher {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return chatMatcher{id: id}
	}
	return chatMatcher{username: strings.TrimPrefix(raw, "@")}
}

func (m chatMatcher) allows(chat *tb.Chat) bool {
	if chat == nil {
		return false
	}
	if m.id != 0 {
		return chat.ID == m.id
	}
	return m.username != "" && strings.EqualFold(chat.Username, m.username)
}
