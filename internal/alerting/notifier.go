package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Message is one outbound chat message.
type Message struct {
	Text     string
	Markdown bool
	Kind     string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// TelegramOptions configure the Telegram notifier.
type TelegramOptions struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Timeout  time.Duration
	// SendRate caps outbound messages per second; zero disables pacing.
	SendRate  float64
	SendBurst int
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.SendRate > 0 {
		burst := opts.SendBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.SendRate), burst)
	}

	return &TelegramNotifier{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    msg.Text,
	}
	if msg.Markdown {
		payload["parse_mode"] = "Markdown"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
		}
	}

	n.logger.Info().Str("kind", msg.Kind).Msg("消息已发送 (Telegram)")
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)
