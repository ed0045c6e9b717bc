package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mailwatch-bot/internal/notifier/domain"
)

// CallbackPrefix is the callback-data prefix carried by the mark-read
// button on every delivered notification.
const CallbackPrefix = "mark_read:"

// maxMessageLen is Telegram's hard message length limit, in characters.
const maxMessageLen = 4096

// Client adapts the Telegram Bot API to the chat transport the
// notification engine needs. It targets the single bound destination chat;
// the destination is set when the authorization flow binds a chat and
// restored from persisted state on startup.
type Client struct {
	bot *tgbotapi.BotAPI

	mu     sync.RWMutex
	chatID int64
}

// NewClient connects to the Telegram Bot API with the given token.
func NewClient(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return &Client{bot: bot}, nil
}

// Bot exposes the underlying API for the update-handling delivery layer.
func (c *Client) Bot() *tgbotapi.BotAPI {
	return c.bot
}

// SetChatID binds the destination chat for notifications.
func (c *Client) SetChatID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = id
}

// ChatID returns the bound destination chat, or 0 when unbound.
func (c *Client) ChatID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chatID
}

// Send delivers a notification with a mark-read button for messageID and
// returns the sent Telegram message ID as the opaque notification
// reference.
func (c *Client) Send(ctx context.Context, text, messageID string) (string, error) {
	chatID := c.ChatID()
	if chatID == 0 {
		return "", fmt.Errorf("no destination chat bound")
	}

	msg := tgbotapi.NewMessage(chatID, truncateMessage(text))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Read", CallbackPrefix+messageID),
		),
	)

	sent, err := c.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("send notification: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Strike edits a previously sent notification into its struck-through
// form and drops the mark-read button.
func (c *Client) Strike(ctx context.Context, ref, originalText string) error {
	msgID, err := strconv.Atoi(ref)
	if err != nil {
		return fmt.Errorf("bad notification ref %q: %w", ref, err)
	}

	// Striking doubles the rune count, so the struck text gets capped too.
	edit := tgbotapi.NewEditMessageText(c.ChatID(), msgID, truncateMessage(Strikethrough(originalText)))
	if _, err := c.bot.Request(edit); err != nil {
		return fmt.Errorf("strike notification: %w", err)
	}
	return nil
}

// SendReminder sends a reminder as a reply to the original notification.
func (c *Client) SendReminder(ctx context.Context, ref, text string) error {
	msgID, err := strconv.Atoi(ref)
	if err != nil {
		return fmt.Errorf("bad notification ref %q: %w", ref, err)
	}

	msg := tgbotapi.NewMessage(c.ChatID(), text)
	msg.ReplyToMessageID = msgID
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	return nil
}

// truncateMessage caps text at Telegram's message length limit, counting
// characters the way the API does.
func truncateMessage(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageLen {
		return text
	}
	return string(runes[:maxMessageLen-1]) + "…"
}

// Strikethrough overlays a combining long-stroke on every rune, which
// renders as struck-through text without needing a parse mode.
func Strikethrough(text string) string {
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		b.WriteRune('̶')
	}
	return b.String()
}

var _ domain.ChatTransport = (*Client)(nil)
