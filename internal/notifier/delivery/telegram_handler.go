package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	authusecase "mailwatch-bot/internal/auth/usecase"
	"mailwatch-bot/internal/notifier/domain"
	"mailwatch-bot/internal/notifier/repository"
	"mailwatch-bot/internal/notifier/usecase"
	"mailwatch-bot/pkg/telegram"
)

// Handler consumes Telegram updates: operator commands, allow-list
// conversations and mark-read button presses. It also owns the poll loop
// lifecycle, since the loop is started and stopped by chat commands.
type Handler struct {
	bot       *tgbotapi.BotAPI
	transport *telegram.Client
	store     *repository.StateStore
	allowlist *repository.AllowlistStore
	ack       *usecase.Acknowledger
	reminders *usecase.Scheduler
	poller    *usecase.Poller
	flow      *authusecase.Flow
	access    *AccessControl
	sessions  *sessionRegistry

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
	polling    bool
	pollGen    int
}

// NewHandler wires the delivery layer.
func NewHandler(
	transport *telegram.Client,
	store *repository.StateStore,
	allowlist *repository.AllowlistStore,
	ack *usecase.Acknowledger,
	reminders *usecase.Scheduler,
	poller *usecase.Poller,
	flow *authusecase.Flow,
	access *AccessControl,
) *Handler {
	return &Handler{
		bot:       transport.Bot(),
		transport: transport,
		store:     store,
		allowlist: allowlist,
		ack:       ack,
		reminders: reminders,
		poller:    poller,
		flow:      flow,
		access:    access,
		sessions:  newSessionRegistry(),
	}
}

// ResumeIfAuthorized restarts polling and persisted reminder schedules
// after a process restart, when a credential and a bound chat exist.
func (h *Handler) ResumeIfAuthorized(ctx context.Context) {
	if !h.flow.Authorized() || h.store.ChatID() == 0 {
		log.Printf("[Telegram] Not yet authorized or bound; waiting for /connect")
		return
	}
	h.transport.SetChatID(h.store.ChatID())
	h.startPolling(ctx)
}

// Run processes updates until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := h.bot.GetUpdatesChan(u)

	log.Printf("[Telegram] Listening for updates as @%s", h.bot.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			h.stopPolling()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case update.CallbackQuery != nil:
				h.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil:
				h.handleMessage(ctx, update.Message)
			}
		}
	}
}

// Polling reports whether the poll loop is running.
func (h *Handler) Polling() bool {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()
	return h.polling
}

func (h *Handler) startPolling(ctx context.Context) {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()
	if h.polling {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	h.pollCancel = cancel
	h.polling = true
	h.pollGen++
	gen := h.pollGen

	h.reminders.Resume(pollCtx)
	go func() {
		h.poller.Run(pollCtx)
		h.pollMu.Lock()
		// A loop superseded by a restart must not clear the new loop's flag.
		if h.pollGen == gen {
			h.polling = false
		}
		h.pollMu.Unlock()
	}()
}

func (h *Handler) stopPolling() {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()
	if h.pollCancel != nil {
		h.pollCancel()
		h.pollCancel = nil
	}
	h.polling = false
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		h.handleCommand(ctx, msg)
		return
	}

	// Non-command text only matters inside an allow-list conversation.
	key := sessionKey{ChatID: msg.Chat.ID, UserID: msg.From.ID}
	switch h.sessions.get(key).state {
	case stateAddingEntry:
		h.handleAddEntry(key, msg)
	case stateRemovingEntry:
		h.handleRemoveIndex(key, msg)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "connect":
		h.cmdConnect(msg)
	case "auth":
		h.cmdAuth(ctx, msg)
	case "whitelist":
		h.cmdWhitelist(msg)
	case "restart":
		h.cmdRestart(msg)
	case "rights":
		h.cmdRights(msg)
	case "myid":
		h.cmdMyID(msg)
	}
}

// cmdConnect starts the authorization flow, or asks for confirmation when
// the bot is already authorized.
func (h *Handler) cmdConnect(msg *tgbotapi.Message) {
	if !h.access.IsAdmin(msg.From.ID) {
		return
	}

	if h.flow.Authorized() {
		reply := tgbotapi.NewMessage(msg.Chat.ID, "⚠️ Already authorized. Reset credentials and re-authorize?")
		reply.ReplyMarkup = kbConfirmConnect()
		h.send(reply)
		return
	}

	h.sendAuthInstructions(msg.Chat.ID, msg.From.ID)
}

func (h *Handler) sendAuthInstructions(chatID, userID int64) {
	url := h.flow.Begin(userID)
	h.send(tgbotapi.NewMessage(chatID, "🔗 Please open this URL in a browser to authorize Gmail:\n\n"+url))
	h.send(tgbotapi.NewMessage(chatID, "📝 After granting access, reply with:\n/auth YOUR_CODE_HERE"))
}

// cmdAuth completes the OAuth exchange, binds this chat as the single
// notification destination and starts polling.
func (h *Handler) cmdAuth(ctx context.Context, msg *tgbotapi.Message) {
	if !h.access.IsAdmin(msg.From.ID) {
		return
	}

	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		h.reply(msg, "❌ Usage: /auth YOUR_CODE_HERE")
		return
	}

	if err := h.flow.Exchange(ctx, msg.From.ID, code); err != nil {
		if errors.Is(err, authusecase.ErrNoPendingFlow) {
			h.reply(msg, "❌ No pending authorization. Run /connect first.")
			return
		}
		h.reply(msg, fmt.Sprintf("❌ Token exchange failed:\n%v", err))
		return
	}

	h.store.SetChatID(msg.Chat.ID)
	h.store.SetCursor(time.Now().UnixMilli())
	h.transport.SetChatID(msg.Chat.ID)
	if err := h.store.Save(); err != nil {
		log.Printf("[Telegram] Persisting session state failed: %v", err)
	}

	h.stopPolling()
	h.startPolling(ctx)

	h.send(tgbotapi.NewMessage(msg.Chat.ID, "✅ Authorization complete! I'll start notifying you of new emails."))
}

// cmdWhitelist shows the allow-list with Add/Remove actions.
func (h *Handler) cmdWhitelist(msg *tgbotapi.Message) {
	if !h.access.IsAuthorized(msg.Chat.ID, msg.From.ID, msg.Chat.Type) {
		h.reply(msg, "❌ You're not allowed here.")
		return
	}

	h.sessions.clear(sessionKey{ChatID: msg.Chat.ID, UserID: msg.From.ID})

	entries := h.allowlist.Entries()
	text := "Whitelist is empty."
	if len(entries) > 0 {
		var b strings.Builder
		for i, e := range entries {
			fmt.Fprintf(&b, "%d. %s\n", i+1, e)
		}
		text = strings.TrimRight(b.String(), "\n")
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyMarkup = kbAllowlist()
	h.send(reply)
}

// cmdRestart resets the bot: reminder jobs are cancelled and the poll
// loop stopped before any state file is deleted.
func (h *Handler) cmdRestart(msg *tgbotapi.Message) {
	if !h.access.IsAdmin(msg.From.ID) {
		h.reply(msg, "❌ Only admins can reset the bot.")
		return
	}

	h.stopPolling()
	h.reminders.CancelAll()

	if err := h.store.Reset(); err != nil {
		log.Printf("[Telegram] State reset failed: %v", err)
	}
	if err := h.allowlist.Reset(); err != nil {
		log.Printf("[Telegram] Allow-list reset failed: %v", err)
	}
	if err := h.flow.Reset(); err != nil {
		log.Printf("[Telegram] Credential reset failed: %v", err)
	}

	h.send(tgbotapi.NewMessage(msg.Chat.ID, "🔄 Bot reset. Re-run /connect to authorize again."))
}

func (h *Handler) cmdRights(msg *tgbotapi.Message) {
	if h.access.IsAuthorized(msg.Chat.ID, msg.From.ID, msg.Chat.Type) {
		h.reply(msg, "✅ You have access to this bot here.")
	} else {
		h.reply(msg, "❌ You do NOT have access to this bot here.")
	}
}

func (h *Handler) cmdMyID(msg *tgbotapi.Message) {
	h.reply(msg, fmt.Sprintf("Chat ID: %d\nUser ID: %d", msg.Chat.ID, msg.From.ID))
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		h.answer(cb, "")
		return
	}

	if strings.HasPrefix(cb.Data, telegram.CallbackPrefix) {
		h.handleMarkRead(ctx, cb)
		return
	}

	switch cb.Data {
	case "wl_add":
		h.cbAllowlistAdd(cb)
	case "wl_remove":
		h.cbAllowlistRemove(cb)
	case "wl_confirm_remove":
		h.cbAllowlistConfirmRemove(cb)
	case "wl_cancel_remove":
		h.cbAllowlistCancelRemove(cb)
	case "connect_confirm_yes":
		h.cbConnectYes(cb)
	case "connect_confirm_no":
		h.cbConnectNo(ctx, cb)
	}
}

// handleMarkRead acknowledges a message from its notification button.
func (h *Handler) handleMarkRead(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if !h.access.IsAuthorized(cb.Message.Chat.ID, cb.From.ID, cb.Message.Chat.Type) {
		h.alert(cb, "❌ Not allowed.")
		return
	}

	messageID := strings.TrimPrefix(cb.Data, telegram.CallbackPrefix)
	err := h.ack.Acknowledge(ctx, messageID, cb.Message.Text)
	switch {
	case errors.Is(err, domain.ErrNotTracked):
		h.answer(cb, "Already marked as read.")
	case err != nil:
		log.Printf("[Telegram] Acknowledge %s failed: %v", messageID, err)
		h.answer(cb, "Marked as read.")
	default:
		h.answer(cb, "Marked as read.")
	}
}

func (h *Handler) cbAllowlistAdd(cb *tgbotapi.CallbackQuery) {
	if !h.access.IsAuthorized(cb.Message.Chat.ID, cb.From.ID, cb.Message.Chat.Type) {
		h.alert(cb, "❌ Not allowed here.")
		return
	}
	key := sessionKey{ChatID: cb.Message.Chat.ID, UserID: cb.From.ID}
	h.sessions.set(key, session{state: stateAddingEntry})
	h.answer(cb, "Send the email or domain to ADD (e.g. user@domain.com or *@domain.com).")
}

func (h *Handler) cbAllowlistRemove(cb *tgbotapi.CallbackQuery) {
	if !h.access.IsAuthorized(cb.Message.Chat.ID, cb.From.ID, cb.Message.Chat.Type) {
		h.alert(cb, "❌ Not allowed here.")
		return
	}
	if len(h.allowlist.Entries()) == 0 {
		h.alert(cb, "Whitelist is empty.")
		return
	}
	key := sessionKey{ChatID: cb.Message.Chat.ID, UserID: cb.From.ID}
	h.sessions.set(key, session{state: stateRemovingEntry})
	h.answer(cb, "Send the number of the entry to REMOVE.")
}

func (h *Handler) handleAddEntry(key sessionKey, msg *tgbotapi.Message) {
	entry := strings.TrimSpace(msg.Text)
	if err := h.allowlist.Add(entry); err != nil {
		h.reply(msg, "❌ Invalid format.")
		return
	}
	h.sessions.clear(key)
	h.reply(msg, fmt.Sprintf("➕ Added %s.", entry))
}

func (h *Handler) handleRemoveIndex(key sessionKey, msg *tgbotapi.Message) {
	idx, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil {
		h.reply(msg, "❌ Send a number.")
		return
	}

	entries := h.allowlist.Entries()
	if idx < 1 || idx > len(entries) {
		h.reply(msg, "❌ Invalid index.")
		return
	}

	h.sessions.set(key, session{state: stateConfirmRemove, removeIndex: idx - 1})
	reply := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("Remove %s?", entries[idx-1]))
	reply.ReplyMarkup = kbConfirmRemove()
	h.send(reply)
}

func (h *Handler) cbAllowlistConfirmRemove(cb *tgbotapi.CallbackQuery) {
	if !h.access.IsAuthorized(cb.Message.Chat.ID, cb.From.ID, cb.Message.Chat.Type) {
		h.alert(cb, "❌ Not allowed.")
		return
	}

	key := sessionKey{ChatID: cb.Message.Chat.ID, UserID: cb.From.ID}
	s := h.sessions.get(key)
	if s.state != stateConfirmRemove {
		h.answer(cb, "Nothing to confirm.")
		return
	}
	h.sessions.clear(key)

	removed, err := h.allowlist.RemoveAt(s.removeIndex)
	if err != nil {
		h.alert(cb, "❌ Entry no longer exists.")
		return
	}
	h.answer(cb, "✅ Removed.")
	h.edit(cb, fmt.Sprintf("❌ Removed %s.", removed))
}

func (h *Handler) cbAllowlistCancelRemove(cb *tgbotapi.CallbackQuery) {
	if !h.access.IsAuthorized(cb.Message.Chat.ID, cb.From.ID, cb.Message.Chat.Type) {
		h.alert(cb, "❌ Not allowed.")
		return
	}
	h.sessions.clear(sessionKey{ChatID: cb.Message.Chat.ID, UserID: cb.From.ID})
	h.answer(cb, "Cancelled.")
}

// cbConnectYes drops credentials and tracked state, then restarts the
// authorization flow.
func (h *Handler) cbConnectYes(cb *tgbotapi.CallbackQuery) {
	if !h.access.IsAdmin(cb.From.ID) {
		h.alert(cb, "❌ Only admins.")
		return
	}

	h.stopPolling()
	h.reminders.CancelAll()
	if err := h.flow.Reset(); err != nil {
		log.Printf("[Telegram] Credential reset failed: %v", err)
	}
	if err := h.store.Reset(); err != nil {
		log.Printf("[Telegram] State reset failed: %v", err)
	}

	h.answer(cb, "Credentials reset.")
	h.sendAuthInstructions(cb.Message.Chat.ID, cb.From.ID)
}

// cbConnectNo keeps the existing authorization; polling resumes
// immediately if it is not already running.
func (h *Handler) cbConnectNo(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if !h.access.IsAdmin(cb.From.ID) {
		h.alert(cb, "❌ Only admins.")
		return
	}

	h.answer(cb, "Keeping existing authorization.")
	if !h.Polling() && h.flow.Authorized() && h.store.ChatID() != 0 {
		h.transport.SetChatID(h.store.ChatID())
		h.startPolling(ctx)
	}
}

// Keyboards

func kbAllowlist() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Add", "wl_add"),
			tgbotapi.NewInlineKeyboardButtonData("Remove", "wl_remove"),
		),
	)
}

func kbConfirmRemove() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes", "wl_confirm_remove"),
			tgbotapi.NewInlineKeyboardButtonData("No", "wl_cancel_remove"),
		),
	)
}

func kbConfirmConnect() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes", "connect_confirm_yes"),
			tgbotapi.NewInlineKeyboardButtonData("No", "connect_confirm_no"),
		),
	)
}

// Send helpers

func (h *Handler) send(msg tgbotapi.MessageConfig) {
	if _, err := h.bot.Send(msg); err != nil {
		log.Printf("[Telegram] Send failed: %v", err)
	}
}

func (h *Handler) reply(to *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	h.send(msg)
}

func (h *Handler) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		log.Printf("[Telegram] Callback answer failed: %v", err)
	}
}

func (h *Handler) alert(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallbackWithAlert(cb.ID, text)); err != nil {
		log.Printf("[Telegram] Callback alert failed: %v", err)
	}
}

func (h *Handler) edit(cb *tgbotapi.CallbackQuery, text string) {
	edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
	if _, err := h.bot.Request(edit); err != nil {
		log.Printf("[Telegram] Edit failed: %v", err)
	}
}
