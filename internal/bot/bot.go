// Package bot delivers review reminders over Telegram and lets linked users
// read and dismiss them from the chat.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/internal/logger"
	"github.com/example/studyplan/internal/notifications"
	"github.com/example/studyplan/internal/study"
	"github.com/example/studyplan/pkg/models"
)

const (
	readCallbackPrefix = "read:"

	// maxDueListed keeps /due within Telegram's message and keyboard limits
	maxDueListed = 10
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// sender is the part of the Telegram client the bot writes through
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type userStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error)
}

type inbox interface {
	ListForUser(ctx context.Context, userID int64) (*notifications.Inbox, error)
	MarkRead(ctx context.Context, id, userID int64) (*models.Notification, error)
}

type linker interface {
	IssueTelegramLinkCode(ctx context.Context, chatID int64) (string, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	api    sender
	client *tgbotapi.BotAPI
	users  userStore
	inbox  inbox
	links  linker
	log    *logger.Logger
}

// New authorizes against the Telegram API with token.
func New(token string, users userStore, inbox inbox, links linker, log *logger.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not set")
	}
	if log == nil {
		log = logger.NewNop()
	}
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	log.Info("telegram bot authorized", "account", client.Self.UserName)

	b := newBot(client, users, inbox, links, log)
	b.client = client
	return b, nil
}

func newBot(api sender, users userStore, inbox inbox, links linker, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bot{api: api, users: users, inbox: inbox, links: links, log: log}
}

// Run handles incoming updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("bot has no telegram client")
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.client.GetUpdatesChan(updateConfig)
	defer b.client.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// NotifyReviewDue pushes a review notification to the user's linked chat.
// Users without a linked chat are skipped.
func (b *Bot) NotifyReviewDue(ctx context.Context, userID int64, n *models.Notification) error {
	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TelegramChatID == nil {
		return nil
	}

	msg := tgbotapi.NewMessage(*user.TelegramChatID, fmt.Sprintf("🔔 %s\n\n%s", n.Title, n.Message))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "✅ Mark as read", CallbackData: readCallbackPrefix + strconv.FormatInt(n.ID, 10)}},
	})
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder to user %d: %w", userID, err)
	}
	b.log.Debug("review reminder sent", "user_id", userID, "notification_id", n.ID)
	return nil
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		switch update.Message.Command() {
		case "start":
			b.handleStartCommand(ctx, update.Message)
		case "help":
			b.reply(update.Message.Chat.ID, helpText)
		case "due", "notifications":
			b.handleDueCommand(ctx, update.Message)
		default:
			b.reply(update.Message.Chat.ID, "Unknown command. Use /help to see what I can do.")
		}
	case update.Message != nil:
		b.reply(update.Message.Chat.ID, "I don't understand. Use /help to see what I can do.")
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

const helpText = `Available commands:
/start - Get a code to link this chat to your account
/due - Show your pending review reminders
/help - Show this message`

// handleStartCommand sends a one-time code that links this chat to an account
func (b *Bot) handleStartCommand(ctx context.Context, message *tgbotapi.Message) {
	code, err := b.links.IssueTelegramLinkCode(ctx, message.Chat.ID)
	if err != nil {
		b.log.Error("failed to issue link code", "chat_id", message.Chat.ID, "error", err)
		b.reply(message.Chat.ID, "❌ Could not create a link code. Please try again later.")
		return
	}

	text := fmt.Sprintf(`Welcome to Study Planner! 🎓

I will remind you when a topic is due for review.
To link this chat to your account, submit this code within %d minutes:

%s

%s`, int(study.LinkCodeTTL.Minutes()), code, helpText)
	b.reply(message.Chat.ID, text)
}

// handleDueCommand lists the unread reminders of the linked user
func (b *Bot) handleDueCommand(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.linkedUser(ctx, message.Chat.ID)
	if !ok {
		return
	}

	box, err := b.inbox.ListForUser(ctx, user.ID)
	if err != nil {
		b.log.Error("failed to list notifications", "user_id", user.ID, "error", err)
		b.reply(message.Chat.ID, "❌ Could not load your reminders. Please try again later.")
		return
	}
	if box.UnreadCount == 0 {
		b.reply(message.Chat.ID, "🎉 Nothing to review right now.")
		return
	}

	var text strings.Builder
	var buttons [][]MenuButton
	fmt.Fprintf(&text, "📚 You have %d pending reminder(s):\n\n", box.UnreadCount)
	for _, n := range box.Notifications {
		if n.Read {
			continue
		}
		if len(buttons) == maxDueListed {
			fmt.Fprintf(&text, "\n…and %d more.", box.UnreadCount-maxDueListed)
			break
		}
		fmt.Fprintf(&text, "• %s\n", n.Title)
		buttons = append(buttons, []MenuButton{{
			Text:         "✅ " + n.Title,
			CallbackData: readCallbackPrefix + strconv.FormatInt(n.ID, 10),
		}})
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, text.String())
	msg.ReplyMarkup = createKeyboard(buttons)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("failed to send message", "chat_id", message.Chat.ID, "error", err)
	}
}

// handleCallbackQuery marks the notification named by a button as read
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	answer := "Done"
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, answer)); err != nil {
			b.log.Warn("failed to answer callback", "error", err)
		}
	}()

	if !strings.HasPrefix(query.Data, readCallbackPrefix) || query.Message == nil {
		answer = "Unknown action"
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(query.Data, readCallbackPrefix), 10, 64)
	if err != nil {
		answer = "Unknown action"
		return
	}

	user, ok := b.linkedUser(ctx, query.Message.Chat.ID)
	if !ok {
		answer = "Chat not linked"
		return
	}
	if _, err := b.inbox.MarkRead(ctx, id, user.ID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			answer = "Reminder not found"
			return
		}
		b.log.Error("failed to mark notification read", "user_id", user.ID, "notification_id", id, "error", err)
		answer = "Please try again later"
		return
	}
	answer = "Marked as read ✅"
}

func (b *Bot) linkedUser(ctx context.Context, chatID int64) (*models.User, bool) {
	user, err := b.users.GetByTelegramChatID(ctx, chatID)
	if err == nil {
		return user, true
	}
	if apperr.Is(err, apperr.KindNotFound) {
		b.reply(chatID, "This chat is not linked to an account yet. Use /start to get a link code.")
	} else {
		b.log.Error("failed to look up chat", "chat_id", chatID, "error", err)
		b.reply(chatID, "❌ Something went wrong. Please try again later.")
	}
	return nil, false
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn("failed to send message", "chat_id", chatID, "error", err)
	}
}
