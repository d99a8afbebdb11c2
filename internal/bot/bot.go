package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"kawah-task/internal/apiclient"
	"kawah-task/internal/model"
	"kawah-task/internal/repository"
	"kawah-task/internal/service"
)

// messenger is the part of the Telegram API the bot uses.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Deps are the collaborators shared by every chat.
type Deps struct {
	Store   repository.CredentialStore
	Chats   *repository.ChatRepository
	Digest  *service.DigestService
	API     apiclient.Config
	Metrics *apiclient.Metrics
	Log     logrus.FieldLogger
}

// chatSession is the per-chat session context: its own credential profile,
// API client, session manager and task data-access layer.
type chatSession struct {
	vault  *repository.CredentialVault
	client *apiclient.Client
	auth   *service.SessionService
	tasks  *service.TaskService

	mu     sync.Mutex
	filter model.TaskFilter
	page   int
}

func (s *chatSession) view() (model.TaskFilter, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter, s.page
}

func (s *chatSession) setView(filter model.TaskFilter, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	s.filter, s.page = filter, page
}

// Bot aggregates the Telegram API with per-chat sessions.
type Bot struct {
	api  messenger
	deps Deps
	log  logrus.FieldLogger

	mu            sync.Mutex
	sessions      map[int64]*chatSession
	conversations map[int64]*conversationState
}

func New(token string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, deps)
	b.log.WithField("account", api.Self.UserName).Info("bot authorized")
	return b, nil
}

func newBot(api messenger, deps Deps) *Bot {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Digest == nil {
		deps.Digest = service.NewDigestService()
	}
	return &Bot{
		api:           api,
		deps:          deps,
		log:           deps.Log.WithField("component", "bot"),
		sessions:      make(map[int64]*chatSession),
		conversations: make(map[int64]*conversationState),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.WithError(err).Error("handle callback")
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.WithError(err).WithField("chat", update.Message.Chat.ID).Error("handle message")
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	chatID := msg.Chat.ID

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(chatID)
		return b.sendText(chatID, "⏪ Input cancelled.")
	}

	if msg.IsCommand() {
		b.log.WithFields(logrus.Fields{"chat": chatID, "command": msg.Command()}).Info("command")
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(chatID) {
		return b.handleConversation(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	return b.sendText(chatID, "I didn't get that. Try /tasks, /newtask or /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	// Any command abandons a half-finished wizard.
	if msg.Command() != "cancel" {
		b.clearConversation(msg.Chat.ID)
	}
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg.Chat.ID)
	case "signup":
		return b.startSignup(ctx, msg)
	case "login":
		return b.startLogin(ctx, msg)
	case "logout":
		return b.handleLogout(ctx, msg)
	case "whoami":
		return b.handleWhoAmI(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "find":
		return b.handleFind(ctx, msg)
	case "task":
		return b.handleShowTask(ctx, msg)
	case "newtask":
		return b.startNewTask(ctx, msg)
	case "edit":
		return b.startEditTask(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "cancel":
		b.clearConversation(msg.Chat.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if b.deps.Chats != nil {
		if _, err := b.deps.Chats.UpsertFromTelegram(ctx, msg.Chat.ID, msg.From.FirstName, msg.From.UserName); err != nil {
			return err
		}
	}
	s, err := b.sessionFor(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your task board in your pocket.</b>\n\n", escape(name))
	if user := s.auth.User(); user != nil {
		text += fmt.Sprintf("You are logged in as <b>%s</b>. Try /tasks.", escape(user.Email))
	} else {
		text += "Log in with /login or create an account with /signup."
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(chatID int64) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /signup — create an account\n" +
		"• /login — log in\n" +
		"• /logout — log out\n" +
		"• /whoami — current account\n" +
		"• /tasks [status] — task board (pending, in-progress, completed)\n" +
		"• /find &lt;text&gt; — search tasks by title\n" +
		"• /task &lt;id&gt; — task details\n" +
		"• /newtask — add a task step by step\n" +
		"• /edit &lt;id&gt; — change a task\n" +
		"• /done &lt;id&gt; — mark a task completed\n" +
		"• /delete &lt;id&gt; — delete a task\n" +
		"• /digest on|off|now — task summary\n" +
		"• /cancel — cancel the current input"
	return b.sendText(chatID, text)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTask(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelAccount):
		return true, b.handleWhoAmI(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg.Chat.ID)
	default:
		return false, nil
	}
}

// sessionFor returns the chat's session, creating and restoring it on first
// use.
func (b *Bot) sessionFor(ctx context.Context, chatID int64) (*chatSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[chatID]; ok {
		return s, nil
	}

	log := b.deps.Log.WithField("chat", chatID)
	vault := repository.NewCredentialVault(b.deps.Store, profileName(chatID))
	client, err := apiclient.New(b.deps.API, vault,
		apiclient.WithLogger(log),
		apiclient.WithMetrics(b.deps.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("api client for chat %d: %w", chatID, err)
	}
	s := &chatSession{
		vault:  vault,
		client: client,
		tasks:  service.NewTaskService(client, log),
		page:   1,
	}
	// Registered before the session manager's own hook, so it still sees
	// whether the chat was logged in when the 401 arrived.
	client.OnUnauthorized(func(context.Context) {
		s.tasks.Reset()
		if !s.auth.Authenticated() {
			return
		}
		b.clearConversation(chatID)
		if err := b.sendText(chatID, "⌛ Session expired. Please /login again."); err != nil {
			log.WithError(err).Warn("send session expired notice")
		}
	})
	s.auth = service.NewSessionService(client, vault, log)
	if err := s.auth.Restore(ctx); err != nil {
		log.WithError(err).Warn("restore session")
	}
	b.sessions[chatID] = s
	return s, nil
}

// requireAuth returns the chat's session when it is logged in and otherwise
// asks the chat to log in.
func (b *Bot) requireAuth(ctx context.Context, chatID int64) (*chatSession, bool, error) {
	s, err := b.sessionFor(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	if !s.auth.Authenticated() {
		return nil, false, b.sendText(chatID, "🔒 Please /login first, or /signup for an account.")
	}
	return s, true, nil
}

// reportTaskError shows the data layer's message. A 401 was already
// announced by the session-expired hook.
func (b *Bot) reportTaskError(chatID int64, s *chatSession, err error) error {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return nil
	}
	msg := s.tasks.Err()
	if msg == "" {
		msg = err.Error()
	}
	return b.sendText(chatID, "⚠️ "+escape(msg))
}

func profileName(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

// deleteMessage removes a chat message, used for typed passwords.
func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.WithError(err).WithField("chat", chatID).Warn("delete message")
	}
}

func (b *Bot) ackCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.WithError(err).Warn("callback ack")
	}
}

func (b *Bot) setConversation(chatID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[chatID] = state
}

func (b *Bot) getConversation(chatID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[chatID]
}

func (b *Bot) hasConversation(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[chatID]
	return ok
}

func (b *Bot) clearConversation(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, chatID)
}
