// Package bot provides the Telegram admin bot and operator notifications.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"drive-ledger/internal/config"
	"drive-ledger/internal/handler"
	"drive-ledger/internal/policy"
	"drive-ledger/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot      *tele.Bot
	cfg      *config.Config
	notifier *ChatNotifier

	adminHandler   *handler.AdminHandler
	rankingHandler *handler.RankingHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config   *config.Config
	Accounts handler.AccountAdmin
	Guard    handler.FreezeOverride
	Drives   handler.DriveResetter
	Wallet   handler.WalletAdmin
	Ledger   handler.Reconciler
	Stats    handler.EarnerRanking
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if !deps.Config.Bot.Enabled() {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:      teleBot,
		cfg:      deps.Config,
		notifier: NewChatNotifier(teleBot, deps.Config.Bot.NotifyChats),
		adminHandler: handler.NewAdminHandler(
			deps.Accounts, deps.Guard, deps.Drives, deps.Wallet, deps.Ledger,
		),
		rankingHandler: handler.NewRankingHandler(deps.Stats),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(ChatMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers. Every command is admin only.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/user", b.adminHandler.HandleUser)
	adminGroup.Handle("/set_tier", b.adminHandler.HandleSetTier)
	adminGroup.Handle("/unfreeze", b.adminHandler.HandleUnfreeze)
	adminGroup.Handle("/reset_drive", b.adminHandler.HandleResetDrive)
	adminGroup.Handle("/approve_deposit", b.adminHandler.HandleApproveDeposit)
	adminGroup.Handle("/reject_deposit", b.adminHandler.HandleRejectDeposit)
	adminGroup.Handle("/approve_withdrawal", b.adminHandler.HandleApproveWithdrawal)
	adminGroup.Handle("/reject_withdrawal", b.adminHandler.HandleRejectWithdrawal)
	adminGroup.Handle("/adjust", b.adminHandler.HandleAdjust)
	adminGroup.Handle("/reconcile", b.adminHandler.HandleReconcile)
	adminGroup.Handle("/daily_top", b.rankingHandler.HandleDailyTop)
}

func (b *Bot) handleStart(c tele.Context) error {
	return c.Reply(helpText)
}

const helpText = "Drive ledger admin bot\n\n" +
	"/user <user_id>\n" +
	"/set_tier <user_id> <tier>\n" +
	"/unfreeze <user_id> [reason]\n" +
	"/reset_drive <user_id>\n" +
	"/approve_deposit <id>, /reject_deposit <id>\n" +
	"/approve_withdrawal <id>, /reject_withdrawal <id>\n" +
	"/adjust <user_id> <amount> [account] [note]\n" +
	"/reconcile\n" +
	"/daily_top"

// Notifier returns the notifier that posts to the configured chats.
func (b *Bot) Notifier() *ChatNotifier {
	return b.notifier
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// Sender is the part of tele.Bot used for notifications.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// ChatNotifier posts freeze changes and scheduler alerts to operator chats.
// It implements service.Notifier.
type ChatNotifier struct {
	sender Sender
	chats  []int64
}

// NewChatNotifier creates a notifier sending to chats.
func NewChatNotifier(sender Sender, chats []int64) *ChatNotifier {
	return &ChatNotifier{sender: sender, chats: chats}
}

// FreezeChanged implements service.Notifier.
func (n *ChatNotifier) FreezeChanged(ctx context.Context, ev service.FreezeEvent) {
	n.broadcast(ctx, freezeMessage(ev))
}

// Alert implements scheduler.Alerter.
func (n *ChatNotifier) Alert(ctx context.Context, text string) {
	n.broadcast(ctx, "⚠️ "+text)
}

func (n *ChatNotifier) broadcast(ctx context.Context, text string) {
	for _, chatID := range n.chats {
		if ctx.Err() != nil {
			return
		}
		if _, err := n.sender.Send(tele.ChatID(chatID), text); err != nil {
			log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send notification")
		}
	}
}

func freezeMessage(ev service.FreezeEvent) string {
	name := ev.Username
	if name == "" {
		name = fmt.Sprintf("%d", ev.UserID)
	}

	switch {
	case ev.Transition == policy.TransitionFrozen:
		return fmt.Sprintf("🔒 %s (ID: %d) frozen: balance %s below minimum %s",
			name, ev.UserID, ev.Balance.StringFixed(2), ev.MinBalance.StringFixed(2))
	case ev.Actor != "":
		return fmt.Sprintf("🔓 %s (ID: %d) unfrozen by %s at balance %s",
			name, ev.UserID, ev.Actor, ev.Balance.StringFixed(2))
	default:
		return fmt.Sprintf("🔓 %s (ID: %d) unfrozen: balance %s reached minimum %s",
			name, ev.UserID, ev.Balance.StringFixed(2), ev.MinBalance.StringFixed(2))
	}
}
