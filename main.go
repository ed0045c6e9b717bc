package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	api "mailwatch-bot/cmd/api"
	authUsecase "mailwatch-bot/internal/auth/usecase"
	"mailwatch-bot/internal/notifier/delivery"
	"mailwatch-bot/internal/notifier/repository"
	"mailwatch-bot/internal/notifier/usecase"
	"mailwatch-bot/pkg/config"
	"mailwatch-bot/pkg/gmail"
	"mailwatch-bot/pkg/telegram"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required, follow the readme for instructions")
	}
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		log.Fatal("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required, follow the readme for instructions")
	}

	// Initialize stores (missing or corrupt files load as empty state)
	store := repository.NewStateStore(cfg.StateDir)
	store.Load()

	allowlist := repository.NewAllowlistStore(cfg.AllowlistPath())
	if err := allowlist.Load(); err != nil {
		log.Printf("[Main] Loading allow-list failed, starting empty: %v", err)
	}

	access := delivery.NewAccessControl(cfg.AdminsPath(), cfg.AllowedGroupsPath())
	if err := access.Load(); err != nil {
		log.Fatal("Failed to load admin list: ", err)
	}

	// Initialize collaborators
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.TokenPath())

	transport, err := telegram.NewClient(cfg.TelegramToken)
	if err != nil {
		log.Fatal("Failed to connect to Telegram: ", err)
	}

	// Initialize the notification engine (dependency injection)
	matcher := usecase.NewMatcher(allowlist)
	reminders := usecase.NewScheduler(store, transport, cfg.FirstReminderDelay, cfg.FinalReminderDelay)
	poller := usecase.NewPoller(gmailService, transport, store, matcher, reminders, cfg.PollInterval, cfg.MailboxLabel)
	acknowledger := usecase.NewAcknowledger(store, gmailService, transport, reminders)
	flow := authUsecase.NewFlow(gmailService)

	handler := delivery.NewHandler(transport, store, allowlist, acknowledger, reminders, poller, flow, access)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Operator status API
	r := gin.Default()
	api.SetupRoutes(r, store, allowlist, reminders, handler)
	go func() {
		if err := r.Run(":" + cfg.APIPort); err != nil {
			log.Printf("[Main] Status API stopped: %v", err)
		}
	}()

	// Resume polling and persisted reminder schedules from a prior run
	handler.ResumeIfAuthorized(ctx)

	handler.Run(ctx)

	// Shutdown: stop jobs before anything touches state files
	reminders.CancelAll()
	log.Printf("[Main] Shutdown complete")
}
