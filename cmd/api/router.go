package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailwatch-bot/internal/notifier/repository"
	"mailwatch-bot/internal/notifier/usecase"
)

// PollState reports whether the poll loop is currently running.
type PollState interface {
	Polling() bool
}

// SetupRoutes registers the operator status API. It is read-only: all
// mutation goes through the chat commands.
func SetupRoutes(r *gin.Engine, store *repository.StateStore, allowlist *repository.AllowlistStore, reminders *usecase.Scheduler, poll PollState) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		api.GET("/status", func(c *gin.Context) {
			tracked, pending := store.Counts()
			c.JSON(http.StatusOK, gin.H{
				"chat_bound":      store.ChatID() != 0,
				"last_checked_ts": store.Cursor(),
				"polling":         poll.Polling(),
				"tracked":         tracked,
				"pending":         pending,
				"reminder_jobs":   reminders.ActiveJobs(),
			})
		})

		api.GET("/allowlist", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"entries": allowlist.Entries()})
		})
	}
}
