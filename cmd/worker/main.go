package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/viprahq/viprago/internal/database"
	"github.com/viprahq/viprago/internal/tasks"
	"github.com/viprahq/viprago/pkg/config"
	"github.com/viprahq/viprago/pkg/queue"
	"github.com/viprahq/viprago/pkg/util"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting viprago worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(db, logger)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Schedule the recurring leave-reminder sweep
	client := queue.NewClient(&cfg.Redis)
	defer client.Close()
	go runReminderSchedule(ctx, client, cfg, logger)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}

// runReminderSchedule enqueues one leave-reminder sweep per tick of the
// configured cron expression.
func runReminderSchedule(ctx context.Context, client *asynq.Client, cfg *config.Config, logger *slog.Logger) {
	if err := util.ValidateCronExpr(cfg.Reminders.CronExpr); err != nil {
		logger.Error("invalid reminder cron expression, reminders disabled",
			"expr", cfg.Reminders.CronExpr, "error", err)
		return
	}

	for {
		next, err := util.NextCronTime(cfg.Reminders.CronExpr, time.Now())
		if err != nil {
			logger.Error("computing next reminder tick failed", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		task, err := tasks.NewLeaveReminderTask(tasks.LeaveReminderPayload{
			PendingDays: cfg.Reminders.PendingDays,
		})
		if err != nil {
			logger.Error("building reminder task failed", "error", err)
			continue
		}
		if _, err := client.Enqueue(task); err != nil {
			logger.Error("enqueueing reminder task failed", "error", err)
			continue
		}
		logger.Info("leave reminder sweep enqueued", "next_after", next)
	}
}
