// The worker runs the reconciliation loop: billing reminders and expiry
// enforcement, on a cron schedule, independent of bot traffic.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"
	tele "gopkg.in/telebot.v4"

	"stroybot/core/config"
	coredatabase "stroybot/core/database"
	"stroybot/core/logger"
	"stroybot/internal/metrics"
	"stroybot/internal/notify"
	"stroybot/internal/reconcile"
	"stroybot/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Profile: cfg.Logging.Profile,
		Dir:     cfg.Logging.Dir,
		File:    cfg.Logging.File,
	}); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	db, err := coredatabase.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := coredatabase.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	bot, err := tele.NewBot(tele.Settings{Token: cfg.Telegram.Token})
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}

	stats := metrics.New()
	queue := notify.NewQueue(notify.NewTelegramSender(bot), stats, notify.Options{
		QueueSize:  cfg.Notify.QueueSize,
		Workers:    cfg.Notify.Workers,
		MaxRetries: cfg.Notify.MaxRetries,
		Backoff:    cfg.Notify.Backoff,
	})

	pg := postgres.New(db)
	rec := reconcile.New(
		postgres.NewReconcileRepo(pg),
		queue,
		pg,
		stats,
		time.Duration(cfg.Billing.RemindDays)*24*time.Hour,
		nil,
	)
	sched, err := reconcile.NewScheduler(rec, cfg.Worker.CronSpec)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	if cfg.Worker.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", stats.Handler())
			if err := http.ListenAndServe(cfg.Worker.MetricsListen, mux); err != nil {
				log.Printf("metrics listener: %v", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sched.Start(ctx, cfg.Worker.RunOnStart)
	<-ctx.Done()

	sched.Stop()
	queue.Close()
}
