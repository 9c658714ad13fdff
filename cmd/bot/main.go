package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"stroybot/core/config"
	coredatabase "stroybot/core/database"
	"stroybot/core/logger"
	"stroybot/internal/billing"
	"stroybot/internal/bot"
	"stroybot/internal/company"
	"stroybot/internal/metrics"
	"stroybot/internal/storage/postgres"
	"stroybot/internal/task"
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

	pg := postgres.New(db)
	trialRepo := postgres.NewTrialRepo(pg)
	subRepo := postgres.NewSubscriptionRepo(pg)
	planRepo := postgres.NewPlanRepo(pg)
	companyRepo := postgres.NewCompanyRepo(pg)
	taskRepo := postgres.NewTaskRepo(pg)
	auditRepo := postgres.NewAuditRepo(pg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := billing.SeedPlans(ctx, planRepo); err != nil {
		log.Fatalf("seed plans: %v", err)
	}

	stats := metrics.New()
	trials := billing.NewTrialManager(trialRepo, auditRepo, nil)
	subs := billing.NewSubscriptionManager(subRepo, trialRepo, planRepo, auditRepo, pg, nil)
	companies := company.NewService(companyRepo, trials, auditRepo, pg, cfg.Billing.TrialDays)
	gate := billing.NewGate(companies, subs, stats, nil)
	workflow := task.NewWorkflow(taskRepo, auditRepo, pg, stats)

	app := bot.New(cfg, companies, trials, subs, gate, workflow)
	b, err := app.Build()
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}
	if err := app.Run(ctx, b); err != nil {
		log.Fatalf("bot: %v", err)
	}
}
