// Package bot is the Telegram front end: command parsing, the entitlement
// gate middleware, and thin handlers over the domain services.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	"stroybot/core/config"
	"stroybot/core/logger"
	"stroybot/internal/billing"
	"stroybot/internal/company"
	"stroybot/internal/task"
)

// App bundles the services the handlers need.
type App struct {
	cfg       *config.Config
	companies *company.Service
	trials    *billing.TrialManager
	subs      *billing.SubscriptionManager
	gate      *billing.Gate
	tasks     *task.Workflow
}

// New wires the front end.
func New(cfg *config.Config, companies *company.Service, trials *billing.TrialManager, subs *billing.SubscriptionManager, gate *billing.Gate, tasks *task.Workflow) *App {
	return &App{
		cfg:       cfg,
		companies: companies,
		trials:    trials,
		subs:      subs,
		gate:      gate,
		tasks:     tasks,
	}
}

// Build constructs the telebot instance with middleware and routes.
func (a *App) Build() (*tele.Bot, error) {
	settings := tele.Settings{
		Token:  a.cfg.Telegram.Token,
		Poller: a.buildPoller(),
		Client: &http.Client{Timeout: 30 * time.Second},
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("bot initialization failed: %w", err)
	}

	bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc { return RecoverMiddleware(next) })
	bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc { return LoggerMiddleware(next) })
	bot.Use(GateMiddleware(a.gate))

	a.registerRoutes(bot)
	return bot, nil
}

// Run starts the bot and blocks until ctx is done.
func (a *App) Run(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()
	logger.Info(ctx, "tg", "bot.started",
		slog.String("mode", a.cfg.Telegram.RunMode),
	)

	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (a *App) buildPoller() tele.Poller {
	if a.cfg.Telegram.RunMode == config.RunModeWebhook {
		return &tele.Webhook{
			Listen: fmt.Sprintf("%s:%d", a.cfg.Webhook.Listen, a.cfg.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{
				PublicURL: a.cfg.Webhook.URL,
			},
		}
	}
	timeout := 10 * time.Second
	if a.cfg.Telegram.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(a.cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

func (a *App) registerRoutes(bot *tele.Bot) {
	bot.Handle("/start", a.handleStart)
	bot.Handle("/help", a.handleHelp)
	bot.Handle("/create_company", a.handleCreateCompany)
	bot.Handle("/join", a.handleJoin)
	bot.Handle("/status", a.handleStatus)
	bot.Handle("/buy", a.handleBuy)
	bot.Handle("/extend_trial", a.adminOnly(a.handleExtendTrial))
	bot.Handle("/pause", a.handlePause)
	bot.Handle("/resume", a.handleResume)
	bot.Handle("/cancel", a.handleCancel)
	bot.Handle("/newtask", a.handleNewTask)
	bot.Handle("/set_status", a.handleSetStatus)
	bot.Handle("/reassign", a.handleReassign)
	bot.Handle("/mytasks", a.handleMyTasks)
}

// adminOnly restricts a handler to the configured service admin.
func (a *App) adminOnly(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if a.cfg.Telegram.AdminID == 0 || c.Sender() == nil || c.Sender().ID != a.cfg.Telegram.AdminID {
			return nil
		}
		return h(c)
	}
}
