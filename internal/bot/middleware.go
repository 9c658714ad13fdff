package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"stroybot/core/logger"
	"stroybot/internal/billing"
)

const ctxStoreKey = "handler_ctx"

// gateWhitelist lists commands that must work without a company or an
// active entitlement: onboarding and everything needed to pay.
var gateWhitelist = []string{
	"/start",
	"/help",
	"/create_company",
	"/join",
	"/buy",
	"/status",
}

// RecoverMiddleware catches panics in handlers and prevents the bot from crashing.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(handlerContext(c), "tg", "tg.panic",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}

// LoggerMiddleware assigns a request id and logs one receipt line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		rid := logger.NewRID()
		var userID, chatID int64
		if u := c.Sender(); u != nil {
			userID = u.ID
		}
		if ch := c.Chat(); ch != nil {
			chatID = ch.ID
		}
		ctx := logger.WithRID(context.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, userID, chatID)
		c.Set(ctxStoreKey, ctx)

		start := time.Now()
		err := next(c)
		attrs := []slog.Attr{
			slog.Int64("user_id", userID),
			slog.Int64("chat_id", chatID),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		}
		if err != nil {
			attrs = append(attrs, slog.String("err", err.Error()))
			logger.Error(ctx, "tg", "update.failed", attrs...)
			return err
		}
		logger.Debug(ctx, "tg", "update.handled", attrs...)
		return nil
	}
}

// GateMiddleware blocks gated commands for callers without an entitled
// company. The gate only reads; expiry enforcement stays with the
// reconciliation loop.
func GateMiddleware(gate *billing.Gate) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			// Callbacks always pass: their origin keyboard was already gated.
			if c.Callback() != nil {
				return next(c)
			}
			text := strings.TrimSpace(c.Text())
			for _, allowed := range gateWhitelist {
				if strings.HasPrefix(text, allowed) {
					return next(c)
				}
			}
			sender := c.Sender()
			if sender == nil {
				return next(c)
			}

			ctx := handlerContext(c)
			verdict, err := gate.Check(ctx, sender.ID)
			if err != nil {
				logger.Error(ctx, "tg", "gate.error",
					slog.String("err", err.Error()),
				)
				return c.Send("Something went wrong, try again later.")
			}
			if verdict.Allowed {
				return next(c)
			}
			switch verdict.Reason {
			case billing.DenyNoCompany:
				return c.Send("Join a company first. Manager: /create_company <name>. Worker or foreman: /join <company id>.")
			default:
				return c.Send("Your company's access has ended. Use /buy <plan> to start a subscription.")
			}
		}
	}
}

// handlerContext returns the request context stored by LoggerMiddleware.
func handlerContext(c tele.Context) context.Context {
	if v := c.Get(ctxStoreKey); v != nil {
		if ctx, ok := v.(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}
