package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"stroybot/internal/audit"
	"stroybot/internal/billing"
	"stroybot/internal/company"
	"stroybot/internal/task"
)

const helpText = `Commands:
/create_company <name> - create a company (starts a trial)
/join <company id> - join an existing company
/status - company access status
/buy <plan> [months] - start a paid subscription
/pause, /resume, /cancel - manage the subscription
/newtask <title> - create a task
/set_status <task id> <status> - move a task (todo, in_progress, ready, approved, rework)
/reassign <task id> <user id> - reassign a task
/mytasks - tasks assigned to you`

func (a *App) handleStart(c tele.Context) error {
	return c.Send("Construction task bot. Use /create_company <name> to begin or /join <company id> to join your team. /help lists all commands.")
}

func (a *App) handleHelp(c tele.Context) error {
	return c.Send(helpText)
}

func (a *App) handleCreateCompany(c tele.Context) error {
	name := strings.TrimSpace(strings.Join(c.Args(), " "))
	if name == "" {
		return c.Send("Usage: /create_company <name>")
	}
	ctx := handlerContext(c)
	comp, err := a.companies.CreateCompany(ctx, name, c.Sender().ID)
	if err != nil {
		return c.Send("Could not create the company, try again later.")
	}
	return c.Send(fmt.Sprintf("Company %q created (id %d). Trial is active. Invite your team with /join %d.", comp.Name, comp.ID, comp.ID))
}

func (a *App) handleJoin(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /join <company id>")
	}
	companyID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Company id must be a number.")
	}
	ctx := handlerContext(c)
	if _, err := a.companies.Join(ctx, c.Sender().ID, companyID, company.RoleWorker); err != nil {
		if errors.Is(err, company.ErrCompanyNotFound) {
			return c.Send("No company with that id.")
		}
		return c.Send("Could not join the company, try again later.")
	}
	return c.Send("You joined the company.")
}

func (a *App) handleStatus(c tele.Context) error {
	ctx := handlerContext(c)
	u, err := a.member(c)
	if err != nil || u == nil {
		return c.Send("You are not a member of any company yet.")
	}
	verdict, err := a.gate.CheckCompany(ctx, u.CompanyID.Int64)
	if err != nil {
		return c.Send("Could not check access, try again later.")
	}
	ent, err := a.subs.EntitlementStatus(ctx, u.CompanyID.Int64, time.Now())
	if err != nil {
		return c.Send("Could not check access, try again later.")
	}
	var b strings.Builder
	if verdict.Allowed {
		b.WriteString("Access: active\n")
	} else {
		b.WriteString("Access: blocked\n")
	}
	if ent.Trial != nil {
		fmt.Fprintf(&b, "Trial: active=%t, expires %s\n", ent.Trial.IsActive, ent.Trial.ExpiresAt.Format("2006-01-02"))
	}
	if ent.Subscription != nil {
		fmt.Fprintf(&b, "Subscription: %s, expires %s", ent.Subscription.Status, ent.Subscription.ExpiresAt.Format("2006-01-02"))
	}
	return c.Send(strings.TrimSpace(b.String()))
}

func (a *App) handleBuy(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 || len(args) > 2 {
		return c.Send("Usage: /buy <plan> [months]")
	}
	months := 1
	if len(args) == 2 {
		var err error
		months, err = strconv.Atoi(args[1])
		if err != nil || months <= 0 {
			return c.Send("Months must be a positive number.")
		}
	}
	u, err := a.member(c)
	if err != nil || u == nil {
		return c.Send("Join a company first: /create_company or /join.")
	}
	ctx := handlerContext(c)
	sub, err := a.subs.StartPaidSubscription(ctx, u.CompanyID.Int64, args[0], months, u.ID)
	if err != nil {
		if errors.Is(err, billing.ErrPlanNotFound) {
			return c.Send("Unknown plan. Available: free, pro, enterprise.")
		}
		return c.Send("Could not start the subscription, try again later.")
	}
	return c.Send(fmt.Sprintf("Subscription is active until %s.", sub.ExpiresAt.Format("2006-01-02")))
}

func (a *App) handleExtendTrial(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /extend_trial <company id> <days>")
	}
	companyID, err1 := strconv.ParseInt(args[0], 10, 64)
	days, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		return c.Send("Both arguments must be numbers.")
	}
	ctx := handlerContext(c)
	t, err := a.trials.ExtendTrial(ctx, companyID, days)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidArgument) {
			return c.Send("Days must be positive.")
		}
		return c.Send("Could not extend the trial.")
	}
	return c.Send(fmt.Sprintf("Trial for company #%d extended until %s.", companyID, t.ExpiresAt.Format("2006-01-02")))
}

func (a *App) handlePause(c tele.Context) error {
	return a.subscriptionAction(c, "paused", a.subs.PauseSubscription)
}

func (a *App) handleResume(c tele.Context) error {
	return a.subscriptionAction(c, "resumed", a.subs.ResumeSubscription)
}

func (a *App) handleCancel(c tele.Context) error {
	return a.subscriptionAction(c, "canceled", a.subs.CancelSubscription)
}

func (a *App) subscriptionAction(c tele.Context, verb string, fn func(ctx context.Context, companyID, actorID int64) (bool, error)) error {
	u, err := a.member(c)
	if err != nil || u == nil {
		return c.Send("Join a company first: /create_company or /join.")
	}
	ok, err := fn(handlerContext(c), u.CompanyID.Int64, u.ID)
	if err != nil {
		return c.Send("Operation failed, try again later.")
	}
	if !ok {
		return c.Send("Your company has no subscription yet.")
	}
	return c.Send("Subscription " + verb + ".")
}

func (a *App) handleNewTask(c tele.Context) error {
	title := strings.TrimSpace(strings.Join(c.Args(), " "))
	if title == "" {
		return c.Send("Usage: /newtask <title>")
	}
	u, err := a.member(c)
	if err != nil || u == nil {
		return c.Send("Join a company first.")
	}
	ctx := handlerContext(c)
	t := &task.Task{Title: title, CompanyID: u.CompanyID.Int64}
	created, err := a.tasks.Create(ctx, t, audit.Actor{UserID: u.ID, TgID: u.TgID})
	if err != nil {
		return c.Send("Could not create the task.")
	}
	return c.Send(fmt.Sprintf("Task #%d created in todo.", created.ID))
}

func (a *App) handleSetStatus(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /set_status <task id> <status>")
	}
	taskID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Task id must be a number.")
	}
	u, err := a.member(c)
	if err != nil || u == nil {
		return c.Send("Join a company first.")
	}
	ctx := handlerContext(c)
	t, err := a.tasks.SetStatus(ctx, taskID, u.CompanyID.Int64, task.Status(args[1]), audit.Actor{UserID: u.ID, TgID: u.TgID})
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return c.Send("Task not found.")
	case errors.Is(err, task.ErrInvalidStatus):
		return c.Send("Unknown status. Allowed: todo, in_progress, ready, approved, rework.")
	case errors.Is(err, task.ErrIllegalTransition):
		return c.Send("That move is not allowed from the task's current status.")
	case err != nil:
		return c.Send("Could not update the task.")
	}
	return c.Send(fmt.Sprintf("Task %q is now %s.", t.Title, t.Status))
}

func (a *App) handleReassign(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /reassign <task id> <user id>")
	}
	taskID, err1 := strconv.ParseInt(args[0], 10, 64)
	userID, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		return c.Send("Both arguments must be numbers.")
	}
	u, err := a.member(c)
	if err != nil || u == nil {
		return c.Send("Join a company first.")
	}
	ctx := handlerContext(c)
	if _, err := a.tasks.Reassign(ctx, taskID, u.CompanyID.Int64, userID, audit.Actor{UserID: u.ID, TgID: u.TgID}); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			return c.Send("Task not found.")
		}
		return c.Send("Could not reassign the task.")
	}
	return c.Send("Task reassigned.")
}

func (a *App) handleMyTasks(c tele.Context) error {
	u, err := a.member(c)
	if err != nil || u == nil {
		return c.Send("Join a company first.")
	}
	tasks, err := a.tasks.MyTasks(handlerContext(c), u.ID)
	if err != nil {
		return c.Send("Could not load your tasks.")
	}
	if len(tasks) == 0 {
		return c.Send("No tasks assigned to you.")
	}
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "#%d [%s] %s\n", t.ID, t.Status, t.Title)
	}
	return c.Send(strings.TrimSpace(b.String()))
}

// member resolves the sender to a company-bound user, or nil.
func (a *App) member(c tele.Context) (*company.User, error) {
	sender := c.Sender()
	if sender == nil {
		return nil, nil
	}
	u, err := a.companies.UserByTelegramID(handlerContext(c), sender.ID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.CompanyID.Valid {
		return nil, nil
	}
	return u, nil
}
