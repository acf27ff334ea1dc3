// Package router receives Telegram updates from the adapter and runs
// the bot's command, callback, and conversational-input handlers.
package router

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/engine"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/i18n"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/notifier/broadcast"
	rtsup "github.com/Bakaface/gpro-qualy-reminder-bot/internal/runtime/supervisor"
	kit "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// WeatherRefetcher triggers a manual weather fetch for a race,
// bypassing the automatic retry state.
type WeatherRefetcher interface {
	ForceRefetchWeather(ctx context.Context, raceID int) error
}

// Deps wires the router to the rest of the bot. RefreshCalendar is the
// admin /update action; it returns the new current/next season sizes.
type Deps struct {
	Adapter    kit.Adapter
	Users      *userstore.Store
	Calendar   *calendar.Store
	Bundle     *i18n.Bundle
	Dispatcher *engine.Dispatcher
	Weather    WeatherRefetcher
	Broadcast  *broadcast.Service

	RefreshCalendar func(ctx context.Context) (current, next int, err error)

	Admins []int64
	Log    logx.Logger
}

// pendingKind marks what free-text input a chat is currently awaiting.
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingGroup
	pendingOnboardGroup
	pendingCustomTime
)

type pending struct {
	kind pendingKind
	slot int // custom slot index for pendingCustomTime
}

type Router struct {
	deps Deps
	log  logx.Logger

	stateMu sync.Mutex
	states  map[int64]pending

	jobs chan func()

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(deps Deps) *Router {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		deps:   deps,
		log:    log,
		states: map[int64]pending{},
		jobs:   make(chan func(), 256),
	}
}

func (r *Router) isAdmin(userID int64) bool {
	for _, id := range r.deps.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Router) setState(chatID int64, p pending) {
	r.stateMu.Lock()
	if p.kind == pendingNone {
		delete(r.states, chatID)
	} else {
		r.states[chatID] = p
	}
	r.stateMu.Unlock()
}

func (r *Router) takeState(chatID int64) pending {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	p := r.states[chatID]
	delete(r.states, chatID)
	return p
}

// DispatchLoop consumes updates until ctx is cancelled. Handlers run
// on a bounded worker pool so a slow handler can't stall the stream.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.running = true
	r.runMu.Unlock()

	r.log.Info("command dispatcher started",
		logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < workers; i++ {
		name := "command.worker." + strconv.Itoa(i)
		sup.GoRestart(name, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		})
	}

	r.publishMenu(ctx)

	defer func() {
		r.runMu.Lock()
		r.running = false
		r.sup = nil
		r.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.enqueue(ctx, up)
		}
	}
}

func (r *Router) enqueue(ctx context.Context, up kit.Update) {
	job := func() {
		hctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("panic in update handler", logx.Any("panic", rec))
			}
		}()
		r.handle(hctx, up)
	}
	select {
	case r.jobs <- job:
	default:
		r.log.Warn("update dropped (job queue full)")
	}
}

func (r *Router) handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		r.handleMessage(ctx, up.Message)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		r.handleCallback(ctx, up.Callback)
	}
}

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		// A command always cancels whatever input we were waiting for.
		r.setState(m.ChatID, pending{})
		name, args := splitCommand(text)
		r.handleCommand(ctx, m, name, args)
		return
	}
	switch p := r.takeState(m.ChatID); p.kind {
	case pendingGroup:
		r.processGroupInput(ctx, m, text, false)
	case pendingOnboardGroup:
		r.processGroupInput(ctx, m, text, true)
	case pendingCustomTime:
		r.processCustomTimeInput(ctx, m, text, p.slot)
	}
}

// splitCommand parses "/status@SomeBot force x" into ("status",
// ["force","x"]).
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

// user resolves the sending user, registering a default record on
// first contact.
func (r *Router) user(id int64) *userstore.User {
	u, _ := r.deps.Users.Register(id)
	return u
}

// t translates in the user's UI language.
func (r *Router) t(u *userstore.User, key string, p i18n.Params) string {
	return r.deps.Bundle.T(u.UILang, key, p)
}

func (r *Router) reply(ctx context.Context, chatID int64, text string, kb [][]kit.Button) {
	_, err := r.deps.Adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{
		ParseMode:      "Markdown",
		DisablePreview: true,
		Keyboard:       kb,
	})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (r *Router) edit(ctx context.Context, chatID int64, messageID int, text string, kb [][]kit.Button) {
	err := r.deps.Adapter.EditText(ctx, kit.MessageRef{ChatID: chatID, MessageID: messageID}, text, &kit.SendOptions{
		ParseMode:      "Markdown",
		DisablePreview: true,
		Keyboard:       kb,
	})
	if err != nil {
		r.log.Debug("edit failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.deps.Adapter.AnswerCallback(ctx, callbackID, text); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
}

// publishMenu pushes the command autocomplete list when the adapter
// supports it.
func (r *Router) publishMenu(ctx context.Context) {
	up, ok := r.deps.Adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := []kit.BotCommand{
		{Command: "start", Description: "Register and set up the bot"},
		{Command: "status", Description: "Next race with quali deadline"},
		{Command: "calendar", Description: "Full season calendar"},
		{Command: "next", Description: "Next season calendar"},
		{Command: "settings", Description: "Languages, group, notifications"},
	}
	mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(mctx, menu); err != nil {
		r.log.Warn("menu update failed", logx.Err(err))
	}
}
