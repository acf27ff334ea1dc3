// Package app composes the bot: config, logging, storage, the upstream
// API client, the scheduling engine, and the Telegram transport. It owns
// startup/shutdown ordering and config hot-reload fan-out.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/config"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/engine"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/eventbus"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/gpro"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/i18n"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/notifier"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/notifier/broadcast"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/observability/pprof"
	rtsup "github.com/Bakaface/gpro-qualy-reminder-bot/internal/runtime/supervisor"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/storage"
	kit "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport"
	telegram "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport/telegram/adapter"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport/telegram/router"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// Default cron specs (UTC, standard 5-field format). Overridable via
// calendar.refresh_cron; the purge job is fixed.
const (
	defaultRefreshCron = "30 3 * * *"
	purgeCron          = "0 4 * * *"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	gpro    *gpro.Client

	cal    *calendar.Store
	users  *userstore.Store
	bundle *i18n.Bundle

	engine *engine.Engine
	notif  *notifier.Service
	bcast  *broadcast.Service
	router *router.Router
	pprof  *pprof.Service

	cron *cron.Cron

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The adapter exists before the logging service so it can serve as
	// the admin log sink.
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink disabled: logx.New applies the
	// config immediately, and the sink target isn't installed yet.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg)
	log = log.With(logx.String("comp", "app"))

	if cfg.Telegram.AdminChatID != 0 {
		logSvc.SetTelegramSink(&adminLogSink{adapter: ad, chatID: cfg.Telegram.AdminChatID})
	}
	logSvc.Apply(logCfg)

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	cal := calendar.NewStore(cfg.Calendar.Path, cfg.Calendar.NextSeasonPath,
		log.With(logx.String("comp", "calendar")))
	if err := cal.Load(); err != nil {
		return nil, err
	}

	users := userstore.NewStore(cfg.Users.Path, log.With(logx.String("comp", "users")))
	if err := users.Load(); err != nil {
		return nil, err
	}

	bundle, err := i18n.Load()
	if err != nil {
		return nil, err
	}

	gproCfg, err := mapGPROConfig(cfg)
	if err != nil {
		return nil, err
	}
	gc, err := gpro.NewClient(gproCfg, log.With(logx.String("comp", "gpro")))
	if err != nil {
		return nil, err
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)
	bcast := broadcast.New(mapBroadcastConfig(cfg), ad, log.With(logx.String("comp", "broadcast")))

	dispatcher := engine.NewDispatcher(users, notif, bundle, gpro.BuildLink, store,
		log.With(logx.String("comp", "dispatch")))
	ledger := engine.NewLedger(store, log.With(logx.String("comp", "ledger")))

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, cal, gc, gc, dispatcher, ledger, bus,
		log.With(logx.String("comp", "engine")))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		gpro:    gc,
		cal:     cal,
		users:   users,
		bundle:  bundle,
		engine:  eng,
		notif:   notif,
		bcast:   bcast,
		pprof:   pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof"))),
		updates: make(chan kit.Update, 256),
	}

	a.router = router.New(router.Deps{
		Adapter:         ad,
		Users:           users,
		Calendar:        cal,
		Bundle:          bundle,
		Dispatcher:      dispatcher,
		Weather:         eng,
		Broadcast:       bcast,
		RefreshCalendar: a.refreshCalendar,
		Admins:          cfg.Telegram.AdminIDs,
		Log:             log.With(logx.String("comp", "router")),
	})

	return a, nil
}

// Done is closed when the run context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
	)
	runCtx := a.sup.Context()

	// Transactional reload: a config that fails mapping never commits.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapGPROConfig(cfg); err != nil {
			return err
		}
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.engine.Ledger().Restore(runCtx); err != nil {
		a.log.Warn("ledger restore failed; starting empty", logx.Err(err))
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(runCtx)
	}
	if a.bcast.Enabled() {
		a.bcast.Start(runCtx)
	}

	a.sup.Go("engine.run", a.engine.Run)
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	if a.pprof.Enabled() {
		// Optional observability; a pprof failure never takes the bot down.
		a.sup.Go0("pprof.serve", func(c context.Context) {
			if err := a.pprof.Serve(c); err != nil {
				a.log.Warn("pprof server failed", logx.Err(err))
			}
		})
	}

	a.startCron(runCtx)

	// First boot with no cached calendar: fetch one right away instead
	// of waiting for the cron slot.
	if len(a.cal.CurrentSeason()) == 0 {
		a.sup.Go0("calendar.bootstrap", func(c context.Context) {
			fetchCtx, cancel := context.WithTimeout(c, 2*time.Minute)
			defer cancel()
			if current, next, err := a.refreshCalendar(fetchCtx); err != nil {
				a.log.Warn("initial calendar fetch failed", logx.Err(err))
			} else {
				a.log.Info("initial calendar fetched",
					logx.Int("current", current), logx.Int("next", next))
			}
		})
	}

	a.watchEvents()
	a.watchConfig()
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// startCron registers the periodic jobs: the daily calendar refresh and
// the nightly ledger purge.
func (a *App) startCron(runCtx context.Context) {
	spec := a.cfgm.Get().Calendar.RefreshCron
	if spec == "" {
		spec = defaultRefreshCron
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(runCtx, 2*time.Minute)
		defer cancel()
		current, next, err := a.refreshCalendar(ctx)
		if err != nil {
			a.log.Warn("scheduled calendar refresh failed", logx.Err(err))
			return
		}
		a.log.Info("calendar refreshed",
			logx.Int("current", current), logx.Int("next", next))
	}); err != nil {
		a.log.Error("invalid calendar.refresh_cron; refresh job disabled",
			logx.String("spec", spec), logx.Err(err))
	}

	_, _ = c.AddFunc(purgeCron, func() {
		ctx, cancel := context.WithTimeout(runCtx, 30*time.Second)
		defer cancel()
		cutoff := time.Now().UTC().AddDate(0, 0, -engine.RetentionDays)
		a.engine.Ledger().PurgeOlderThan(ctx, cutoff)
	})

	c.Start()
	a.cron = c
}

// refreshCalendar pulls the upstream calendar feed and swaps in both
// seasons. Also backs the admin /update command.
func (a *App) refreshCalendar(ctx context.Context) (current, next int, err error) {
	feed, err := a.gpro.FetchCalendar(ctx)
	if err != nil {
		return 0, 0, err
	}
	now := time.Now().UTC()

	races := calendar.BuildSeason(feed.Events, now)
	if err := a.cal.ReplaceCurrent(races); err != nil {
		return 0, 0, err
	}

	var nextRaces []*calendar.Race
	if feed.NextSeasonPublished {
		nextRaces = calendar.BuildSeason(feed.NextSeasonEvents, now)
	}
	if err := a.cal.ReplaceNext(nextRaces); err != nil {
		return len(races), 0, err
	}
	return len(races), len(nextRaces), nil
}

// watchEvents drains the bus for operational logging. Delivery failures
// surface at warn level; everything else stays at debug.
func (a *App) watchEvents() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				switch e.Type {
				case "notifier.failed", "notifier.dropped":
					a.log.Warn("delivery problem",
						logx.String("type", e.Type), logx.Any("data", e.Data))
				default:
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		}
	})
}

// watchConfig applies committed hot-reloads to the live components.
// Engine timing, storage, and the cron spec need a restart; the rest
// apply in place.
func (a *App) watchConfig() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the newest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(c, newCfg)
			}
		}
	})
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))

	// The validator already vetted these; mapping again cannot fail,
	// but keep the error paths anyway.
	if ncfg, err := mapNotifierConfig(cfg); err == nil {
		prev := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case prev && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !prev && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}
	a.bcast.Apply(mapBroadcastConfig(cfg))

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Each shutdown step gets its own upper bound so one stuck
	// component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached", logx.String("name", name))
		}
	}

	step("cron", 2*time.Second, func(c context.Context) error {
		if a.cron == nil {
			return nil
		}
		select {
		case <-a.cron.Stop().Done():
		case <-c.Done():
		}
		return nil
	})
	step("broadcast", 2*time.Second, func(c context.Context) error { a.bcast.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

// adminLogSink forwards warn/error log lines to the operator chat.
// Sends are fire-and-forget: the logger can never block on Telegram.
type adminLogSink struct {
	adapter *telegram.Adapter
	chatID  int64
}

func (s *adminLogSink) SendAdminLog(text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = s.adapter.SendText(ctx, kit.ChatTarget{ChatID: s.chatID}, text, nil)
	}()
}
