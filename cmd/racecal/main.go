package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"racecal/internal/config"
	"racecal/internal/dispatch"
	"racecal/internal/ics"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/push"
	"racecal/internal/store"
	"racecal/internal/web"
)

type flagConfig struct {
	configPath   string
	listen       string
	once         bool
	serveOnly    bool
	dispatchOnly bool
	debug        bool
}

// runMode selects which of the process's surfaces run.
type runMode int

const (
	// modeServe runs the HTTP API plus, when a database is configured,
	// the cron dispatcher.
	modeServe runMode = iota
	// modeOnce runs a single dispatch cycle and exits.
	modeOnce
	// modeDispatchOnly runs the cron dispatcher without binding the
	// HTTP server, for standalone dispatcher deployments.
	modeDispatchOnly
)

func (f flagConfig) mode() (runMode, error) {
	if f.serveOnly && f.dispatchOnly {
		return 0, errors.New("-serve-only and -dispatch-only are mutually exclusive")
	}
	if f.once {
		if f.serveOnly {
			return 0, errors.New("-once requires the dispatcher, which -serve-only disables")
		}
		return modeOnce, nil
	}
	if f.dispatchOnly {
		return modeDispatchOnly, nil
	}
	return modeServe, nil
}

func main() {
	flags := parseFlags()
	mode, err := flags.mode()
	if err != nil {
		appLog.Error("invalid flag combination", err)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.Debug = true
	}

	if err := appLog.Init(conf.Debug); err != nil {
		os.Exit(1)
	}
	defer appLog.Sync()

	appLog.Info("racecal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"series", conf.Series,
		"feed_count", len(conf.Feeds),
		"dispatch_cron", conf.DispatchCron,
		"once", flags.once,
		"serve_only", flags.serveOnly,
		"dispatch_only", flags.dispatchOnly,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	cacheDir := "/var/lib/racecal/feed-cache"
	if conf.Debug {
		cacheDir = "./cache/feed-cache"
	}
	source := ics.NewScheduleSource(ics.NewFetcher(cacheDir), buildFeeds(conf), buildSeries(conf))

	var (
		st         *store.Store
		dispatcher *dispatch.Dispatcher
	)
	if !flags.serveOnly {
		db, err := store.Setup(ctx, conf.Database.DSN(), conf.Debug)
		if err != nil {
			appLog.Error("database setup failed", err)
			os.Exit(1)
		}
		defer db.Close()

		st = store.New(db)
		if err := st.CreateTables(ctx); err != nil {
			appLog.Error("create tables failed", err)
			os.Exit(1)
		}

		sender, err := push.NewFCMSender(ctx)
		if err != nil {
			appLog.Error("push sender setup failed", err)
			os.Exit(1)
		}

		dispatcher = dispatch.New(source, st, st, sender, dispatch.Config{
			OffsetsMinutes: conf.ReminderOffsetsMinutes,
			Window:         time.Duration(conf.DispatchWindowMinutes) * time.Minute,
			BatchSize:      conf.PushBatchSize,
		})
	}

	if mode == modeOnce {
		if err := dispatcher.Run(ctx, time.Now()); err != nil {
			os.Exit(1)
		}
		return
	}

	if mode == modeDispatchOnly {
		sched := cron.New()
		if _, err := sched.AddFunc(conf.DispatchCron, func() {
			if err := dispatcher.Run(ctx, time.Now()); err != nil {
				appLog.Error("dispatch cycle failed", err)
			}
		}); err != nil {
			appLog.Error("invalid dispatch cron expression", err, "cron", conf.DispatchCron)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop()

		<-ctx.Done()
		appLog.Info("racecal exiting")
		return
	}

	var tokens web.TokenRegistry
	if st != nil {
		tokens = st
	}
	server := web.NewServer(conf, source, tokens)

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() { server.Refresh(ctx) }); err != nil {
		appLog.Error("invalid refresh cron expression", err, "cron", conf.RefreshCron)
		os.Exit(1)
	}
	if dispatcher != nil {
		if _, err := sched.AddFunc(conf.DispatchCron, func() {
			if err := dispatcher.Run(ctx, time.Now()); err != nil {
				appLog.Error("dispatch cycle failed", err)
			}
		}); err != nil {
			appLog.Error("invalid dispatch cron expression", err, "cron", conf.DispatchCron)
			os.Exit(1)
		}
	}
	sched.Start()
	defer sched.Stop()

	// Warm the schedule cache before serving.
	server.Refresh(ctx)

	if err := web.StartServer(ctx, conf, server); err != nil {
		appLog.Error("HTTP server exited", err)
		os.Exit(1)
	}
	appLog.Info("racecal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/racecal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one dispatch cycle and exit")
	flag.BoolVar(&cfg.serveOnly, "serve-only", false, "Serve the API without database or push dispatch")
	flag.BoolVar(&cfg.dispatchOnly, "dispatch-only", false, "Run the cron dispatcher without the HTTP API")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging and local cache paths")

	flag.Parse()
	return cfg
}

func buildFeeds(conf *config.Config) []ics.Feed {
	feeds := make([]ics.Feed, 0, len(conf.Feeds))
	for _, fc := range conf.Feeds {
		if fc.URL == "" {
			continue
		}
		id := fc.ID
		if id == "" {
			if fc.Name != "" {
				id = fc.Name
			} else {
				id = fc.URL
			}
		}
		feeds = append(feeds, ics.Feed{
			ID:             id,
			URL:            fc.URL,
			FallbackSeries: conf.FallbackSeries(fc),
		})
	}
	return feeds
}

func buildSeries(conf *config.Config) []model.Series {
	series := make([]model.Series, 0, len(conf.Series))
	for _, s := range conf.Series {
		series = append(series, model.Series(s))
	}
	return series
}
