package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"shiftcal/internal/config"
	"shiftcal/internal/feed"
	appLog "shiftcal/internal/log"
	"shiftcal/internal/scrape"
	"shiftcal/internal/store"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	printToken bool
}

func main() {
	appLog.Info("shiftcal starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	token, err := feed.Token(conf.Portal.Username, conf.Portal.Password)
	if err != nil {
		appLog.Error("failed to derive feed token", err)
		os.Exit(1)
	}

	if flags.printToken {
		fmt.Println(token)
		return
	}

	if !conf.Portal.HasCredentials() {
		appLog.Info("portal credentials not configured, feed token is random for this run")
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"scrape_cron", conf.ScrapeCron,
		"retention_days", conf.RetentionDays,
		"data_dir", conf.DataDir,
		"portal_host", conf.Portal.BaseURL,
		"once", flags.once,
	)

	st, err := store.New(conf.DataDir)
	if err != nil {
		appLog.Error("failed to initialize data dir", err, "data_dir", conf.DataDir)
		os.Exit(1)
	}

	runner, err := scrape.New(conf, st)
	if err != nil {
		appLog.Error("failed to initialize scraper", err)
		os.Exit(1)
	}

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

	if flags.once {
		if err := runner.Run(ctx); err != nil {
			appLog.Error("scrape cycle failed", err)
			os.Exit(1)
		}
		return
	}

	// Initial scrape at startup; failure only delays data until the next
	// scheduled run, the feed still has to come up.
	if err := runner.Run(ctx); err != nil {
		appLog.Error("initial scrape failed", err)
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.ScrapeCron, func() {
		if err := runner.Run(context.Background()); err != nil {
			appLog.Error("scheduled scrape failed", err)
		}
	}); err != nil {
		appLog.Error("invalid scrape cron expression", err, "scrape_cron", conf.ScrapeCron)
		os.Exit(1)
	}
	sched.Start()

	server := feed.NewServer(conf.Listen, st, runner, token)
	server.Start()

	appLog.Info("subscribe to the feed", "url", "webcal://"+conf.Listen+"/calendar/"+token+".ics")

	<-ctx.Done()

	cronCtx := sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("feed server shutdown failed", err)
	}
	<-cronCtx.Done()

	appLog.Info("shiftcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/shiftcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one scrape cycle and exit")
	flag.BoolVar(&cfg.printToken, "print-token", false, "Print the feed token and exit")

	flag.Parse()

	return cfg
}
