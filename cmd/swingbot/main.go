// The swingbot binary runs the trading process: broker session, historical
// data sync, swing level detection, risk management and order execution.
// Live prices arrive through the feed child process (cmd/feed), supervised
// here and read back through the JSON snapshot it writes.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"swingbot/config"
	"swingbot/internal/api"
	"swingbot/internal/execution"
	"swingbot/internal/histdata"
	"swingbot/internal/livefeed"
	"swingbot/internal/logger"
	"swingbot/internal/markethours"
	"swingbot/internal/metrics"
	"swingbot/internal/model"
	"swingbot/internal/notification"
	"swingbot/internal/risk"
	redisstore "swingbot/internal/store/redis"
	"swingbot/internal/strategy"
	smartconnect "swingbot/pkg/smartconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Init("swingbot", logger.LevelFromEnv())
	log.Println("[swingbot] starting...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[swingbot] %v", err)
	}
	instruments, err := cfg.LoadInstruments()
	if err != nil {
		log.Fatalf("[swingbot] %v", err)
	}
	if len(cfg.Symbols) > 0 {
		instruments = filterInstruments(instruments, cfg.Symbols)
	}
	if len(instruments) == 0 {
		log.Fatalf("[swingbot] no instruments configured")
	}
	log.Printf("[swingbot] mode=%s instruments=%d", cfg.Mode, len(instruments))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics & health ----
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Broker session ----
	client := smartconnect.NewClient(smartconnect.Config{APIKey: cfg.AngelAPIKey})
	creds := smartconnect.Credentials{
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	}
	if cfg.Mode == config.ModeLive {
		if err := client.Login(ctx, creds); err != nil {
			log.Fatalf("[swingbot] login failed: %v", err)
		}
		health.SetBrokerSessionOK(true)
		log.Println("[swingbot] broker session established")
	}

	// ---- Notifications ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[swingbot] telegram alerts enabled")
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[swingbot] webhook alerts enabled")
	}
	var notifier notification.Notifier = notification.NewMulti(backends...)

	// ---- Risk manager ----
	rm := risk.New(risk.Limits{
		MaxPositions:        cfg.MaxPositions,
		MaxDailyLoss:        cfg.MaxDailyLoss,
		MaxPositionSize:     cfg.MaxPositionSize,
		PositionSizePercent: cfg.PositionSizePercent,
		StopLossPercent:     cfg.StopLossPercent,
		TargetProfitPercent: cfg.TargetProfitPercent,
		LotSizes:            lotSizes(instruments),
	}, cfg.MaxPositionSize, cfg.SnapshotPath)
	rm.SetNotifier(notifier)

	// ---- Historical data ----
	store := histdata.New(cfg.DataDir, &histdata.SmartAPIProvider{Client: client, Creds: creds})

	// ---- Trade journal ----
	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[swingbot] journal init failed: %v", err)
	}
	defer journal.Close()
	health.SetJournalOK(true)

	// ---- Optional Redis mirror ----
	var mirror *redisstore.Mirror
	if cfg.RedisAddr != "" {
		mirror, err = redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[swingbot] WARNING: redis mirror unavailable: %v (continuing without)", err)
			mirror = nil
		} else {
			defer mirror.Close()
		}
	}

	// ---- Execution engine ----
	var broker execution.Broker
	if cfg.Mode == config.ModeLive {
		broker = &execution.LiveBroker{Client: client, Creds: creds}
	} else {
		broker = execution.NewPaperBroker(5)
	}
	engine := execution.New(execution.Config{
		Mode:          cfg.Mode,
		ConfidenceMin: cfg.ConfidenceMin,
		ProductType:   cfg.ProductType,
		OrderType:     cfg.OrderType,
		MaxRetries:    cfg.MaxOrderRetry,
		RetryWait:     cfg.OrderRetryWait,
		PollInterval:  cfg.OrderPollEvery,
		OrderTimeout:  cfg.OrderTimeout,
	}, broker, rm, journal, instruments)

	// ---- Live feed: reader plus supervised child process ----
	reader := livefeed.NewReader(cfg.FeedSnapshot, cfg.FeedStaleAfter)
	supervisor := livefeed.NewSupervisor(feedBinary(), nil, reader)

	// ---- Strategy ----
	strat := strategy.New(strategy.Config{
		LevelRefresh: cfg.LevelRefresh,
		Confidence:   0.7,
		EntryBuffer:  cfg.EntryBuffer,
	}, store, reader, rm, mirror, instruments)

	log.Printf("[swingbot] market %s", markethours.StatusString(time.Now()))
	log.Println("[swingbot] syncing historical data...")
	if err := strat.Bootstrap(ctx); err != nil {
		log.Fatalf("[swingbot] bootstrap aborted: %v", err)
	}

	if cfg.Mode == config.ModeTest {
		log.Println("[swingbot] test mode: bootstrap complete, exiting")
		return
	}

	// ---- Status API ----
	var apiSrv *http.Server
	if cfg.APIAddr != "" {
		symbols := make([]string, 0, len(instruments))
		for s := range instruments {
			symbols = append(symbols, s)
		}
		apiSrv = &http.Server{
			Addr: cfg.APIAddr,
			Handler: api.NewRouter(api.Deps{
				Risk:    rm,
				Engine:  engine,
				Levels:  strat,
				Symbols: symbols,
			}),
		}
		go func() {
			log.Printf("[swingbot] status API on %s", cfg.APIAddr)
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("[swingbot] status API: %v", err)
			}
		}()
	}

	// ---- Run loops ----
	go supervisor.Run(ctx)
	go strat.Run(ctx)
	go engine.Run(ctx, strat.Signals())
	go engine.MonitorLoop(ctx)
	go healthLoop(ctx, reader, health)

	// ---- Wait for shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[swingbot] shutting down...")

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	engine.Shutdown(shutdownCtx)
	if apiSrv != nil {
		apiSrv.Shutdown(shutdownCtx)
	}
	metricsSrv.Stop(shutdownCtx)
	if cfg.Mode == config.ModeLive {
		if err := client.Logout(shutdownCtx, cfg.AngelClientCode); err != nil {
			log.Printf("[swingbot] logout failed: %v", err)
		}
	}
	log.Println("[swingbot] stopped")
}

// healthLoop keeps the feed freshness flag on /healthz current.
func healthLoop(ctx context.Context, reader *livefeed.Reader, health *metrics.HealthStatus) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health.SetFeedFresh(reader.Fresh())
		}
	}
}

// feedBinary locates the feed executable next to the running binary,
// falling back to PATH lookup.
func feedBinary() string {
	self, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(self), "feed")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if path, err := exec.LookPath("feed"); err == nil {
		return path
	}
	return "feed"
}

func filterInstruments(all map[string]model.Instrument, symbols []string) map[string]model.Instrument {
	out := make(map[string]model.Instrument, len(symbols))
	for _, s := range symbols {
		if inst, ok := all[s]; ok {
			out[s] = inst
		} else {
			log.Printf("[swingbot] WARNING: symbol %q not in instruments file", s)
		}
	}
	return out
}

func lotSizes(instruments map[string]model.Instrument) map[string]int64 {
	out := make(map[string]int64, len(instruments))
	for symbol, inst := range instruments {
		if inst.LotSize > 0 {
			out[symbol] = inst.LotSize
		}
	}
	return out
}
