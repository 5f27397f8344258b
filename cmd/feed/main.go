// The feed binary ingests live ticks from the Angel One SmartStream
// websocket and rewrites a JSON snapshot of last traded prices. It runs as
// a child process of the swingbot binary so a websocket stall or crash
// never takes the trading loop down.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"swingbot/config"
	"swingbot/internal/livefeed"
	smartconnect "swingbot/pkg/smartconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[feed] starting...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[feed] %v", err)
	}
	instruments, err := cfg.LoadInstruments()
	if err != nil {
		log.Fatalf("[feed] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Broker login for the feed token ----
	client := smartconnect.NewClient(smartconnect.Config{APIKey: cfg.AngelAPIKey})
	creds := smartconnect.Credentials{
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	}
	if err := client.Login(ctx, creds); err != nil {
		log.Fatalf("[feed] login failed: %v", err)
	}
	log.Println("[feed] broker session established")

	// ---- Snapshot writer fed by the tick callback ----
	writer := livefeed.NewWriter(cfg.FeedSnapshot)

	stream, err := smartconnect.NewStream(smartconnect.StreamConfig{
		AuthToken:     client.AccessToken(),
		APIKey:        cfg.AngelAPIKey,
		ClientCode:    cfg.AngelClientCode,
		FeedToken:     client.FeedToken(),
		CorrelationID: "swingbot-feed",
	})
	if err != nil {
		log.Fatalf("[feed] stream setup failed: %v", err)
	}
	stream.OnTick = writer.Apply
	stream.OnDisconnect = func(err error) {
		log.Printf("[feed] stream disconnected: %v", err)
	}

	if err := stream.Connect(ctx); err != nil {
		log.Fatalf("[feed] stream connect failed: %v", err)
	}

	tokens := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		tokens = append(tokens, inst.Token)
	}
	entry := smartconnect.TokenListEntry{
		ExchangeType: smartconnect.ExchangeNSECM,
		Tokens:       tokens,
	}
	if err := stream.Subscribe(smartconnect.ModeQuote, []smartconnect.TokenListEntry{entry}); err != nil {
		log.Fatalf("[feed] subscribe failed: %v", err)
	}
	log.Printf("[feed] subscribed to %d tokens", len(tokens))

	go writer.Run(ctx)

	// ---- Wait for shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[feed] shutting down...")

	cancel()
	stream.Close()
	if err := client.Logout(context.Background(), cfg.AngelClientCode); err != nil {
		log.Printf("[feed] logout failed: %v", err)
	}
	log.Println("[feed] stopped")
}
