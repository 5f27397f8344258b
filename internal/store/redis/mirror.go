// Package redis mirrors live prices and computed swing levels into Redis so
// external dashboards can watch the bot without touching its files. The
// mirror is optional; when no address is configured the bot runs without it.
package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"swingbot/internal/model"
)

const (
	ltpTTL    = 30 * time.Minute
	levelsTTL = 24 * time.Hour
)

// Config configures the mirror connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Mirror publishes LTPs and level sets to Redis.
type Mirror struct {
	client *goredis.Client
}

// New creates a Mirror and pings the server.
func New(cfg Config) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Mirror{client: client}, nil
}

// Client returns the underlying client for health checks.
func (m *Mirror) Client() *goredis.Client { return m.client }

// SetLTP stores the last traded price in rupees under ltp:{exchange}:{token}.
func (m *Mirror) SetLTP(ctx context.Context, exchange, token string, rupees float64) error {
	key := "ltp:" + exchange + ":" + token
	val := strconv.FormatFloat(rupees, 'f', 2, 64)
	if err := m.client.Set(ctx, key, val, ltpTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetLevels stores the current support/resistance set for a symbol as a
// hash under levels:{symbol}. Missing levels clear their fields.
func (m *Mirror) SetLevels(ctx context.Context, ls model.LevelSet) error {
	key := "levels:" + ls.Symbol
	fields := map[string]any{
		"computed_at": ls.ComputedAt.Format(time.RFC3339),
	}
	if ls.Resistance != nil {
		fields["resistance"] = strconv.FormatFloat(ls.Resistance.Price, 'f', 2, 64)
		fields["buy_trigger"] = strconv.FormatFloat(ls.BuyTrigger, 'f', 2, 64)
	}
	if ls.Support != nil {
		fields["support"] = strconv.FormatFloat(ls.Support.Price, 'f', 2, 64)
		fields["sell_trigger"] = strconv.FormatFloat(ls.SellTrigger, 'f', 2, 64)
	}
	pipe := m.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, levelsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis levels %s: %w", key, err)
	}
	return nil
}

// Close releases the connection.
func (m *Mirror) Close() error { return m.client.Close() }
