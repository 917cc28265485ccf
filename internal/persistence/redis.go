package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"party-arena/internal/game"

	"github.com/redis/go-redis/v9"
)

// DefaultResultsChannel is the pub/sub channel match summaries are published on
const DefaultResultsChannel = "party-arena:matches"

// RedisPublisher publishes each match summary as JSON for other services
// (leaderboards, stream overlays) to consume
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects lazily; the first Save surfaces connection errors
func NewRedisPublisher(addr, password string, db int, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultResultsChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   -1, // Results are never retried
	})
	log.Printf("📣 Publishing match results to redis %s channel %s", addr, channel)
	return &RedisPublisher{client: client, channel: channel}
}

// Save publishes the summary. Having no subscribers is not an error.
func (p *RedisPublisher) Save(ctx context.Context, summary game.MatchSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Ping checks the connection, used at startup to warn early
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
