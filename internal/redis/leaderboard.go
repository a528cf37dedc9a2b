package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/skills-gamification/internal/config"
	"github.com/skills-gamification/internal/domain"
)

// Leaderboard keeps one sorted set of balances per currency. Postgres
// stays the source of truth; these sets are a realtime read cache.
type Leaderboard struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLeaderboard creates a new Redis leaderboard
func NewLeaderboard(cfg *config.RedisConfig, logger *slog.Logger) (*Leaderboard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewLeaderboardWithClient(client, logger), nil
}

// NewLeaderboardWithClient wraps an existing client
func NewLeaderboardWithClient(client *redis.Client, logger *slog.Logger) *Leaderboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Leaderboard{
		client: client,
		logger: logger,
	}
}

// Close closes the Redis connection
func (l *Leaderboard) Close() error {
	return l.client.Close()
}

// key returns the Redis key for a currency's sorted set
func key(currency domain.Currency) string {
	return fmt.Sprintf("gamification:leaderboard:%s", currency)
}

// SetBalances writes a user's current balances using pipelining
func (l *Leaderboard) SetBalances(ctx context.Context, userID string, balances map[domain.Currency]int64) error {
	if len(balances) == 0 {
		return nil
	}
	pipe := l.client.Pipeline()
	for currency, balance := range balances {
		pipe.ZAdd(ctx, key(currency), redis.Z{
			Score:  float64(balance),
			Member: userID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting balances: %w", err)
	}
	return nil
}

// Top returns the n highest balances for a currency
func (l *Leaderboard) Top(ctx context.Context, currency domain.Currency, n int) ([]domain.LeaderboardEntry, error) {
	results, err := l.client.ZRevRangeWithScores(ctx, key(currency), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		entries[i] = domain.LeaderboardEntry{
			Position: int64(i + 1),
			UserID:   result.Member.(string),
			Currency: currency,
			Balance:  int64(result.Score),
		}
	}
	return entries, nil
}

// Position returns a user's 1-based leaderboard position and balance
func (l *Leaderboard) Position(ctx context.Context, currency domain.Currency, userID string) (*domain.LeaderboardEntry, error) {
	k := key(currency)

	// Use pipeline to get both rank and score
	pipe := l.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, k, userID)
	scoreCmd := pipe.ZScore(ctx, k, userID)
	_, err := pipe.Exec(ctx)
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: user not on %s leaderboard", domain.ErrNotFound, currency)
	}
	if err != nil {
		return nil, fmt.Errorf("getting position: %w", err)
	}

	return &domain.LeaderboardEntry{
		Position: rankCmd.Val() + 1,
		UserID:   userID,
		Currency: currency,
		Balance:  int64(scoreCmd.Val()),
	}, nil
}

// CountRange counts users with min <= balance < max
func (l *Leaderboard) CountRange(ctx context.Context, currency domain.Currency, min, max int64) (int64, error) {
	n, err := l.client.ZCount(ctx, key(currency), strconv.FormatInt(min, 10), "("+strconv.FormatInt(max, 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting range: %w", err)
	}
	return n, nil
}

// Rebuild replaces a currency's sorted set with balances in one MULTI
func (l *Leaderboard) Rebuild(ctx context.Context, currency domain.Currency, balances map[string]int64) error {
	k := key(currency)
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, k)
	for userID, balance := range balances {
		pipe.ZAdd(ctx, k, redis.Z{
			Score:  float64(balance),
			Member: userID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding leaderboard: %w", err)
	}
	l.logger.Debug("leaderboard rebuilt", "currency", currency, "users", len(balances))
	return nil
}
