// Package ratelimit admits or rejects workflow runs against Redis-backed
// fixed-window counters: one global window plus a per-workflow window sized
// by the workflow's tier.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/flow/common/workflow"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Result contains the outcome of one limit check
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// LimitError is the typed rejection the HTTP layer maps to 429.
type LimitError struct {
	Scope             string // "global" or "workflow"
	Limit             int64
	RetryAfterSeconds int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s rate limit of %d runs per window exceeded, retry in %ds",
		e.Scope, e.Limit, e.RetryAfterSeconds)
}

// Limiter provides tier-aware run admission using Redis + Lua. The script
// runs atomically, so concurrent replicas share one counter correctly.
type Limiter struct {
	redis       *redis.Client
	script      *redis.Script
	globalLimit int64
	logger      Logger
}

// New creates a limiter with the embedded Lua script. globalLimit bounds
// total admissions per minute across all workflows; 0 disables the global
// window.
func New(redisClient *redis.Client, globalLimit int64, logger Logger) *Limiter {
	return &Limiter{
		redis:       redisClient,
		script:      redis.NewScript(rateLimitScript),
		globalLimit: globalLimit,
		logger:      logger,
	}
}

// AllowRun admits or rejects one run of wf: the global window first, then
// the per-workflow window at the workflow's tier. Infrastructure errors
// fail open: an unreachable Redis must not stop runs.
func (l *Limiter) AllowRun(ctx context.Context, wf *workflow.Workflow) error {
	if l == nil {
		return nil
	}

	if l.globalLimit > 0 {
		result, err := l.check(ctx, "rate_limit:global", l.globalLimit, 60)
		if err == nil && !result.Allowed {
			return &LimitError{Scope: "global", Limit: result.Limit, RetryAfterSeconds: result.RetryAfterSeconds}
		}
	}

	profile := Inspect(wf)
	id := wf.ID
	if id == "" {
		// Unsaved definitions share one admission pool.
		id = "adhoc"
	}
	key := fmt.Sprintf("rate_limit:workflow:%s:tier:%s", id, profile.Tier)
	result, err := l.check(ctx, key, LimitForTier(profile.Tier), WindowForTier(profile.Tier))
	if err == nil && !result.Allowed {
		return &LimitError{Scope: "workflow", Limit: result.Limit, RetryAfterSeconds: result.RetryAfterSeconds}
	}
	return nil
}

// check executes the rate limit Lua script
func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		l.logger.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("unexpected script result format")
	}

	result := &Result{
		Allowed:           values[0].(int64) == 1,
		CurrentCount:      values[1].(int64),
		Limit:             values[2].(int64),
		RetryAfterSeconds: values[3].(int64),
	}

	if !result.Allowed {
		l.logger.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", limit,
			"retry_after", result.RetryAfterSeconds)
	} else {
		l.logger.Debug("rate limit check passed",
			"key", key,
			"current", result.CurrentCount,
			"limit", limit)
	}

	return result, nil
}

// CurrentCount returns a window's count without incrementing it.
func (l *Limiter) CurrentCount(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// Reset clears a window's counter.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, key).Err()
}
