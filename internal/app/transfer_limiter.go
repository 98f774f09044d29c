/**
 * @description
 * This file implements per-source-account throttling of transfers on top of
 * Redis, so the limit holds across service replicas. Each source account gets a
 * fixed counting window; the script creates the window on first use and reports
 * how many attempts it has absorbed.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The Redis client library.
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// transferWindowScript counts one transfer attempt against the source account's
// current window. Returns the attempt count and the window's remaining lifetime
// in milliseconds.
var transferWindowScript = redis.NewScript(`
local attempts = redis.call("INCR", KEYS[1])
if attempts == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local remaining = redis.call("PTTL", KEYS[1])
if remaining < 0 then
  remaining = tonumber(ARGV[1])
end
return {attempts, remaining}
`)

// RedisTransferLimiter throttles how often a source account may initiate
// transfers within a window.
type RedisTransferLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisTransferLimiter(client redis.UniversalClient, prefix string) *RedisTransferLimiter {
	return &RedisTransferLimiter{
		client: client,
		prefix: normalizeLimiterPrefix(prefix),
	}
}

func normalizeLimiterPrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "ledger:rate_limit"
	}
	return strings.TrimSuffix(p, ":")
}

// ConsumeTransferSlot records one transfer attempt for the source account and
// reports how many attempts the current window has seen. retryAfter is how long
// the caller would have to wait for a fresh window; it is meaningful only when
// the count exceeds the limit.
func (l *RedisTransferLimiter) ConsumeTransferSlot(ctx context.Context, sourceAccountID int64, limit int, window time.Duration) (int, time.Duration, error) {
	if l == nil || l.client == nil || limit <= 0 || window <= 0 || sourceAccountID <= 0 {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:transfer:%d", l.prefix, sourceAccountID)
	raw, err := transferWindowScript.Run(ctx, l.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	attempts, remainingMs, err := parseTransferWindowReply(raw)
	if err != nil {
		return 0, 0, err
	}
	if remainingMs < 0 {
		remainingMs = windowMs
	}

	retryAfter := time.Duration(remainingMs) * time.Millisecond
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return int(attempts), retryAfter, nil
}

// parseTransferWindowReply decodes the {attempts, remaining-ms} pair the window
// script returns.
func parseTransferWindowReply(raw interface{}) (int64, int64, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected limiter reply shape: %T", raw)
	}
	attempts, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected limiter attempt count type: %T", values[0])
	}
	remaining, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected limiter window lifetime type: %T", values[1])
	}
	return attempts, remaining, nil
}
