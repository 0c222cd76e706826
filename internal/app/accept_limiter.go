/**
 * @description
 * Redis-backed throttle for accept attempts. Accepting a request is the only
 * operation that fans out into multiple ledger writes, and the resolved check
 * has no compare-and-set behind it, so accept attempts are counted per actor
 * over a fixed window. This blunts double-click storms and cross-replica
 * retry bursts without putting Redis on the critical path: an unreachable
 * limiter fails open.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and Lua script support.
 */

package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var acceptAttemptScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// AcceptRateLimiter counts accept attempts per actor in Redis so the limit
// holds across replicas.
type AcceptRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewAcceptRateLimiter builds a limiter allowing limitPerMinute accept
// attempts per actor. A non-positive limit disables limiting.
func NewAcceptRateLimiter(client redis.UniversalClient, prefix string, limitPerMinute int) *AcceptRateLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "p2ploan:rate_limit"
	}

	return &AcceptRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limitPerMinute,
		window: time.Minute,
	}
}

// Allow counts one accept attempt for the actor and reports whether it is
// within the limit, plus how many seconds until the window resets when it is
// not. A nil limiter or client, a non-positive limit, or a blank actor id
// disables limiting. Redis errors fail open with the error reported so the
// caller can log it.
func (r *AcceptRateLimiter) Allow(ctx context.Context, actorID string) (allowed bool, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || r.limit <= 0 {
		return true, 0, nil
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return true, 0, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:accept_request:%s", r.prefix, actorID)
	rawResult, err := acceptAttemptScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return true, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return true, 0, fmt.Errorf("unexpected accept limiter response shape: %T", rawResult)
	}
	count, ok := values[0].(int64)
	if !ok {
		return true, 0, fmt.Errorf("unexpected accept limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return true, 0, fmt.Errorf("unexpected accept limiter ttl type: %T", values[1])
	}

	if count <= int64(r.limit) {
		return true, 0, nil
	}

	if ttlMs < 0 {
		ttlMs = windowMs
	}
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}
