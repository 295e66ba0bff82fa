package usage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
)

// markProcessed moves ARGV[1] from current to processed. Returns -1 when the
// current reading is too small.
var markProcessed = redis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], "current") or "0")
local amount = tonumber(ARGV[1])
if current < amount then
	return -1
end
redis.call("HINCRBY", KEYS[1], "current", -amount)
redis.call("HINCRBY", KEYS[1], "processed", amount)
return current - amount
`)

// restore is the inverse of markProcessed
var restore = redis.NewScript(`
local processed = tonumber(redis.call("HGET", KEYS[1], "processed") or "0")
local amount = tonumber(ARGV[1])
if processed < amount then
	return -1
end
redis.call("HINCRBY", KEYS[1], "processed", -amount)
redis.call("HINCRBY", KEYS[1], "current", amount)
return processed - amount
`)

// RedisMeter stores usage in one redis hash per organization and meter with
// the fields current and processed
type RedisMeter struct {
	client *redis.Client
	prefix string
}

// NewRedisMeter creates a meter on an existing client
func NewRedisMeter(client *redis.Client) *RedisMeter {
	return &RedisMeter{client: client, prefix: "usage"}
}

var _ Meter = (*RedisMeter)(nil)

func (m *RedisMeter) key(orgID int64, meterID string) string {
	return fmt.Sprintf("%s:%d:%s", m.prefix, orgID, meterID)
}

func (m *RedisMeter) CurrentUsage(ctx context.Context, orgID int64, meterID string) (uint64, error) {
	if meterID == "" {
		return 0, ErrInvalidMeter
	}

	val, err := m.client.HGet(ctx, m.key(orgID, meterID), "current").Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("redis hget failed: %w", err)
	}

	n, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid usage value %q: %w", val, err)
	}
	return n, nil
}

func (m *RedisMeter) Record(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if meterID == "" {
		return ErrInvalidMeter
	}
	if err := m.client.HIncrBy(ctx, m.key(orgID, meterID), "current", int64(amount)).Err(); err != nil {
		return fmt.Errorf("redis hincrby failed: %w", err)
	}
	return nil
}

func (m *RedisMeter) MarkProcessed(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if meterID == "" {
		return ErrInvalidMeter
	}

	res, err := markProcessed.Run(ctx, m.client, []string{m.key(orgID, meterID)}, amount).Int64()
	if err != nil {
		return fmt.Errorf("redis mark processed failed: %w", err)
	}
	if res < 0 {
		return fmt.Errorf("%w: org %d meter %s amount %d", ErrInsufficientUsage, orgID, meterID, amount)
	}
	return nil
}

func (m *RedisMeter) Restore(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if meterID == "" {
		return ErrInvalidMeter
	}

	res, err := restore.Run(ctx, m.client, []string{m.key(orgID, meterID)}, amount).Int64()
	if err != nil {
		return fmt.Errorf("redis restore failed: %w", err)
	}
	if res < 0 {
		return fmt.Errorf("%w: org %d meter %s amount %d", ErrNothingToRestore, orgID, meterID, amount)
	}
	return nil
}

// Processed returns the total usage already billed for a meter
func (m *RedisMeter) Processed(ctx context.Context, orgID int64, meterID string) (uint64, error) {
	val, err := m.client.HGet(ctx, m.key(orgID, meterID), "processed").Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
