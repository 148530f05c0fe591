package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"slot-gateway/middleware/slots/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores do ciclo de vida dos slots em hashes Redis:
//
//	<prefix>:total            kind -> contagem (cumulativo, não expira)
//	<prefix>:minute:<yyyymmddhhmm> kind -> contagem
//	<prefix>:route            "METHOD path" -> empréstimos
//	<prefix>:slot             id -> empréstimos (WithSlotTracking)
//	<prefix>:drain            leaked/at do último dreno
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas nos buckets por minuto.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackSlots bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithSlotTracking(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackSlots = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "slots:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Kind)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), field, 1)

	if s.bucket == "minute" {
		bucketKey := s.minuteKey(at)
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	switch ev.Kind {
	case domain.EventAcquired:
		if route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); route != "" {
			pipe.HIncrBy(ctx, s.key("route"), route, 1)
		}
		if s.trackSlots {
			pipe.HIncrBy(ctx, s.key("slot"), strconv.Itoa(int(ev.Slot)), 1)
		}
	case domain.EventDrained:
		pipe.HSet(ctx, s.key("drain"), "leaked", ev.Leaked, "at", at.UTC().Format(time.RFC3339))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stats %s: %w", field, err)
	}
	return nil
}

func (s *RedisStatsStore) key(suffix string) string {
	return s.prefix + ":" + suffix
}

func (s *RedisStatsStore) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}
