package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLocker serializes lot mutations across replicas with a redsync mutex per
// lot. Callers in the same process queue on a KeyedLocker first so only one of
// them polls redis at a time. The mutex is extended while held.
type RedisLocker struct {
	rs         *redsync.Redsync
	local      *KeyedLocker
	prefix     string
	expiry     time.Duration
	retryDelay time.Duration
	logger     zerolog.Logger
}

type RedisLockerParams struct {
	Client     *redis.Client
	Prefix     string
	Expiry     time.Duration
	RetryDelay time.Duration
	Logger     zerolog.Logger
}

func NewRedisLocker(params RedisLockerParams) *RedisLocker {
	expiry := params.Expiry
	if expiry <= 0 {
		expiry = 8 * time.Second
	}
	retryDelay := params.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}
	prefix := params.Prefix
	if prefix == "" {
		prefix = "lot:lock:"
	}

	pool := goredis.NewPool(params.Client)
	return &RedisLocker{
		rs:         redsync.New(pool),
		local:      NewKeyedLocker(),
		prefix:     prefix,
		expiry:     expiry,
		retryDelay: retryDelay,
		logger:     params.Logger.With().Str("component", "redis_locker").Logger(),
	}
}

// Lock implements outbound.LotLocker
func (l *RedisLocker) Lock(ctx context.Context, lotID uuid.UUID) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, lotID)
	if err != nil {
		return nil, err
	}

	mutex := l.rs.NewMutex(
		l.prefix+lotID.String(),
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		case <-timer.C:
		}

		err := mutex.LockContext(ctx)
		if err == nil {
			break
		}
		var commErr *redsync.RedisError
		if errors.As(err, &commErr) {
			unlockLocal()
			return nil, fmt.Errorf("failed to acquire lot lock: %w", err)
		}
		timer.Reset(l.retryDelay)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.expiry / 3)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if ok, err := mutex.ExtendContext(renewCtx); (err != nil || !ok) && renewCtx.Err() == nil {
					l.logger.Warn().Err(err).Str("lot_id", lotID.String()).Msg("Failed to extend lot lock")
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			if _, err := mutex.Unlock(); err != nil {
				l.logger.Warn().Err(err).Str("lot_id", lotID.String()).Msg("Failed to release lot lock")
			}
			unlockLocal()
		})
	}, nil
}
