package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/BogBogdan/ot-node/internal/observability"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/realtime"
)

const DefaultChannel = "operation-events"

var errNoCallback = errors.New("onMsg callback required")

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisBus(log *logger.Logger, addr, channel string) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     log.With("service", "RedisOperationBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

// New picks the redis bus when an address is configured and the in-process bus otherwise.
func New(log *logger.Logger, addr, channel string) (Bus, error) {
	if strings.TrimSpace(addr) == "" {
		return NewMemoryBus(), nil
	}
	return NewRedisBus(log, addr, channel)
}

func (b *redisBus) Publish(ctx context.Context, ev realtime.OperationEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis operation bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = b.rdb.Publish(ctx, b.channel, raw).Err()
	if metrics := observability.Current(); metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.BusPublished(result)
	}
	return err
}

func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(ev realtime.OperationEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis operation bus not initialized")
	}
	if onMsg == nil {
		return errNoCallback
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev realtime.OperationEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad redis operation event payload", "error", err)
					continue
				}
				onMsg(ev)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
