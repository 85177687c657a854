package redisholder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/trunov/csvimages/internal/config"
)

// Build connects to Redis, preferring cluster mode and falling back to the
// first reachable single node, then keeps the connection healthy in the
// background until ctx is done.
func Build(ctx context.Context, cfg *config.RedisConfig) (*Holder, error) {
	cl, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	h := NewHolder(cl)
	if cfg.HealthCheckInterval > 0 {
		go healthLoop(ctx, h, cfg)
	}
	return h, nil
}

func connect(ctx context.Context, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	cl, clusterErr := newClusterClient(ctx, cfg)
	if clusterErr == nil {
		return cl, nil
	}

	single, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", errors.Join(clusterErr, err))
	}
	log.Debug().Err(clusterErr).Msg("redis: cluster client unavailable, using single-node client")
	return single, nil
}

func healthLoop(ctx context.Context, h *Holder, cfg *config.RedisConfig) {
	log.Info().Dur("interval", cfg.HealthCheckInterval).Msg("redis: health loop started")

	t := time.NewTicker(cfg.HealthCheckInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = h.Close()
			log.Info().Err(ctx.Err()).Msg("redis: health loop stopped")
			return
		case <-t.C:
			checkAndReconnect(ctx, h, cfg)
		}
	}
}

func checkAndReconnect(ctx context.Context, h *Holder, cfg *config.RedisConfig) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err := h.Get().Ping(pingCtx).Err()
	cancel()
	if err == nil {
		return
	}
	log.Warn().Err(err).Msg("redis: ping failed, attempting reconnect")

	newCl, err := connect(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("redis: reconnect failed")
		return
	}

	old, ok := h.replace(newCl)
	if !ok {
		_ = newCl.Close()
		return
	}
	if old != nil {
		_ = old.Close()
	}
	log.Info().Msg("redis: reconnected successfully")
}

func newClusterClient(ctx context.Context, cfg *config.RedisConfig) (*redis.ClusterClient, error) {
	if len(cfg.Nodes) < 2 {
		return nil, errors.New("cluster mode needs at least two nodes")
	}

	nodeAddrs := make([]string, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		nodeAddrs = append(nodeAddrs, node.Addr())
	}

	cl := redis.NewClusterClient(&redis.ClusterOptions{
		RouteByLatency: true,
		Password:       cfg.Password,
		Addrs:          nodeAddrs,
		DialTimeout:    cfg.DialTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PoolSize:       cfg.PoolSize,
		PoolTimeout:    30 * time.Second,
		MaxRetries:     3,
	})

	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("error pinging redis cluster: %w", err)
	}
	return cl, nil
}

func newClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	var stickyErr = errors.New("no nodes defined")

	for _, node := range cfg.Nodes {
		cl := redis.NewClient(&redis.Options{
			Addr:         node.Addr(),
			Password:     cfg.Password,
			DB:           cfg.DatabaseID,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})

		if err := cl.Ping(ctx).Err(); err != nil {
			_ = cl.Close()
			stickyErr = fmt.Errorf("error pinging redis server %s: %w", node.Addr(), err)
			continue
		}
		return cl, nil
	}

	return nil, stickyErr
}
