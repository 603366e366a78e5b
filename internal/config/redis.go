package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the target's Redis client from the environment:
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand, used when host/port are not both set
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS when "true" or "1"
//
// The seat store lives in Redis, so an unreachable server is an error.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", "")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	var tlsConf *tls.Config
	if tlsEnv := envStr("REDIS_TLS", ""); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  envStr("REDIS_PASSWORD", ""),
		DB:        envInt("REDIS_DB", 0),
		TLSConfig: tlsConf,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
