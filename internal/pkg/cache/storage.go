package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/env"
)

// NewFiberStorage returns fiber storage on a separate Redis database for
// middleware state such as rate limiter counters.
func NewFiberStorage() fiber.Storage {
	opts := GetClient().Options()
	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: env.GetEnvInt("CACHE_LIMITER_DB", 1),
		Reset:    false,
	})
}
