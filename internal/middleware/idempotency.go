package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotency-Replay"
	idempotencyPrefix    = "idempotency:v1:"
	pendingMarker        = "__pending__"
	storeTimeout         = 2 * time.Second
)

// cachedResponse is the stored shape of a completed request: enough to replay
// status, headers, and body verbatim on a duplicate key.
type cachedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Idempotency shields unsafe HTTP methods against duplicate submission. The
// first request under a key reserves it in Redis and stores its response for
// the TTL; duplicates replay the stored response with a marker header instead
// of re-running the handler. The orchestrator keeps its own financial-effect
// dedup underneath, so this layer only protects the HTTP surface.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		storeKey := idempotencyPrefix + key

		ctx, cancel := storeContext()
		cached, err := cache.Get(ctx, storeKey).Result()
		cancel()
		switch {
		case err == nil:
			return replay(c, key, cached, logger)
		case err != redis.Nil:
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		ctx, cancel = storeContext()
		err = cache.SetNX(ctx, storeKey, pendingMarker, ttl).Err()
		cancel()
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}

		if err := c.Next(); err != nil {
			// The handler gets another chance under the same key.
			release(cache, storeKey)
			return err
		}

		if err := persist(cache, storeKey, c, ttl); err != nil {
			logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			release(cache, storeKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}
		return nil
	}
}

// replay writes a previously stored response back to the client.
func replay(c *fiber.Ctx, key, cached string, logger *slog.Logger) error {
	if cached == pendingMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	var stored cachedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("failed to decode stored idempotent response", slog.String("key", key), slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}

	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	c.Set(replayedHeader, "true")
	return c.Status(stored.Status).SendString(stored.Body)
}

// persist swaps the pending marker for the finished response.
func persist(cache *redis.Client, storeKey string, c *fiber.Ctx, ttl time.Duration) error {
	stored := cachedResponse{
		Status:  c.Response().StatusCode(),
		Body:    string(c.Response().Body()),
		Headers: map[string]string{},
	}
	c.Response().Header.VisitAll(func(k, v []byte) {
		stored.Headers[string(k)] = string(v)
	})

	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	ctx, cancel := storeContext()
	defer cancel()
	return cache.Set(ctx, storeKey, payload, ttl).Err()
}

func release(cache *redis.Client, storeKey string) {
	ctx, cancel := storeContext()
	defer cancel()
	cache.Del(ctx, storeKey) // best effort
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}
