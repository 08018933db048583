package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// commands is the slice of the redis client the middleware issues.
type commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Idempotency deduplicates state-changing requests carrying an
// Idempotency-Key header. Used on the produce endpoint so a retried publish
// does not land the same message twice. A failed attempt does not pin the
// key, so the client may retry it.
func Idempotency(redisClient *redis.Client) func(http.Handler) http.Handler {
	if redisClient == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return idempotency(redisClient)
}

func idempotency(store commands) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:%s", key)
			ctx := r.Context()

			_, err := store.Get(ctx, idemKey).Result()
			if err == nil {
				// Already processed
				w.Header().Set("X-Idempotency-Hit", "true")
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error": "request already processed"}`))
				return
			} else if err != redis.Nil {
				// Redis error: don't block the request on the cache layer
				next.ServeHTTP(w, r)
				return
			}

			// SETNX with a short TTL so a crash never leaves the key locked forever
			acquired, err := store.SetNX(ctx, idemKey, "PROCESSING", 10*time.Second).Result()
			if err != nil || !acquired {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error": "concurrent request"}`))
				return
			}

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Only a successful response pins the key; anything else stays
			// retryable.
			if ww.Status() >= 200 && ww.Status() < 300 {
				store.Set(ctx, idemKey, "COMPLETED", 24*time.Hour)
				return
			}
			store.Del(ctx, idemKey)
		})
	}
}
