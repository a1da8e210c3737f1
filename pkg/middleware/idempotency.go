package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/evshare-bookings/pkg/logger"
	"github.com/diagnosis/evshare-bookings/pkg/response"
)

// IdempotencyStore persists replayable responses for POST commands.
// Reserve claims an unused key atomically; Release frees a claim whose
// command did not succeed.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Reserve(ctx context.Context, key, marker string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// inFlight marks a key whose command is still running.
const inFlight = "in-flight"

// reservationTTL bounds how long a crashed request can block its key.
const reservationTTL = time.Minute

// ErrCacheMiss is returned by Get when no response is stored under the key.
var ErrCacheMiss = errors.New("idempotency: miss")

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, marker string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, marker, ttl).Result()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// IdempotencyMiddleware replays the stored response when a POST repeats an
// Idempotency-Key. Keys are scoped to the caller and the path. A repeat that
// arrives while the first request is still running gets 409.
func IdempotencyMiddleware(store IdempotencyStore, ttl time.Duration) func(http.Handler) http.Handler {
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

			sum := sha256.Sum256([]byte(UserID(r.Context()) + "|" + r.URL.Path + "|" + key))
			hashedKey := fmt.Sprintf("idempotency:%x", sum)

			reserved, err := store.Reserve(r.Context(), hashedKey, inFlight, reservationTTL)
			if err != nil {
				logger.WarnContext(r.Context(), "idempotency reserve failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				replay(w, r, store, hashedKey)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode >= 200 && recorder.statusCode < 300 {
				payload, _ := json.Marshal(cachedResponse{Status: recorder.statusCode, Body: recorder.body.Bytes()})
				if err := store.Set(r.Context(), hashedKey, string(payload), ttl); err != nil {
					logger.WarnContext(r.Context(), "idempotency store failed", "error", err)
				}
				return
			}
			if err := store.Release(r.Context(), hashedKey); err != nil {
				logger.WarnContext(r.Context(), "idempotency release failed", "error", err)
			}
		})
	}
}

// replay answers a request whose key is already taken: with the stored
// response when there is one, 409 while the first request is running.
func replay(w http.ResponseWriter, r *http.Request, store IdempotencyStore, key string) {
	existing, err := store.Get(r.Context(), key)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		logger.WarnContext(r.Context(), "idempotency lookup failed", "error", err)
	}
	var cached cachedResponse
	if err != nil || existing == inFlight || json.Unmarshal([]byte(existing), &cached) != nil {
		response.WriteError(w, http.StatusConflict, "A request with this Idempotency-Key is still in progress", response.CodeRequestInProgress)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(cached.Status)
	w.Write(cached.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(body []byte) (int, error) {
	r.body.Write(body)
	return r.ResponseWriter.Write(body)
}
