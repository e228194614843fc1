package identities

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrOTPNotFound is returned when no code is stored for a phone, either
// because none was sent or because it expired.
var ErrOTPNotFound = errors.New("otp not found or expired")

// OTPStore holds one-time codes with an explicit lifecycle: insert with
// TTL, delete on verify, expire on TTL. The Redis implementation survives
// restarts and multiple instances; the memory implementation backs tests
// and single-node development.
type OTPStore interface {
	Save(ctx context.Context, phone, code string, ttl time.Duration) error
	Lookup(ctx context.Context, phone string) (code string, attempts int, err error)
	RecordAttempt(ctx context.Context, phone string) error
	Delete(ctx context.Context, phone string) error
}

// RedisOTPStore keeps codes in Redis with server-side expiry.
type RedisOTPStore struct {
	client *redis.Client
}

// NewRedisOTPStore creates an OTPStore on the given Redis client.
func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func otpCodeKey(phone string) string     { return fmt.Sprintf("otp:code:%s", phone) }
func otpAttemptsKey(phone string) string { return fmt.Sprintf("otp:attempts:%s", phone) }

func (s *RedisOTPStore) Save(ctx context.Context, phone, code string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, otpCodeKey(phone), code, ttl)
	pipe.Set(ctx, otpAttemptsKey(phone), 0, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisOTPStore) Lookup(ctx context.Context, phone string) (string, int, error) {
	code, err := s.client.Get(ctx, otpCodeKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, ErrOTPNotFound
	}
	if err != nil {
		return "", 0, err
	}
	attempts, err := s.client.Get(ctx, otpAttemptsKey(phone)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, err
	}
	return code, attempts, nil
}

func (s *RedisOTPStore) RecordAttempt(ctx context.Context, phone string) error {
	return s.client.Incr(ctx, otpAttemptsKey(phone)).Err()
}

func (s *RedisOTPStore) Delete(ctx context.Context, phone string) error {
	return s.client.Del(ctx, otpCodeKey(phone), otpAttemptsKey(phone)).Err()
}

type memoryOTP struct {
	code      string
	attempts  int
	expiresAt time.Time
}

// MemoryOTPStore is a process-local OTPStore.
type MemoryOTPStore struct {
	mu    sync.Mutex
	codes map[string]*memoryOTP
}

// NewMemoryOTPStore creates an in-memory OTPStore.
func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{codes: make(map[string]*memoryOTP)}
}

func (s *MemoryOTPStore) Save(_ context.Context, phone, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = &memoryOTP{code: code, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryOTPStore) Lookup(_ context.Context, phone string) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[phone]
	if !ok {
		return "", 0, ErrOTPNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.codes, phone)
		return "", 0, ErrOTPNotFound
	}
	return entry.code, entry.attempts, nil
}

func (s *MemoryOTPStore) RecordAttempt(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.codes[phone]; ok {
		entry.attempts++
	}
	return nil
}

func (s *MemoryOTPStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, phone)
	return nil
}
