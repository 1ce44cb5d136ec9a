// Package otp issues and checks one-time verification codes. Codes live in
// redis under a TTL and are consumed on first successful verification.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

const codeDigits = 6

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// Issue generates a fresh code for userID, replacing any outstanding one.
func (s *Store) Issue(ctx context.Context, userID string) (string, error) {
	code, err := generate()
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, key(userID), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("otp: store code: %w", err)
	}

	return code, nil
}

// Verify checks code against the outstanding one for userID and consumes it
// on a match. A missing or expired code verifies false, not an error.
func (s *Store) Verify(ctx context.Context, userID, code string) (bool, error) {
	stored, err := s.client.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("otp: load code: %w", err)
	}

	if stored != code {
		return false, nil
	}

	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return false, fmt.Errorf("otp: consume code: %w", err)
	}

	return true, nil
}

func key(userID string) string {
	return "otp:" + userID
}

func generate() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}

	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
