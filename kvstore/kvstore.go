// Package kvstore holds short-lived authentication state (single-use tokens,
// lockout counters, 2FA enrollments) behind a small interface with atomic
// conditional writes. MemoryStore serves single-instance deployments and tests;
// RedisStore is shared between instances.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// KeepTTL passed to CompareAndSwap leaves the key's current expiry untouched.
const KeepTTL time.Duration = -1

// maxUpdateRetries bounds the optimistic loop in UpdateJSON.
const maxUpdateRetries = 8

var (
	ErrNotFound = errors.New("kvstore: key not found")
	ErrConflict = errors.New("kvstore: concurrent update conflict")
)

// Store is the contract both backends satisfy. A ttl of 0 means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent writes value only when key does not exist. Reports whether it wrote.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CompareAndSwap replaces the value only if the stored bytes equal old.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only if the stored bytes equal old.
	CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error)
	Delete(ctx context.Context, key string) error
}

// GetJSON loads key and decodes it into a T.
func GetJSON[T any](ctx context.Context, s Store, key string) (*T, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &out, nil
}

// PutJSONIfAbsent encodes v and stores it only when key is free.
func PutJSONIfAbsent[T any](ctx context.Context, s Store, key string, v *T, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.PutIfAbsent(ctx, key, raw, ttl)
}

// UpdateFunc receives the current value (nil when absent) and returns the next
// value. Returning nil deletes the key. A non-nil error aborts without writing
// and is returned by UpdateJSON unchanged.
type UpdateFunc[T any] func(cur *T) (next *T, ttl time.Duration, err error)

// UpdateJSON runs an optimistic read-modify-write on key. The stored bytes are
// compared on write, so a concurrent writer forces a retry with fresh state.
// The final value (nil if deleted) is returned.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn UpdateFunc[T]) (*T, error) {
	for i := 0; i < maxUpdateRetries; i++ {
		raw, err := s.Get(ctx, key)
		var cur *T
		switch {
		case errors.Is(err, ErrNotFound):
			raw = nil
		case err != nil:
			return nil, err
		default:
			cur = new(T)
			if err := json.Unmarshal(raw, cur); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
		}

		next, ttl, err := fn(cur)
		if err != nil {
			return nil, err
		}

		var ok bool
		switch {
		case next == nil && raw == nil:
			return nil, nil
		case next == nil:
			ok, err = s.CompareAndDelete(ctx, key, raw)
		default:
			encoded, encErr := json.Marshal(next)
			if encErr != nil {
				return nil, fmt.Errorf("encoding %s: %w", key, encErr)
			}
			if raw == nil {
				ok, err = s.PutIfAbsent(ctx, key, encoded, ttl)
			} else {
				ok, err = s.CompareAndSwap(ctx, key, raw, encoded, ttl)
			}
		}
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
	}
	return nil, ErrConflict
}
