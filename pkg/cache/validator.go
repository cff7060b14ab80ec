package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the outcome of validating a cached entry.
type Status string

const (
	// StatusValid means the entry is fresh and decoded successfully.
	StatusValid Status = "valid"

	// StatusExpired means the entry exists but is stale. It stays in storage.
	StatusExpired Status = "expired"

	// StatusNotFound means no entry exists for the key.
	StatusNotFound Status = "not_found"

	// StatusCorrupted means the entry exists but does not decode into the
	// shape expected for its kind. Callers treat it like a miss.
	StatusCorrupted Status = "corrupted"
)

// Result is the outcome of a validated read. Data is set only when Status
// is StatusValid.
type Result[T any] struct {
	Status   Status
	Data     *T
	Metadata Metadata

	// Err carries the underlying cause for corrupted results and for
	// not_found results produced by a storage failure.
	Err error
}

// OK reports whether the result carries usable data.
func (r Result[T]) OK() bool {
	return r.Status == StatusValid && r.Data != nil
}

// Value returns the entry of a valid result. Any other result yields an
// error wrapping ErrCacheMiss and, when present, the underlying cause.
func (r Result[T]) Value() (*T, error) {
	if r.OK() {
		return r.Data, nil
	}
	if r.Err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrCacheMiss, r.Status, r.Err)
	}
	return nil, fmt.Errorf("%w (%s)", ErrCacheMiss, r.Status)
}

// entryPtr constrains P to the pointer type of an Entry value type.
type entryPtr[T any] interface {
	*T
	Entry
}

// Validate reads key from store and classifies the stored entry at now.
// The expiry check runs before any payload decoding, so an entry that is
// both stale and malformed reports StatusExpired.
func Validate[T any, P entryPtr[T]](ctx context.Context, store Store, key CacheKey, now time.Time) Result[T] {
	res := validate[T, P](ctx, store, key, now)
	CacheReads.WithLabelValues(string(key.Kind), string(res.Status)).Inc()
	return res
}

func validate[T any, P entryPtr[T]](ctx context.Context, store Store, key CacheKey, now time.Time) Result[T] {
	data, ok, err := store.Get(ctx, key.String())
	if err != nil {
		CacheErrors.WithLabelValues("get", errorClass(err)).Inc()
		return Result[T]{Status: StatusNotFound, Err: err}
	}
	if !ok {
		return Result[T]{Status: StatusNotFound}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return corrupted[T](fmt.Errorf("%w: record: %v", ErrDeserialization, err))
	}

	if rec.Metadata.IsExpired(now) {
		return Result[T]{Status: StatusExpired, Metadata: rec.Metadata}
	}

	if want := P(new(T)).CacheKind(); rec.Kind != key.Kind || want != key.Kind {
		return corrupted[T](fmt.Errorf("%w: kind %q stored under %q key, decoding as %q",
			ErrDeserialization, rec.Kind, key.Kind, want))
	}
	if rec.Metadata.Key != key.String() {
		return corrupted[T](fmt.Errorf("%w: metadata key %q does not match %q",
			ErrDeserialization, rec.Metadata.Key, key.String()))
	}
	if rec.Metadata.TTL <= 0 || rec.Metadata.ExpiresAt != rec.Metadata.Timestamp+rec.Metadata.TTL {
		return corrupted[T](fmt.Errorf("%w: inconsistent metadata", ErrDeserialization))
	}

	var value T
	dec := json.NewDecoder(bytes.NewReader(rec.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&value); err != nil {
		return corrupted[T](fmt.Errorf("%w: payload: %v", ErrDeserialization, err))
	}
	if err := P(&value).check(key); err != nil {
		return corrupted[T](fmt.Errorf("%w: %v", ErrDeserialization, err))
	}
	if cachedAt, expiresAt := P(&value).lifetime(); cachedAt != rec.Metadata.Timestamp || expiresAt != rec.Metadata.ExpiresAt {
		return corrupted[T](fmt.Errorf("%w: payload lifetime %d..%d differs from metadata %d..%d",
			ErrDeserialization, cachedAt, expiresAt, rec.Metadata.Timestamp, rec.Metadata.ExpiresAt))
	}

	return Result[T]{Status: StatusValid, Data: &value, Metadata: rec.Metadata}
}

func corrupted[T any](err error) Result[T] {
	return Result[T]{Status: StatusCorrupted, Err: err}
}
