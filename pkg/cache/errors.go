package cache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrStorageUnavailable indicates the storage medium is disabled or unreachable.
	ErrStorageUnavailable = errors.New("cache storage unavailable")

	// ErrQuotaExceeded indicates the storage medium refused a write for lack of space.
	ErrQuotaExceeded = errors.New("cache quota exceeded")

	// ErrSerialization indicates a value could not be encoded for storage.
	ErrSerialization = errors.New("cache serialization failure")

	// ErrDeserialization indicates a stored value could not be decoded.
	// The validator reports it as StatusCorrupted.
	ErrDeserialization = errors.New("cache deserialization failure")
)

// quotaMarkers are driver error fragments signalling a full medium.
var quotaMarkers = []string{
	"database or disk is full", // sqlite SQLITE_FULL
	"disk i/o error",           // sqlite SQLITE_IOERR on full disks
	"oom command not allowed",  // redis maxmemory reached
	"no space left on device",
}

// classifyStoreError wraps a backend error in the matching taxonomy sentinel.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%s: %w: %v", op, ErrQuotaExceeded, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}

// errorClass returns the metric label for a taxonomy error.
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrDeserialization):
		return "deserialization"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "unknown"
	}
}
