package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRetryWithBackoff(t *testing.T) {
	serverErr := &APIError{StatusCode: 500, ErrorClass: ErrorClassServer}
	clientErr := &APIError{StatusCode: 400, ErrorClass: ErrorClassClient}

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{
			name:      "success first try",
			errs:      []error{nil},
			wantCalls: 1,
		},
		{
			name:      "success after server errors",
			errs:      []error{serverErr, serverErr, nil},
			wantCalls: 3,
		},
		{
			name:      "client error not retried",
			errs:      []error{clientErr},
			wantCalls: 1,
			wantErr:   clientErr,
		},
		{
			name:      "exhausted",
			errs:      []error{serverErr, serverErr, serverErr, serverErr},
			wantCalls: 3,
			wantErr:   ErrRetryExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), func() error {
				e := tt.errs[min(calls, len(tt.errs)-1)]
				calls++
				return e
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryWithBackoff_HonoursRetryAfter(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxBackoff = 30 * time.Millisecond
	limited := &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, RetryAfter: time.Hour}

	calls := 0
	start := time.Now()
	err := retryWithBackoff(context.Background(), cfg, zerolog.Nop(), func() error {
		calls++
		if calls == 1 {
			return limited
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if elapsed < 30*time.Millisecond {
		t.Errorf("waited %v, want Retry-After capped at MaxBackoff (30ms)", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("waited %v, Retry-After not capped", elapsed)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	cfg := fastRetry()
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryWithBackoff(ctx, cfg, zerolog.Nop(), func() error {
		calls++
		cancel()
		return &APIError{StatusCode: 503, ErrorClass: ErrorClassServer}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("err = %v, want ErrContextCancelled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxAttempts != 3 || cfg.InitialBackoff != 200*time.Millisecond || cfg.MaxBackoff != 2*time.Second {
		t.Errorf("DefaultRetryConfig() = %+v", cfg)
	}
}
