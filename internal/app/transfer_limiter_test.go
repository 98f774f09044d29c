package app

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNormalizeLimiterPrefix(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "ledger:rate_limit"},
		{"   ", "ledger:rate_limit"},
		{"custom:prefix", "custom:prefix"},
		{"custom:prefix:", "custom:prefix"},
		{"  custom  ", "custom"},
	}
	for _, tc := range cases {
		if got := normalizeLimiterPrefix(tc.in); got != tc.want {
			t.Fatalf("normalizeLimiterPrefix(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseTransferWindowReply(t *testing.T) {
	attempts, remaining, err := parseTransferWindowReply([]interface{}{int64(3), int64(45000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 || remaining != 45000 {
		t.Fatalf("expected (3, 45000), got (%d, %d)", attempts, remaining)
	}
}

func TestParseTransferWindowReply_RejectsMalformedReplies(t *testing.T) {
	cases := []interface{}{
		"not a slice",
		[]interface{}{int64(1)},
		[]interface{}{"one", int64(2)},
		[]interface{}{int64(1), "two"},
	}
	for _, raw := range cases {
		if _, _, err := parseTransferWindowReply(raw); err == nil {
			t.Fatalf("expected an error for reply %#v", raw)
		}
		if _, _, err := parseTransferWindowReply(raw); !strings.Contains(err.Error(), "limiter") {
			t.Fatalf("expected a limiter-identifying error, got %v", err)
		}
	}
}

func TestConsumeTransferSlot_DisabledConfigurationsAreNoOps(t *testing.T) {
	limiter := NewRedisTransferLimiter(nil, "")

	cases := []struct {
		name            string
		sourceAccountID int64
		limit           int
		window          time.Duration
	}{
		{"nil client", 1, 10, time.Minute},
		{"zero limit", 1, 0, time.Minute},
		{"zero window", 1, 10, 0},
		{"invalid account id", 0, 10, time.Minute},
	}
	for _, tc := range cases {
		count, retryAfter, err := limiter.ConsumeTransferSlot(context.Background(), tc.sourceAccountID, tc.limit, tc.window)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if count != 0 || retryAfter != 0 {
			t.Fatalf("%s: expected a no-op (0, 0), got (%d, %v)", tc.name, count, retryAfter)
		}
	}
}
