package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

func TestLoadReservationConfigDefaults(t *testing.T) {
	for _, k := range []string{"LOCK_TTL", "CANCEL_CUTOFF", "MAX_SEATS_PER_BOOKING", "SEAT_GRID_ROWS", "SEAT_GRID_COLS", "LOCK_REAP_INTERVAL", "COMMIT_RETRY_ATTEMPTS", "COMMIT_RETRY_BASE"} {
		t.Setenv(k, "")
	}
	c := LoadReservationConfig()
	if c.LockTTL != 10*time.Minute {
		t.Fatalf("expected 10m lock ttl, got %v", c.LockTTL)
	}
	if c.CancelCutoff != 2*time.Hour {
		t.Fatalf("expected 2h cutoff, got %v", c.CancelCutoff)
	}
	if c.MaxSeatsPerBooking != 6 {
		t.Fatalf("expected 6 seats, got %d", c.MaxSeatsPerBooking)
	}
	if c.Grid != model.DefaultSeatGrid {
		t.Fatalf("expected default grid, got %+v", c.Grid)
	}
	if c.CommitRetryAttempts != 5 || c.CommitRetryBase != 100*time.Millisecond {
		t.Fatalf("unexpected retry settings %d/%v", c.CommitRetryAttempts, c.CommitRetryBase)
	}
}

func TestLoadReservationConfigOverridesAndClamps(t *testing.T) {
	t.Setenv("LOCK_TTL", "90s")
	t.Setenv("CANCEL_CUTOFF", "-1h")
	t.Setenv("MAX_SEATS_PER_BOOKING", "0")
	t.Setenv("SEAT_GRID_ROWS", "30")
	t.Setenv("SEAT_GRID_COLS", "20")
	t.Setenv("LOCK_REAP_INTERVAL", "bogus")
	t.Setenv("COMMIT_RETRY_ATTEMPTS", "-3")
	t.Setenv("COMMIT_RETRY_BASE", "0s")

	c := LoadReservationConfig()
	if c.LockTTL != 90*time.Second {
		t.Fatalf("expected 90s, got %v", c.LockTTL)
	}
	if c.CancelCutoff != 0 {
		t.Fatalf("expected negative cutoff clamped to 0, got %v", c.CancelCutoff)
	}
	if c.MaxSeatsPerBooking != model.MaxSeatsPerBooking {
		t.Fatalf("expected default max seats, got %d", c.MaxSeatsPerBooking)
	}
	if c.Grid.Rows != model.DefaultSeatGrid.Rows || c.Grid.Cols != 20 {
		t.Fatalf("unexpected grid %+v", c.Grid)
	}
	if c.ReapInterval != time.Minute {
		t.Fatalf("expected fallback reap interval, got %v", c.ReapInterval)
	}
	if c.CommitRetryAttempts != 1 || c.CommitRetryBase != 100*time.Millisecond {
		t.Fatalf("unexpected retry settings %d/%v", c.CommitRetryAttempts, c.CommitRetryBase)
	}
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	c := LoadRateLimitConfig()
	if c.Enabled {
		t.Fatalf("expected limiter disabled")
	}
	if c.Capacity != 5 {
		t.Fatalf("expected burst to override capacity, got %d", c.Capacity)
	}
	if c.TTL != 10*time.Second {
		t.Fatalf("expected ttl raised to 5 refill intervals, got %v", c.TTL)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SEATLOCK_DOTENV_LOAD=from-file\nSEATLOCK_DOTENV_KEEP=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SEATLOCK_DOTENV_KEEP", "from-env")
	t.Setenv("SEATLOCK_DOTENV_LOAD", "")
	os.Unsetenv("SEATLOCK_DOTENV_LOAD")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := os.Getenv("SEATLOCK_DOTENV_LOAD"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("SEATLOCK_DOTENV_KEEP"); got != "from-env" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TLS", "1")

	o := RedisOptions()
	if o.Addr != "cache:6380" || o.DB != 2 {
		t.Fatalf("unexpected options %s/%d", o.Addr, o.DB)
	}
	if o.TLSConfig == nil {
		t.Fatalf("expected tls config")
	}
}
