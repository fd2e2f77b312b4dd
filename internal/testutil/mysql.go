// Package testutil holds helpers for the MySQL integration tests.  Tests
// that call NewTestDB are skipped when TEST_MYSQL_DSN is unset or the server
// is unreachable.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/database"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/repository"
)

// testDBLock serializes integration tests from different packages that
// share one database.
const testDBLock = "cinema_seat_locking_tests"

// NewTestDB opens the database named by TEST_MYSQL_DSN, applies the schema
// and holds a named lock on it until the test finishes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping MySQL integration tests: TEST_MYSQL_DSN not set")
	}

	db, err := database.OpenDSN(dsn)
	if err != nil {
		t.Skipf("skipping MySQL integration tests: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("reserve conn: %v", err)
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 30)`, testDBLock).Scan(&got); err != nil || got.Int64 != 1 {
		_ = conn.Close()
		t.Fatalf("acquire test db lock: got=%v err=%v", got, err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, testDBLock)
		_ = conn.Close()
	})

	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// TruncateAll empties every table.
func TruncateAll(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("truncate conn: %v", err)
	}
	defer conn.Close()
	stmts := []string{
		`SET FOREIGN_KEY_CHECKS = 0`,
		`TRUNCATE TABLE booking_seats`,
		`TRUNCATE TABLE bookings`,
		`TRUNCATE TABLE seat_locks`,
		`TRUNCATE TABLE shows`,
		`SET FOREIGN_KEY_CHECKS = 1`,
	}
	for _, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			t.Fatalf("truncate: %s: %v", s, err)
		}
	}
}

// InsertShow creates an active show starting at startsAt with the given
// capacity and returns it.
func InsertShow(t *testing.T, ctx context.Context, db *sql.DB, startsAt time.Time, totalSeats uint32) model.Show {
	t.Helper()
	s := model.Show{
		MovieTitle: "Inception",
		Theater:    "Grand",
		Screen:     "Screen 1",
		StartsAt:   startsAt.UTC().Truncate(time.Second),
		EndsAt:     startsAt.UTC().Truncate(time.Second).Add(2 * time.Hour),
		PriceCents: 1250,
		TotalSeats: totalSeats,
		IsActive:   true,
	}
	if err := repository.NewShowRepo(db).Create(ctx, &s); err != nil {
		t.Fatalf("insert show: %v", err)
	}
	return s
}

// CountRows returns SELECT COUNT(*) for the given query.
func CountRows(t *testing.T, ctx context.Context, db *sql.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
