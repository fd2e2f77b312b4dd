package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables the reservation core owns.  shows is normally
// owned by the catalog service; it is created here so a standalone
// deployment and the integration tests have something to read.
//
// booking_seats holds one row per seat of every pending or confirmed
// booking.  Its unique key is what keeps two active bookings of the same
// show from sharing a seat; rows are deleted when a booking is cancelled
// or its payment fails.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS shows (
		id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		movie_title  VARCHAR(255)    NOT NULL,
		theater      VARCHAR(255)    NOT NULL,
		screen       VARCHAR(64)     NOT NULL,
		starts_at    DATETIME        NOT NULL,
		ends_at      DATETIME        NOT NULL,
		price_cents  INT UNSIGNED    NOT NULL DEFAULT 0,
		total_seats  INT UNSIGNED    NOT NULL DEFAULT 140,
		booked_seats INT UNSIGNED    NOT NULL DEFAULT 0,
		is_active    TINYINT(1)      NOT NULL DEFAULT 1,
		created_at   DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT chk_shows_counter CHECK (booked_seats <= total_seats),
		CONSTRAINT chk_shows_times CHECK (ends_at > starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seat_locks (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		show_id    BIGINT UNSIGNED NOT NULL,
		seat_code  VARCHAR(8)      NOT NULL,
		user_id    BIGINT UNSIGNED NOT NULL,
		expires_at DATETIME(3)     NOT NULL,
		created_at DATETIME(3)     NOT NULL,
		UNIQUE KEY uq_seat_locks_show_seat (show_id, seat_code),
		KEY idx_seat_locks_user (show_id, user_id),
		KEY idx_seat_locks_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		booking_reference  VARCHAR(32)     NOT NULL,
		user_id            BIGINT UNSIGNED NOT NULL,
		show_id            BIGINT UNSIGNED NOT NULL,
		movie_title        VARCHAR(255)    NOT NULL,
		theater            VARCHAR(255)    NOT NULL,
		screen             VARCHAR(64)     NOT NULL,
		show_time          DATETIME        NOT NULL,
		seats              VARCHAR(64)     NOT NULL,
		seat_count         TINYINT UNSIGNED NOT NULL,
		total_amount_cents BIGINT UNSIGNED NOT NULL,
		status             ENUM('pending','confirmed','cancelled') NOT NULL,
		payment_status     ENUM('pending','paid','failed')         NOT NULL,
		payment_method     ENUM('cash','online')                   NOT NULL,
		payment_ref        VARCHAR(128)    NULL,
		created_at         DATETIME(3)     NOT NULL,
		updated_at         DATETIME(3)     NOT NULL,
		UNIQUE KEY uq_bookings_reference (booking_reference),
		KEY idx_bookings_user (user_id, created_at),
		KEY idx_bookings_payment_ref (payment_ref),
		KEY idx_bookings_pending (user_id, show_id, payment_status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS booking_seats (
		booking_id BIGINT UNSIGNED NOT NULL,
		show_id    BIGINT UNSIGNED NOT NULL,
		seat_code  VARCHAR(8)      NOT NULL,
		PRIMARY KEY (booking_id, seat_code),
		UNIQUE KEY uq_booking_seats_show_seat (show_id, seat_code),
		CONSTRAINT fk_booking_seats_booking FOREIGN KEY (booking_id) REFERENCES bookings (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing tables.  It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
