package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255)    NOT NULL,
		password_hash VARCHAR(255)    NOT NULL,
		role          VARCHAR(16)     NOT NULL DEFAULT 'CUSTOMER',
		is_active     BOOLEAN         NOT NULL DEFAULT TRUE,
		created_at    DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at    DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64)        NOT NULL,
		expires_at DATETIME(6)     NOT NULL,
		revoked_at DATETIME(6)     NULL,
		created_at DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_refresh_token_hash (token_hash),
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS balances (
		user_id    BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		amount     DECIMAL(12,2)   NOT NULL DEFAULT 0,
		updated_at DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		CONSTRAINT chk_balance_non_negative CHECK (amount >= 0),
		CONSTRAINT fk_balance_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS karts (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		type        VARCHAR(64)     NOT NULL,
		hourly_cost INT UNSIGNED    NOT NULL,
		latitude    DOUBLE          NOT NULL,
		longitude   DOUBLE          NOT NULL,
		created_at  DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		kart_id    BIGINT UNSIGNED NOT NULL,
		start_time DATETIME(6)     NOT NULL,
		end_time   DATETIME(6)     NOT NULL,
		created_at DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		KEY idx_bookings_kart_window (kart_id, start_time, end_time),
		KEY idx_bookings_user_start (user_id, start_time),
		CONSTRAINT chk_booking_interval CHECK (start_time < end_time),
		CONSTRAINT fk_booking_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
		CONSTRAINT fk_booking_kart FOREIGN KEY (kart_id) REFERENCES karts (id) ON DELETE RESTRICT
	) ENGINE=InnoDB`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
