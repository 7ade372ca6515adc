// Package store is the Postgres adapter behind the subscription service's
// KeyStore and Entitlements interfaces. It reads the bot's tables; the
// orchestration core never imports this package — only the process wiring
// does.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jarvisvpn/jvpnd/internal/subscription"
)

// Store wraps the database handle.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type keyRow struct {
	DeviceID   int            `db:"device_id"`
	ServerID   string         `db:"server_id"`
	DeviceName sql.NullString `db:"device_name"`
}

// ActiveKeys returns the user's active device bindings.
func (s *Store) ActiveKeys(ctx context.Context, userID int64) ([]subscription.KeyRecord, error) {
	var rows []keyRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT device_id, server_id, device_name
		   FROM tunnel_keys
		  WHERE user_id = $1 AND is_active = TRUE
		  ORDER BY device_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("selecting keys for user %d: %w", userID, err)
	}

	records := make([]subscription.KeyRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, subscription.KeyRecord{
			UserID:   userID,
			DeviceID: r.DeviceID,
			ServerID: r.ServerID,
			Name:     r.DeviceName.String,
		})
	}
	return records, nil
}

// Check reports whether the user has VPN access: an active subscription
// wins, a running trial counts too.
func (s *Store) Check(ctx context.Context, userID int64) (subscription.Entitlement, error) {
	var expires sql.NullTime
	err := s.db.GetContext(ctx, &expires,
		`SELECT expires_at FROM subscriptions
		  WHERE user_id = $1 AND status = 'active'
		  ORDER BY expires_at DESC NULLS FIRST
		  LIMIT 1`, userID)
	switch {
	case err == nil:
		if !expires.Valid {
			return subscription.Entitlement{Active: true}, nil
		}
		if expires.Time.After(time.Now()) {
			return subscription.Entitlement{Active: true, ExpiresAt: expires.Time}, nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return subscription.Entitlement{}, fmt.Errorf("selecting subscription for user %d: %w", userID, err)
	}

	var trialExpires sql.NullTime
	err = s.db.GetContext(ctx, &trialExpires,
		`SELECT vpn_trial_expires FROM users
		  WHERE id = $1 AND vpn_trial_used = TRUE`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return subscription.Entitlement{}, nil
	case err != nil:
		return subscription.Entitlement{}, fmt.Errorf("selecting trial for user %d: %w", userID, err)
	}

	if trialExpires.Valid && trialExpires.Time.After(time.Now()) {
		return subscription.Entitlement{Active: true, ExpiresAt: trialExpires.Time}, nil
	}
	return subscription.Entitlement{}, nil
}
