package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"promobot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements AccountStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed account store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS accounts (
		title TEXT PRIMARY KEY,
		phone_number TEXT NOT NULL,
		card_number TEXT NOT NULL,
		external_customer_id TEXT NOT NULL,
		auth_token TEXT NOT NULL,
		session_token_a TEXT NOT NULL,
		session_token_b TEXT NOT NULL,
		csrf_token TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Put inserts or replaces the account stored under record.Title.
func (s *SQLiteStore) Put(ctx context.Context, record domain.AccountRecord) error {
	query := `
	INSERT INTO accounts (
		title, phone_number, card_number, external_customer_id, auth_token,
		session_token_a, session_token_b, csrf_token, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(title) DO UPDATE SET
		phone_number = excluded.phone_number,
		card_number = excluded.card_number,
		external_customer_id = excluded.external_customer_id,
		auth_token = excluded.auth_token,
		session_token_a = excluded.session_token_a,
		session_token_b = excluded.session_token_b,
		csrf_token = excluded.csrf_token,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, query,
		record.Title, record.PhoneNumber, record.CardNumber,
		record.ExternalCustomerID, record.AuthToken,
		record.Credentials.SessionTokenA, record.Credentials.SessionTokenB,
		record.Credentials.CSRFToken, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// Get retrieves the account stored under title.
func (s *SQLiteStore) Get(ctx context.Context, title string) (domain.AccountRecord, error) {
	query := `
		SELECT title, phone_number, card_number, external_customer_id, auth_token,
		       session_token_a, session_token_b, csrf_token
		FROM accounts WHERE title = ?`

	row := s.db.QueryRowContext(ctx, query, title)
	record, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return domain.AccountRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.AccountRecord{}, fmt.Errorf("scan account row: %w", err)
	}
	return record, nil
}

// Delete removes the account stored under title and returns it. The single
// RETURNING statement guarantees the returned record is exactly the row
// that was deleted.
func (s *SQLiteStore) Delete(ctx context.Context, title string) (domain.AccountRecord, error) {
	query := `
		DELETE FROM accounts WHERE title = ?
		RETURNING title, phone_number, card_number, external_customer_id, auth_token,
		          session_token_a, session_token_b, csrf_token`

	row := s.db.QueryRowContext(ctx, query, title)
	record, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return domain.AccountRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.AccountRecord{}, fmt.Errorf("delete account: %w", err)
	}
	return record, nil
}

// Rename moves the account from oldTitle to newTitle.
func (s *SQLiteStore) Rename(ctx context.Context, oldTitle, newTitle string) error {
	query := `UPDATE accounts SET title = ?, updated_at = ? WHERE title = ?`
	result, err := s.db.ExecContext(ctx, query, newTitle, time.Now().Unix(), oldTitle)
	if err != nil {
		return fmt.Errorf("rename account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all accounts ordered by title.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.AccountRecord, error) {
	query := `
		SELECT title, phone_number, card_number, external_customer_id, auth_token,
		       session_token_a, session_token_b, csrf_token
		FROM accounts ORDER BY title`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var records []domain.AccountRecord
	for rows.Next() {
		record, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.AccountRecord, error) {
	var record domain.AccountRecord
	err := row.Scan(
		&record.Title, &record.PhoneNumber, &record.CardNumber,
		&record.ExternalCustomerID, &record.AuthToken,
		&record.Credentials.SessionTokenA, &record.Credentials.SessionTokenB,
		&record.Credentials.CSRFToken,
	)
	return record, err
}
