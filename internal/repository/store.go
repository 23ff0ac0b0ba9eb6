// Package store persists the settings rows and the upstream call audit log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

// Store is the persistence surface used by the service and the CLI.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	ListSettings(ctx context.Context) (map[string]string, error)

	RecordLLMCall(ctx context.Context, call *domain.LLMCall) error
	ListLLMCalls(ctx context.Context, limit int) ([]domain.LLMCall, error)

	Close() error
}

// Open opens the store for driver ("sqlite" or "postgres").
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return NewSQLiteStore(dsn)
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// sqlStore holds the queries shared by both drivers. Queries are written with
// ? placeholders and rebound for drivers that number them.
type sqlStore struct {
	db     *sql.DB
	rebind func(string) string
	upsert string
}

func (s *sqlStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM settings WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *sqlStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(s.upsert), key, value)
	return err
}

func (s *sqlStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM settings WHERE key = ?`), key)
	return err
}

func (s *sqlStore) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (s *sqlStore) RecordLLMCall(ctx context.Context, call *domain.LLMCall) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO llm_calls (call_id, request_id, op, model, stream, latency_ms, error_kind, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		call.CallID, nullString(call.RequestID), string(call.Op), call.Model, call.Stream,
		call.LatencyMs, nullString(call.ErrorKind), nullString(call.Error), call.CreatedAt.UTC())
	return err
}

func (s *sqlStore) ListLLMCalls(ctx context.Context, limit int) ([]domain.LLMCall, error) {
	query := `SELECT call_id, request_id, op, model, stream, latency_ms, error_kind, error, created_at
		FROM llm_calls ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []domain.LLMCall
	for rows.Next() {
		var (
			call                       domain.LLMCall
			op                         string
			requestID, errKind, errMsg sql.NullString
		)
		if err := rows.Scan(&call.CallID, &requestID, &op, &call.Model, &call.Stream,
			&call.LatencyMs, &errKind, &errMsg, &call.CreatedAt); err != nil {
			return nil, err
		}
		call.Op = domain.CallOp(op)
		call.RequestID = requestID.String
		call.ErrorKind = errKind.String
		call.Error = errMsg.String
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// rebindDollar converts ? placeholders to $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func identity(query string) string { return query }

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
