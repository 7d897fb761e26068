package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"corridor/internal/logs/models"
	audit "corridor/pkg/platform/audit"
	"corridor/pkg/platform/tx"
)

// Schema creates the audit_logs table and the indexes the query views use.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL,
	service_name  TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	id_type       TEXT NOT NULL,
	user_email    TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	severity      TEXT NOT NULL,
	data          JSONB NOT NULL DEFAULT '{}'::jsonb,
	http_method   TEXT NOT NULL DEFAULT '',
	http_status   INTEGER NOT NULL DEFAULT 0,
	endpoint      TEXT NOT NULL DEFAULT '',
	ip_address    TEXT NOT NULL DEFAULT '',
	user_agent    TEXT NOT NULL DEFAULT '',
	duration_ms   BIGINT,
	error_message TEXT NOT NULL DEFAULT '',
	error_stack   TEXT NOT NULL DEFAULT '',
	time          TIMESTAMPTZ NOT NULL,
	environment   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_logs_user_time ON audit_logs (user_id, time DESC);
CREATE INDEX IF NOT EXISTS audit_logs_request_time ON audit_logs (request_id, time);
CREATE INDEX IF NOT EXISTS audit_logs_severity_time ON audit_logs (severity, time DESC);
CREATE INDEX IF NOT EXISTS audit_logs_time ON audit_logs (time DESC);
`

const selectColumns = `
	id, request_id, service_name, user_id, id_type, user_email, action, severity,
	data, http_method, http_status, endpoint, ip_address, user_agent, duration_ms,
	error_message, error_stack, time, environment`

// Store persists audit records in PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// conn joins the caller's transaction when ctx carries one.
func (s *Store) conn(ctx context.Context) dbtx {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// EnsureSchema applies Schema. It is safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit_logs schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append inserts record. Redelivered records with a known ID are ignored via
// ON CONFLICT DO NOTHING, and Append reports false for them.
func (s *Store) Append(ctx context.Context, record audit.Record) (bool, error) {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return false, fmt.Errorf("marshal audit data: %w", err)
	}

	query := `
		INSERT INTO audit_logs (
			id, request_id, service_name, user_id, id_type, user_email, action, severity,
			data, http_method, http_status, endpoint, ip_address, user_agent, duration_ms,
			error_message, error_stack, time, environment
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		record.ID,
		record.RequestID,
		record.ServiceName,
		record.UserID,
		string(record.IDType),
		record.UserEmail,
		string(record.Action),
		string(record.Severity),
		string(data),
		record.HTTPMethod,
		record.HTTPStatus,
		record.Endpoint,
		record.IPAddress,
		record.UserAgent,
		record.DurationMs,
		record.ErrorMessage,
		record.ErrorStack,
		record.Time,
		record.Environment,
	)
	if err != nil {
		return false, fmt.Errorf("insert audit record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert audit record: %w", err)
	}
	return n == 1, nil
}

// Find runs q against audit_logs.
func (s *Store) Find(ctx context.Context, q models.Query) ([]audit.Record, error) {
	where, args := whereClause(q)
	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}
	args = append(args, q.EffectiveLimit(models.MaxLimit))
	query := fmt.Sprintf("SELECT %s FROM audit_logs%s ORDER BY time %s, id %s LIMIT $%d",
		selectColumns, where, order, order, len(args))

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func whereClause(q models.Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.UserID != "" {
		add("user_id = $%d", q.UserID)
	}
	if q.IDType != "" {
		add("id_type = $%d", string(q.IDType))
	}
	if q.RequestID != "" {
		add("request_id = $%d", q.RequestID)
	}
	if q.ServiceName != "" {
		add("service_name = $%d", q.ServiceName)
	}
	if q.Action != "" {
		add("action = $%d", string(q.Action))
	}
	if len(q.Severities) > 0 {
		severities := make([]string, len(q.Severities))
		for i, sev := range q.Severities {
			severities[i] = string(sev)
		}
		add("severity = ANY($%d)", pq.Array(severities))
	}
	if !q.From.IsZero() {
		add("time >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("time <= $%d", q.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	records := make([]audit.Record, 0)
	for rows.Next() {
		var (
			r                        audit.Record
			idType, action, severity string
			data                     []byte
			duration                 sql.NullInt64
		)
		err := rows.Scan(
			&r.ID,
			&r.RequestID,
			&r.ServiceName,
			&r.UserID,
			&idType,
			&r.UserEmail,
			&action,
			&severity,
			&data,
			&r.HTTPMethod,
			&r.HTTPStatus,
			&r.Endpoint,
			&r.IPAddress,
			&r.UserAgent,
			&duration,
			&r.ErrorMessage,
			&r.ErrorStack,
			&r.Time,
			&r.Environment,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.IDType = audit.IDType(idType)
		r.Action = audit.Action(action)
		r.Severity = audit.Severity(severity)
		if duration.Valid {
			ms := duration.Int64
			r.DurationMs = &ms
		}
		if err := json.Unmarshal(data, &r.Data); err != nil {
			return nil, fmt.Errorf("decode audit data: %w", err)
		}
		r.Time = r.Time.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
