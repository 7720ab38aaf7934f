package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteJournal is the durable Journal backed by a local sqlite file.
type SQLiteJournal struct {
	db *sql.DB
}

var _ Journal = (*SQLiteJournal)(nil)

func NewSQLiteJournal(db *sql.DB) (*SQLiteJournal, error) {
	s := &SQLiteJournal{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteJournal opens (or creates) the journal database at path.
func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}
	return NewSQLiteJournal(db)
}

// Close releases the underlying database handle.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

func (s *SQLiteJournal) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS submissions (
        id TEXT PRIMARY KEY,
        tx_id TEXT NOT NULL,
        vault TEXT NOT NULL,
        op TEXT NOT NULL,
        destination TEXT,
        amount INTEGER NOT NULL DEFAULT 0,
        intent_hash TEXT,
        status TEXT NOT NULL,
        attempts INTEGER NOT NULL DEFAULT 1,
        last_error TEXT NOT NULL DEFAULT '',
        submitted_at DATETIME,
        resolved_at DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_submissions_tx_id ON submissions (tx_id);
    CREATE INDEX IF NOT EXISTS idx_submissions_vault ON submissions (vault, submitted_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteJournal) Record(ctx context.Context, r *SubmissionRecord) error {
	query := `INSERT INTO submissions (
		id, tx_id, vault, op, destination, amount, intent_hash, status, attempts, last_error, submitted_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, string(r.TxID), r.Vault.String(), r.Op, r.Destination.String(), int64(r.Amount),
		r.IntentHash, string(r.Status), r.Attempts, r.LastError,
		formatTime(r.SubmittedAt), formatTime(r.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

func (s *SQLiteJournal) Resolve(ctx context.Context, id string, status SubmissionStatus, lastErr string, at time.Time) error {
	query := `UPDATE submissions
		SET status = ?,
		    last_error = ?,
		    resolved_at = CASE WHEN ? IN ('CONFIRMED', 'FAILED') THEN ? ELSE resolved_at END,
		    attempts = CASE WHEN ? IN ('AMBIGUOUS', 'TIMED_OUT') THEN attempts + 1 ELSE attempts END
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
		string(status), lastErr, string(status), formatTime(at), string(status), id)
	if err != nil {
		return fmt.Errorf("failed to resolve submission: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("submission not found")
	}
	return nil
}

const submissionColumns = `id, tx_id, vault, op, destination, amount, intent_hash, status, attempts, last_error, submitted_at, resolved_at`

func (s *SQLiteJournal) GetByTxID(ctx context.Context, txID contracts.TxID) (*SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE tx_id = ? LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, string(txID))
	r, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission not found")
	}
	return r, err
}

func (s *SQLiteJournal) ListUnresolved(ctx context.Context) ([]*SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE status NOT IN ('CONFIRMED', 'FAILED')
		ORDER BY submitted_at ASC`
	return s.list(ctx, query)
}

func (s *SQLiteJournal) ListByVault(ctx context.Context, vault contracts.Address, limit int) ([]*SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE vault = ?
		ORDER BY submitted_at DESC
		LIMIT ?`
	return s.list(ctx, query, vault.String(), limit)
}

func (s *SQLiteJournal) list(ctx context.Context, query string, args ...any) ([]*SubmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*SubmissionRecord
	for rows.Next() {
		r, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*SubmissionRecord, error) {
	var (
		id          string
		txID        string
		vaultStr    string
		op          string
		destStr     sql.NullString
		amt         int64
		intentHash  sql.NullString
		status      string
		attempts    int
		lastErr     string
		submittedAt sql.NullString
		resolvedAt  sql.NullString
	)
	if err := row.Scan(&id, &txID, &vaultStr, &op, &destStr, &amt, &intentHash, &status, &attempts, &lastErr, &submittedAt, &resolvedAt); err != nil {
		return nil, err
	}

	r := &SubmissionRecord{
		ID:          id,
		TxID:        contracts.TxID(txID),
		Op:          op,
		Amount:      uint64(amt),
		IntentHash:  intentHash.String,
		Status:      SubmissionStatus(status),
		Attempts:    attempts,
		LastError:   lastErr,
		SubmittedAt: parseTime(submittedAt.String),
		ResolvedAt:  parseTime(resolvedAt.String),
	}
	if v, err := contracts.ParseAddress(vaultStr); err == nil {
		r.Vault = v
	}
	if destStr.Valid && destStr.String != "" {
		if d, err := contracts.ParseAddress(destStr.String); err == nil {
			r.Destination = d
		}
	}
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
