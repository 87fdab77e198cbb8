package main

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS request_signals (
		id             TEXT PRIMARY KEY,
		thread_id      TEXT NOT NULL DEFAULT '',
		message_id_hdr TEXT NOT NULL DEFAULT '',
		sender         TEXT NOT NULL,
		subject        TEXT NOT NULL DEFAULT '',
		topic          TEXT NOT NULL DEFAULT '',
		confidence     REAL NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'open',
		received_at    DATETIME NOT NULL,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_request_signals_status ON request_signals(status);
	CREATE INDEX IF NOT EXISTS idx_request_signals_received_at ON request_signals(received_at);

	CREATE TABLE IF NOT EXISTS dispatch_ledger (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id     TEXT NOT NULL,
		completion_id  TEXT NOT NULL,
		run_id         TEXT NOT NULL DEFAULT '',
		score          REAL NOT NULL DEFAULT 0,
		outcome        TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		attempted_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_dispatch_ledger_request ON dispatch_ledger(request_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_dispatch_ledger_sent_once
		ON dispatch_ledger(request_id) WHERE outcome = 'sent';
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// RequestSignalExists reports whether a signal was already extracted
// for the given message ID in a previous run.
func RequestSignalExists(db *sql.DB, id string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM request_signals WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

func InsertRequestSignal(db *sql.DB, sig RequestSignal) error {
	// Signals are keyed by message ID; re-extracting the same message
	// must not reset its status.
	_, err := db.Exec(
		`INSERT OR IGNORE INTO request_signals
		 (id, thread_id, message_id_hdr, sender, subject, topic, confidence, status, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.ThreadID, sig.MessageIDHeader, sig.Sender, sig.Subject,
		sig.ExtractedTopic, sig.Confidence, sig.Status, sig.ReceivedAt,
	)
	return err
}

func GetOpenRequests(db *sql.DB) ([]RequestSignal, error) {
	rows, err := db.Query(
		`SELECT id, thread_id, message_id_hdr, sender, subject, topic, confidence, status, received_at, created_at
		 FROM request_signals WHERE status = 'open' ORDER BY received_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequestSignals(rows)
}

func GetRequestSignal(db *sql.DB, id string) (RequestSignal, error) {
	var sig RequestSignal
	err := db.QueryRow(
		`SELECT id, thread_id, message_id_hdr, sender, subject, topic, confidence, status, received_at, created_at
		 FROM request_signals WHERE id = ?`,
		id,
	).Scan(
		&sig.ID, &sig.ThreadID, &sig.MessageIDHeader, &sig.Sender, &sig.Subject,
		&sig.ExtractedTopic, &sig.Confidence, &sig.Status, &sig.ReceivedAt, &sig.CreatedAt,
	)
	return sig, err
}

func scanRequestSignals(rows *sql.Rows) ([]RequestSignal, error) {
	var signals []RequestSignal
	for rows.Next() {
		var sig RequestSignal
		err := rows.Scan(
			&sig.ID, &sig.ThreadID, &sig.MessageIDHeader, &sig.Sender, &sig.Subject,
			&sig.ExtractedTopic, &sig.Confidence, &sig.Status, &sig.ReceivedAt, &sig.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// ExpireOpenRequestsBefore moves open requests older than the cutoff to
// expired and returns how many were affected.
func ExpireOpenRequestsBefore(db *sql.DB, cutoff time.Time) (int, error) {
	res, err := db.Exec(
		`UPDATE request_signals SET status = 'expired'
		 WHERE status = 'open' AND received_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Dispatch ledger ---

// Ledger wraps the append-only dispatch table. The mutex makes the
// has-been-sent check and the in-flight reservation one logical step
// across concurrent dispatch workers; the partial unique index on sent
// rows enforces the same guarantee across processes.
type Ledger struct {
	db *sql.DB

	mu       sync.Mutex
	inflight map[string]bool
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, inflight: make(map[string]bool)}
}

// HasBeenSent reports whether a sent record exists for the request.
// A sent record is the sole authority for "already answered".
func (l *Ledger) HasBeenSent(requestID string) (bool, error) {
	var count int
	err := l.db.QueryRow(
		"SELECT COUNT(*) FROM dispatch_ledger WHERE request_id = ? AND outcome = 'sent'",
		requestID,
	).Scan(&count)
	return count > 0, err
}

// BeginSend gates a send attempt: it returns true only when no sent
// record exists and no other worker holds the request. The caller must
// call FinishSend afterwards regardless of the send result.
func (l *Ledger) BeginSend(requestID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[requestID] {
		return false, nil
	}
	sent, err := l.HasBeenSent(requestID)
	if err != nil {
		return false, err
	}
	if sent {
		return false, nil
	}
	l.inflight[requestID] = true
	return true, nil
}

func (l *Ledger) FinishSend(requestID string) {
	l.mu.Lock()
	delete(l.inflight, requestID)
	l.mu.Unlock()
}

// Append adds one failed or skipped record. Sent outcomes go through
// RecordSent so the request status transition rides the same
// transaction.
func (l *Ledger) Append(rec DispatchRecord) error {
	if rec.Outcome == OutcomeSent {
		return fmt.Errorf("sent outcomes must be recorded via RecordSent")
	}
	_, err := l.db.Exec(
		`INSERT INTO dispatch_ledger (request_id, completion_id, run_id, score, outcome, failure_reason)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.CompletionID, rec.RunID, rec.Score, rec.Outcome, rec.FailureReason,
	)
	return err
}

// RecordSent appends the sent record and marks the request answered in
// one transaction. The unique sent-per-request index turns a duplicate
// into an error instead of a second row.
func (l *Ledger) RecordSent(pair MatchedPair, runID string) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO dispatch_ledger (request_id, completion_id, run_id, score, outcome)
		 VALUES (?, ?, ?, ?, 'sent')`,
		pair.RequestID, pair.CompletionID, runID, pair.Score,
	)
	if err != nil {
		return fmt.Errorf("appending sent record: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE request_signals SET status = 'answered' WHERE id = ?`,
		pair.RequestID,
	)
	if err != nil {
		return fmt.Errorf("marking request answered: %w", err)
	}
	return tx.Commit()
}

func (l *Ledger) GetRecords(requestID string) ([]DispatchRecord, error) {
	rows, err := l.db.Query(
		`SELECT id, request_id, completion_id, run_id, score, outcome, failure_reason, attempted_at
		 FROM dispatch_ledger WHERE request_id = ? ORDER BY attempted_at, id`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DispatchRecord
	for rows.Next() {
		var rec DispatchRecord
		err := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.CompletionID, &rec.RunID,
			&rec.Score, &rec.Outcome, &rec.FailureReason, &rec.AttemptedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
