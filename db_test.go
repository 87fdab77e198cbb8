package main

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertRequestSignalIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	sig := RequestSignal{
		ID:         "m1",
		Sender:     "alice@example.com",
		Subject:    "report?",
		Status:     StatusOpen,
		ReceivedAt: t0,
	}
	if err := InsertRequestSignal(db, sig); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	exists, err := RequestSignalExists(db, "m1")
	if err != nil || !exists {
		t.Fatalf("RequestSignalExists = %v, %v", exists, err)
	}

	// Answer the request, then re-extract the same message. The insert
	// must not reset the status.
	if err := NewLedger(db).RecordSent(MatchedPair{RequestID: "m1", CompletionID: "d1", Score: 0.8}, "run-1"); err != nil {
		t.Fatalf("RecordSent failed: %v", err)
	}
	if err := InsertRequestSignal(db, sig); err != nil {
		t.Fatalf("re-insert failed: %v", err)
	}

	got, err := GetRequestSignal(db, "m1")
	if err != nil {
		t.Fatalf("GetRequestSignal failed: %v", err)
	}
	if got.Status != StatusAnswered {
		t.Fatalf("status = %q, want %q", got.Status, StatusAnswered)
	}
}

func TestGetOpenRequestsOrdering(t *testing.T) {
	db := newTestDB(t)

	for _, sig := range []RequestSignal{
		{ID: "m2", Sender: "b@example.com", Status: StatusOpen, ReceivedAt: t0.Add(time.Hour)},
		{ID: "m1", Sender: "a@example.com", Status: StatusOpen, ReceivedAt: t0},
		{ID: "m3", Sender: "c@example.com", Status: StatusAnswered, ReceivedAt: t0},
	} {
		if err := InsertRequestSignal(db, sig); err != nil {
			t.Fatalf("insert %s failed: %v", sig.ID, err)
		}
	}

	open, err := GetOpenRequests(db)
	if err != nil {
		t.Fatalf("GetOpenRequests failed: %v", err)
	}
	if len(open) != 2 || open[0].ID != "m1" || open[1].ID != "m2" {
		t.Fatalf("unexpected open requests: %+v", open)
	}
}

func TestExpireOpenRequestsBefore(t *testing.T) {
	db := newTestDB(t)

	for _, sig := range []RequestSignal{
		{ID: "old-open", Sender: "a@example.com", Status: StatusOpen, ReceivedAt: t0.Add(-10 * 24 * time.Hour)},
		{ID: "old-answered", Sender: "b@example.com", Status: StatusAnswered, ReceivedAt: t0.Add(-10 * 24 * time.Hour)},
		{ID: "fresh-open", Sender: "c@example.com", Status: StatusOpen, ReceivedAt: t0.Add(-time.Hour)},
	} {
		if err := InsertRequestSignal(db, sig); err != nil {
			t.Fatalf("insert %s failed: %v", sig.ID, err)
		}
	}
	n, err := ExpireOpenRequestsBefore(db, t0.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("ExpireOpenRequestsBefore failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d requests, want 1", n)
	}

	got, err := GetRequestSignal(db, "old-open")
	if err != nil {
		t.Fatalf("GetRequestSignal failed: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("old-open status = %q, want %q", got.Status, StatusExpired)
	}
	got, err = GetRequestSignal(db, "old-answered")
	if err != nil {
		t.Fatalf("GetRequestSignal failed: %v", err)
	}
	if got.Status != StatusAnswered {
		t.Fatalf("old-answered status = %q, want %q", got.Status, StatusAnswered)
	}
}

func TestLedgerSendLifecycle(t *testing.T) {
	db := newTestDB(t)
	if err := InsertRequestSignal(db, RequestSignal{ID: "m1", Sender: "a@example.com", Status: StatusOpen, ReceivedAt: t0}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	ledger := NewLedger(db)

	// A failed attempt does not block future sends.
	if err := ledger.Append(DispatchRecord{RequestID: "m1", CompletionID: "d1", RunID: "run-1", Score: 0.7, Outcome: OutcomeFailed, FailureReason: "send failed"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	sent, err := ledger.HasBeenSent("m1")
	if err != nil || sent {
		t.Fatalf("HasBeenSent after failure = %v, %v", sent, err)
	}

	ok, err := ledger.BeginSend("m1")
	if err != nil || !ok {
		t.Fatalf("BeginSend = %v, %v, want true", ok, err)
	}
	// The reservation blocks a second concurrent attempt.
	ok, err = ledger.BeginSend("m1")
	if err != nil || ok {
		t.Fatalf("BeginSend while in flight = %v, %v, want false", ok, err)
	}

	if err := ledger.RecordSent(MatchedPair{RequestID: "m1", CompletionID: "d1", Score: 0.8}, "run-2"); err != nil {
		t.Fatalf("RecordSent failed: %v", err)
	}
	ledger.FinishSend("m1")

	sent, err = ledger.HasBeenSent("m1")
	if err != nil || !sent {
		t.Fatalf("HasBeenSent after send = %v, %v", sent, err)
	}
	ok, err = ledger.BeginSend("m1")
	if err != nil || ok {
		t.Fatalf("BeginSend after send = %v, %v, want false", ok, err)
	}

	got, err := GetRequestSignal(db, "m1")
	if err != nil {
		t.Fatalf("GetRequestSignal failed: %v", err)
	}
	if got.Status != StatusAnswered {
		t.Fatalf("status = %q, want %q", got.Status, StatusAnswered)
	}
}

func TestLedgerRejectsSecondSentRecord(t *testing.T) {
	db := newTestDB(t)
	if err := InsertRequestSignal(db, RequestSignal{ID: "m1", Sender: "a@example.com", Status: StatusOpen, ReceivedAt: t0}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	ledger := NewLedger(db)

	if err := ledger.RecordSent(MatchedPair{RequestID: "m1", CompletionID: "d1", Score: 0.8}, "run-1"); err != nil {
		t.Fatalf("first RecordSent failed: %v", err)
	}
	if err := ledger.RecordSent(MatchedPair{RequestID: "m1", CompletionID: "d2", Score: 0.9}, "run-2"); err == nil {
		t.Fatal("second sent record for the same request must fail")
	}

	records, err := ledger.GetRecords("m1")
	if err != nil {
		t.Fatalf("GetRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestLedgerAppendRejectsSentOutcome(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	if err := ledger.Append(DispatchRecord{RequestID: "m1", CompletionID: "d1", Outcome: OutcomeSent}); err == nil {
		t.Fatal("Append must reject sent outcomes")
	}
}

func TestLedgerGetRecords(t *testing.T) {
	db := newTestDB(t)
	if err := InsertRequestSignal(db, RequestSignal{ID: "m1", Sender: "a@example.com", Status: StatusOpen, ReceivedAt: t0}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	ledger := NewLedger(db)

	if err := ledger.Append(DispatchRecord{RequestID: "m1", CompletionID: "d1", RunID: "run-1", Score: 0.65, Outcome: OutcomeFailed, FailureReason: "timeout"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := ledger.RecordSent(MatchedPair{RequestID: "m1", CompletionID: "d1", Score: 0.65}, "run-2"); err != nil {
		t.Fatalf("RecordSent failed: %v", err)
	}
	if err := ledger.Append(DispatchRecord{RequestID: "m2", CompletionID: "d2", RunID: "run-2", Outcome: OutcomeSkipped}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := ledger.GetRecords("m1")
	if err != nil {
		t.Fatalf("GetRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Outcome != OutcomeFailed || records[0].FailureReason != "timeout" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Outcome != OutcomeSent || records[1].RunID != "run-2" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}
