package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func TestSQLiteIndex_RecordAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	idx.Record(TxRow{Op: "open", Account: 7, Amount: 1000, OK: true})
	idx.Record(TxRow{Op: "reserve", Account: 7, Tag: "sword#50", Amount: 50, OK: true})
	idx.Record(TxRow{Op: "reserve", Account: 7, Tag: "sword#999", Amount: 999, OK: false})

	// Close drains the queue before the db handle goes away.
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("indexed %d rows, want 3", n)
	}

	var ok int
	if err := db.QueryRow(`SELECT ok FROM transactions WHERE tag = 'sword#999'`).Scan(&ok); err != nil {
		t.Fatalf("select refused reserve: %v", err)
	}
	if ok != 0 {
		t.Fatalf("refused reserve indexed with ok = %d", ok)
	}
}

func TestSQLiteIndex_NilIsSafe(t *testing.T) {
	var idx *SQLiteIndex
	idx.Record(TxRow{Op: "open"}) // must not panic
}
