// Package indexdb keeps a write-only sqlite index of ledger activity for
// offline inspection. The bank never reads it back; losing it loses nothing
// but operator convenience.
package indexdb

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// TxRow is one ledger operation as indexed.
type TxRow struct {
	At      string
	Op      string // open, reserve, release, transfer, close
	Account int
	Payee   int
	Tag     string
	Amount  int
	OK      bool
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan TxRow
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Generous buffer: a burst of settlements must never stall the bank.
		ch: make(chan TxRow, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload; NORMAL durability is enough for a
	// secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			op TEXT NOT NULL,
			account INTEGER NOT NULL,
			payee INTEGER NOT NULL,
			tag TEXT NOT NULL,
			amount INTEGER NOT NULL,
			ok INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_op ON transactions(op, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record queues one row. Drops under sustained backlog; the zstd journal
// remains the source of truth.
func (s *SQLiteIndex) Record(r TxRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if r.At == "" {
		r.At = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case s.ch <- r:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		ok := 0
		if r.OK {
			ok = 1
		}
		_, _ = s.db.Exec(
			`INSERT INTO transactions (at, op, account, payee, tag, amount, ok) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.At, r.Op, r.Account, r.Payee, r.Tag, r.Amount, ok,
		)
	}
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
