package bank

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestJournal_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)

	entries := []JournalEntry{
		{Op: "open", Account: 7, Amount: 1000, OK: true},
		{Op: "reserve", Account: 7, Tag: "sword#50", Amount: 50, OK: true},
		{Op: "transfer", Account: 7, Payee: 9, Tag: "sword#50", Amount: 50, OK: true},
	}
	for _, e := range entries {
		if err := j.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "ledger-*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("journal files = %v (err %v), want exactly one", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []JournalEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("read %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i].Op != e.Op || got[i].Account != e.Account || got[i].Amount != e.Amount {
			t.Fatalf("entry %d = %+v, want op/account/amount of %+v", i, got[i], e)
		}
		if got[i].At == "" {
			t.Fatalf("entry %d has no timestamp", i)
		}
	}
}

func TestJournal_NilIsSafe(t *testing.T) {
	var j *Journal
	if err := j.Record(JournalEntry{Op: "open"}); err != nil {
		t.Fatalf("nil journal record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("nil journal close: %v", err)
	}
}
