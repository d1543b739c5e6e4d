package bank

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JournalEntry is one ledger mutation as written to the journal. The journal
// is write-only: nothing in the process ever reads it back.
type JournalEntry struct {
	At      string `json:"at"`
	Op      string `json:"op"` // open, reserve, release, transfer, close
	Account int    `json:"account,omitempty"`
	Payee   int    `json:"payee,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Amount  int    `json:"amount,omitempty"`
	OK      bool   `json:"ok"`
}

// Journal appends compressed JSONL entries, one file per hour.
type Journal struct {
	baseDir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJournal(baseDir string) *Journal {
	return &Journal{baseDir: baseDir}
}

func (j *Journal) Record(e JournalEntry) error {
	if j == nil {
		return nil
	}
	e.At = time.Now().UTC().Format(time.RFC3339Nano)

	j.mu.Lock()
	defer j.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != j.curHour {
		if err := j.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *Journal) rotateLocked(hour string) error {
	if err := j.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(j.baseDir, fmt.Sprintf("ledger-%s.jsonl.zst", hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f = f
	j.enc = enc
	j.w = bufio.NewWriterSize(enc, 64*1024)
	j.curHour = hour
	return nil
}

func (j *Journal) closeLocked() error {
	var err error
	if j.w != nil {
		_ = j.w.Flush()
	}
	if j.enc != nil {
		err = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	j.w = nil
	return err
}
