// Package journal appends ledger call outcomes to daily zstd-compressed JSONL
// files so that submissions can be audited after the fact.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Outcomes
const (
	OutcomeFinalized = "finalized"
	OutcomeAborted   = "aborted"
	OutcomeTransport = "transport_error"
	OutcomeUnknown   = "unknown"
)

// Entry is one ledger call
type Entry struct {
	Time      time.Time `json:"time"`
	Call      string    `json:"call"`
	SessionID string    `json:"session_id,omitempty"`
	LevelID   int       `json:"level_id"`
	MoveCount int       `json:"move_count,omitempty"`
	Moves     string    `json:"moves,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	Outcome   string    `json:"outcome"`
	Code      int       `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Writer appends entries to <dir>/journal-YYYY-MM-DD.jsonl.zst. Each open of
// a file starts a new zstd frame; readers decode the concatenation.
type Writer struct {
	baseDir string
	now     func() time.Time

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

// NewWriter creates a journal writer rooted at baseDir
func NewWriter(baseDir string) *Writer {
	return &Writer{
		baseDir: baseDir,
		now:     time.Now,
	}
}

// Record appends one entry. The entry is buffered in the open zstd frame until
// the day rolls over or Close is called.
func (w *Writer) Record(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if e.Time.IsZero() {
		e.Time = now
	}
	day := now.Format("2006-01-02")
	if day != w.curDay {
		if err := w.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close finishes the current frame
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(day string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForDay(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curDay = day
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curDay = ""
	return err1
}

func (w *Writer) pathForDay(day string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("journal-%s.jsonl.zst", day))
}

// ReadFile decodes every entry of a closed journal file
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var entries []Entry
	d := json.NewDecoder(dec)
	for {
		var e Entry
		if err := d.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		entries = append(entries, e)
	}
}

// Discard drops every entry
type Discard struct{}

func (Discard) Record(Entry) error { return nil }
