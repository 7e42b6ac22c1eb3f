// Package audit keeps a tamper-evident journal of client operations. Each
// entry hashes the previous entry, so truncating or rewriting history
// breaks the chain. The journal lives on the client only; nothing here is
// sent to the server.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Op names a journaled client operation.
type Op string

const (
	OpBind     Op = "bind"
	OpFetch    Op = "fetch"
	OpUpdate   Op = "update"
	OpDownload Op = "download"
	OpNotation Op = "notation"
)

type Entry struct {
	TS     int64  `json:"ts"`
	Op     Op     `json:"op"`
	Detail string `json:"detail,omitempty"`
	Hash   string `json:"hash"`
}

// Journal is an append-only hash chain of entries. Safe for concurrent
// use. If a sink is set, every entry is additionally written to it as one
// JSON line.
type Journal struct {
	mu       sync.Mutex
	lastHash []byte
	entries  []Entry
	sink     io.Writer
	sinkErr  error
	now      func() time.Time
}

func New() *Journal { return &Journal{now: time.Now} }

// NewWithSink journals to memory and mirrors each entry to w.
func NewWithSink(w io.Writer) *Journal {
	return &Journal{sink: w, now: time.Now}
}

// Record appends one entry. Detail is free text, typically a record uid or
// an endpoint name.
func (j *Journal) Record(op Op, detail string) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	ts := j.now().Unix()
	sum := chainHash(j.lastHash, op, detail, ts)
	j.lastHash = sum

	e := Entry{TS: ts, Op: op, Detail: detail, Hash: hex.EncodeToString(sum)}
	j.entries = append(j.entries, e)

	if j.sink != nil {
		b, err := json.Marshal(e)
		if err == nil {
			line := append(b, '\n')
			var n int
			n, err = j.sink.Write(line)
			if err == nil && n < len(line) {
				err = io.ErrShortWrite
			}
		}
		if err != nil {
			j.sinkErr = fmt.Errorf("audit: sink write for entry %d (%s): %w", len(j.entries)-1, op, err)
		}
	}
	return e
}

// SinkErr reports the most recent failure to mirror an entry to the sink.
// The in-memory chain stays complete either way; callers that need every
// line on disk should check this after critical operations.
func (j *Journal) SinkErr() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sinkErr
}

// Recordf is Record with a formatted detail.
func (j *Journal) Recordf(op Op, format string, args ...any) Entry {
	return j.Record(op, fmt.Sprintf(format, args...))
}

// Verify walks the chain from the start and reports the first entry whose
// hash does not follow from its predecessor.
func (j *Journal) Verify() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var prev []byte
	for i, e := range j.entries {
		sum := chainHash(prev, e.Op, e.Detail, e.TS)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("audit: chain broken at entry %d (%s)", i, e.Op)
		}
		prev = sum
	}
	return nil
}

// Entries returns a copy of the journal.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

// Len reports the number of journaled entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func chainHash(prev []byte, op Op, detail string, ts int64) []byte {
	h := sha256.New()
	h.Write(prev)
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write([]byte(detail))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	h.Write(buf[:])
	return h.Sum(nil)
}
