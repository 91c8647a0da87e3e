package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// One file per UTC hour: <prefix>-<hour>.jsonl.zst.
const hourLayout = "2006-01-02-15"

func segmentName(prefix, hour string) string {
	return prefix + "-" + hour + ".jsonl.zst"
}

// segment is the open file of one hour. Lines go through a buffer into the zstd stream.
type segment struct {
	hour string
	f    *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
	enc  *json.Encoder
}

func openSegment(dir, prefix, hour string) (*segment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := segmentName(prefix, hour)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	// reopening an hour appends a new zstd frame; readers see one stream
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	bw := bufio.NewWriterSize(zw, 64*1024)
	return &segment{hour: hour, f: f, zw: zw, bw: bw, enc: json.NewEncoder(bw)}, nil
}

func (s *segment) append(v any) error {
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	return s.bw.Flush()
}

func (s *segment) close() error {
	return errors.Join(s.bw.Flush(), s.zw.Close(), s.f.Close())
}

// JSONLZstdWriter appends JSON lines to hourly zstd files. Safe for concurrent use.
type JSONLZstdWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu  sync.Mutex
	cur *segment
}

func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix, now: time.Now}
}

// Write appends v as one line, switching files when the hour changed.
func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format(hourLayout)
	if w.cur == nil || w.cur.hour != hour {
		if err := w.closeLocked(); err != nil {
			return err
		}
		seg, err := openSegment(w.dir, w.prefix, hour)
		if err != nil {
			return err
		}
		w.cur = seg
	}
	return w.cur.append(v)
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.cur == nil {
		return nil
	}
	err := w.cur.close()
	w.cur = nil
	return err
}

// FeedEntry is one received feed message.
type FeedEntry struct {
	Seq  uint64          `json:"seq"`
	Time string          `json:"time"`
	Msg  json.RawMessage `json:"msg"`
}

// FeedLogger writes every received feed message (compressed), rotated hourly.
type FeedLogger struct {
	w   *JSONLZstdWriter
	seq uint64
}

func NewFeedLogger(dir string) *FeedLogger {
	return &FeedLogger{w: NewJSONLZstdWriter(dir, FeedPrefix)}
}

// WriteMessage records a protocol message value. Sequence numbers are only spent on
// messages that could be encoded.
func (l *FeedLogger) WriteMessage(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	l.seq++
	return l.w.Write(FeedEntry{
		Seq:  l.seq,
		Time: l.w.now().UTC().Format(time.RFC3339Nano),
		Msg:  b,
	})
}

func (l *FeedLogger) Close() error { return l.w.Close() }
