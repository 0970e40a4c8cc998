package log

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

const hourLayout = "2006-01-02-15"

// segment is one open hourly file.
type segment struct {
	hour string
	f    *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
	enc  *json.Encoder
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	bw := bufio.NewWriterSize(zw, 32*1024)
	return &segment{hour: hour, f: f, zw: zw, bw: bw, enc: json.NewEncoder(bw)}, nil
}

func (s *segment) close() error {
	flushErr := s.bw.Flush()
	zErr := s.zw.Close()
	fErr := s.f.Close()
	for _, err := range []error{flushErr, zErr, fErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// HourlyLog appends entries of type T as JSON lines to zstd files named
// <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst. The hour comes from the entry's own
// timestamp, so a replayed or delayed entry lands in the file for the hour it
// describes. Entries without a timestamp use the wall clock.
type HourlyLog[T any] struct {
	dir    string
	prefix string
	stamp  func(T) time.Time
	now    func() time.Time

	mu  sync.Mutex
	cur *segment
	n   int
}

func NewHourlyLog[T any](dir, prefix string, stamp func(T) time.Time) *HourlyLog[T] {
	return &HourlyLog[T]{dir: dir, prefix: prefix, stamp: stamp, now: time.Now}
}

// Path returns the file that holds entries for hour h.
func (l *HourlyLog[T]) Path(h time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, h.UTC().Format(hourLayout)))
}

// Write appends e and flushes it through to the zstd stream.
func (l *HourlyLog[T]) Write(e T) error {
	ts := l.stamp(e)
	if ts.IsZero() {
		ts = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	hour := ts.UTC().Format(hourLayout)
	if l.cur == nil || l.cur.hour != hour {
		if err := l.closeLocked(); err != nil {
			return err
		}
		seg, err := openSegment(l.Path(ts), hour)
		if err != nil {
			return err
		}
		l.cur = seg
	}
	if err := l.cur.enc.Encode(e); err != nil {
		return err
	}
	l.n++
	return l.cur.bw.Flush()
}

// Written reports how many entries were accepted since creation.
func (l *HourlyLog[T]) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

func (l *HourlyLog[T]) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *HourlyLog[T]) closeLocked() error {
	if l.cur == nil {
		return nil
	}
	err := l.cur.close()
	l.cur = nil
	return err
}

// QueryLogEntry records one sampling request.
type QueryLogEntry struct {
	Time         time.Time `json:"time"`
	Conn         string    `json:"conn"`
	ReqID        string    `json:"req_id"`
	Kind         string    `json:"kind"`
	Seed         uint64    `json:"seed"`
	Points       int       `json:"points"`
	ConfigDigest string    `json:"config_digest"`
	DurationUS   int64     `json:"duration_us"`
	Error        string    `json:"error,omitempty"`
}

// ConfigLogEntry records a live configuration change.
type ConfigLogEntry struct {
	Time   time.Time `json:"time"`
	Conn   string    `json:"conn"`
	ReqID  string    `json:"req_id"`
	Source string    `json:"source"`
	Digest string    `json:"digest"`
}

// QueryLogger writes query and config entries under <dataDir>/queries.
type QueryLogger struct {
	queries *HourlyLog[QueryLogEntry]
	configs *HourlyLog[ConfigLogEntry]
}

func NewQueryLogger(dataDir string) *QueryLogger {
	dir := filepath.Join(dataDir, "queries")
	return &QueryLogger{
		queries: NewHourlyLog(dir, "queries", func(e QueryLogEntry) time.Time { return e.Time }),
		configs: NewHourlyLog(dir, "configs", func(e ConfigLogEntry) time.Time { return e.Time }),
	}
}

func (l *QueryLogger) WriteQuery(e QueryLogEntry) error   { return l.queries.Write(e) }
func (l *QueryLogger) WriteConfig(e ConfigLogEntry) error { return l.configs.Write(e) }

func (l *QueryLogger) Close() error {
	err1 := l.queries.Close()
	err2 := l.configs.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
