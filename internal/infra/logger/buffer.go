package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hydration_reminder/internal/infra/database"
)

const (
	DefaultBufferCapacity = 100
	DefaultPersistTail    = 50
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel accepts DEBUG, INFO, WARN (or WARNING) and ERROR in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

func fromLogrus(l logrus.Level) Level {
	switch l {
	case logrus.TraceLevel, logrus.DebugLevel:
		return LevelDebug
	case logrus.InfoLevel:
		return LevelInfo
	case logrus.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

// Entry is one buffered log line.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Data      map[string]any
	Service   string
}

// Buffer is a bounded in-memory log ring that mirrors its most recent
// entries to the KV backend. It never fails its caller: persistence
// errors go to the diagnostics writer.
//
// Buffer is a logrus.Hook, so every line logged through the application
// logger is captured.
type Buffer struct {
	kv          database.KV
	capacity    int
	persistTail int
	clock       func() time.Time
	diag        io.Writer

	mu      sync.Mutex
	entries []Entry // oldest first
}

type BufferOptions struct {
	Capacity    int
	PersistTail int
	Clock       func() time.Time
	Diagnostics io.Writer
}

func NewBuffer(kv database.KV, opts BufferOptions) *Buffer {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultBufferCapacity
	}
	if opts.PersistTail <= 0 {
		opts.PersistTail = DefaultPersistTail
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = os.Stderr
	}
	return &Buffer{
		kv:          kv,
		capacity:    opts.Capacity,
		persistTail: opts.PersistTail,
		clock:       opts.Clock,
		diag:        opts.Diagnostics,
	}
}

// Restore loads the persisted tail, replacing the in-memory buffer.
func (b *Buffer) Restore(ctx context.Context) {
	raw, found, err := b.kv.Get(ctx, database.KeyNotificationLogs)
	if err != nil {
		fmt.Fprintf(b.diag, "logger: failed to read persisted logs: %v\n", err)
		return
	}
	if !found {
		return
	}
	items, err := database.DecodeEnvelope(raw)
	if err != nil {
		fmt.Fprintf(b.diag, "logger: persisted logs are corrupt, starting empty: %v\n", err)
		return
	}
	restored := make([]Entry, 0, len(items))
	for _, item := range items {
		var rec logRecord
		if err := json.Unmarshal(item, &rec); err != nil || rec.Message == "" {
			continue
		}
		lvl, err := ParseLevel(rec.Level)
		if err != nil {
			continue
		}
		restored = append(restored, Entry{
			Timestamp: rec.Timestamp.Time,
			Level:     lvl,
			Message:   rec.Message,
			Data:      rec.Data,
			Service:   rec.Service,
		})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = restored
	b.trimLocked()
}

// Log appends an entry. service defaults to "app".
func (b *Buffer) Log(level Level, message string, data map[string]any, service string) {
	if service == "" {
		service = "app"
	}
	b.append(Entry{
		Timestamp: b.clock(),
		Level:     level,
		Message:   message,
		Data:      data,
		Service:   service,
	})
}

func (b *Buffer) append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	b.trimLocked()
	b.persistLocked()
}

func (b *Buffer) trimLocked() {
	if over := len(b.entries) - b.capacity; over > 0 {
		b.entries = append([]Entry(nil), b.entries[over:]...)
	}
}

func (b *Buffer) persistLocked() {
	tail := b.entries
	if len(tail) > b.persistTail {
		tail = tail[len(tail)-b.persistTail:]
	}
	records := make([]logRecord, 0, len(tail))
	for _, e := range tail {
		records = append(records, toLogRecord(e))
	}
	raw, err := database.EncodeEnvelope(records)
	if err != nil {
		fmt.Fprintf(b.diag, "logger: failed to serialize logs: %v\n", err)
		return
	}
	if err := b.kv.Put(context.Background(), database.KeyNotificationLogs, raw); err != nil {
		fmt.Fprintf(b.diag, "logger: failed to persist logs: %v\n", err)
	}
}

// Levels implements logrus.Hook.
func (b *Buffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook. It always returns nil.
func (b *Buffer) Fire(e *logrus.Entry) error {
	service := "app"
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		if k == ServiceField {
			if s, ok := v.(string); ok && s != "" {
				service = s
			}
			continue
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}
	if len(data) == 0 {
		data = nil
	}
	b.append(Entry{
		Timestamp: e.Time,
		Level:     fromLogrus(e.Level),
		Message:   e.Message,
		Data:      data,
		Service:   service,
	})
	return nil
}

// --- Queries ---

func (b *Buffer) All() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.entries...)
}

func (b *Buffer) ByLevel(level Level) []Entry {
	return b.filter(func(e Entry) bool { return e.Level == level })
}

func (b *Buffer) ByService(service string) []Entry {
	return b.filter(func(e Entry) bool { return e.Service == service })
}

// Recent returns the last n entries, oldest first.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(b.entries) {
		n = len(b.entries)
	}
	return append([]Entry(nil), b.entries[len(b.entries)-n:]...)
}

func (b *Buffer) filter(keep func(Entry) bool) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Entry
	for _, e := range b.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Clear empties the buffer and its persisted tail.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.persistLocked()
}

// --- Export ---

type exportRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Service   string         `json:"service"`
}

// ExportJSON dumps the whole buffer as an indented JSON array with
// RFC 3339 timestamps.
func (b *Buffer) ExportJSON() (string, error) {
	return ExportEntriesJSON(b.All())
}

// ExportText dumps the whole buffer, one line per entry.
func (b *Buffer) ExportText() string {
	return ExportEntriesText(b.All())
}

// ExportEntriesJSON renders entries the way ExportJSON does, for callers
// that filtered them first.
func ExportEntriesJSON(entries []Entry) (string, error) {
	out := make([]exportRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, exportRecord(e))
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("exporting logs: %w", err)
	}
	return string(raw), nil
}

func ExportEntriesText(entries []Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s [%s] [%s] %s", e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), e.Level, e.Service, e.Message)
		if len(e.Data) > 0 {
			sb.WriteString(" ")
			sb.WriteString(formatData(e.Data))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

type logRecord struct {
	Timestamp database.EpochMillis `json:"timestamp"`
	Level     string               `json:"level"`
	Message   string               `json:"message"`
	Data      map[string]any       `json:"data,omitempty"`
	Service   string               `json:"service"`
}

func toLogRecord(e Entry) logRecord {
	return logRecord{
		Timestamp: database.EpochMillis{Time: e.Timestamp},
		Level:     string(e.Level),
		Message:   e.Message,
		Data:      e.Data,
		Service:   e.Service,
	}
}
