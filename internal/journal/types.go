package journal

import (
	"time"

	"github.com/google/uuid"
)

// Entry kinds, matching the router's payload classes.
const (
	KindText       = "text"
	KindStructured = "structured"
	KindBinary     = "binary"
)

// Entry is one recorded inbound message.
type Entry struct {
	ID     uuid.UUID
	Source string // Endpoint address the message arrived on
	Kind   string
	// Payload is the raw text or binary bytes. Structured payloads are
	// re-encoded as compact JSON with sorted object keys; numbers keep their
	// original digits.
	Payload    []byte
	ReceivedAt time.Time
}

// Config holds recorder settings.
type Config struct {
	Source        string        // Stamped on every entry
	BatchSize     int           // Flush when this many entries are pending
	FlushInterval time.Duration // Flush pending entries at least this often
	BufferSize    int           // Max pending entries, further entries are dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats contains recorder counters.
type Stats struct {
	Inserts int64 // Rows written
	Errors  int64 // Failed batch writes
	Flushes int64 // Successful batch writes
	Dropped int64 // Entries rejected by a full or closed queue
	Pending int   // Entries waiting to be written
}

// Metrics receives recorder telemetry. *metrics.Collector implements it.
type Metrics interface {
	JournalFlushed(inserted int, err error)
	JournalDropped(n int)
	JournalPending(n int)
}

type nopMetrics struct{}

func (nopMetrics) JournalFlushed(int, error) {}
func (nopMetrics) JournalDropped(int)        {}
func (nopMetrics) JournalPending(int)        {}
