package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/socket-client/internal/connection"
)

// fakeStore records every batch it is given.
type fakeStore struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
}

func (s *fakeStore) InsertBatch(_ context.Context, entries []Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.batches = append(s.batches, append([]Entry(nil), entries...))
	return len(entries), nil
}

func (s *fakeStore) entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func (s *fakeStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// fakeMetrics counts recorder telemetry.
type fakeMetrics struct {
	mu       sync.Mutex
	inserted int
	errors   int
	dropped  int
}

func (m *fakeMetrics) JournalFlushed(inserted int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errors++
		return
	}
	m.inserted += inserted
}

func (m *fakeMetrics) JournalDropped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += n
}

func (m *fakeMetrics) JournalPending(int) {}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRecorder_RecordsEveryKind(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(Config{Source: "ws://example.test/", BatchSize: 100, FlushInterval: time.Hour}, store, nil, nil)

	rec.Router().DispatchText("hello")
	rec.Router().DispatchText(`{"b":2,"a":1}`)
	rec.Router().DispatchBinary([]byte{0x01, 0x02})

	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	got := store.entries()
	if len(got) != 3 {
		t.Fatalf("recorded %d entries, want 3", len(got))
	}

	wantKinds := []string{KindText, KindStructured, KindBinary}
	for i, e := range got {
		if e.Kind != wantKinds[i] {
			t.Errorf("entry %d kind = %q, want %q", i, e.Kind, wantKinds[i])
		}
		if e.Source != "ws://example.test/" {
			t.Errorf("entry %d source = %q", i, e.Source)
		}
		if e.ReceivedAt.IsZero() {
			t.Errorf("entry %d has zero ReceivedAt", i)
		}
	}

	if string(got[0].Payload) != "hello" {
		t.Errorf("text payload = %q, want hello", got[0].Payload)
	}

	var decoded map[string]float64
	if err := json.Unmarshal(got[1].Payload, &decoded); err != nil {
		t.Fatalf("structured payload is not JSON: %v", err)
	}
	if decoded["a"] != 1 || decoded["b"] != 2 {
		t.Errorf("structured payload = %v", decoded)
	}

	if string(got[2].Payload) != "\x01\x02" {
		t.Errorf("binary payload = %v", got[2].Payload)
	}
	if got[0].ID == got[1].ID || got[1].ID == got[2].ID {
		t.Error("entries should have distinct IDs")
	}
}

func TestRecorder_StructuredNumbersKeepDigits(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(Config{BatchSize: 10, FlushInterval: time.Hour}, store, nil, nil)

	rec.Router().DispatchText(`{"id":12345678901234567890,"b":1.50,"a":-2e3}`)
	_ = rec.Stop(context.Background())

	got := store.entries()
	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(got))
	}
	if got[0].Kind != KindStructured {
		t.Errorf("kind = %q, want %q", got[0].Kind, KindStructured)
	}

	want := `{"a":-2e3,"b":1.50,"id":12345678901234567890}`
	if string(got[0].Payload) != want {
		t.Errorf("payload = %s, want %s", got[0].Payload, want)
	}
}

func TestRecorder_FlushesFullBatch(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(Config{BatchSize: 5, FlushInterval: time.Hour}, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		rec.Router().DispatchText("msg")
	}

	waitFor(t, func() bool { return store.batchCount() == 1 })

	st := rec.Stats()
	if st.Inserts != 5 || st.Flushes != 1 {
		t.Errorf("stats = %+v, want 5 inserts in 1 flush", st)
	}

	_ = rec.Stop(context.Background())
}

func TestRecorder_FlushesOnInterval(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = rec.Start(ctx)

	rec.Router().DispatchText("one")
	rec.Router().DispatchText("two")

	waitFor(t, func() bool { return len(store.entries()) == 2 })

	_ = rec.Stop(context.Background())
}

func TestRecorder_StopFlushesPending(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(Config{BatchSize: 3, FlushInterval: time.Hour}, store, nil, nil)

	// Not started: entries queue until Stop.
	for i := 0; i < 7; i++ {
		rec.Router().DispatchText("x")
	}
	if rec.Stats().Pending != 7 {
		t.Errorf("Pending = %d, want 7", rec.Stats().Pending)
	}

	_ = rec.Stop(context.Background())

	if n := len(store.entries()); n != 7 {
		t.Errorf("flushed %d entries, want 7", n)
	}
	if n := store.batchCount(); n != 3 {
		t.Errorf("batches = %d, want 3", n)
	}

	// Queue is closed after Stop.
	rec.Router().DispatchText("late")
	if rec.Stats().Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", rec.Stats().Dropped)
	}
}

func TestRecorder_StoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	m := &fakeMetrics{}
	rec := NewRecorder(Config{BatchSize: 2, FlushInterval: time.Hour}, store, m, nil)

	rec.Router().DispatchText("a")
	rec.Router().DispatchText("b")
	rec.Router().DispatchText("c")

	_ = rec.Stop(context.Background())

	st := rec.Stats()
	if st.Errors != 2 {
		t.Errorf("Errors = %d, want 2", st.Errors)
	}
	if st.Inserts != 0 || st.Flushes != 0 {
		t.Errorf("stats = %+v, want no inserts", st)
	}
	if st.Pending != 0 {
		t.Errorf("Pending = %d, failed batches should be discarded", st.Pending)
	}
	if m.errors != 2 {
		t.Errorf("metrics errors = %d, want 2", m.errors)
	}
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	store := &fakeStore{}
	m := &fakeMetrics{}
	rec := NewRecorder(Config{BatchSize: 10, BufferSize: 3, FlushInterval: time.Hour}, store, m, nil)

	for i := 0; i < 5; i++ {
		rec.Router().DispatchText("x")
	}

	st := rec.Stats()
	if st.Pending != 3 || st.Dropped != 2 {
		t.Errorf("stats = %+v, want 3 pending and 2 dropped", st)
	}
	if m.dropped != 2 {
		t.Errorf("metrics dropped = %d, want 2", m.dropped)
	}

	_ = rec.Stop(context.Background())
	if m.inserted != 3 {
		t.Errorf("metrics inserted = %d, want 3", m.inserted)
	}
}

func TestRecorder_AttachDetach(t *testing.T) {
	conn := connection.New("example.test", connection.DefaultConfig(), nil)
	rec := NewRecorder(DefaultConfig(), &fakeStore{}, nil, nil)

	rec.Attach(conn)
	rec.Attach(conn)
	routers := conn.Routers()
	if len(routers) != 2 || routers[1] != rec.Router() {
		t.Fatalf("Routers() = %d routers, want default plus journal", len(routers))
	}

	rec.Detach(conn)
	if len(conn.Routers()) != 1 {
		t.Errorf("journal router still attached after Detach")
	}
}

func TestNewRecorder_Defaults(t *testing.T) {
	rec := NewRecorder(Config{}, &fakeStore{}, nil, nil)
	def := DefaultConfig()
	if rec.cfg.BatchSize != def.BatchSize || rec.cfg.FlushInterval != def.FlushInterval || rec.cfg.BufferSize != def.BufferSize {
		t.Errorf("cfg = %+v, want defaults %+v", rec.cfg, def)
	}
}

func TestNewPostgresStore_TableName(t *testing.T) {
	tests := []struct {
		table   string
		wantErr bool
	}{
		{"socket_messages", false},
		{"_journal2", false},
		{"", true},
		{"Messages", false},
		{"msgs; DROP TABLE x", true},
		{"9msgs", true},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			s, err := NewPostgresStore(nil, tt.table)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPostgresStore(%q) error = %v, wantErr %v", tt.table, err, tt.wantErr)
			}
			if err == nil && s.table != `"`+tt.table+`"` {
				t.Errorf("table = %s, want quoted identifier", s.table)
			}
		})
	}
}

func TestPostgresStore_InsertBatchEmpty(t *testing.T) {
	s, err := NewPostgresStore(nil, "socket_messages")
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.InsertBatch(context.Background(), nil)
	if n != 0 || err != nil {
		t.Errorf("InsertBatch(nil) = %d, %v, want 0, nil", n, err)
	}
}
