package taskstatus

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/tasksparkle/internal/database"
	"github.com/dukerupert/tasksparkle/internal/store"
)

func newTestCache(t *testing.T) (*Cache, store.KV) {
	t.Helper()
	kv := store.NewMemoryKV()
	return NewCache(kv, slog.New(slog.NewTextHandler(io.Discard, nil))), kv
}

const day = Day("2024-05-01")

func TestLoadNeverInitialized(t *testing.T) {
	c, _ := newTestCache(t)

	m, err := c.Load(7, day)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("len = %d, want 0", len(m))
	}
	if m.Get(1) != Unset {
		t.Errorf("missing task = %v, want unset", m.Get(1))
	}
}

func TestInitializeSetsAllUnset(t *testing.T) {
	c, _ := newTestCache(t)

	m, err := c.Initialize(7, day, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(m) != 3 {
		t.Fatalf("len = %d, want 3", len(m))
	}
	for _, id := range []int64{1, 2, 3} {
		if m[id] != Unset {
			t.Errorf("task %d = %v, want unset", id, m[id])
		}
	}
}

func TestInitializeKeepsExistingMap(t *testing.T) {
	c, _ := newTestCache(t)
	if _, err := c.Initialize(7, day, []int64{1, 2}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := c.MarkDone(7, day, 1); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	m, err := c.Initialize(7, day, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	if m[1] != Done {
		t.Errorf("task 1 = %v, want done", m[1])
	}
	if _, ok := m[3]; ok {
		t.Error("re-initialize should not touch an existing map")
	}
}

func TestMarkRejectsRepeat(t *testing.T) {
	c, _ := newTestCache(t)
	c.Initialize(7, day, []int64{1, 2})

	if err := c.MarkDone(7, day, 1); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if err := c.MarkDone(7, day, 1); !errors.Is(err, ErrAlreadyMarked) {
		t.Errorf("second MarkDone err = %v, want ErrAlreadyMarked", err)
	}
	if err := c.MarkNotDone(7, day, 1); !errors.Is(err, ErrAlreadyMarked) {
		t.Errorf("MarkNotDone after done err = %v, want ErrAlreadyMarked", err)
	}

	if err := c.MarkNotDone(7, day, 2); err != nil {
		t.Fatalf("mark not done: %v", err)
	}
	if err := c.MarkDone(7, day, 2); !errors.Is(err, ErrAlreadyMarked) {
		t.Errorf("MarkDone after not done err = %v, want ErrAlreadyMarked", err)
	}

	m, _ := c.Load(7, day)
	if m[1] != Done || m[2] != NotDone {
		t.Errorf("map = %v, want {1:done 2:not done}", m)
	}
}

func TestMarkWithoutInitialize(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.MarkDone(7, day, 4); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	m, _ := c.Load(7, day)
	if m[4] != Done {
		t.Errorf("task 4 = %v, want done", m[4])
	}
}

func TestResetOnlyAffectsThatDay(t *testing.T) {
	c, _ := newTestCache(t)
	other := Day("2024-05-02")

	c.MarkDone(7, day, 1)
	c.MarkNotDone(7, day, 2)
	c.MarkDone(7, other, 1)
	c.MarkDone(8, day, 1)

	if err := c.Reset(7, day); err != nil {
		t.Fatalf("reset: %v", err)
	}

	m, _ := c.Load(7, day)
	if m[1] != Unset || m[2] != Unset {
		t.Errorf("reset day = %v, want all unset", m)
	}
	if m, _ := c.Load(7, other); m[1] != Done {
		t.Errorf("other day task 1 = %v, want done", m[1])
	}
	if m, _ := c.Load(8, day); m[1] != Done {
		t.Errorf("other child task 1 = %v, want done", m[1])
	}

	if err := c.MarkDone(7, day, 1); err != nil {
		t.Errorf("mark after reset: %v", err)
	}
}

func TestResetWithExtraTasks(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.Reset(7, day, 5, 6); err != nil {
		t.Fatalf("reset: %v", err)
	}
	m, _ := c.Load(7, day)
	if len(m) != 2 {
		t.Errorf("len = %d, want 2", len(m))
	}
}

func TestRollbackRevertsSingleTask(t *testing.T) {
	c, _ := newTestCache(t)
	c.MarkDone(7, day, 1)
	c.MarkNotDone(7, day, 2)

	if err := c.Rollback(7, day, 1); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	m, _ := c.Load(7, day)
	if m[1] != Unset {
		t.Errorf("task 1 = %v, want unset", m[1])
	}
	if m[2] != NotDone {
		t.Errorf("task 2 = %v, want not done", m[2])
	}
	if err := c.Rollback(7, day, 3); err != nil {
		t.Errorf("rollback of unset task: %v", err)
	}
}

func TestPersistedEncoding(t *testing.T) {
	c, kv := newTestCache(t)
	c.Initialize(7, day, []int64{1, 2, 3})
	c.MarkDone(7, day, 1)
	c.MarkNotDone(7, day, 2)

	raw, ok, _ := kv.Get("tarefas_status_7_2024-05-01")
	if !ok {
		t.Fatal("expected stored entry")
	}
	want := `{"1":"feita","2":"nao-feita","3":null}`
	if raw != want {
		t.Errorf("stored = %s, want %s", raw, want)
	}
}

func TestLoadExistingEncoding(t *testing.T) {
	c, kv := newTestCache(t)
	kv.Set(Key(3, day), `{"10":"feita","11":null,"12":"nao-feita"}`)

	m, err := c.Load(3, day)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m[10] != Done || m[11] != Unset || m[12] != NotDone {
		t.Errorf("map = %v", m)
	}
	done, notDone := m.Counts()
	if done != 1 || notDone != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", done, notDone)
	}
}

func TestCorruptEntryReadsEmpty(t *testing.T) {
	c, kv := newTestCache(t)
	kv.Set(Key(3, day), `{not json`)

	m, err := c.Load(3, day)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("len = %d, want 0", len(m))
	}
	if _, err := c.Initialize(3, day, []int64{1}); err != nil {
		t.Fatalf("initialize over corrupt entry: %v", err)
	}
}

func TestConcurrentMarkOnlyOneWins(t *testing.T) {
	c, _ := newTestCache(t)
	c.Initialize(7, day, []int64{1})

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.MarkDone(7, day, 1)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrAlreadyMarked) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}

func TestDaysFromSQLite(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	c := NewCache(store.NewSQLiteKV(db), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.MarkDone(1, "2024-05-02", 1)
	c.MarkDone(1, "2024-05-01", 1)
	c.MarkDone(12, "2024-05-03", 1)

	days, err := c.Days(1)
	if err != nil {
		t.Fatalf("days: %v", err)
	}
	if len(days) != 2 || days[0] != "2024-05-01" || days[1] != "2024-05-02" {
		t.Errorf("days = %v, want [2024-05-01 2024-05-02]", days)
	}
}

func TestSealedOverPlaintextEntries(t *testing.T) {
	inner := store.NewMemoryKV()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewCache(inner, logger).Initialize(1, day, []int64{1, 2}); err != nil {
		t.Fatalf("plaintext initialize: %v", err)
	}

	sealed, err := store.NewSealedKV(inner, "passphrase")
	if err != nil {
		t.Fatalf("new sealed kv: %v", err)
	}
	c := NewCache(sealed, logger)

	m, err := c.Load(1, day)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("unreadable entry loaded as %v, want empty", m)
	}

	if _, err := c.Initialize(1, day, []int64{1, 2}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := c.MarkDone(1, day, 1); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if err := c.Reset(1, day, 1, 2); err != nil {
		t.Fatalf("reset: %v", err)
	}
	m, err = c.Load(1, day)
	if err != nil {
		t.Fatalf("load after reset: %v", err)
	}
	if len(m) != 2 || m.Get(1) != Unset {
		t.Errorf("after reset = %v, want two unset tasks", m)
	}
}

func TestResetOverwritesUnreadableEntry(t *testing.T) {
	inner := store.NewMemoryKV()
	first, _ := store.NewSealedKV(inner, "right")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewCache(first, logger).Initialize(1, day, []int64{1})
	NewCache(first, logger).MarkDone(1, day, 1)

	second, err := store.NewSealedKV(inner, "wrong")
	if err != nil {
		t.Fatalf("new sealed kv: %v", err)
	}
	c := NewCache(second, logger)
	if err := c.Reset(1, day, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := c.MarkDone(1, day, 1); err != nil {
		t.Errorf("mark after reset: %v", err)
	}
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    Day
		wantErr bool
	}{
		{"2024-05-01", "2024-05-01", false},
		{"2024-05-01T23:10:00-03:00", "2024-05-01", false},
		{"01/05/2024", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDay(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDay(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
