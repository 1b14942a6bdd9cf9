package taskstatus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dukerupert/tasksparkle/internal/store"
)

// ErrAlreadyMarked is returned when a task that is already done or not done
// for the day is marked again.
var ErrAlreadyMarked = errors.New("task already marked for this day")

const keyPrefix = "tarefas_status_"

// Key returns the storage key for one child's day.
func Key(childID int64, day Day) string {
	return fmt.Sprintf("%s%d_%s", keyPrefix, childID, day)
}

// Cache reads and writes daily status maps in a KV store. Mutations hold a
// lock across their read-modify-write so concurrent marks of the same day
// cannot both succeed.
type Cache struct {
	mu     sync.Mutex
	kv     store.KV
	logger *slog.Logger
}

func NewCache(kv store.KV, logger *slog.Logger) *Cache {
	return &Cache{kv: kv, logger: logger}
}

// Load returns the stored map for (childID, day), or an empty map when the
// day was never initialised. A corrupt or undecryptable entry is logged and
// read as empty.
func (c *Cache) Load(childID int64, day Day) (Map, error) {
	m, _, err := c.load(childID, day)
	return m, err
}

func (c *Cache) load(childID int64, day Day) (Map, bool, error) {
	raw, ok, err := c.kv.Get(Key(childID, day))
	if errors.Is(err, store.ErrUnreadable) {
		c.logger.Warn("unreadable task status entry, treating as empty",
			"child_id", childID, "day", day, "error", err)
		return Map{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load status: %w", err)
	}
	if !ok {
		return Map{}, false, nil
	}
	m := Map{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		c.logger.Warn("corrupt task status entry, treating as empty",
			"child_id", childID, "day", day, "error", err)
		return Map{}, false, nil
	}
	return m, true, nil
}

// Save overwrites the map for (childID, day).
func (c *Cache) Save(childID int64, day Day, m Map) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(childID, day, m)
}

func (c *Cache) save(childID int64, day Day, m Map) error {
	if m == nil {
		m = Map{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := c.kv.Set(Key(childID, day), string(data)); err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	return nil
}

// Initialize creates an all-Unset map for the given tasks when the day has
// no stored entries yet. A non-empty existing map is returned untouched.
func (c *Cache) Initialize(childID int64, day Day, taskIDs []int64) (Map, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, exists, err := c.load(childID, day)
	if err != nil {
		return nil, err
	}
	if exists && len(m) > 0 {
		return m, nil
	}
	if len(taskIDs) == 0 {
		return m, nil
	}
	for _, id := range taskIDs {
		m[id] = Unset
	}
	if err := c.save(childID, day, m); err != nil {
		return nil, err
	}
	c.logger.Debug("initialized task status", "child_id", childID, "day", day, "tasks", len(taskIDs))
	return m, nil
}

// MarkDone moves taskID from Unset to Done.
func (c *Cache) MarkDone(childID int64, day Day, taskID int64) error {
	return c.mark(childID, day, taskID, Done)
}

// MarkNotDone moves taskID from Unset to NotDone.
func (c *Cache) MarkNotDone(childID int64, day Day, taskID int64) error {
	return c.mark(childID, day, taskID, NotDone)
}

func (c *Cache) mark(childID int64, day Day, taskID int64, to Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, _, err := c.load(childID, day)
	if err != nil {
		return err
	}
	if cur := m[taskID]; cur != Unset {
		return fmt.Errorf("task %d is %s on %s: %w", taskID, cur, day, ErrAlreadyMarked)
	}
	m[taskID] = to
	return c.save(childID, day, m)
}

// Rollback returns a single task to Unset. It undoes a mark whose score
// update failed.
func (c *Cache) Rollback(childID int64, day Day, taskID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, _, err := c.load(childID, day)
	if err != nil {
		return err
	}
	if m[taskID] == Unset {
		return nil
	}
	m[taskID] = Unset
	return c.save(childID, day, m)
}

// Reset sets every known task of the day back to Unset, along with any
// extra task ids given. Other days and children are untouched. When the
// stored entry cannot be read it is overwritten with the given ids only.
func (c *Cache) Reset(childID int64, day Day, taskIDs ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, _, err := c.load(childID, day)
	if err != nil {
		c.logger.Warn("could not read task status, overwriting",
			"child_id", childID, "day", day, "error", err)
		m = Map{}
	}
	for id := range m {
		m[id] = Unset
	}
	for _, id := range taskIDs {
		m[id] = Unset
	}
	c.logger.Debug("reset task status", "child_id", childID, "day", day, "tasks", len(m))
	return c.save(childID, day, m)
}

type keyLister interface {
	Keys(prefix string) ([]string, error)
}

// Days lists the days with a stored map for childID, oldest first. It
// needs a KV that can enumerate keys.
func (c *Cache) Days(childID int64) ([]Day, error) {
	kl, ok := c.kv.(keyLister)
	if !ok {
		return nil, errors.New("status store cannot list keys")
	}
	prefix := fmt.Sprintf("%s%d_", keyPrefix, childID)
	keys, err := kl.Keys(prefix)
	if err != nil {
		return nil, fmt.Errorf("list status days: %w", err)
	}
	days := make([]Day, 0, len(keys))
	for _, k := range keys {
		days = append(days, Day(strings.TrimPrefix(k, prefix)))
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}
