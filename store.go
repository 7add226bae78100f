package kvcache

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultCapacity bounds a Store when WithCapacity is not given.
const DefaultCapacity = 1000

// ErrKeyNotLoggable is returned by [Store.GetOrPut] for keys the record
// layout cannot represent (empty, or containing whitespace).
var ErrKeyNotLoggable = errors.New("key not representable in log records")

// Option configures a Store at construction time.
type Option func(*Store) error

// WithCapacity sets the hard upper bound on entry count.
// The capacity must be greater than zero.
func WithCapacity(capacity int) Option {
	return func(s *Store) error {
		if capacity <= 0 {
			return errors.New("capacity must be greater than zero")
		}
		s.capacity = capacity
		return nil
	}
}

// WithLog enables the append-only durability log at path. Every mutation
// is recorded there before the call returns, and [Store.Recover] rebuilds
// the store from it after a restart. If the file cannot be opened the
// store degrades to a pure in-memory cache with a warning to the package
// logger; durability is best-effort and never a reason to fail a mutation.
func WithLog(path string) Option {
	return func(s *Store) error {
		if path == "" {
			return errors.New("log path must not be empty")
		}
		s.logPath = path
		return nil
	}
}

// Store is a thread-safe, fixed-capacity string cache with LRU eviction
// and an optional append-only durability log. A Store must be created
// with [NewStore]; the zero value is not ready for use.
//
// Every public operation runs under a single exclusive section covering
// the index, the recency list and the log append together, so a mutation
// and its record are atomic with respect to all other calls.
type Store struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*entry[string, string]
	list     lruList[string, string]
	log      *wal
	logPath  string
	onEvict  OnEvictFunc[string, string]
	sfGroup  singleflight.Group
}

// NewStore creates a Store with capacity [DefaultCapacity] and no
// durability log unless configured otherwise via options.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{capacity: DefaultCapacity}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.items = make(map[string]*entry[string, string], s.capacity)
	s.log = openWAL(s.logPath)
	return s, nil
}

// MustNewStore creates a Store and panics if an option is invalid.
func MustNewStore(opts ...Option) *Store {
	s, err := NewStore(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// loggableKey reports whether key fits the line-oriented record layout:
// non-empty and free of whitespace. This is an explicit limitation of the
// format, surfaced instead of silently corrupting the log.
func loggableKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, " \t\n\r")
}

// Put inserts or updates a key. Updating an existing key replaces its
// value and promotes it to most recently used without changing the entry
// count. Inserting a new key at capacity first evicts the single least
// recently used entry; eviction is expected behavior, not a failure.
//
// Put returns false only for keys the record layout cannot represent
// (see [ErrKeyNotLoggable] for the rule); for every other key it
// succeeds.
func (s *Store) Put(key, value string) bool {
	if !loggableKey(key) {
		return false
	}

	s.mu.Lock()
	evictedKey, evictedVal, evicted := s.putLocked(key, value)
	s.log.append(record{op: opPut, key: key, value: value})
	onEvict := s.onEvict
	s.mu.Unlock()

	if evicted && onEvict != nil {
		onEvict(evictedKey, evictedVal)
	}
	return true
}

// putLocked applies the in-memory half of a Put. It assumes the mutex is
// held and returns the evicted entry, if any.
func (s *Store) putLocked(key, value string) (evictedKey, evictedVal string, evicted bool) {
	if e, found := s.items[key]; found {
		s.list.moveToFront(e)
		e.val = value
		return
	}

	if len(s.items) >= s.capacity {
		if oldest := s.list.tail; oldest != nil {
			evictedKey = oldest.key
			evictedVal = oldest.val
			evicted = true
			s.list.remove(oldest)
			delete(s.items, oldest.key)
		}
	}

	e := &entry[string, string]{key: key, val: value}
	s.list.pushFront(e)
	s.items[key] = e
	return
}

// Get retrieves the value for key and promotes it to most recently used;
// a read counts as a use for eviction purposes. A miss leaves the store
// untouched.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()

	e, found := s.items[key]
	if !found {
		s.mu.Unlock()
		return "", false
	}

	s.list.moveToFront(e)
	val := e.val
	s.mu.Unlock()

	return val, true
}

// GetOrPut retrieves the value for key, or computes and stores it on a
// miss. Concurrent calls for the same missing key run compute exactly
// once and share the result.
func (s *Store) GetOrPut(key string, compute func() (string, error)) (string, error) {
	if !loggableKey(key) {
		return "", ErrKeyNotLoggable
	}

	// fast path: check if the key is already resident
	if val, found := s.Get(key); found {
		return val, nil
	}

	result, err, _ := s.sfGroup.Do(key, func() (any, error) {
		// check again in case another goroutine just cached it
		if val, found := s.Get(key); found {
			return val, nil
		}

		val, err := compute()
		if err != nil {
			return nil, err
		}
		s.Put(key, val)
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Delete removes key if present and reports whether a removal occurred.
// The index entry and its recency slot go together, atomically with
// respect to other operations.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()

	e, found := s.items[key]
	if !found {
		s.mu.Unlock()
		return false
	}

	delete(s.items, key)
	s.list.remove(e)
	s.log.append(record{op: opDel, key: key})
	removedVal := e.val
	onEvict := s.onEvict
	s.mu.Unlock()

	if onEvict != nil {
		onEvict(key, removedVal)
	}
	return true
}

// Exists reports whether key is resident. Unlike [Store.Get] it does not
// promote the key, so it never affects eviction order.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, found := s.items[key]
	return found
}

// Size returns the current entry count, which never exceeds the capacity.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// Capacity returns the fixed upper bound on entry count.
func (s *Store) Capacity() int {
	return s.capacity
}

// Keys returns all resident keys from most to least recently used.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for e := s.list.head; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Clear empties the store. It is logged as a single CLEAR record rather
// than one deletion per key.
func (s *Store) Clear() {
	s.mu.Lock()
	onEvict := s.onEvict

	var cleared []entry[string, string]
	if onEvict != nil {
		cleared = make([]entry[string, string], 0, len(s.items))
		for e := s.list.head; e != nil; e = e.next {
			cleared = append(cleared, *e)
		}
	}

	s.items = make(map[string]*entry[string, string], s.capacity)
	s.list.reset()
	s.log.append(record{op: opClear})
	s.mu.Unlock()

	for _, e := range cleared {
		onEvict(e.key, e.val)
	}
}

// OnEvict sets a callback invoked whenever an entry leaves the store: on
// capacity eviction, [Store.Delete] and [Store.Clear]. The callback runs
// after the store's lock is released and must be safe for concurrent use.
func (s *Store) OnEvict(f OnEvictFunc[string, string]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onEvict = f
}

// Recover rebuilds the store from its durability log. Records are
// re-applied in append order through the same Put/Delete/Clear paths used
// by live traffic, with logging suspended for the duration, so the
// recovered state is exactly what that operation sequence would have
// produced live. Malformed or torn records are skipped individually.
//
// Recover returns false when no log is configured or the file cannot be
// opened for reading; the store is left unchanged in that case. It
// returns true otherwise, even if zero records were replayed.
//
// Recover is meant to run once, before the store starts serving traffic;
// mutations applied concurrently with a replay are not logged.
func (s *Store) Recover() bool {
	s.mu.Lock()
	if !s.log.suspend() {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.log.resume()
		s.mu.Unlock()
	}()

	return s.log.replay(func(rec record) {
		switch rec.op {
		case opPut:
			s.Put(rec.key, rec.value)
		case opDel:
			s.Delete(rec.key)
		case opClear:
			s.Clear()
		}
	})
}

// Close flushes and releases the durability log handle. The store remains
// usable as a pure in-memory cache afterward.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.log.close()
}
