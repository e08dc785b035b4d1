// Package storetest provides in-memory implementations of the store
// contracts for tests: a fake remote preference store whose availability
// can be toggled, and a volatile key-value mirror.
package storetest

import (
	"context"
	"sync"

	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/store"
)

// FakeRemote is an in-memory remote collection. Setting Fail makes every
// call return [store.ErrRemoteUnavailable], simulating an unreachable
// backend.
type FakeRemote[T models.Record] struct {
	mu      sync.Mutex
	fail    bool
	records map[string]T

	// Inserts counts Insert calls that actually stored a record, so tests
	// can assert that duplicate adds never hit the store twice.
	Inserts int
}

func NewFakeRemote[T models.Record]() *FakeRemote[T] {
	return &FakeRemote[T]{records: make(map[string]T)}
}

// SetFail toggles the simulated outage.
func (f *FakeRemote[T]) SetFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

// Len reports the number of stored records.
func (f *FakeRemote[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// Seed stores rec directly, bypassing the availability toggle. It models a
// record inserted by a concurrent path (another device or session).
func (f *FakeRemote[T]) Seed(rec T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.SetPendingSync(false)
	f.records[rec.Key()] = rec
}

// Get returns the stored record for key, if any.
func (f *FakeRemote[T]) Get(key string) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	return rec, ok
}

func (f *FakeRemote[T]) List(ctx context.Context, owner models.UserID) ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, store.ErrRemoteUnavailable
	}
	out := make([]T, 0, len(f.records))
	for _, rec := range f.records {
		if rec.RecordOwner() == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *FakeRemote[T]) Insert(ctx context.Context, rec T) (T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		var zero T
		return zero, false, store.ErrRemoteUnavailable
	}
	if existing, ok := f.records[rec.Key()]; ok {
		return existing, false, nil
	}
	rec.SetPendingSync(false)
	f.records[rec.Key()] = rec
	f.Inserts++
	return rec, true, nil
}

func (f *FakeRemote[T]) Remove(ctx context.Context, owner models.UserID, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, store.ErrRemoteUnavailable
	}
	rec, ok := f.records[key]
	if !ok || rec.RecordOwner() != owner {
		return false, nil
	}
	delete(f.records, key)
	return true, nil
}

func (f *FakeRemote[T]) Exists(ctx context.Context, owner models.UserID, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, store.ErrRemoteUnavailable
	}
	rec, ok := f.records[key]
	return ok && rec.RecordOwner() == owner, nil
}

// MemoryKV is a volatile [store.KV] for tests.
type MemoryKV struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: make(map[string][]byte)}
}

func (kv *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.m[key], nil
}

func (kv *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = append([]byte(nil), value...)
	return nil
}

func (kv *MemoryKV) Close() error { return nil }

var (
	_ store.Remote[*models.SavedFilter] = (*FakeRemote[*models.SavedFilter])(nil)
	_ store.KV                          = (*MemoryKV)(nil)
)
