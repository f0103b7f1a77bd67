package core

import (
	"sync"

	"github.com/0xRadioAc7iv/segcask/internal/segment"
)

// EntryLocation points at one encoded entry: the segment holding it, the
// byte offset where it starts, and its encoded length.
type EntryLocation = segment.Location

// KeyDir is the in-memory index mapping each live key to the location of
// its most recent entry.
//
// It is rebuilt on startup by replaying segment files and is safe for
// concurrent use. Lookups share a read lock.
type KeyDir[K comparable] struct {
	mu      sync.RWMutex
	entries map[K]EntryLocation
}

func NewKeyDir[K comparable]() *KeyDir[K] {
	return &KeyDir[K]{entries: make(map[K]EntryLocation)}
}

// Put records loc as the latest location of key, replacing any previous one.
func (kd *KeyDir[K]) Put(key K, loc EntryLocation) {
	kd.mu.Lock()
	defer kd.mu.Unlock()

	kd.entries[key] = loc
}

func (kd *KeyDir[K]) Get(key K) (EntryLocation, bool) {
	kd.mu.RLock()
	defer kd.mu.RUnlock()

	loc, ok := kd.entries[key]
	return loc, ok
}

// Remove deletes key and returns the location it pointed to, if any.
func (kd *KeyDir[K]) Remove(key K) (EntryLocation, bool) {
	kd.mu.Lock()
	defer kd.mu.Unlock()

	loc, ok := kd.entries[key]
	if ok {
		delete(kd.entries, key)
	}
	return loc, ok
}

func (kd *KeyDir[K]) Len() int {
	kd.mu.RLock()
	defer kd.mu.RUnlock()

	return len(kd.entries)
}

// Keys returns a snapshot of every key in the directory, in no particular order.
func (kd *KeyDir[K]) Keys() []K {
	kd.mu.RLock()
	defer kd.mu.RUnlock()

	keys := make([]K, 0, len(kd.entries))
	for k := range kd.entries {
		keys = append(keys, k)
	}
	return keys
}
