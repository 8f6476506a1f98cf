// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package history implements the bounded, chronologically ordered sample collection that is
// persisted in the key-value store. The collection is loaded on every read and replaced as a
// whole on every write; there is no incremental format.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/wneessen/location-history/internal/kvstore"
)

const (
	// RecordsKey is the key the sample collection is stored under.
	RecordsKey = "location_records"

	// DefaultCapacity is the number of samples kept when nothing else is configured, which
	// amounts to 4 samples per hour over 8 hours.
	DefaultCapacity = 32
)

// Store is the persisted sample collection. The store is a plain container, it does not enforce
// its capacity on its own. Every method runs in a single critical section per Store instance.
type Store struct {
	kv  kvstore.Store
	key string

	mu       sync.Mutex
	capacity int
}

// New returns a Store persisting its samples in kv with the default capacity.
func New(kv kvstore.Store) *Store {
	return &Store{
		kv:       kv,
		key:      RecordsKey,
		capacity: DefaultCapacity,
	}
}

// Load returns all persisted samples in ascending timestamp order. If nothing has been persisted
// yet, found is false and no error is returned.
func (s *Store) Load(ctx context.Context) (samples []Sample, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// ReplaceAll overwrites the persisted collection with exactly the given samples. Ordering and
// capacity are the caller's responsibility.
func (s *Store) ReplaceAll(ctx context.Context, samples []Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceAll(ctx, samples)
}

// Append adds a sample and persists the re-sorted collection. Samples with identical timestamps
// are all kept in insertion order.
func (s *Store) Append(ctx context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples, _, err := s.load(ctx)
	if err != nil {
		return err
	}
	samples = append(samples, sample)
	sortSamples(samples)
	return s.replaceAll(ctx, samples)
}

// EvictOldest removes the sample with the lowest timestamp. It is a no-op for an empty store.
func (s *Store) EvictOldest(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples, _, err := s.load(ctx)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	return s.replaceAll(ctx, samples[1:])
}

// Latest returns the sample with the highest timestamp.
func (s *Store) Latest(ctx context.Context) (Sample, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples, _, err := s.load(ctx)
	if err != nil || len(samples) == 0 {
		return Sample{}, false, err
	}
	return samples[len(samples)-1], true, nil
}

// Count returns the number of persisted samples.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples, _, err := s.load(ctx)
	return len(samples), err
}

// Reset removes the persisted collection, after which Load reports found == false again.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to delete location records: %w", err)
	}
	return nil
}

// SetCapacity changes the configured bound. Existing samples are not trimmed.
func (s *Store) SetCapacity(n int) {
	s.mu.Lock()
	s.capacity = n
	s.mu.Unlock()
}

func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

func (s *Store) load(ctx context.Context) ([]Sample, bool, error) {
	data, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read location records: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	samples := make([]Sample, 0)
	if len(data) > 0 {
		if err = json.Unmarshal(data, &samples); err != nil {
			return nil, true, fmt.Errorf("failed to decode location records: %w", err)
		}
	}
	// Concurrent writers may have left the collection unordered.
	sortSamples(samples)
	return samples, true, nil
}

func (s *Store) replaceAll(ctx context.Context, samples []Sample) error {
	if samples == nil {
		samples = []Sample{}
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("failed to encode location records: %w", err)
	}
	if err = s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to write location records: %w", err)
	}
	return nil
}

func sortSamples(samples []Sample) {
	slices.SortStableFunc(samples, func(a, b Sample) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
