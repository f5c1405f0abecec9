// Package testutil holds in-memory fakes shared by tests across packages.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

// MemStore is an in-memory domain.Store. Documents are kept as JSON so filter
// matching and patch merging behave like the real JSONB store. Tests can queue
// errors per operation and inspect call counts.
type MemStore struct {
	mu       sync.Mutex
	data     map[string][]json.RawMessage
	calls    map[string]int
	failures map[string][]error
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		data:     make(map[string][]json.RawMessage),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

// FailOnce queues err to be returned by the next call of op. Ops are named
// insert, find_one, find, update_one, delete_one, count. Multiple queued
// errors are returned in order.
func (s *MemStore) FailOnce(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns how many times op was invoked.
func (s *MemStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Len returns the number of documents in a collection.
func (s *MemStore) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[collection])
}

func (s *MemStore) enter(op string) error {
	s.calls[op]++
	if queue := s.failures[op]; len(queue) > 0 {
		err := queue[0]
		s.failures[op] = queue[1:]
		return err
	}
	return nil
}

// Insert implements domain.Store.
func (s *MemStore) Insert(ctx context.Context, collection string, doc any, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("insert"); err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.data[collection] = append(s.data[collection], raw)
	return decodeRaw(raw, out)
}

// FindOne implements domain.Store.
func (s *MemStore) FindOne(ctx context.Context, collection string, filter domain.Filter, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("find_one"); err != nil {
		return err
	}

	for _, raw := range s.data[collection] {
		if docMatches(raw, filter) {
			return decodeRaw(raw, out)
		}
	}
	return domain.ErrNotFound
}

// Find implements domain.Store.
func (s *MemStore) Find(ctx context.Context, collection string, filter domain.Filter, limit int, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("find"); err != nil {
		return err
	}

	var matched []json.RawMessage
	for _, raw := range s.data[collection] {
		if docMatches(raw, filter) {
			matched = append(matched, raw)
			if limit > 0 && len(matched) == limit {
				break
			}
		}
	}
	combined, err := json.Marshal(matched)
	if err != nil {
		return err
	}
	return decodeRaw(combined, out)
}

// UpdateOne implements domain.Store with the same shallow top-level merge the
// JSONB store performs.
func (s *MemStore) UpdateOne(ctx context.Context, collection string, filter domain.Filter, patch domain.Update, upsert bool, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("update_one"); err != nil {
		return err
	}

	for i, raw := range s.data[collection] {
		if !docMatches(raw, filter) {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		patchMap, err := normalize(patch)
		if err != nil {
			return err
		}
		for k, v := range patchMap {
			doc[k] = v
		}
		merged, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		s.data[collection][i] = merged
		return decodeRaw(merged, out)
	}

	if !upsert {
		return domain.ErrNotFound
	}
	seed := make(map[string]any, len(filter)+len(patch))
	for k, v := range filter {
		seed[k] = v
	}
	for k, v := range patch {
		seed[k] = v
	}
	raw, err := json.Marshal(seed)
	if err != nil {
		return err
	}
	s.data[collection] = append(s.data[collection], raw)
	return decodeRaw(raw, out)
}

// DeleteOne implements domain.Store.
func (s *MemStore) DeleteOne(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("delete_one"); err != nil {
		return 0, err
	}

	docs := s.data[collection]
	for i, raw := range docs {
		if docMatches(raw, filter) {
			s.data[collection] = append(docs[:i:i], docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// Count implements domain.Store.
func (s *MemStore) Count(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("count"); err != nil {
		return 0, err
	}

	var count int64
	for _, raw := range s.data[collection] {
		if docMatches(raw, filter) {
			count++
		}
	}
	return count, nil
}

func docMatches(raw json.RawMessage, filter domain.Filter) bool {
	if len(filter) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}
	want, err := normalize(filter)
	if err != nil {
		return false
	}
	for k, v := range want {
		if !reflect.DeepEqual(doc[k], v) {
			return false
		}
	}
	return true
}

// normalize roundtrips a map through JSON so times, ints, and nested structs
// compare in their encoded form.
func normalize(m any) (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	return out, nil
}

func decodeRaw(raw json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
