package entitycache

import (
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// store keeps the last full snapshot of each entity by id.
// Callers serialize access through Cache.mu.
type store struct {
	entities *lru.Cache[string, json.RawMessage]
}

func newStore(size int) (*store, error) {
	entities, err := lru.New[string, json.RawMessage](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &store{entities: entities}, nil
}

// get returns the snapshot for id
func (s *store) get(id string) (json.RawMessage, bool) {
	return s.entities.Get(id)
}

// contains reports whether id is cached without touching recency
func (s *store) contains(id string) bool {
	return s.entities.Contains(id)
}

// put overwrites the snapshot for its id; entities without an id are ignored
func (s *store) put(raw json.RawMessage) (string, bool) {
	id := entityID(raw)
	if id == "" {
		return "", false
	}
	s.entities.Add(id, raw)
	return id, true
}

// putAll stores every element of a JSON array of entities
func (s *store) putAll(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	parsed := gjson.ParseBytes(raw)
	if parsed.Type == gjson.Null {
		return 0, nil
	}
	if !parsed.IsArray() {
		return 0, fmt.Errorf("expected an array of entities, got %s", parsed.Type)
	}

	stored := 0
	for _, item := range parsed.Array() {
		if _, ok := s.put(json.RawMessage(item.Raw)); ok {
			stored++
		}
	}
	return stored, nil
}

// patch sets one field on the cached snapshot for id, if present
func (s *store) patch(id, field string, value interface{}) error {
	raw, ok := s.entities.Peek(id)
	if !ok {
		return nil
	}
	patched, err := patchField(raw, field, value)
	if err != nil {
		return err
	}
	s.entities.Add(id, patched)
	return nil
}

func (s *store) purge() {
	s.entities.Purge()
}

func (s *store) len() int {
	return s.entities.Len()
}

// entityID reads the "id" field of an entity snapshot
func entityID(raw json.RawMessage) string {
	return gjson.GetBytes(raw, "id").String()
}

// patchField returns a copy of raw with field set to value
func patchField(raw json.RawMessage, field string, value interface{}) (json.RawMessage, error) {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	patched, err := sjson.SetBytes(cp, field, value)
	if err != nil {
		return nil, fmt.Errorf("failed to patch %s: %w", field, err)
	}
	return patched, nil
}
