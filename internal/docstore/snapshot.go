package docstore

import (
	"encoding/json"
	"slices"
	"sort"
)

// Snapshot is an immutable read of a document or a collection.
type Snapshot struct {
	key      string
	raw      json.RawMessage
	children []Snapshot
	isList   bool
}

func documentSnapshot(key string, raw json.RawMessage) Snapshot {
	return Snapshot{key: key, raw: raw}
}

func collectionSnapshot(name string, docs map[string]json.RawMessage) Snapshot {
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	children := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		children = append(children, documentSnapshot(k, docs[k]))
	}
	return Snapshot{key: name, children: children, isList: true}
}

func (s Snapshot) Key() string {
	return s.key
}

func (s Snapshot) Exists() bool {
	if s.isList {
		return len(s.children) > 0
	}
	return s.raw != nil
}

// ForEach visits children in key order. Returning true from fn stops the
// iteration.
func (s Snapshot) ForEach(fn func(child Snapshot) bool) {
	for _, child := range s.children {
		if fn(child) {
			return
		}
	}
}

// Val decodes the snapshot into v. A collection decodes as an object keyed
// by document key; a missing document decodes as JSON null.
func (s Snapshot) Val(v any) error {
	return json.Unmarshal(s.Raw(), v)
}

func (s Snapshot) Raw() json.RawMessage {
	if !s.isList {
		if s.raw == nil {
			return json.RawMessage("null")
		}
		return slices.Clone(s.raw)
	}

	docs := make(map[string]json.RawMessage, len(s.children))
	for _, child := range s.children {
		docs[child.key] = child.raw
	}
	raw, _ := json.Marshal(docs)
	return raw
}
