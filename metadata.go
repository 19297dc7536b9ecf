// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Metadata is an insertion-ordered key/value store plus a structured
// attribute tree addressed by (entity, field) pairs, e.g. ("Pixels", "SizeX").
//
// A Metadata returned by a Reader must be treated as read-only.
type Metadata struct {
	values *orderedmap.OrderedMap[string, any]
	attrs  *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, string]]
}

// NewMetadata creates an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{
		values: orderedmap.New[string, any](),
		attrs:  orderedmap.New[string, *orderedmap.OrderedMap[string, string]](),
	}
}

// Put stores value under key.
// Overwriting an existing key keeps its original insertion position.
func (m *Metadata) Put(key string, value any) {
	m.values.Set(key, value)
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	return m.values.Get(key)
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, m.values.Len())
	for pair := m.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of stored keys.
func (m *Metadata) Len() int {
	return m.values.Len()
}

// Range calls f for each key/value pair in insertion order until f returns false.
func (m *Metadata) Range(f func(key string, value any) bool) {
	for pair := m.values.Oldest(); pair != nil; pair = pair.Next() {
		if !f(pair.Key, pair.Value) {
			return
		}
	}
}

// SetAttribute sets field of entity to value. Last write wins.
func (m *Metadata) SetAttribute(entity, field, value string) {
	fields, found := m.attrs.Get(entity)
	if !found {
		fields = orderedmap.New[string, string]()
		m.attrs.Set(entity, fields)
	}
	fields.Set(field, value)
}

// Attribute returns the value of field in entity.
func (m *Metadata) Attribute(entity, field string) (string, bool) {
	fields, found := m.attrs.Get(entity)
	if !found {
		return "", false
	}
	return fields.Get(field)
}

// Entities returns the attribute entities in insertion order.
func (m *Metadata) Entities() []string {
	entities := make([]string, 0, m.attrs.Len())
	for pair := m.attrs.Oldest(); pair != nil; pair = pair.Next() {
		entities = append(entities, pair.Key)
	}
	return entities
}

// Fields returns the fields set on entity in insertion order.
func (m *Metadata) Fields(entity string) []string {
	fields, found := m.attrs.Get(entity)
	if !found {
		return nil
	}
	names := make([]string, 0, fields.Len())
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// MarshalJSON implements json.Marshaler, keeping insertion order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Values     *orderedmap.OrderedMap[string, any]                                `json:"values"`
		Attributes *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, string]] `json:"attributes"`
	}{
		Values:     m.values,
		Attributes: m.attrs,
	})
}
