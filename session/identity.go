/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"fmt"
	"reflect"
)

type identityKey struct {
	table string
	id    string
}

// identityMap tracks persistent entities by table and primary key value.
// Expired entries are still known but must be reloaded before being handed out.
type identityMap struct {
	byKey   map[identityKey]any
	byPtr   map[any]identityKey
	expired map[any]struct{}
}

func newIdentityMap() *identityMap {
	return &identityMap{
		byKey:   make(map[identityKey]any),
		byPtr:   make(map[any]identityKey),
		expired: make(map[any]struct{}),
	}
}

func (m *identityMap) get(key identityKey) (any, bool) {
	entity, ok := m.byKey[key]
	return entity, ok
}

func (m *identityMap) put(key identityKey, entity any) {
	if old, ok := m.byKey[key]; ok && old != entity {
		m.remove(old)
	}
	if oldKey, ok := m.byPtr[entity]; ok && oldKey != key {
		delete(m.byKey, oldKey)
	}
	m.byKey[key] = entity
	m.byPtr[entity] = key
	delete(m.expired, entity)
}

func (m *identityMap) contains(entity any) bool {
	_, ok := m.byPtr[entity]
	return ok
}

func (m *identityMap) remove(entity any) {
	if key, ok := m.byPtr[entity]; ok {
		delete(m.byKey, key)
		delete(m.byPtr, entity)
	}
	delete(m.expired, entity)
}

func (m *identityMap) isExpired(entity any) bool {
	_, ok := m.expired[entity]
	return ok
}

func (m *identityMap) expireAll() {
	for entity := range m.byPtr {
		m.expired[entity] = struct{}{}
	}
}

func (m *identityMap) evictTable(table string) {
	for key, entity := range m.byKey {
		if key.table == table {
			m.remove(entity)
		}
	}
}

func (m *identityMap) clear() {
	clear(m.byKey)
	clear(m.byPtr)
	clear(m.expired)
}

func (m *identityMap) len() int { return len(m.byKey) }

// idString renders a primary key value so that an int64 column and an int
// argument produce the same key. Zero values are valid keys.
func idString(v reflect.Value) (string, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return "", false
	}
	return fmt.Sprint(v.Interface()), true
}
