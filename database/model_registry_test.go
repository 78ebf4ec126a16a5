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

package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelRegistryOrdersByPriority(t *testing.T) {
	r := newModelRegistry()
	r.Register(NewModelAdapter("albums", 20))
	r.Register(NewModelAdapter("artists", 10))
	r.Register(NewModelAdapter("tracks", 20))

	models := r.Models()
	got := make([]interface{}, len(models))
	for i, m := range models {
		got[i] = m.Instance()
	}
	assert.Equal(t, []interface{}{"artists", "albums", "tracks"}, got)
	assert.Equal(t, 10, models[0].Priority())
}
