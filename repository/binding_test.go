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

package repository

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type tag struct {
	bun.BaseModel `bun:"table:tags"`

	ID    string `bun:"id,pk"`
	Label string `bun:"label"`
}

type keyless struct {
	bun.BaseModel `bun:"table:keyless"`

	Name string `bun:"name"`
}

type membership struct {
	bun.BaseModel `bun:"table:memberships"`

	UserID  int64 `bun:"user_id,pk"`
	GroupID int64 `bun:"group_id,pk"`
}

func TestBind(t *testing.T) {
	b, err := Bind[widget, int64](sqlitedialect.New())
	require.NoError(t, err)

	assert.Equal(t, "widgets", b.TableName())
	assert.Equal(t, "id", b.PrimaryKey())
	assert.Equal(t, "widget", b.Type().Name())
	assert.Len(t, b.Table().PKs, 1)
}

func TestBindStringIdentifier(t *testing.T) {
	b, err := Bind[tag, string](pgdialect.New())
	require.NoError(t, err)

	id := uuid.NewString()
	assert.Equal(t, id, b.ID(&tag{ID: id, Label: "metal"}))
	assert.Equal(t, "", b.ID(nil))
}

func TestBindConvertibleIdentifiers(t *testing.T) {
	asInt, err := Bind[widget, int](sqlitedialect.New())
	require.NoError(t, err)
	assert.Equal(t, 7, asInt.ID(&widget{ID: 7}))

	asPtr, err := Bind[widget, *int64](sqlitedialect.New())
	require.NoError(t, err)
	id := asPtr.ID(&widget{ID: 7})
	require.NotNil(t, id)
	assert.Equal(t, int64(7), *id)

	asAny, err := Bind[widget, any](sqlitedialect.New())
	require.NoError(t, err)
	assert.Equal(t, int64(7), asAny.ID(&widget{ID: 7}))
}

func TestBindConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		bind func() error
	}{
		{"nil dialect", func() error { _, err := Bind[widget, int64](nil); return err }},
		{"not a struct", func() error { _, err := Bind[string, int64](sqlitedialect.New()); return err }},
		{"pointer model", func() error { _, err := Bind[*widget, int64](sqlitedialect.New()); return err }},
		{"no primary key", func() error { _, err := Bind[keyless, int64](sqlitedialect.New()); return err }},
		{"composite primary key", func() error { _, err := Bind[membership, int64](sqlitedialect.New()); return err }},
		{"identifier type mismatch", func() error { _, err := Bind[widget, string](sqlitedialect.New()); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bind()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.NotErrorIs(t, err, ErrInvalidArgument)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.NotEmpty(t, cfgErr.Model)
			assert.NotEmpty(t, cfgErr.Reason)
		})
	}
}

func TestIsNil(t *testing.T) {
	var nilPtr *int64
	var nilAny any
	zero := int64(0)

	assert.True(t, isNil(nilPtr))
	assert.True(t, isNil(nilAny))
	assert.False(t, isNil(zero))
	assert.False(t, isNil(""))
	assert.False(t, isNil(&zero))
}
