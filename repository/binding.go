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
	"fmt"
	"reflect"

	"github.com/uptrace/bun/schema"
)

// Binding is the resolved association between a repository and its model:
// the bun table of T and its single primary key, which must be compatible
// with ID. It is immutable once built.
type Binding[T any, ID comparable] struct {
	table *schema.Table
	pk    *schema.Field
}

// Bind resolves the bun table for T using the dialect's table registry.
func Bind[T any, ID comparable](dialect schema.Dialect) (*Binding[T, ID], error) {
	typ := reflect.TypeFor[T]()
	if dialect == nil {
		return nil, &ConfigurationError{Model: typ.String(), Reason: "no dialect to resolve the model with"}
	}
	if typ.Kind() != reflect.Struct {
		return nil, &ConfigurationError{
			Model:  typ.String(),
			Reason: fmt.Sprintf("model must be a struct type, got %s", typ.Kind()),
		}
	}

	table, err := lookupTable(dialect, typ)
	if err != nil {
		return nil, err
	}
	switch len(table.PKs) {
	case 0:
		return nil, &ConfigurationError{Model: typ.String(), Reason: "model has no primary key"}
	case 1:
	default:
		return nil, &ConfigurationError{
			Model:  typ.String(),
			Reason: fmt.Sprintf("composite primary keys are not supported (%d columns)", len(table.PKs)),
		}
	}

	pk := table.PKs[0]
	idType := reflect.TypeFor[ID]()
	if !compatibleID(pk.IndirectType, idType) {
		return nil, &ConfigurationError{
			Model:  typ.String(),
			Reason: fmt.Sprintf("primary key %s is %s, not assignable to identifier type %s", pk.GoName, pk.IndirectType, idType),
		}
	}
	return &Binding[T, ID]{table: table, pk: pk}, nil
}

func lookupTable(dialect schema.Dialect, typ reflect.Type) (table *schema.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ConfigurationError{Model: typ.String(), Reason: fmt.Sprint(r)}
		}
	}()
	table = dialect.Tables().Get(typ)
	if table == nil {
		return nil, &ConfigurationError{Model: typ.String(), Reason: "bun returned no table for model"}
	}
	return table, nil
}

func compatibleID(pk, id reflect.Type) bool {
	if pk.AssignableTo(id) {
		return true
	}
	if id.Kind() == reflect.Pointer && pk.AssignableTo(id.Elem()) {
		return true
	}
	if id.Kind() == reflect.Interface {
		return pk.Implements(id)
	}
	return isInteger(pk.Kind()) && isInteger(id.Kind()) ||
		pk.Kind() == reflect.String && id.Kind() == reflect.String
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// Type returns the bound model type.
func (b *Binding[T, ID]) Type() reflect.Type { return b.table.Type }

// TableName returns the unquoted table name of the model.
func (b *Binding[T, ID]) TableName() string { return b.table.Name }

// PrimaryKey returns the unquoted primary key column name.
func (b *Binding[T, ID]) PrimaryKey() string { return b.pk.Name }

// Table exposes the bun table metadata.
func (b *Binding[T, ID]) Table() *schema.Table { return b.table }

// ID reads the primary key of entity as an ID.
func (b *Binding[T, ID]) ID(entity *T) ID {
	var id ID
	if entity == nil {
		return id
	}
	v := reflect.ValueOf(entity).Elem().FieldByIndex(b.pk.Index)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return id
		}
		v = v.Elem()
	}
	target := reflect.TypeFor[ID]()
	switch {
	case v.Type().AssignableTo(target):
		return v.Interface().(ID)
	case target.Kind() == reflect.Pointer:
		p := reflect.New(target.Elem())
		p.Elem().Set(v.Convert(target.Elem()))
		return p.Interface().(ID)
	default:
		return v.Convert(target).Interface().(ID)
	}
}

func (b *Binding[T, ID]) model() *T { return (*T)(nil) }
