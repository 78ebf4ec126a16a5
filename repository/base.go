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
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Repository implements CRUD operations for model T identified by ID on top
// of a Session. It keeps no state besides the session and the binding.
type Repository[T any, ID comparable] struct {
	session Session
	binding *Binding[T, ID]
}

// New binds T to a repository over s.
func New[T any, ID comparable](s Session) (*Repository[T, ID], error) {
	if s == nil {
		return nil, errNilSession
	}
	binding, err := Bind[T, ID](s.Dialect())
	if err != nil {
		return nil, err
	}
	return &Repository[T, ID]{session: s, binding: binding}, nil
}

// Model returns the bound model.
func (r *Repository[T, ID]) Model() *Binding[T, ID] { return r.binding }

// Session returns the session the repository was built with.
func (r *Repository[T, ID]) Session() Session { return r.session }

// NewSelect returns a query builder running inside the session's transaction,
// for finders that the generic surface does not cover.
func (r *Repository[T, ID]) NewSelect(ctx context.Context) (*bun.SelectQuery, error) {
	q, err := r.session.NewSelect(ctx)
	if err != nil {
		return nil, err
	}
	return q.Model(r.binding.model()), nil
}

// Save stages entity, flushes it and reloads any server generated columns.
func (r *Repository[T, ID]) Save(ctx context.Context, entity *T) (*T, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	if err := r.session.Add(entity); err != nil {
		return nil, err
	}
	if err := r.session.Flush(ctx); err != nil {
		return nil, err
	}
	if err := r.session.Refresh(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// SaveAll saves entities in order with a single flush.
func (r *Repository[T, ID]) SaveAll(ctx context.Context, entities []*T) ([]*T, error) {
	if err := checkEntities(entities); err != nil {
		return nil, err
	}
	for _, entity := range entities {
		if err := r.session.Add(entity); err != nil {
			return nil, err
		}
	}
	if err := r.session.Flush(ctx); err != nil {
		return nil, err
	}
	for _, entity := range entities {
		if err := r.session.Refresh(ctx, entity); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// FindAll loads every row of the model. orderBy is handed to bun's Order
// as given, e.g. "name DESC".
func (r *Repository[T, ID]) FindAll(ctx context.Context, orderBy ...string) ([]*T, error) {
	entities := make([]*T, 0)
	if err := r.session.Select(ctx, &entities, orderBy...); err != nil {
		return nil, err
	}
	return entities, nil
}

// FindByID returns nil without error when no row has the given id.
func (r *Repository[T, ID]) FindByID(ctx context.Context, id ID) (*T, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return r.get(ctx, id)
}

func (r *Repository[T, ID]) get(ctx context.Context, id ID) (*T, error) {
	found, err := r.session.Get(ctx, r.binding.model(), id)
	if err != nil || found == nil {
		return nil, err
	}
	entity, ok := found.(*T)
	if !ok {
		return nil, fmt.Errorf("repository: session returned %T, want %T", found, entity)
	}
	return entity, nil
}

// ExistsByID reports whether a row with id exists.
func (r *Repository[T, ID]) ExistsByID(ctx context.Context, id ID) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	entity, err := r.get(ctx, id)
	if err != nil {
		return false, err
	}
	return entity != nil, nil
}

// FindAllByID returns the entities found for ids, in the order their ids first
// appear. Unknown ids are skipped and repeated ids yield one entity.
func (r *Repository[T, ID]) FindAllByID(ctx context.Context, ids []ID) ([]*T, error) {
	if err := checkIDs(ids); err != nil {
		return nil, err
	}
	entities := make([]*T, 0, len(ids))
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		entity, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

// Count returns the number of rows of the model.
func (r *Repository[T, ID]) Count(ctx context.Context) (int, error) {
	return r.session.Count(ctx, r.binding.model())
}

// DeleteByID stages the deletion of the row with id. Missing rows are ignored.
func (r *Repository[T, ID]) DeleteByID(ctx context.Context, id ID) error {
	if err := checkID(id); err != nil {
		return err
	}
	return r.deleteByID(ctx, id)
}

func (r *Repository[T, ID]) deleteByID(ctx context.Context, id ID) error {
	entity, err := r.get(ctx, id)
	if err != nil || entity == nil {
		return err
	}
	return r.session.Delete(entity)
}

// Delete stages the deletion of entity in the current unit of work.
func (r *Repository[T, ID]) Delete(ctx context.Context, entity *T) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	return r.session.Delete(entity)
}

// DeleteAllByID stages the deletion of the rows with the given ids. Missing
// rows are ignored.
func (r *Repository[T, ID]) DeleteAllByID(ctx context.Context, ids []ID) error {
	if err := checkIDs(ids); err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.deleteByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteEntities stages the deletion of exactly the given entities. An empty
// slice deletes nothing.
func (r *Repository[T, ID]) DeleteEntities(ctx context.Context, entities []*T) error {
	if err := checkEntities(entities); err != nil {
		return err
	}
	for _, entity := range entities {
		if err := r.session.Delete(entity); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll removes every row of the model with one bulk DELETE statement,
// without loading the rows.
func (r *Repository[T, ID]) DeleteAll(ctx context.Context) error {
	return r.session.DeleteAll(ctx, r.binding.model())
}

// Flush writes the staged changes without committing.
func (r *Repository[T, ID]) Flush(ctx context.Context) error { return r.session.Flush(ctx) }

// Commit flushes and commits the session's transaction.
func (r *Repository[T, ID]) Commit(ctx context.Context) error { return r.session.Commit(ctx) }

// Rollback discards staged changes and the open transaction.
func (r *Repository[T, ID]) Rollback(ctx context.Context) error { return r.session.Rollback(ctx) }
