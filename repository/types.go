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

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Session is the unit of work a repository delegates to. It is owned by the
// caller: repositories never open, close, commit or roll back on their own.
//
// Add and Delete only stage changes; Flush writes them inside the current
// transaction. Reads flush staged changes first. Errors raised by the
// database are returned as-is.
type Session interface {
	Dialect() schema.Dialect

	Add(entity any) error
	Delete(entity any) error
	Flush(ctx context.Context) error
	Refresh(ctx context.Context, entity any) error

	// Get returns the entity of model's type with the given primary key, or
	// nil when no row matches.
	Get(ctx context.Context, model any, id any) (any, error)
	Select(ctx context.Context, dest any, orderBy ...string) error
	Count(ctx context.Context, model any) (int, error)
	DeleteAll(ctx context.Context, model any) error
	NewSelect(ctx context.Context) (*bun.SelectQuery, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// CrudRepository is the uniform CRUD surface of a repository bound to T.
type CrudRepository[T any, ID comparable] interface {
	Save(ctx context.Context, entity *T) (*T, error)
	SaveAll(ctx context.Context, entities []*T) ([]*T, error)
	FindAll(ctx context.Context, orderBy ...string) ([]*T, error)
	FindByID(ctx context.Context, id ID) (*T, error)
	ExistsByID(ctx context.Context, id ID) (bool, error)
	FindAllByID(ctx context.Context, ids []ID) ([]*T, error)
	Count(ctx context.Context) (int, error)
	DeleteByID(ctx context.Context, id ID) error
	Delete(ctx context.Context, entity *T) error
	DeleteAllByID(ctx context.Context, ids []ID) error
	DeleteEntities(ctx context.Context, entities []*T) error
	DeleteAll(ctx context.Context) error
}

// TransactionRepository passes unit-of-work control through to the session.
type TransactionRepository interface {
	Flush(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

var _ CrudRepository[struct{}, int] = (*Repository[struct{}, int])(nil)
var _ TransactionRepository = (*Repository[struct{}, int])(nil)
