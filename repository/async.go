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
)

// Future holds the outcome of an operation started by AsyncRepository.
type Future[V any] struct {
	done chan struct{}
	val  V
	err  error
}

func resolved[V any](val V, err error) *Future[V] {
	f := &Future[V]{done: make(chan struct{}), val: val, err: err}
	close(f.done)
	return f
}

func spawn[V any](fn func() (V, error)) *Future[V] {
	f := &Future[V]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Await blocks until the operation finishes or ctx is done. Giving up on the
// wait does not cancel the operation; cancel the context it was started with.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// AsyncRepository is the non-blocking variant of Repository. Every operation
// validates its arguments on the caller's goroutine, then runs against the
// session on one goroutine of its own and reports through a Future. Ordering
// between operations is up to the caller: await one before starting the next
// when it depends on it.
type AsyncRepository[T any, ID comparable] struct {
	repo *Repository[T, ID]
}

// NewAsync binds T to an asynchronous repository over s.
func NewAsync[T any, ID comparable](s Session) (*AsyncRepository[T, ID], error) {
	repo, err := New[T, ID](s)
	if err != nil {
		return nil, err
	}
	return &AsyncRepository[T, ID]{repo: repo}, nil
}

// Sync returns the blocking repository sharing the same session and binding.
func (r *AsyncRepository[T, ID]) Sync() *Repository[T, ID] { return r.repo }

// Model returns the bound model.
func (r *AsyncRepository[T, ID]) Model() *Binding[T, ID] { return r.repo.binding }

// Save runs Repository.Save asynchronously.
func (r *AsyncRepository[T, ID]) Save(ctx context.Context, entity *T) *Future[*T] {
	if err := checkEntity(entity); err != nil {
		return resolved[*T](nil, err)
	}
	return spawn(func() (*T, error) { return r.repo.Save(ctx, entity) })
}

// SaveAll runs Repository.SaveAll asynchronously.
func (r *AsyncRepository[T, ID]) SaveAll(ctx context.Context, entities []*T) *Future[[]*T] {
	if err := checkEntities(entities); err != nil {
		return resolved[[]*T](nil, err)
	}
	return spawn(func() ([]*T, error) { return r.repo.SaveAll(ctx, entities) })
}

// FindAll runs Repository.FindAll asynchronously.
func (r *AsyncRepository[T, ID]) FindAll(ctx context.Context, orderBy ...string) *Future[[]*T] {
	return spawn(func() ([]*T, error) { return r.repo.FindAll(ctx, orderBy...) })
}

// FindByID resolves to nil when no row has the given id.
func (r *AsyncRepository[T, ID]) FindByID(ctx context.Context, id ID) *Future[*T] {
	if err := checkID(id); err != nil {
		return resolved[*T](nil, err)
	}
	return spawn(func() (*T, error) { return r.repo.get(ctx, id) })
}

// ExistsByID runs Repository.ExistsByID asynchronously.
func (r *AsyncRepository[T, ID]) ExistsByID(ctx context.Context, id ID) *Future[bool] {
	if err := checkID(id); err != nil {
		return resolved(false, err)
	}
	return spawn(func() (bool, error) { return r.repo.ExistsByID(ctx, id) })
}

// FindAllByID runs Repository.FindAllByID asynchronously.
func (r *AsyncRepository[T, ID]) FindAllByID(ctx context.Context, ids []ID) *Future[[]*T] {
	if err := checkIDs(ids); err != nil {
		return resolved[[]*T](nil, err)
	}
	return spawn(func() ([]*T, error) { return r.repo.FindAllByID(ctx, ids) })
}

// Count runs Repository.Count asynchronously.
func (r *AsyncRepository[T, ID]) Count(ctx context.Context) *Future[int] {
	return spawn(func() (int, error) { return r.repo.Count(ctx) })
}

// DeleteByID runs Repository.DeleteByID asynchronously.
func (r *AsyncRepository[T, ID]) DeleteByID(ctx context.Context, id ID) *Future[struct{}] {
	if err := checkID(id); err != nil {
		return resolved(struct{}{}, err)
	}
	return run(func() error { return r.repo.deleteByID(ctx, id) })
}

// Delete runs Repository.Delete asynchronously.
func (r *AsyncRepository[T, ID]) Delete(ctx context.Context, entity *T) *Future[struct{}] {
	if err := checkEntity(entity); err != nil {
		return resolved(struct{}{}, err)
	}
	return run(func() error { return r.repo.Delete(ctx, entity) })
}

// DeleteAllByID runs Repository.DeleteAllByID asynchronously.
func (r *AsyncRepository[T, ID]) DeleteAllByID(ctx context.Context, ids []ID) *Future[struct{}] {
	if err := checkIDs(ids); err != nil {
		return resolved(struct{}{}, err)
	}
	return run(func() error { return r.repo.DeleteAllByID(ctx, ids) })
}

// DeleteEntities runs Repository.DeleteEntities asynchronously.
func (r *AsyncRepository[T, ID]) DeleteEntities(ctx context.Context, entities []*T) *Future[struct{}] {
	if err := checkEntities(entities); err != nil {
		return resolved(struct{}{}, err)
	}
	return run(func() error { return r.repo.DeleteEntities(ctx, entities) })
}

// DeleteAll runs Repository.DeleteAll asynchronously.
func (r *AsyncRepository[T, ID]) DeleteAll(ctx context.Context) *Future[struct{}] {
	return run(func() error { return r.repo.DeleteAll(ctx) })
}

// Flush runs Repository.Flush asynchronously.
func (r *AsyncRepository[T, ID]) Flush(ctx context.Context) *Future[struct{}] {
	return run(func() error { return r.repo.Flush(ctx) })
}

// Commit runs Repository.Commit asynchronously.
func (r *AsyncRepository[T, ID]) Commit(ctx context.Context) *Future[struct{}] {
	return run(func() error { return r.repo.Commit(ctx) })
}

// Rollback runs Repository.Rollback asynchronously.
func (r *AsyncRepository[T, ID]) Rollback(ctx context.Context) *Future[struct{}] {
	return run(func() error { return r.repo.Rollback(ctx) })
}

func run(fn func() error) *Future[struct{}] {
	return spawn(func() (struct{}, error) { return struct{}{}, fn() })
}
