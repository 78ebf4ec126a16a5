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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/tomoncle/crudrepo/database"
	"github.com/tomoncle/crudrepo/repository"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var _ repository.Session = (*Session)(nil)

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

type pendingOp struct {
	kind   opKind
	entity any
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for transaction events.
func WithLogger(logger database.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithTxOptions sets the options every transaction of the session begins with.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(s *Session) { s.txOpts = opts }
}

// Session is a unit of work over a bun database. It is safe for use by
// several goroutines, one operation at a time.
type Session struct {
	db       *bun.DB
	txOpts   *sql.TxOptions
	logger   database.Logger
	mu       sync.Mutex
	tx       *bun.Tx
	pending  []pendingOp
	identity *identityMap
}

// New returns a session over db. No transaction is started until the first
// operation that needs one.
func New(db *bun.DB, opts ...Option) *Session {
	s := &Session{
		db:       db,
		logger:   database.GetLogger(),
		identity: newIdentityMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database.
func (s *Session) DB() *bun.DB { return s.db }

// Dialect returns the dialect of the underlying database.
func (s *Session) Dialect() schema.Dialect { return s.db.Dialect() }

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Pending returns the number of staged, unflushed writes.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Add stages entity for insertion, or for an update when it is already
// persistent in this session. A staged delete of entity is cancelled.
func (s *Session) Add(entity any) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(entity, opInsert) >= 0 || s.indexOf(entity, opUpdate) >= 0 {
		return nil
	}
	if i := s.indexOf(entity, opDelete); i >= 0 {
		// re-adding a deleted entity keeps it persistent
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
	}
	if s.identity.contains(entity) {
		s.pending = append(s.pending, pendingOp{kind: opUpdate, entity: entity})
		return nil
	}
	s.pending = append(s.pending, pendingOp{kind: opInsert, entity: entity})
	return nil
}

// Delete stages entity for deletion. An entity that was added but never
// flushed is simply dropped from the unit of work.
func (s *Session) Delete(entity any) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(entity, opInsert); i >= 0 {
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		return nil
	}
	if i := s.indexOf(entity, opUpdate); i >= 0 {
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
	}
	if s.indexOf(entity, opDelete) < 0 {
		s.pending = append(s.pending, pendingOp{kind: opDelete, entity: entity})
	}
	return nil
}

func (s *Session) indexOf(entity any, kind opKind) int {
	for i, op := range s.pending {
		if op.kind == kind && op.entity == entity {
			return i
		}
	}
	return -1
}

// Flush writes staged changes inside the current transaction without
// committing it.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Session) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.beginLocked(ctx)
	if err != nil {
		return err
	}
	ops := s.pending
	s.pending = nil
	for i, op := range ops {
		if err := s.execute(ctx, tx, op); err != nil {
			// the failed write and the rest stay staged until Rollback
			s.pending = ops[i:]
			return err
		}
	}
	s.logger.Debug("session flushed", "writes", len(ops))
	return nil
}

func (s *Session) execute(ctx context.Context, tx *bun.Tx, op pendingOp) error {
	switch op.kind {
	case opInsert:
		if _, err := tx.NewInsert().Model(op.entity).Exec(ctx); err != nil {
			return err
		}
		if key, ok := s.keyOf(op.entity); ok {
			s.identity.put(key, op.entity)
		}
	case opUpdate:
		if _, err := tx.NewUpdate().Model(op.entity).WherePK().Exec(ctx); err != nil {
			return err
		}
	case opDelete:
		if _, err := tx.NewDelete().Model(op.entity).WherePK().Exec(ctx); err != nil {
			return err
		}
		s.identity.remove(op.entity)
	}
	return nil
}

// Refresh reloads entity's columns from its row.
func (s *Session) Refresh(ctx context.Context, entity any) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, entity)
}

func (s *Session) refreshLocked(ctx context.Context, entity any) error {
	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	tx, err := s.beginLocked(ctx)
	if err != nil {
		return err
	}
	if err := tx.NewSelect().Model(entity).WherePK().Scan(ctx); err != nil {
		return err
	}
	if key, ok := s.keyOf(entity); ok {
		s.identity.put(key, entity)
	}
	return nil
}

// Get returns the entity of model's type whose primary key equals id, or nil.
// An entity already loaded in this session is returned as the same pointer.
func (s *Session) Get(ctx context.Context, model any, id any) (any, error) {
	table, pk, err := s.tableOf(model)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return nil, err
	}
	key, keyed := identityKey{}, false
	if idStr, ok := idString(reflect.ValueOf(id)); ok {
		key, keyed = identityKey{table: table.Name, id: idStr}, true
	}
	if keyed {
		if entity, ok := s.identity.get(key); ok {
			if !s.identity.isExpired(entity) {
				return entity, nil
			}
			err := s.refreshLocked(ctx, entity)
			if errors.Is(err, sql.ErrNoRows) {
				s.identity.remove(entity)
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return entity, nil
		}
	}

	tx, err := s.beginLocked(ctx)
	if err != nil {
		return nil, err
	}
	entity := reflect.New(table.Type).Interface()
	err = tx.NewSelect().
		Model(entity).
		Where("?TableAlias.? = ?", pk.SQLName, id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if keyed {
		s.identity.put(key, entity)
	}
	return entity, nil
}

// Select loads all rows of dest's element type into dest, which must be a
// pointer to a slice of struct pointers. Rows already known to the session
// are returned as their existing entity, whose fields are only reloaded
// when it expired at the last commit.
func (s *Session) Select(ctx context.Context, dest any, orderBy ...string) error {
	slice := reflect.ValueOf(dest)
	if slice.Kind() != reflect.Pointer || slice.Elem().Kind() != reflect.Slice ||
		slice.Elem().Type().Elem().Kind() != reflect.Pointer {
		return fmt.Errorf("session: select destination must be *[]*T, got %T", dest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	tx, err := s.beginLocked(ctx)
	if err != nil {
		return err
	}
	q := tx.NewSelect().Model(dest)
	if len(orderBy) > 0 {
		q = q.Order(orderBy...)
	}
	if err := q.Scan(ctx); err != nil {
		return err
	}

	rows := slice.Elem()
	for i := 0; i < rows.Len(); i++ {
		loaded := rows.Index(i)
		key, ok := s.keyOf(loaded.Interface())
		if !ok {
			continue
		}
		if existing, ok := s.identity.get(key); ok {
			ev := reflect.ValueOf(existing)
			if s.identity.isExpired(existing) {
				ev.Elem().Set(loaded.Elem())
				s.identity.put(key, existing)
			}
			loaded.Set(ev)
			continue
		}
		s.identity.put(key, loaded.Interface())
	}
	return nil
}

// Count returns the number of rows of model's table.
func (s *Session) Count(ctx context.Context, model any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return 0, err
	}
	tx, err := s.beginLocked(ctx)
	if err != nil {
		return 0, err
	}
	return tx.NewSelect().Model(model).Count(ctx)
}

// DeleteAll removes every row of model's table in one statement and forgets
// the entities of that table.
func (s *Session) DeleteAll(ctx context.Context, model any) error {
	table, _, err := s.tableOf(model)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	tx, err := s.beginLocked(ctx)
	if err != nil {
		return err
	}
	res, err := tx.NewDelete().Model(model).Where("1 = 1").Exec(ctx)
	if err != nil {
		return err
	}
	s.identity.evictTable(table.Name)
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug("session bulk delete", "table", table.Name, "rows", n)
	}
	return nil
}

// NewSelect flushes staged writes and returns a select query bound to the
// session's transaction.
func (s *Session) NewSelect(ctx context.Context) (*bun.SelectQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return nil, err
	}
	tx, err := s.beginLocked(ctx)
	if err != nil {
		return nil, err
	}
	return tx.NewSelect(), nil
}

// Commit flushes and commits the current transaction. Loaded entities stay
// known to the session but are reloaded before they are returned again.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		s.logger.Error("session commit failed", "error", err)
		s.identity.clear()
		return err
	}
	s.identity.expireAll()
	s.logger.Debug("session transaction committed")
	return nil
}

// Rollback discards staged writes, rolls back the current transaction and
// forgets every loaded entity.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked()
}

func (s *Session) rollbackLocked() error {
	s.pending = nil
	s.identity.clear()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return err
	}
	s.logger.Debug("session transaction rolled back")
	return nil
}

// Close rolls back anything not committed. The database itself stays open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked()
}

func (s *Session) beginLocked(ctx context.Context) (*bun.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, s.txOpts)
	if err != nil {
		return nil, err
	}
	s.tx = &tx
	s.logger.Debug("session transaction started")
	return s.tx, nil
}

func (s *Session) tableOf(model any) (*schema.Table, *schema.Field, error) {
	typ := reflect.TypeOf(model)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("session: model must be a struct pointer, got %T", model)
	}
	table := s.db.Table(typ)
	if len(table.PKs) != 1 {
		return nil, nil, fmt.Errorf("session: model %s must have exactly one primary key", typ)
	}
	return table, table.PKs[0], nil
}

func (s *Session) keyOf(entity any) (identityKey, bool) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return identityKey{}, false
	}
	table := s.db.Table(v.Elem().Type())
	if len(table.PKs) != 1 {
		return identityKey{}, false
	}
	id, ok := idString(v.Elem().FieldByIndex(table.PKs[0].Index))
	if !ok {
		return identityKey{}, false
	}
	return identityKey{table: table.Name, id: id}, true
}

func checkEntity(entity any) error {
	v := reflect.ValueOf(entity)
	if entity == nil || v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("session: entity must be a non-nil pointer, got %T", entity)
	}
	return nil
}
